package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Enrollment Platform API",
        "description": "Course enrollment platform: identity, catalog, roster, enrollment ledger",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Registration, login, token lifecycle"},
        {"name": "Courses", "description": "Course catalog management"},
        {"name": "Students", "description": "Student roster management"},
        {"name": "Enrollments", "description": "Enrollment ledger"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a student account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Email already in use", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked token", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate code or name", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/courses/student-view": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses annotated with caller enrollment state",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/search-for-student": {
            "get": {
                "tags": ["Courses"],
                "summary": "Search courses a student is not enrolled in",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "q", "in": "query", "required": true, "type": "string"},
                    {"name": "studentId", "in": "query", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}": {
            "put": {
                "tags": ["Courses"],
                "summary": "Update course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateCourseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Duplicate code or name", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/courses/{id}/students": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List students enrolled in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already in use", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/students/search": {
            "get": {
                "tags": ["Students"],
                "summary": "Search students not enrolled in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "q", "in": "query", "required": true, "type": "string"},
                    {"name": "courseId", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/user/{userId}": {
            "get": {
                "tags": ["Students"],
                "summary": "Resolve student profile by user id",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "userId", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/students/{id}": {
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the profile owner", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete student and owning user",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/students/{id}/courses": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List courses a student is enrolled in",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List every enrollment with student and course details",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll the calling student in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course or profile not found", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/enrollments/my-courses": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List the calling student's enrolled courses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/export": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Export the enrollment roster",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/enrollments/admin": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student on their behalf",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdminEnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student or course not found", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/enrollments/admin/{studentId}/{courseId}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Withdraw a student on their behalf",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "integer"},
                    {"name": "courseId", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Enrollment not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/enrollments/{courseId}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Withdraw the calling student from a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "courseId", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Enrollment not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "date_of_birth": {"type": "string", "format": "date"}
            },
            "required": ["first_name", "last_name", "email", "password", "date_of_birth"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateCourseRequest": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "duration_hours": {"type": "number"}
            },
            "required": ["course_code", "name"]
        },
        "UpdateCourseRequest": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "duration_hours": {"type": "number"}
            }
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "date_of_birth": {"type": "string", "format": "date"}
            },
            "required": ["first_name", "last_name", "email", "password", "date_of_birth"]
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "date_of_birth": {"type": "string", "format": "date"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "course_id": {"type": "integer"}
            },
            "required": ["course_id"]
        },
        "AdminEnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "integer"},
                "course_id": {"type": "integer"}
            },
            "required": ["student_id", "course_id"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "totalPages": {"type": "integer"}
            }
        },
        "ErrorBody": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "message": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
