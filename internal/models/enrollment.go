package models

// Enrollment is the join row between a student and a course. The pair is the
// composite primary key; there is no independent identity beyond it.
type Enrollment struct {
	StudentID int64 `db:"student_id" json:"student_id"`
	CourseID  int64 `db:"course_id" json:"course_id"`
}

// EnrollmentRecord is the administrative audit projection: the enrollment pair
// joined with the student, the owning identity's email and the course.
type EnrollmentRecord struct {
	StudentID  int64  `db:"student_id" json:"student_id"`
	CourseID   int64  `db:"course_id" json:"course_id"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	Email      string `db:"email" json:"email"`
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}
