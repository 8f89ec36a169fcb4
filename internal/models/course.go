package models

// Course represents a catalog entry. Course code and name are each globally
// unique across the catalog.
type Course struct {
	ID            int64    `db:"id" json:"id"`
	CourseCode    string   `db:"course_code" json:"course_code"`
	Name          string   `db:"name" json:"name"`
	Description   *string  `db:"description" json:"description"`
	DurationHours *float64 `db:"duration_hours" json:"duration_hours"`
}

// CourseWithEnrollment annotates a course with the enrollment state of one
// student, for the student-facing catalog view.
type CourseWithEnrollment struct {
	Course
	IsEnrolled bool `db:"is_enrolled" json:"is_enrolled"`
}

// CourseSearchResult is the shape returned by the unenrolled-course search.
type CourseSearchResult struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	CourseCode string `db:"course_code" json:"course_code"`
}
