package models

import "time"

// Student represents a learner profile owned by exactly one user.
type Student struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
}

// StudentDetail enriches Student with the owning identity's email.
type StudentDetail struct {
	ID          int64     `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	Email       string    `db:"email" json:"email"`
}

// StudentSearchResult is the shape returned by the unenrolled-student search.
type StudentSearchResult struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}
