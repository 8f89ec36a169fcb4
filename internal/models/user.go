package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
)

// User represents an application user stored in the users table. A user that
// registers as a learner owns exactly one Student record; deleting the user
// cascades to the student and its enrollments.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the metadata for a page of results.
func NewPagination(total, page, limit int) *Pagination {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	totalPages := (total + limit - 1) / limit
	return &Pagination{Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}
