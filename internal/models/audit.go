package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionEnrollmentCreate = "ENROLLMENT_CREATE"
	AuditActionEnrollmentDelete = "ENROLLMENT_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *int64    `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Resource  string    `db:"resource" json:"resource"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
