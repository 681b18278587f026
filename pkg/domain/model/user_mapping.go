package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// EmployeeID references a record in the employee directory
type EmployeeID string

// UserMappingID is a UUID-based identifier for UserMapping
type UserMappingID string

// NewUserMappingID generates a new UUID v4 UserMappingID
func NewUserMappingID() UserMappingID {
	return UserMappingID(uuid.New().String())
}

// UserMapping binds an external identity to an internal employee within one connection.
// EmployeeID is nil until someone pairs the identity with an employee.
type UserMapping struct {
	ID               UserMappingID
	ConnectionID     ConnectionID
	ExternalID       string
	ExternalUsername string
	ExternalEmail    string
	EmployeeID       *EmployeeID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsMapped reports whether the identity is paired with an employee
func (m *UserMapping) IsMapped() bool {
	return m.EmployeeID != nil && *m.EmployeeID != ""
}

// Validate checks the mapping's required fields
func (m *UserMapping) Validate() error {
	if m.ConnectionID == "" {
		return goerr.Wrap(ErrInvalidMapping, "connection ID is required")
	}
	if NormalizeEmail(m.ExternalEmail) == "" {
		return goerr.Wrap(ErrInvalidMapping, "external email is required")
	}
	return nil
}

// NormalizeEmail returns the canonical form used as the mapping join key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
