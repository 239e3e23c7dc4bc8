// Package identity defines the authenticated actor passed explicitly into
// every lifecycle and query operation.
package identity

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles an identity provider may assert.
type Role string

const (
	// RoleStudent submits and manages their own achievements.
	RoleStudent Role = "student"
	// RoleTeacher reviews pending achievements and publishes directly.
	RoleTeacher Role = "teacher"
	// RoleAdmin may delete non-approved achievements and read teacher projections.
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses s into a Role. Unknown values are rejected, never coerced.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("identity: unknown role %q", s)
	}
	return r, nil
}

// Principal is an authenticated actor.
type Principal struct {
	ID   string
	Role Role
}

// NewPrincipal validates and builds a Principal.
func NewPrincipal(id string, role Role) (Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Principal{}, fmt.Errorf("identity: principal id is required")
	}
	if !role.IsValid() {
		return Principal{}, fmt.Errorf("identity: unknown role %q", role)
	}
	return Principal{ID: id, Role: role}, nil
}

// IsStudent reports whether the principal acts as a student.
func (p Principal) IsStudent() bool { return p.Role == RoleStudent }

// IsTeacher reports whether the principal acts as a teacher.
func (p Principal) IsTeacher() bool { return p.Role == RoleTeacher }

// IsAdmin reports whether the principal acts as an admin.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanReadReviewViews reports whether the principal may read the teacher-side
// projections (pending queue, history, counts).
func (p Principal) CanReadReviewViews() bool {
	return p.Role == RoleTeacher || p.Role == RoleAdmin
}

// String returns "role:id" for logs.
func (p Principal) String() string {
	return fmt.Sprintf("%s:%s", p.Role, p.ID)
}
