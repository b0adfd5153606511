// Package user defines the workflow's actors and their roles.
package user

import (
	"fmt"
	"strings"
	"time"
)

// Role classifies what a user may do in the approval workflow.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleCFO      Role = "CFO"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole converts external input into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Valid reports whether the role is one of the defined values.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleCFO, RoleAdmin:
		return true
	}
	return false
}

// User is an actor in the workflow: an expense owner, an approver or an
// administrator.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
