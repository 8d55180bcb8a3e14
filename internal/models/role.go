package models

import "fmt"

// Role is the closed set of account roles. Only the grantor role may attach
// credit points to the tasks it posts.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole converts a raw string (from a token or a request body) into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// GrantsCredit reports whether tasks posted under this role carry credit points.
func (r Role) GrantsCredit() bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

func (r Role) String() string { return string(r) }
