package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOperator:
		return RoleOperator, true
	default:
		return "", false
	}
}

// AccessClaims is what a verified dashboard token carries.
type AccessClaims struct {
	OperatorID string
	SID        string
	Role       Role
	ExpiresAt  time.Time
}

type IssuedToken struct {
	AccessToken string
	SID         string
	ExpiresAt   time.Time
}
