package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RevocationStore remembers dashboard sessions that were logged out before their token expired.
type RevocationStore interface {
	Revoke(ctx context.Context, sid string, until time.Time) error
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

type Service struct {
	jwt         *JWTManager
	revocations RevocationStore
	now         func() time.Time
}

// NewService builds the dashboard token verifier. revocations may be nil, in which case tokens
// stay valid until they expire.
func NewService(jwtManager *JWTManager, revocations RevocationStore) *Service {
	return &Service{
		jwt:         jwtManager,
		revocations: revocations,
		now:         time.Now,
	}
}

// Issue mints a dashboard token. The admin panel normally signs its own tokens with the
// shared secret; this is used by operator tooling and tests.
func (s *Service) Issue(_ context.Context, operatorID string, role Role) (IssuedToken, error) {
	if strings.TrimSpace(operatorID) == "" {
		return IssuedToken{}, ErrInvalidInput
	}
	if _, ok := ParseRole(string(role)); !ok {
		return IssuedToken{}, ErrInvalidInput
	}

	sid, err := NewSessionID()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate session id: %w", err)
	}
	token, expiresAt, err := s.jwt.GenerateAccessToken(strings.TrimSpace(operatorID), sid, role)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate access token: %w", err)
	}
	return IssuedToken{AccessToken: token, SID: sid, ExpiresAt: expiresAt}, nil
}

func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (AccessClaims, error) {
	claims, err := s.jwt.ParseAccessToken(accessToken)
	if err != nil {
		return AccessClaims{}, ErrUnauthorized
	}
	if s.revocations == nil {
		return claims, nil
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.SID)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return AccessClaims{}, ErrUnauthorized
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, claims AccessClaims) error {
	if strings.TrimSpace(claims.SID) == "" {
		return ErrInvalidInput
	}
	if s.revocations == nil {
		return nil
	}
	until := claims.ExpiresAt
	if until.Before(s.now()) {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.SID, until); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Authorize reports whether role may perform an operation that requires required.
func Authorize(role, required Role) error {
	if role == RoleAdmin || role == required {
		return nil
	}
	return ErrForbidden
}
