package auth

import (
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// JWTManager signs and verifies dashboard access tokens (HS256). Tokens may be minted by the
// dashboard itself with the shared secret, so verification tolerates a little clock skew.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
	leeway    time.Duration
	now       func() time.Time
}

type JWTOption func(*JWTManager)

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) JWTOption {
	return func(m *JWTManager) {
		m.issuer = strings.TrimSpace(issuer)
	}
}

func WithLeeway(d time.Duration) JWTOption {
	return func(m *JWTManager) {
		if d >= 0 {
			m.leeway = d
		}
	}
}

func withClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		if now != nil {
			m.now = now
		}
	}
}

type tokenClaims struct {
	SID  string `json:"sid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewJWTManager(secret string, accessTTL time.Duration, opts ...JWTOption) *JWTManager {
	if accessTTL <= 0 {
		accessTTL = 12 * time.Hour
	}

	m := &JWTManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		leeway:    defaultLeeway,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *JWTManager) GenerateAccessToken(operatorID, sid string, role Role) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret is empty")
	}
	if strings.TrimSpace(operatorID) == "" || strings.TrimSpace(sid) == "" {
		return "", time.Time{}, fmt.Errorf("invalid access token payload")
	}
	if _, ok := ParseRole(string(role)); !ok {
		return "", time.Time{}, fmt.Errorf("invalid role %q", role)
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.accessTTL)
	claims := tokenClaims{
		SID:  sid,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

func (m *JWTManager) ParseAccessToken(raw string) (AccessClaims, error) {
	if strings.TrimSpace(raw) == "" || len(m.secret) == 0 {
		return AccessClaims{}, ErrUnauthorized
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, parserOpts...)
	if err != nil || token == nil || !token.Valid {
		return AccessClaims{}, ErrUnauthorized
	}

	role, ok := ParseRole(claims.Role)
	if !ok {
		return AccessClaims{}, ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.SID) == "" {
		return AccessClaims{}, ErrUnauthorized
	}
	return AccessClaims{
		OperatorID: claims.Subject,
		SID:        claims.SID,
		Role:       role,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
