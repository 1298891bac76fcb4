package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrSecretNotSet      = errors.New("webhook secret is not configured")
)

// Verifier checks the hex HMAC-SHA256 of a raw webhook body. A verifier without a secret
// rejects every request.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Verify(body []byte, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrSecretNotSet
	}

	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) != sha256.Size {
		return ErrSignatureMismatch
	}

	if !hmac.Equal(provided, v.sum(body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature a provider would send for body.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sum(body))
}

func (v *Verifier) sum(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
