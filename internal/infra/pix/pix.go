package pix

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

const simulatedIDPrefix = "sim_"

var (
	ErrInvalidRequest  = errors.New("invalid payment request")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrSimulationOnly  = errors.New("manual confirmation is only available for simulated payments")
)

type Customer struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
}

type CreateRequest struct {
	Amount      decimal.Decimal `validate:"gt=0"`
	Currency    string          `validate:"omitempty,len=3"`
	Description string          `validate:"max=140"`
	ExternalID  string          `validate:"required"`
	Customer    *Customer
}

// Payment is an issued payment request.
type Payment struct {
	ID          string
	PaymentCode string
	QRImage     []byte
	ExpiresAt   time.Time
	Simulated   bool
}

type Status struct {
	Status enums.TransactionStatus
	PaidAt *time.Time
	Raw    string
}

// ProviderError is a non-2xx answer from the payment provider.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *ProviderError) Error() string {
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = "provider_error"
	}
	if e.Message == "" {
		return fmt.Sprintf("pix provider: %s (http %d)", code, e.StatusCode)
	}
	return fmt.Sprintf("pix provider: %s: %s (http %d)", code, e.Message, e.StatusCode)
}

// Temporary reports whether retrying the same call later may succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

func IsSimulatedID(id string) bool {
	return strings.HasPrefix(strings.TrimSpace(id), simulatedIDPrefix)
}
