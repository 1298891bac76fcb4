package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

const PaymentMethodPix = "pix"

type Transaction struct {
	ID            string                  `json:"id"`
	PurchaseID    int64                   `json:"purchase_id"`
	Method        string                  `json:"method"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	Status        enums.TransactionStatus `json:"status"`
	ExternalID    *string                 `json:"external_id,omitempty"`
	PaymentCode   string                  `json:"payment_code,omitempty"`
	QRImage       []byte                  `json:"-"`
	CodeExpiresAt *time.Time              `json:"code_expires_at,omitempty"`
	PaidAt        *time.Time              `json:"paid_at,omitempty"`
	FailedAt      *time.Time              `json:"failed_at,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	Simulated     bool                    `json:"simulated"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// CodeExpired reports whether the payment code can no longer be paid at now.
func (t Transaction) CodeExpired(now time.Time) bool {
	return t.CodeExpiresAt != nil && !now.Before(*t.CodeExpiresAt)
}
