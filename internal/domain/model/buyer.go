package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Buyer struct {
	TelegramID    int64           `json:"telegram_id"`
	DisplayName   string          `json:"display_name"`
	PurchaseCount int64           `json:"purchase_count"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
