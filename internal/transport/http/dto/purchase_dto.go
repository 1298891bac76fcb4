package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

type ProductSnapshotResponse struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	AccessDays int             `json:"access_days,omitempty"`
}

type SentMessageResponse struct {
	ChatID     int64 `json:"chat_id"`
	MessageIDs []int `json:"message_ids"`
}

type PurchaseResponse struct {
	ID                      int64                   `json:"id"`
	BuyerID                 int64                   `json:"buyer_id"`
	BuyerName               string                  `json:"buyer_name,omitempty"`
	ModelID                 int64                   `json:"model_id"`
	ProductID               int64                   `json:"product_id"`
	Product                 ProductSnapshotResponse `json:"product"`
	Amount                  decimal.Decimal         `json:"amount"`
	Currency                string                  `json:"currency"`
	Status                  string                  `json:"status"`
	TransactionID           *string                 `json:"transaction_id,omitempty"`
	DeliveredAt             *time.Time              `json:"delivered_at,omitempty"`
	AccessExpiresAt         *time.Time              `json:"access_expires_at,omitempty"`
	SentMessages            []SentMessageResponse   `json:"sent_messages"`
	ExpirationNotified7Days bool                    `json:"expiration_notified_7_days"`
	ExpirationNotified1Day  bool                    `json:"expiration_notified_1_day"`
	Notes                   string                  `json:"notes,omitempty"`
	CreatedAt               time.Time               `json:"created_at"`
	UpdatedAt               time.Time               `json:"updated_at"`
}

type TransactionResponse struct {
	ID            string          `json:"id"`
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	ExternalID    *string         `json:"external_id,omitempty"`
	CodeExpiresAt *time.Time      `json:"code_expires_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Simulated     bool            `json:"simulated"`
}

// BuyerResponse carries the buyer's running totals across all of their purchases.
type BuyerResponse struct {
	TelegramID    int64           `json:"telegram_id"`
	DisplayName   string          `json:"display_name,omitempty"`
	PurchaseCount int64           `json:"purchase_count"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
}

type PurchaseDetailsResponse struct {
	Purchase    PurchaseResponse     `json:"purchase"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
	Buyer       *BuyerResponse       `json:"buyer,omitempty"`
}

func NewBuyerResponse(b model.Buyer) BuyerResponse {
	return BuyerResponse{
		TelegramID:    b.TelegramID,
		DisplayName:   b.DisplayName,
		PurchaseCount: b.PurchaseCount,
		TotalSpent:    b.TotalSpent,
	}
}

type PurchaseListResponse struct {
	Items  []PurchaseResponse `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type PurchaseStatsResponse struct {
	Total               int64            `json:"total"`
	ByStatus            map[string]int64 `json:"by_status"`
	Revenue             decimal.Decimal  `json:"revenue"`
	Refunded            decimal.Decimal  `json:"refunded"`
	ActiveSubscriptions int64            `json:"active_subscriptions"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

type WebhookAckResponse struct {
	OK      bool `json:"ok"`
	Applied bool `json:"applied"`
	Ignored bool `json:"ignored,omitempty"`
}

func NewPurchaseResponse(p model.Purchase) PurchaseResponse {
	sent := make([]SentMessageResponse, 0, len(p.SentMessages))
	for _, m := range p.SentMessages {
		ids := m.MessageIDs
		if ids == nil {
			ids = []int{}
		}
		sent = append(sent, SentMessageResponse{ChatID: m.ChatID, MessageIDs: ids})
	}

	return PurchaseResponse{
		ID:        p.ID,
		BuyerID:   p.BuyerID,
		BuyerName: p.BuyerName,
		ModelID:   p.ModelID,
		ProductID: p.ProductID,
		Product: ProductSnapshotResponse{
			Name:       p.Snapshot.Name,
			Type:       string(p.Snapshot.Type),
			Price:      p.Snapshot.Price,
			Currency:   p.Snapshot.Currency,
			AccessDays: p.Snapshot.AccessDays,
		},
		Amount:                  p.Amount,
		Currency:                p.Currency,
		Status:                  string(p.Status),
		TransactionID:           p.TransactionID,
		DeliveredAt:             p.DeliveredAt,
		AccessExpiresAt:         p.AccessExpiresAt,
		SentMessages:            sent,
		ExpirationNotified7Days: p.ExpirationNotified7Days,
		ExpirationNotified1Day:  p.ExpirationNotified1Day,
		Notes:                   p.Notes,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func NewTransactionResponse(t model.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		Method:        t.Method,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        string(t.Status),
		ExternalID:    t.ExternalID,
		CodeExpiresAt: t.CodeExpiresAt,
		PaidAt:        t.PaidAt,
		FailedAt:      t.FailedAt,
		FailureReason: t.FailureReason,
		Simulated:     t.Simulated,
	}
}

func NewPurchaseStatsResponse(s model.PurchaseStats) PurchaseStatsResponse {
	byStatus := make(map[string]int64, len(enums.PurchaseStatuses()))
	for _, status := range enums.PurchaseStatuses() {
		byStatus[string(status)] = s.ByStatus[status]
	}
	return PurchaseStatsResponse{
		Total:               s.Total,
		ByStatus:            byStatus,
		Revenue:             s.Revenue,
		Refunded:            s.Refunded,
		ActiveSubscriptions: s.ActiveSubscriptions,
	}
}
