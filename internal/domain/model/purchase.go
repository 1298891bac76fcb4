package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

// ProductSnapshot freezes the commercial terms of a product at purchase time.
type ProductSnapshot struct {
	Name       string            `json:"name"`
	Type       enums.ProductType `json:"type"`
	Price      decimal.Decimal   `json:"price"`
	Currency   string            `json:"currency"`
	AccessDays int               `json:"access_days,omitempty"`
}

// SentMessage is one outbound delivery batch kept for later retraction.
type SentMessage struct {
	ChatID     int64 `json:"chat_id"`
	MessageIDs []int `json:"message_ids"`
}

type Purchase struct {
	ID                      int64                `json:"id"`
	BuyerID                 int64                `json:"buyer_id"`
	BuyerName               string               `json:"buyer_name"`
	ModelID                 int64                `json:"model_id"`
	ProductID               int64                `json:"product_id"`
	Snapshot                ProductSnapshot      `json:"product_snapshot"`
	Amount                  decimal.Decimal      `json:"amount"`
	Currency                string               `json:"currency"`
	Status                  enums.PurchaseStatus `json:"status"`
	TransactionID           *string              `json:"transaction_id,omitempty"`
	DeliveredAt             *time.Time           `json:"delivered_at,omitempty"`
	AccessExpiresAt         *time.Time           `json:"access_expires_at,omitempty"`
	DeliveryStartedAt       *time.Time           `json:"-"`
	SentMessages            []SentMessage        `json:"sent_messages"`
	ExpirationNotified7Days bool                 `json:"expiration_notified_7_days"`
	ExpirationNotified1Day  bool                 `json:"expiration_notified_1_day"`
	Notes                   string               `json:"notes,omitempty"`
	CreatedAt               time.Time            `json:"created_at"`
	UpdatedAt               time.Time            `json:"updated_at"`
}

func (p Purchase) IsSubscription() bool {
	return p.Snapshot.Type.IsSubscription()
}

func (p Purchase) SentMessageCount() int {
	total := 0
	for _, batch := range p.SentMessages {
		total += len(batch.MessageIDs)
	}
	return total
}

type PurchaseFilter struct {
	Status  enums.PurchaseStatus
	ModelID int64
	BuyerID int64
	Limit   int
	Offset  int
}

type PurchaseStats struct {
	Total               int64                          `json:"total"`
	ByStatus            map[enums.PurchaseStatus]int64 `json:"by_status"`
	Revenue             decimal.Decimal                `json:"revenue"`
	Refunded            decimal.Decimal                `json:"refunded"`
	ActiveSubscriptions int64                          `json:"active_subscriptions"`
}

// ExpiryNotice identifies one of the pre-expiration warnings a subscription receives.
type ExpiryNotice string

const (
	ExpiryNoticeSevenDays ExpiryNotice = "7d"
	ExpiryNoticeOneDay    ExpiryNotice = "1d"
)

func (p Purchase) Notified(notice ExpiryNotice) bool {
	switch notice {
	case ExpiryNoticeSevenDays:
		return p.ExpirationNotified7Days
	case ExpiryNoticeOneDay:
		return p.ExpirationNotified1Day
	default:
		return false
	}
}
