package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

type CreatorModel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Bio         string    `json:"bio"`
	GalleryRefs []string  `json:"gallery_refs"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID          int64             `json:"id"`
	ModelID     int64             `json:"model_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Type        enums.ProductType `json:"type"`
	Price       decimal.Decimal   `json:"price"`
	Currency    string            `json:"currency"`
	AccessDays  int               `json:"access_days"`
	Active      bool              `json:"active"`
}

func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Name:       p.Name,
		Type:       p.Type,
		Price:      p.Price,
		Currency:   p.Currency,
		AccessDays: p.AccessDays,
	}
}

// ContentItem references either a Telegram file id or an object storage key.
type ContentItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Kind      enums.MediaKind `json:"kind"`
	FileID    string          `json:"file_id,omitempty"`
	ObjectKey string          `json:"object_key,omitempty"`
	Position  int             `json:"position"`
}
