package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

var ErrBuyerNotFound = errors.New("buyer not found")

// BuyerRepo reads the buyer aggregate. Writes happen inside purchase creation and refund.
type BuyerRepo struct {
	pool *pgxpool.Pool
}

func NewBuyerRepo(pool *pgxpool.Pool) *BuyerRepo {
	return &BuyerRepo{pool: pool}
}

func (r *BuyerRepo) GetByTelegramID(ctx context.Context, telegramID int64) (model.Buyer, error) {
	if r.pool == nil {
		return model.Buyer{}, errNilPool
	}

	var (
		buyer      model.Buyer
		spentCents int64
	)
	err := r.pool.QueryRow(ctx, `
SELECT telegram_id, display_name, purchase_count, total_spent_cents, updated_at
FROM buyers
WHERE telegram_id = $1
`, telegramID).Scan(&buyer.TelegramID, &buyer.DisplayName, &buyer.PurchaseCount, &spentCents, &buyer.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Buyer{}, ErrBuyerNotFound
		}
		return model.Buyer{}, fmt.Errorf("get buyer: %w", err)
	}
	buyer.TotalSpent = model.FromCents(spentCents)
	return buyer, nil
}
