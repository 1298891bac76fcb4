package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

var ErrDeliveryNotClaimed = errors.New("purchase is not claimed for delivery")

// ClaimDelivery takes a delivery lease on a paid purchase. It returns false when the purchase
// is not paid or another worker holds an unexpired lease.
func (r *PurchaseRepo) ClaimDelivery(ctx context.Context, purchaseID int64, now time.Time, lease time.Duration) (model.Purchase, bool, error) {
	if r.pool == nil {
		return model.Purchase{}, false, errNilPool
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET delivery_started_at = $2, updated_at = NOW()
WHERE id = $1
  AND status = 'paid'
  AND (delivery_started_at IS NULL OR delivery_started_at <= $3)
RETURNING`+purchaseColumns,
		purchaseID, now.UTC(), now.UTC().Add(-lease)))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Purchase{}, false, fmt.Errorf("claim purchase delivery: %w", err)
	}

	current, err := getPurchase(ctx, r.pool, purchaseID)
	if err != nil {
		return model.Purchase{}, false, err
	}
	return current, false, nil
}

func (r *PurchaseRepo) ReleaseDelivery(ctx context.Context, purchaseID int64) error {
	if r.pool == nil {
		return errNilPool
	}
	if _, err := r.pool.Exec(ctx, `
UPDATE purchases
SET delivery_started_at = NULL, updated_at = NOW()
WHERE id = $1
  AND status = 'paid'
`, purchaseID); err != nil {
		return fmt.Errorf("release purchase delivery: %w", err)
	}
	return nil
}

// AppendSentMessage records one delivered batch. It only applies while the purchase is paid.
func (r *PurchaseRepo) AppendSentMessage(ctx context.Context, purchaseID int64, msg model.SentMessage) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, errNilPool
	}
	if msg.MessageIDs == nil {
		msg.MessageIDs = []int{}
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("marshal sent message: %w", err)
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET
	sent_messages = sent_messages || jsonb_build_array($2::jsonb),
	updated_at = NOW()
WHERE id = $1
  AND status = 'paid'
RETURNING`+purchaseColumns,
		purchaseID, string(raw)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrDeliveryNotClaimed
		}
		return model.Purchase{}, fmt.Errorf("append sent message: %w", err)
	}
	return rec, nil
}

// MarkCompleted finishes delivery. accessExpiresAt is nil for one-time products.
func (r *PurchaseRepo) MarkCompleted(ctx context.Context, purchaseID int64, deliveredAt time.Time, accessExpiresAt *time.Time) (model.Purchase, bool, error) {
	if r.pool == nil {
		return model.Purchase{}, false, errNilPool
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET
	status = 'completed',
	delivered_at = $2,
	access_expires_at = $3,
	delivery_started_at = NULL,
	updated_at = NOW()
WHERE id = $1
  AND status = 'paid'
RETURNING`+purchaseColumns,
		purchaseID, deliveredAt.UTC(), accessExpiresAt))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Purchase{}, false, fmt.Errorf("mark purchase completed: %w", err)
	}

	current, err := getPurchase(ctx, r.pool, purchaseID)
	if err != nil {
		return model.Purchase{}, false, err
	}
	return current, false, nil
}

// ListPaidUndelivered returns paid purchases whose delivery lease is free or stale.
func (r *PurchaseRepo) ListPaidUndelivered(ctx context.Context, staleBefore time.Time, limit int) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT`+purchaseColumns+`
FROM purchases
WHERE status = 'paid'
  AND (delivery_started_at IS NULL OR delivery_started_at <= $1)
ORDER BY updated_at ASC
LIMIT $2
`, staleBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list paid undelivered purchases: %w", err)
	}
	return collectPurchases(rows)
}
