package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

func noticeColumn(notice model.ExpiryNotice) (string, error) {
	switch notice {
	case model.ExpiryNoticeSevenDays:
		return "expiration_notified_7d", nil
	case model.ExpiryNoticeOneDay:
		return "expiration_notified_1d", nil
	default:
		return "", fmt.Errorf("unknown expiry notice: %q", notice)
	}
}

// ListExpiring returns completed subscriptions that expire in (now, now+within] and have not
// received notice yet.
func (r *PurchaseRepo) ListExpiring(ctx context.Context, now time.Time, within time.Duration, notice model.ExpiryNotice, limit int) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	column, err := noticeColumn(notice)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, `SELECT`+purchaseColumns+`
FROM purchases
WHERE status = 'completed'
  AND product_type = 'subscription'
  AND access_expires_at > $1
  AND access_expires_at <= $2
  AND `+column+` = FALSE
ORDER BY access_expires_at ASC
LIMIT $3
`, now.UTC(), now.UTC().Add(within), limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring purchases: %w", err)
	}
	return collectPurchases(rows)
}

// MarkNotified sets a notice flag. Flags never go back to false.
func (r *PurchaseRepo) MarkNotified(ctx context.Context, purchaseID int64, notice model.ExpiryNotice) (bool, error) {
	if r.pool == nil {
		return false, errNilPool
	}
	column, err := noticeColumn(notice)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET `+column+` = TRUE, updated_at = NOW()
WHERE id = $1
  AND `+column+` = FALSE
`, purchaseID)
	if err != nil {
		return false, fmt.Errorf("mark purchase notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PurchaseRepo) ListLapsed(ctx context.Context, now time.Time, limit int) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, `SELECT`+purchaseColumns+`
FROM purchases
WHERE status = 'completed'
  AND product_type = 'subscription'
  AND access_expires_at <= $1
ORDER BY access_expires_at ASC
LIMIT $2
`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list lapsed purchases: %w", err)
	}
	return collectPurchases(rows)
}

// MarkExpired closes a completed subscription and clears its retraction list.
func (r *PurchaseRepo) MarkExpired(ctx context.Context, purchaseID int64) (bool, error) {
	if r.pool == nil {
		return false, errNilPool
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET
	status = 'expired',
	sent_messages = '[]'::jsonb,
	updated_at = NOW()
WHERE id = $1
  AND status = 'completed'
`, purchaseID)
	if err != nil {
		return false, fmt.Errorf("mark purchase expired: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
