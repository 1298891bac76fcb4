package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/rules"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

const purchaseColumns = `
	id,
	buyer_id,
	buyer_name,
	model_id,
	product_id,
	product_snapshot,
	amount_cents,
	currency,
	status,
	transaction_id::text,
	delivered_at,
	access_expires_at,
	delivery_started_at,
	sent_messages,
	expiration_notified_7d,
	expiration_notified_1d,
	notes,
	created_at,
	updated_at`

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

// CreatePending inserts a pending purchase and bumps the buyer aggregate in one transaction.
func (r *PurchaseRepo) CreatePending(ctx context.Context, p model.Purchase) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, errNilPool
	}
	if p.BuyerID <= 0 || p.ProductID <= 0 || !p.Amount.IsPositive() {
		return model.Purchase{}, fmt.Errorf("invalid purchase create payload")
	}

	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("marshal product snapshot: %w", err)
	}
	cents := model.ToCents(p.Amount)
	currency := normalizeCurrency(p.Currency)

	var out model.Purchase
	err = WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := scanPurchase(tx.QueryRow(txCtx, `
INSERT INTO purchases (
	buyer_id,
	buyer_name,
	model_id,
	product_id,
	product_type,
	product_snapshot,
	amount_cents,
	currency,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, 'pending', NOW(), NOW())
RETURNING`+purchaseColumns,
			p.BuyerID,
			strings.TrimSpace(p.BuyerName),
			p.ModelID,
			p.ProductID,
			string(p.Snapshot.Type),
			string(snapshot),
			cents,
			currency,
		))
		if err != nil {
			return fmt.Errorf("insert pending purchase: %w", err)
		}

		if _, err := tx.Exec(txCtx, `
INSERT INTO buyers (telegram_id, display_name, purchase_count, total_spent_cents, created_at, updated_at)
VALUES ($1, $2, 1, $3, NOW(), NOW())
ON CONFLICT (telegram_id) DO UPDATE
SET
	display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE buyers.display_name END,
	purchase_count = buyers.purchase_count + 1,
	total_spent_cents = buyers.total_spent_cents + EXCLUDED.total_spent_cents,
	updated_at = NOW()
`, p.BuyerID, strings.TrimSpace(p.BuyerName), cents); err != nil {
			return fmt.Errorf("upsert buyer totals: %w", err)
		}

		out = rec
		return nil
	})
	if err != nil {
		return model.Purchase{}, err
	}
	return out, nil
}

func (r *PurchaseRepo) GetByID(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, errNilPool
	}
	return getPurchase(ctx, r.pool, purchaseID)
}

func getPurchase(ctx context.Context, q querier, purchaseID int64) (model.Purchase, error) {
	if purchaseID <= 0 {
		return model.Purchase{}, ErrPurchaseNotFound
	}
	rec, err := scanPurchase(q.QueryRow(ctx, `SELECT`+purchaseColumns+`
FROM purchases
WHERE id = $1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return rec, nil
}

func (r *PurchaseRepo) List(ctx context.Context, filter model.PurchaseFilter) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, errNilPool
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `SELECT`+purchaseColumns+`
FROM purchases
WHERE ($1::text = '' OR status = $1::text)
  AND ($2::bigint = 0 OR model_id = $2::bigint)
  AND ($3::bigint = 0 OR buyer_id = $3::bigint)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`, string(filter.Status), filter.ModelID, filter.BuyerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return collectPurchases(rows)
}

func (r *PurchaseRepo) Stats(ctx context.Context) (model.PurchaseStats, error) {
	if r.pool == nil {
		return model.PurchaseStats{}, errNilPool
	}

	stats := model.PurchaseStats{ByStatus: make(map[enums.PurchaseStatus]int64)}
	rows, err := r.pool.Query(ctx, `
SELECT status, COUNT(*), COALESCE(SUM(amount_cents), 0)
FROM purchases
GROUP BY status
`)
	if err != nil {
		return model.PurchaseStats{}, fmt.Errorf("aggregate purchases: %w", err)
	}
	defer rows.Close()

	var revenueCents, refundedCents int64
	for rows.Next() {
		var (
			status string
			count  int64
			cents  int64
		)
		if err := rows.Scan(&status, &count, &cents); err != nil {
			return model.PurchaseStats{}, fmt.Errorf("scan purchase aggregate: %w", err)
		}
		stats.ByStatus[enums.PurchaseStatus(status)] = count
		stats.Total += count
		switch enums.PurchaseStatus(status) {
		case enums.PurchaseStatusPaid, enums.PurchaseStatusCompleted, enums.PurchaseStatusExpired:
			revenueCents += cents
		case enums.PurchaseStatusRefunded:
			refundedCents += cents
		}
	}
	if err := rows.Err(); err != nil {
		return model.PurchaseStats{}, fmt.Errorf("iterate purchase aggregate: %w", err)
	}

	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM purchases
WHERE status = 'completed'
  AND product_type = 'subscription'
  AND access_expires_at > NOW()
`).Scan(&stats.ActiveSubscriptions); err != nil {
		return model.PurchaseStats{}, fmt.Errorf("count active subscriptions: %w", err)
	}

	stats.Revenue = model.FromCents(revenueCents)
	stats.Refunded = model.FromCents(refundedCents)
	return stats, nil
}

func (r *PurchaseRepo) AttachTransaction(ctx context.Context, purchaseID int64, transactionID string) error {
	if r.pool == nil {
		return errNilPool
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET transaction_id = $2::uuid, updated_at = NOW()
WHERE id = $1
`, purchaseID, transactionID)
	if err != nil {
		return fmt.Errorf("attach transaction to purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// Refund moves a paid or completed purchase to refunded, refunds its paid transaction and
// reverses the buyer aggregate. A purchase outside those statuses is returned unchanged.
func (r *PurchaseRepo) Refund(ctx context.Context, purchaseID int64, reason string) (model.Purchase, bool, error) {
	if r.pool == nil {
		return model.Purchase{}, false, errNilPool
	}

	var (
		out     model.Purchase
		changed bool
	)
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := scanPurchase(tx.QueryRow(txCtx, `
UPDATE purchases
SET status = 'refunded', notes = $3, updated_at = NOW()
WHERE id = $1
  AND status = ANY($2)
RETURNING`+purchaseColumns,
			purchaseID, rules.PurchasePredecessors(enums.PurchaseStatusRefunded), strings.TrimSpace(reason)))
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := getPurchase(txCtx, tx, purchaseID)
			if getErr != nil {
				return getErr
			}
			out = current
			return nil
		}
		if err != nil {
			return fmt.Errorf("refund purchase: %w", err)
		}

		if rec.TransactionID != nil {
			if _, err := tx.Exec(txCtx, `
UPDATE transactions
SET status = 'refunded', updated_at = NOW()
WHERE id = $1::uuid
  AND status = ANY($2)
`, *rec.TransactionID, rules.TransactionPredecessors(enums.TransactionStatusRefunded)); err != nil {
				return fmt.Errorf("refund transaction: %w", err)
			}
		}

		if _, err := tx.Exec(txCtx, `
UPDATE buyers
SET
	purchase_count = GREATEST(purchase_count - 1, 0),
	total_spent_cents = GREATEST(total_spent_cents - $2, 0),
	updated_at = NOW()
WHERE telegram_id = $1
`, rec.BuyerID, model.ToCents(rec.Amount)); err != nil {
			return fmt.Errorf("reverse buyer totals: %w", err)
		}

		out = rec
		changed = true
		return nil
	})
	if err != nil {
		return model.Purchase{}, false, err
	}
	return out, changed, nil
}

func collectPurchases(rows pgx.Rows) ([]model.Purchase, error) {
	defer rows.Close()

	out := make([]model.Purchase, 0)
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return out, nil
}

func scanPurchase(row pgx.Row) (model.Purchase, error) {
	var (
		rec         model.Purchase
		snapshotRaw []byte
		sentRaw     []byte
		amountCents int64
		status      string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.BuyerID,
		&rec.BuyerName,
		&rec.ModelID,
		&rec.ProductID,
		&snapshotRaw,
		&amountCents,
		&rec.Currency,
		&status,
		&rec.TransactionID,
		&rec.DeliveredAt,
		&rec.AccessExpiresAt,
		&rec.DeliveryStartedAt,
		&sentRaw,
		&rec.ExpirationNotified7Days,
		&rec.ExpirationNotified1Day,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return model.Purchase{}, err
	}

	rec.Amount = model.FromCents(amountCents)
	rec.Status = enums.PurchaseStatus(status)
	if len(snapshotRaw) > 0 {
		if err := json.Unmarshal(snapshotRaw, &rec.Snapshot); err != nil {
			return model.Purchase{}, fmt.Errorf("decode product snapshot: %w", err)
		}
	}
	rec.SentMessages = decodeSentMessages(sentRaw)
	return rec, nil
}

func decodeSentMessages(raw []byte) []model.SentMessage {
	out := make([]model.SentMessage, 0)
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return make([]model.SentMessage, 0)
	}
	return out
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return model.DefaultCurrency
	}
	return currency
}

func utcPtr(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	v := ts.UTC()
	return &v
}
