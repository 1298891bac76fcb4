package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrExternalIDConflict  = errors.New("external id already bound to another transaction")
)

const transactionColumns = `
	id::text,
	purchase_id,
	method,
	amount_cents,
	currency,
	status,
	external_id,
	payment_code,
	qr_image,
	code_expires_at,
	paid_at,
	failed_at,
	failure_reason,
	simulated,
	created_at,
	updated_at`

type TransactionRepo struct {
	pool *pgxpool.Pool
}

// IssuedPayment carries what the gateway returned for a transaction.
type IssuedPayment struct {
	ExternalID  string
	PaymentCode string
	QRImage     []byte
	ExpiresAt   time.Time
	Simulated   bool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a pending transaction for purchaseID. The returned id doubles as the
// provider-facing external reference.
func (r *TransactionRepo) Create(ctx context.Context, purchaseID int64, amountCents int64, currency string) (model.Transaction, error) {
	if r.pool == nil {
		return model.Transaction{}, errNilPool
	}
	if purchaseID <= 0 || amountCents <= 0 {
		return model.Transaction{}, fmt.Errorf("invalid transaction create payload")
	}

	rec, err := scanTransaction(r.pool.QueryRow(ctx, `
INSERT INTO transactions (
	id,
	purchase_id,
	method,
	amount_cents,
	currency,
	status,
	created_at,
	updated_at
) VALUES ($1::uuid, $2, $3, $4, $5, 'pending', NOW(), NOW())
RETURNING`+transactionColumns,
		uuid.NewString(), purchaseID, model.PaymentMethodPix, amountCents, normalizeCurrency(currency)))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return rec, nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, transactionID string) (model.Transaction, error) {
	if r.pool == nil {
		return model.Transaction{}, errNilPool
	}
	return getTransaction(ctx, r.pool, transactionID)
}

func getTransaction(ctx context.Context, q querier, transactionID string) (model.Transaction, error) {
	if _, err := uuid.Parse(strings.TrimSpace(transactionID)); err != nil {
		return model.Transaction{}, ErrTransactionNotFound
	}
	rec, err := scanTransaction(q.QueryRow(ctx, `SELECT`+transactionColumns+`
FROM transactions
WHERE id = $1::uuid
`, strings.TrimSpace(transactionID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, ErrTransactionNotFound
		}
		return model.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return rec, nil
}

func (r *TransactionRepo) GetByExternalID(ctx context.Context, externalID string) (model.Transaction, error) {
	if r.pool == nil {
		return model.Transaction{}, errNilPool
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return model.Transaction{}, ErrTransactionNotFound
	}
	rec, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT`+transactionColumns+`
FROM transactions
WHERE external_id = $1
`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, ErrTransactionNotFound
		}
		return model.Transaction{}, fmt.Errorf("get transaction by external id: %w", err)
	}
	return rec, nil
}

// Issue stores the gateway response and moves the transaction from pending to processing.
func (r *TransactionRepo) Issue(ctx context.Context, transactionID string, issued IssuedPayment) (model.Transaction, bool, error) {
	if r.pool == nil {
		return model.Transaction{}, false, errNilPool
	}
	if strings.TrimSpace(issued.ExternalID) == "" {
		return model.Transaction{}, false, fmt.Errorf("external id is required")
	}

	rec, err := scanTransaction(r.pool.QueryRow(ctx, `
UPDATE transactions
SET
	status = 'processing',
	external_id = $2,
	payment_code = $3,
	qr_image = $4,
	code_expires_at = $5,
	simulated = $6,
	updated_at = NOW()
WHERE id = $1::uuid
  AND status = 'pending'
RETURNING`+transactionColumns,
		transactionID,
		strings.TrimSpace(issued.ExternalID),
		issued.PaymentCode,
		issued.QRImage,
		utcPtr(issued.ExpiresAt),
		issued.Simulated,
	))
	if err == nil {
		return rec, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return model.Transaction{}, false, ErrExternalIDConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, false, fmt.Errorf("issue transaction: %w", err)
	}

	current, err := getTransaction(ctx, r.pool, transactionID)
	if err != nil {
		return model.Transaction{}, false, err
	}
	return current, false, nil
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var (
		rec         model.Transaction
		amountCents int64
		status      string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.PurchaseID,
		&rec.Method,
		&amountCents,
		&rec.Currency,
		&status,
		&rec.ExternalID,
		&rec.PaymentCode,
		&rec.QRImage,
		&rec.CodeExpiresAt,
		&rec.PaidAt,
		&rec.FailedAt,
		&rec.FailureReason,
		&rec.Simulated,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return model.Transaction{}, err
	}
	rec.Amount = model.FromCents(amountCents)
	rec.Status = enums.TransactionStatus(status)
	return rec, nil
}
