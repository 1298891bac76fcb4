package postgres

import (
	"context"
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

// LedgerRepo applies status transitions that touch a transaction and its purchase together.
// Every update is conditional on the stored status being a valid predecessor, so concurrent
// webhook and poll deliveries of the same outcome converge on one effective write.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

type Transition struct {
	Transaction        model.Transaction
	Purchase           model.Purchase
	TransactionChanged bool
	PurchaseChanged    bool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// MarkPaid settles a transaction and moves its purchase from pending to paid. A pending
// transaction passes through processing first.
func (r *LedgerRepo) MarkPaid(ctx context.Context, transactionID string, paidAt time.Time) (Transition, error) {
	if r.pool == nil {
		return Transition{}, errNilPool
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var out Transition
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `
UPDATE transactions
SET status = 'processing', updated_at = NOW()
WHERE id = $1::uuid
  AND status = 'pending'
`, transactionID); err != nil {
			return fmt.Errorf("promote pending transaction: %w", err)
		}

		txRec, changed, err := updateTransactionStatus(txCtx, tx, transactionID, enums.TransactionStatusPaid, paidAt, "")
		if err != nil {
			return err
		}
		out.Transaction = txRec
		out.TransactionChanged = changed

		if txRec.Status != enums.TransactionStatusPaid {
			purchase, err := getPurchase(txCtx, tx, txRec.PurchaseID)
			if err != nil {
				return err
			}
			out.Purchase = purchase
			return nil
		}

		purchase, purchaseChanged, err := updatePurchaseStatus(
			txCtx, tx, txRec.PurchaseID,
			enums.PurchaseStatusPaid,
			rules.PurchasePredecessors(enums.PurchaseStatusPaid),
			"",
		)
		if err != nil {
			return err
		}
		out.Purchase = purchase
		out.PurchaseChanged = purchaseChanged
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	return out, nil
}

// MarkFailed moves a transaction to failed or expired. An expiry fails only a pending purchase.
func (r *LedgerRepo) MarkFailed(ctx context.Context, transactionID string, status enums.TransactionStatus, at time.Time, reason string) (Transition, error) {
	if r.pool == nil {
		return Transition{}, errNilPool
	}
	if status != enums.TransactionStatusFailed && status != enums.TransactionStatusExpired {
		return Transition{}, fmt.Errorf("unsupported failure status: %s", status)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	purchasePreds := rules.PurchasePredecessors(enums.PurchaseStatusFailed)
	if status == enums.TransactionStatusExpired {
		purchasePreds = []string{string(enums.PurchaseStatusPending)}
	}

	var out Transition
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		txRec, changed, err := updateTransactionStatus(txCtx, tx, transactionID, status, at, reason)
		if err != nil {
			return err
		}
		out.Transaction = txRec
		out.TransactionChanged = changed

		if !changed {
			purchase, err := getPurchase(txCtx, tx, txRec.PurchaseID)
			if err != nil {
				return err
			}
			out.Purchase = purchase
			return nil
		}

		note := strings.TrimSpace(reason)
		if note == "" {
			note = "payment " + string(status)
		}
		purchase, purchaseChanged, err := updatePurchaseStatus(txCtx, tx, txRec.PurchaseID, enums.PurchaseStatusFailed, purchasePreds, note)
		if err != nil {
			return err
		}
		out.Purchase = purchase
		out.PurchaseChanged = purchaseChanged
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	return out, nil
}

// ConfirmManually settles a pending purchase on operator request, together with its
// transaction when one was issued.
func (r *LedgerRepo) ConfirmManually(ctx context.Context, purchaseID int64, at time.Time, note string) (Transition, error) {
	if r.pool == nil {
		return Transition{}, errNilPool
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var out Transition
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		purchase, err := getPurchase(txCtx, tx, purchaseID)
		if err != nil {
			return err
		}

		if purchase.TransactionID != nil {
			if _, err := tx.Exec(txCtx, `
UPDATE transactions
SET status = 'processing', updated_at = NOW()
WHERE id = $1::uuid
  AND status = 'pending'
`, *purchase.TransactionID); err != nil {
				return fmt.Errorf("promote pending transaction: %w", err)
			}
			txRec, changed, err := updateTransactionStatus(txCtx, tx, *purchase.TransactionID, enums.TransactionStatusPaid, at, "")
			if err != nil {
				return err
			}
			out.Transaction = txRec
			out.TransactionChanged = changed
		}

		updated, changed, err := updatePurchaseStatus(
			txCtx, tx, purchaseID,
			enums.PurchaseStatusPaid,
			rules.PurchasePredecessors(enums.PurchaseStatusPaid),
			note,
		)
		if err != nil {
			return err
		}
		out.Purchase = updated
		out.PurchaseChanged = changed
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	return out, nil
}

// MarkProcessing records that the provider acknowledged the payment without settling it.
func (r *LedgerRepo) MarkProcessing(ctx context.Context, transactionID string) (model.Transaction, bool, error) {
	if r.pool == nil {
		return model.Transaction{}, false, errNilPool
	}
	return updateTransactionStatus(ctx, r.pool, transactionID, enums.TransactionStatusProcessing, time.Time{}, "")
}

func updateTransactionStatus(
	ctx context.Context,
	q querier,
	transactionID string,
	to enums.TransactionStatus,
	at time.Time,
	reason string,
) (model.Transaction, bool, error) {
	var paidAt, failedAt *time.Time
	switch to {
	case enums.TransactionStatusPaid:
		paidAt = utcPtr(at)
	case enums.TransactionStatusFailed, enums.TransactionStatusExpired:
		failedAt = utcPtr(at)
	}

	rec, err := scanTransaction(q.QueryRow(ctx, `
UPDATE transactions
SET
	status = $2,
	paid_at = COALESCE($3, paid_at),
	failed_at = COALESCE($4, failed_at),
	failure_reason = CASE WHEN $5 <> '' THEN $5 ELSE failure_reason END,
	updated_at = NOW()
WHERE id = $1::uuid
  AND status = ANY($6)
RETURNING`+transactionColumns,
		transactionID,
		string(to),
		paidAt,
		failedAt,
		strings.TrimSpace(reason),
		rules.TransactionPredecessors(to),
	))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, false, fmt.Errorf("update transaction status to %s: %w", to, err)
	}

	current, err := getTransaction(ctx, q, transactionID)
	if err != nil {
		return model.Transaction{}, false, err
	}
	return current, false, nil
}

func updatePurchaseStatus(
	ctx context.Context,
	q querier,
	purchaseID int64,
	to enums.PurchaseStatus,
	from []string,
	note string,
) (model.Purchase, bool, error) {
	rec, err := scanPurchase(q.QueryRow(ctx, `
UPDATE purchases
SET
	status = $2,
	notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END,
	updated_at = NOW()
WHERE id = $1
  AND status = ANY($3)
RETURNING`+purchaseColumns,
		purchaseID, string(to), from, note))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Purchase{}, false, fmt.Errorf("update purchase status to %s: %w", to, err)
	}

	current, err := getPurchase(ctx, q, purchaseID)
	if err != nil {
		return model.Purchase{}, false, err
	}
	return current, false, nil
}
