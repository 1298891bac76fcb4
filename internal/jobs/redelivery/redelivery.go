package redelivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

const (
	defaultStaleAfter = 10 * time.Minute
	defaultBatch      = 50
)

type Store interface {
	ListPaidUndelivered(ctx context.Context, staleBefore time.Time, limit int) ([]model.Purchase, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, purchaseID int64) (model.Purchase, error)
}

// Job finishes deliveries that stopped half way, for purchases that were paid but whose buyer
// never polled again after a failed batch.
type Job struct {
	store      Store
	deliverer  Deliverer
	staleAfter time.Duration
	batch      int
	logger     *zap.Logger
	now        func() time.Time
}

func New(store Store, deliverer Deliverer, staleAfter time.Duration, logger *zap.Logger) *Job {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		store:      store,
		deliverer:  deliverer,
		staleAfter: staleAfter,
		batch:      defaultBatch,
		logger:     logger,
		now:        time.Now,
	}
}

// Run retries each stale paid purchase once. Individual delivery failures are logged; the job
// fails only when the purchases cannot be listed.
func (j *Job) Run(ctx context.Context) error {
	pending, err := j.store.ListPaidUndelivered(ctx, j.now().UTC().Add(-j.staleAfter), j.batch)
	if err != nil {
		return fmt.Errorf("list undelivered purchases: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	completed := 0
	for _, purchase := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out, err := j.deliverer.Deliver(ctx, purchase.ID)
		if err != nil {
			j.logger.Warn("redelivery failed", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
			continue
		}
		if out.Status == enums.PurchaseStatusCompleted {
			completed++
		}
	}

	j.logger.Info("redelivery completed", zap.Int("selected", len(pending)), zap.Int("completed", completed))
	return nil
}
