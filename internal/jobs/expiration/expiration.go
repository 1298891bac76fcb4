package expiration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
)

const (
	defaultNotifyDelay = 100 * time.Millisecond
	defaultDeleteDelay = 50 * time.Millisecond
	defaultPageSize    = 200
)

type Store interface {
	ListExpiring(ctx context.Context, now time.Time, within time.Duration, notice model.ExpiryNotice, limit int) ([]model.Purchase, error)
	MarkNotified(ctx context.Context, purchaseID int64, notice model.ExpiryNotice) (bool, error)
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]model.Purchase, error)
	MarkExpired(ctx context.Context, purchaseID int64) (bool, error)
}

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Config struct {
	NotifyDelay time.Duration
	DeleteDelay time.Duration
	PageSize    int
}

// Report summarizes one job run.
type Report struct {
	Selected  int
	Succeeded int
	Failed    int
	Deleted   int
}

// Jobs runs the subscription lifecycle sweeps. Every outbound platform call after the first
// in a run waits for the configured delay.
type Jobs struct {
	store       Store
	messenger   Messenger
	notifyDelay time.Duration
	deleteDelay time.Duration
	pageSize    int
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(store Store, messenger Messenger, cfg Config, logger *zap.Logger) *Jobs {
	if cfg.NotifyDelay < 0 {
		cfg.NotifyDelay = 0
	} else if cfg.NotifyDelay == 0 {
		cfg.NotifyDelay = defaultNotifyDelay
	}
	if cfg.DeleteDelay < 0 {
		cfg.DeleteDelay = 0
	} else if cfg.DeleteDelay == 0 {
		cfg.DeleteDelay = defaultDeleteDelay
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Jobs{
		store:       store,
		messenger:   messenger,
		notifyDelay: cfg.NotifyDelay,
		deleteDelay: cfg.DeleteDelay,
		pageSize:    cfg.PageSize,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func (j *Jobs) AttachMetrics(m *metrics.Metrics) {
	j.metrics = m
}

func (j *Jobs) Warn7Days(ctx context.Context) (Report, error) {
	return j.warn(ctx, model.ExpiryNoticeSevenDays, 7*24*time.Hour)
}

func (j *Jobs) Warn1Day(ctx context.Context) (Report, error) {
	return j.warn(ctx, model.ExpiryNoticeOneDay, 24*time.Hour)
}

func (j *Jobs) warn(ctx context.Context, notice model.ExpiryNotice, within time.Duration) (Report, error) {
	if j.store == nil || j.messenger == nil {
		return Report{}, fmt.Errorf("expiration job dependencies are not configured")
	}

	var report Report
	pace := pacer{delay: j.notifyDelay, sleep: j.sleep}
	seen := make(map[int64]struct{})
	for {
		page, err := j.store.ListExpiring(ctx, j.now().UTC(), within, notice, j.pageSize)
		if err != nil {
			return report, fmt.Errorf("list purchases expiring within %s: %w", within, err)
		}

		fresh := 0
		for _, purchase := range page {
			if _, ok := seen[purchase.ID]; ok {
				continue
			}
			seen[purchase.ID] = struct{}{}
			fresh++
			report.Selected++

			if purchase.Notified(notice) {
				continue
			}
			if err := pace.wait(ctx); err != nil {
				return report, err
			}
			if _, err := j.messenger.SendText(ctx, purchase.BuyerID, warningText(purchase, notice)); err != nil {
				report.Failed++
				j.logger.Warn("send expiration warning failed",
					zap.Int64("purchase_id", purchase.ID),
					zap.String("notice", string(notice)),
					zap.Error(err),
				)
				continue
			}
			if _, err := j.store.MarkNotified(ctx, purchase.ID, notice); err != nil {
				return report, fmt.Errorf("flag purchase %d notified: %w", purchase.ID, err)
			}
			report.Succeeded++
		}

		if fresh == 0 || len(page) < j.pageSize {
			break
		}
	}

	j.logger.Info("expiration warnings sent",
		zap.String("notice", string(notice)),
		zap.Int("selected", report.Selected),
		zap.Int("sent", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Sweep revokes lapsed subscriptions: delivered messages are deleted, best effort, and the
// purchase moves to expired with its sent messages cleared.
func (j *Jobs) Sweep(ctx context.Context) (Report, error) {
	if j.store == nil || j.messenger == nil {
		return Report{}, fmt.Errorf("expiration job dependencies are not configured")
	}

	var report Report
	deletes := pacer{delay: j.deleteDelay, sleep: j.sleep}
	notices := pacer{delay: j.notifyDelay, sleep: j.sleep}
	seen := make(map[int64]struct{})
	for {
		page, err := j.store.ListLapsed(ctx, j.now().UTC(), j.pageSize)
		if err != nil {
			return report, fmt.Errorf("list lapsed subscriptions: %w", err)
		}

		fresh := 0
		for _, purchase := range page {
			if _, ok := seen[purchase.ID]; ok {
				continue
			}
			seen[purchase.ID] = struct{}{}
			fresh++
			report.Selected++

			for _, batch := range purchase.SentMessages {
				for _, messageID := range batch.MessageIDs {
					if err := deletes.wait(ctx); err != nil {
						return report, err
					}
					if err := j.messenger.DeleteMessage(ctx, batch.ChatID, messageID); err != nil {
						j.metrics.MessageDeleted(false)
						j.logger.Debug("delete delivered message failed",
							zap.Int64("purchase_id", purchase.ID),
							zap.Int64("chat_id", batch.ChatID),
							zap.Int("message_id", messageID),
							zap.Error(err),
						)
						continue
					}
					j.metrics.MessageDeleted(true)
					report.Deleted++
				}
			}

			changed, err := j.store.MarkExpired(ctx, purchase.ID)
			if err != nil {
				return report, fmt.Errorf("expire purchase %d: %w", purchase.ID, err)
			}
			if !changed {
				continue
			}
			report.Succeeded++

			if err := notices.wait(ctx); err != nil {
				return report, err
			}
			if _, err := j.messenger.SendText(ctx, purchase.BuyerID, endedText(purchase)); err != nil {
				j.logger.Debug("send access ended notice failed", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
			}
		}

		if fresh == 0 || len(page) < j.pageSize {
			break
		}
	}

	j.logger.Info("expiration sweep completed",
		zap.Int("selected", report.Selected),
		zap.Int("expired", report.Succeeded),
		zap.Int("messages_deleted", report.Deleted),
	)
	return report, nil
}

type pacer struct {
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	started bool
}

func (p *pacer) wait(ctx context.Context) error {
	if !p.started {
		p.started = true
		return ctx.Err()
	}
	if p.delay <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func warningText(p model.Purchase, notice model.ExpiryNotice) string {
	expires := "em breve"
	if p.AccessExpiresAt != nil {
		expires = "em " + p.AccessExpiresAt.Format("02/01/2006 15:04")
	}
	if notice == model.ExpiryNoticeOneDay {
		return fmt.Sprintf("Último aviso: seu acesso a \"%s\" termina %s. Renove para não perder o conteúdo.", p.Snapshot.Name, expires)
	}
	return fmt.Sprintf("Seu acesso a \"%s\" termina %s. Faltam 7 dias.", p.Snapshot.Name, expires)
}

func endedText(p model.Purchase) string {
	return fmt.Sprintf("Seu acesso a \"%s\" terminou. Obrigado por assinar!", p.Snapshot.Name)
}
