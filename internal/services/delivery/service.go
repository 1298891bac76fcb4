package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/telegram"
)

const (
	DefaultBatchSize = telegram.MaxMediaGroup
	defaultLease     = 5 * time.Minute
)

var ErrNotDeliverable = errors.New("purchase is not deliverable")

type PurchaseStore interface {
	ClaimDelivery(ctx context.Context, purchaseID int64, now time.Time, lease time.Duration) (model.Purchase, bool, error)
	ReleaseDelivery(ctx context.Context, purchaseID int64) error
	AppendSentMessage(ctx context.Context, purchaseID int64, msg model.SentMessage) (model.Purchase, error)
	MarkCompleted(ctx context.Context, purchaseID int64, deliveredAt time.Time, accessExpiresAt *time.Time) (model.Purchase, bool, error)
}

type ContentSource interface {
	ListContent(ctx context.Context, productID int64) ([]model.ContentItem, error)
}

type Sender interface {
	SendMedia(ctx context.Context, chatID int64, items []telegram.Media) ([]int, error)
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

type URLSigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

// CompletionFunc observes a purchase the moment this service moves it to completed.
type CompletionFunc func(ctx context.Context, purchase model.Purchase)

type Dependencies struct {
	Purchases PurchaseStore
	Content   ContentSource
	Sender    Sender
	Signer    URLSigner
	BatchSize int
	Lease     time.Duration
	Logger    *zap.Logger
}

// Service sends purchased content to buyers. Every sent batch is recorded on the purchase
// before the next one goes out; a retry resumes at the first unrecorded batch.
type Service struct {
	purchases PurchaseStore
	content   ContentSource
	sender    Sender
	signer    URLSigner
	batchSize int
	lease     time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
	onDone    CompletionFunc
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	batchSize := deps.BatchSize
	if batchSize <= 0 || batchSize > telegram.MaxMediaGroup {
		batchSize = DefaultBatchSize
	}
	lease := deps.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		purchases: deps.Purchases,
		content:   deps.Content,
		sender:    deps.Sender,
		signer:    deps.Signer,
		batchSize: batchSize,
		lease:     lease,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) AttachMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// OnCompleted registers fn to run once per purchase, whichever caller finished the delivery.
func (s *Service) OnCompleted(fn CompletionFunc) {
	s.onDone = fn
}

// Deliver sends the content of a paid purchase and completes it. A purchase that is already
// completed, or whose delivery lease is held by another caller, is returned unchanged.
func (s *Service) Deliver(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	if s.purchases == nil || s.content == nil || s.sender == nil {
		return model.Purchase{}, fmt.Errorf("delivery dependencies are not configured")
	}

	purchase, claimed, err := s.purchases.ClaimDelivery(ctx, purchaseID, s.now().UTC(), s.lease)
	if err != nil {
		return model.Purchase{}, err
	}
	if !claimed {
		switch purchase.Status {
		case enums.PurchaseStatusCompleted, enums.PurchaseStatusPaid:
			return purchase, nil
		default:
			return purchase, fmt.Errorf("%w: status %s", ErrNotDeliverable, purchase.Status)
		}
	}

	delivered, err := s.send(ctx, purchase)
	if err != nil {
		if releaseErr := s.purchases.ReleaseDelivery(context.WithoutCancel(ctx), purchaseID); releaseErr != nil {
			s.log.Error("release delivery lease failed", zap.Int64("purchase_id", purchaseID), zap.Error(releaseErr))
		}
		return delivered, err
	}
	return delivered, nil
}

func (s *Service) send(ctx context.Context, purchase model.Purchase) (model.Purchase, error) {
	items, err := s.content.ListContent(ctx, purchase.ProductID)
	if err != nil {
		return purchase, fmt.Errorf("list content items: %w", err)
	}

	chatID := purchase.BuyerID
	if len(items) == 0 {
		if len(purchase.SentMessages) == 0 {
			msgID, err := s.sender.SendText(ctx, chatID, noContentText(purchase))
			if err != nil {
				s.metrics.DeliveryBatch(false)
				return purchase, fmt.Errorf("send fallback text: %w", err)
			}
			purchase, err = s.purchases.AppendSentMessage(ctx, purchase.ID, model.SentMessage{ChatID: chatID, MessageIDs: []int{msgID}})
			if err != nil {
				return purchase, err
			}
			s.metrics.DeliveryBatch(true)
		}
		s.log.Warn("purchase delivered without content", zap.Int64("purchase_id", purchase.ID), zap.Int64("product_id", purchase.ProductID))
		return s.complete(ctx, purchase)
	}

	batches := Partition(items, s.batchSize)
	for i := len(purchase.SentMessages); i < len(batches); i++ {
		media, err := s.toMedia(ctx, batches[i])
		if err != nil {
			return purchase, fmt.Errorf("prepare batch %d of %d: %w", i+1, len(batches), err)
		}

		ids, err := s.sender.SendMedia(ctx, chatID, media)
		if err != nil {
			s.metrics.DeliveryBatch(false)
			s.log.Warn("content batch send failed",
				zap.Int64("purchase_id", purchase.ID),
				zap.Int("batch", i+1),
				zap.Int("batches", len(batches)),
				zap.Error(err),
			)
			return purchase, fmt.Errorf("send batch %d of %d: %w", i+1, len(batches), err)
		}

		purchase, err = s.purchases.AppendSentMessage(ctx, purchase.ID, model.SentMessage{ChatID: chatID, MessageIDs: ids})
		if err != nil {
			return purchase, fmt.Errorf("record batch %d of %d: %w", i+1, len(batches), err)
		}
		s.metrics.DeliveryBatch(true)
	}

	return s.complete(ctx, purchase)
}

func (s *Service) complete(ctx context.Context, purchase model.Purchase) (model.Purchase, error) {
	deliveredAt := s.now().UTC()
	var accessExpiresAt *time.Time
	if purchase.IsSubscription() && purchase.Snapshot.AccessDays > 0 {
		expires := deliveredAt.AddDate(0, 0, purchase.Snapshot.AccessDays)
		accessExpiresAt = &expires
	}

	completed, changed, err := s.purchases.MarkCompleted(ctx, purchase.ID, deliveredAt, accessExpiresAt)
	if err != nil {
		return purchase, fmt.Errorf("mark purchase completed: %w", err)
	}
	if !changed {
		return completed, nil
	}

	if _, err := s.sender.SendText(ctx, purchase.BuyerID, completionText(completed)); err != nil {
		s.log.Warn("send delivery confirmation failed", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
	}
	if s.onDone != nil {
		s.onDone(ctx, completed)
	}
	return completed, nil
}

func (s *Service) toMedia(ctx context.Context, items []model.ContentItem) ([]telegram.Media, error) {
	out := make([]telegram.Media, 0, len(items))
	for _, item := range items {
		m := telegram.Media{Kind: item.Kind, FileID: strings.TrimSpace(item.FileID)}
		if m.FileID == "" {
			if s.signer == nil || strings.TrimSpace(item.ObjectKey) == "" {
				return nil, fmt.Errorf("content item %d has no usable reference", item.ID)
			}
			link, err := s.signer.PresignGet(ctx, item.ObjectKey)
			if err != nil {
				return nil, fmt.Errorf("presign content item %d: %w", item.ID, err)
			}
			m.URL = link
		}
		out = append(out, m)
	}
	return out, nil
}

// Partition splits items into consecutive batches of at most size elements.
func Partition(items []model.ContentItem, size int) [][]model.ContentItem {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]model.ContentItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func noContentText(p model.Purchase) string {
	return fmt.Sprintf("Pagamento confirmado para \"%s\". O conteúdo ainda está sendo preparado e será enviado em breve.", p.Snapshot.Name)
}

func completionText(p model.Purchase) string {
	if p.AccessExpiresAt != nil {
		return fmt.Sprintf("Pronto! Seu acesso a \"%s\" vale até %s.", p.Snapshot.Name, p.AccessExpiresAt.Format("02/01/2006 15:04"))
	}
	return fmt.Sprintf("Pronto! Aproveite \"%s\".", p.Snapshot.Name)
}
