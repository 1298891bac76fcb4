package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/pix"
	pgrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/postgres"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
)

const (
	EventPurchaseCreated   = "purchase.created"
	EventPurchasePaid      = "purchase.paid"
	EventPurchaseFailed    = "purchase.failed"
	EventPurchaseCompleted = "purchase.completed"
	EventPurchaseRefunded  = "purchase.refunded"

	defaultRefundReason = "refunded by operator"
	manualConfirmNote   = "payment confirmed manually by operator"

	detachedDeliveryTimeout = 2 * time.Minute
)

var (
	ErrValidation          = errors.New("validation error")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrDeliveryFailed      = errors.New("content delivery failed")
)

type PurchaseStore interface {
	CreatePending(ctx context.Context, p model.Purchase) (model.Purchase, error)
	GetByID(ctx context.Context, purchaseID int64) (model.Purchase, error)
	List(ctx context.Context, filter model.PurchaseFilter) ([]model.Purchase, error)
	Stats(ctx context.Context) (model.PurchaseStats, error)
	AttachTransaction(ctx context.Context, purchaseID int64, transactionID string) error
	Refund(ctx context.Context, purchaseID int64, reason string) (model.Purchase, bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, purchaseID int64, amountCents int64, currency string) (model.Transaction, error)
	GetByID(ctx context.Context, transactionID string) (model.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (model.Transaction, error)
	Issue(ctx context.Context, transactionID string, issued pgrepo.IssuedPayment) (model.Transaction, bool, error)
}

type LedgerStore interface {
	MarkPaid(ctx context.Context, transactionID string, paidAt time.Time) (pgrepo.Transition, error)
	MarkFailed(ctx context.Context, transactionID string, status enums.TransactionStatus, at time.Time, reason string) (pgrepo.Transition, error)
	MarkProcessing(ctx context.Context, transactionID string) (model.Transaction, bool, error)
	ConfirmManually(ctx context.Context, purchaseID int64, at time.Time, note string) (pgrepo.Transition, error)
}

type BuyerStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (model.Buyer, error)
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int64) (model.Product, error)
}

type Gateway interface {
	CreatePayment(ctx context.Context, req pix.CreateRequest) (pix.Payment, error)
	CheckStatus(ctx context.Context, paymentID string) (pix.Status, error)
	ConfirmManually(ctx context.Context, paymentID string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, purchaseID int64) (model.Purchase, error)
}

type EventPublisher interface {
	PublishPurchase(ctx context.Context, eventType string, purchase model.Purchase) error
}

type Dependencies struct {
	Purchases    PurchaseStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Catalog      ProductCatalog
	Buyers       BuyerStore
	Gateway      Gateway
	Deliverer    Deliverer
	Logger       *zap.Logger
}

// Service owns the purchase and transaction lifecycle. Webhook and poll outcomes go through
// the same transition so either path, or both, converge on one effective write.
type Service struct {
	purchases    PurchaseStore
	transactions TransactionStore
	ledger       LedgerStore
	catalog      ProductCatalog
	buyers       BuyerStore
	gateway      Gateway
	deliverer    Deliverer
	publisher    EventPublisher
	metrics      *metrics.Metrics
	log          *zap.Logger
	now          func() time.Time

	inflight sync.WaitGroup
}

type Buyer struct {
	TelegramID  int64
	DisplayName string
}

type CheckoutResult struct {
	Purchase    model.Purchase
	Transaction model.Transaction
}

type PaymentResult struct {
	Purchase    model.Purchase
	Transaction model.Transaction
	Changed     bool
}

// EventResult is returned once the event's transition is stored. Delivering is set when content
// delivery was started in the background; call Wait to block until it ends.
type EventResult struct {
	Type       string
	Applied    bool
	Ignored    bool
	Purchase   model.Purchase
	Delivering bool
}

type PurchaseDetails struct {
	Purchase    model.Purchase
	Transaction *model.Transaction
	Buyer       *model.Buyer
}

func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		purchases:    deps.Purchases,
		transactions: deps.Transactions,
		ledger:       deps.Ledger,
		catalog:      deps.Catalog,
		buyers:       deps.Buyers,
		gateway:      deps.Gateway,
		deliverer:    deps.Deliverer,
		log:          log,
		now:          time.Now,
	}
}

func (s *Service) AttachPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

func (s *Service) AttachMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// DeliveryCompleted records a purchase that reached completed. It is meant to be registered on
// the delivery service so every delivery path reports completion once.
func (s *Service) DeliveryCompleted(ctx context.Context, purchase model.Purchase) {
	s.metrics.Transition("purchase", string(enums.PurchaseStatusCompleted))
	s.publish(ctx, EventPurchaseCompleted, purchase)
}

// Wait blocks until deliveries started by HandleEvent have finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreatePurchase records a pending purchase of productID with a snapshot of its current terms.
func (s *Service) CreatePurchase(ctx context.Context, buyer Buyer, productID int64) (model.Purchase, error) {
	if s.purchases == nil || s.catalog == nil {
		return model.Purchase{}, fmt.Errorf("purchase dependencies are not configured")
	}
	if buyer.TelegramID <= 0 || productID <= 0 {
		return model.Purchase{}, ErrValidation
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProductNotFound) {
			return model.Purchase{}, ErrProductUnavailable
		}
		return model.Purchase{}, err
	}
	if !product.Active || !product.Price.IsPositive() {
		return model.Purchase{}, ErrProductUnavailable
	}
	// Access of a subscription without a term would never be revoked.
	if product.Type == enums.ProductTypeSubscription && product.AccessDays <= 0 {
		return model.Purchase{}, ErrProductUnavailable
	}

	snapshot := product.Snapshot()
	if snapshot.Currency == "" {
		snapshot.Currency = model.DefaultCurrency
	}

	purchase, err := s.purchases.CreatePending(ctx, model.Purchase{
		BuyerID:   buyer.TelegramID,
		BuyerName: strings.TrimSpace(buyer.DisplayName),
		ModelID:   product.ModelID,
		ProductID: product.ID,
		Snapshot:  snapshot,
		Amount:    snapshot.Price,
		Currency:  snapshot.Currency,
	})
	if err != nil {
		return model.Purchase{}, fmt.Errorf("create pending purchase: %w", err)
	}

	s.metrics.Transition("purchase", string(enums.PurchaseStatusPending))
	s.publish(ctx, EventPurchaseCreated, purchase)
	return purchase, nil
}

// Checkout creates a purchase and issues a payment code for it.
func (s *Service) Checkout(ctx context.Context, buyer Buyer, productID int64) (CheckoutResult, error) {
	if s.transactions == nil || s.ledger == nil || s.gateway == nil {
		return CheckoutResult{}, fmt.Errorf("checkout dependencies are not configured")
	}

	purchase, err := s.CreatePurchase(ctx, buyer, productID)
	if err != nil {
		return CheckoutResult{}, err
	}

	tx, err := s.transactions.Create(ctx, purchase.ID, model.ToCents(purchase.Amount), purchase.Currency)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := s.purchases.AttachTransaction(ctx, purchase.ID, tx.ID); err != nil {
		return CheckoutResult{}, fmt.Errorf("attach transaction: %w", err)
	}
	purchase.TransactionID = &tx.ID

	payment, err := s.gateway.CreatePayment(ctx, pix.CreateRequest{
		Amount:      purchase.Amount,
		Currency:    purchase.Currency,
		Description: truncate(purchase.Snapshot.Name, 140),
		ExternalID:  tx.ID,
		Customer:    &pix.Customer{Name: buyer.DisplayName},
	})
	if err != nil {
		s.log.Warn("payment creation failed",
			zap.Int64("purchase_id", purchase.ID),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		tr, markErr := s.ledger.MarkFailed(context.WithoutCancel(ctx), tx.ID, enums.TransactionStatusFailed, s.now().UTC(), "payment creation failed")
		if markErr != nil {
			s.log.Error("mark transaction failed", zap.String("transaction_id", tx.ID), zap.Error(markErr))
		} else if tr.PurchaseChanged {
			s.metrics.Transition("purchase", string(enums.PurchaseStatusFailed))
			s.publish(ctx, EventPurchaseFailed, tr.Purchase)
		}
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	issued, _, err := s.transactions.Issue(ctx, tx.ID, pgrepo.IssuedPayment{
		ExternalID:  payment.ID,
		PaymentCode: payment.PaymentCode,
		QRImage:     payment.QRImage,
		ExpiresAt:   payment.ExpiresAt,
		Simulated:   payment.Simulated,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("issue transaction: %w", err)
	}

	s.metrics.PaymentCreated(payment.Simulated)
	s.metrics.Transition("transaction", string(issued.Status))
	s.log.Info("payment issued",
		zap.Int64("purchase_id", purchase.ID),
		zap.String("transaction_id", issued.ID),
		zap.Bool("simulated", payment.Simulated),
	)
	return CheckoutResult{Purchase: purchase, Transaction: issued}, nil
}

// CheckPayment asks the gateway for the current status of a transaction and applies it.
func (s *Service) CheckPayment(ctx context.Context, transactionID string) (PaymentResult, error) {
	tx, err := s.transaction(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return PaymentResult{}, err
	}

	if tx.Status.Terminal() {
		purchase, err := s.purchase(ctx, tx.PurchaseID)
		if err != nil {
			return PaymentResult{}, err
		}
		if purchase.Status == enums.PurchaseStatusPaid {
			purchase = s.deliver(ctx, purchase)
		}
		return PaymentResult{Purchase: purchase, Transaction: tx}, nil
	}

	if tx.ExternalID == nil || *tx.ExternalID == "" {
		purchase, err := s.purchase(ctx, tx.PurchaseID)
		if err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Purchase: purchase, Transaction: tx}, nil
	}

	now := s.now().UTC()
	status, err := s.gateway.CheckStatus(ctx, *tx.ExternalID)
	if err != nil {
		// A charge the provider no longer knows can only settle as expired once its code lapsed.
		if errors.Is(err, pix.ErrPaymentNotFound) && tx.CodeExpired(now) {
			return s.applyStatus(ctx, tx, enums.TransactionStatusExpired, now, "", false)
		}
		s.log.Warn("payment status check failed", zap.String("transaction_id", tx.ID), zap.Error(err))
		return PaymentResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	next := status.Status
	if next != enums.TransactionStatusPaid && tx.CodeExpired(now) {
		next = enums.TransactionStatusExpired
	}
	at := now
	if status.PaidAt != nil {
		at = status.PaidAt.UTC()
	}
	return s.applyStatus(ctx, tx, next, at, "", false)
}

// HandleEvent applies a verified provider notification and returns as soon as the transition is
// stored; delivery of a paid purchase continues in the background. Events for unknown
// transactions and unknown event types are acknowledged without changes.
func (s *Service) HandleEvent(ctx context.Context, event webhooks.Event) (EventResult, error) {
	result := EventResult{Type: event.EventType()}

	at := s.now().UTC()
	var (
		ref    webhooks.Ref
		status enums.TransactionStatus
		reason string
	)
	switch ev := event.(type) {
	case webhooks.PaymentConfirmed:
		ref, status = ev.Ref, enums.TransactionStatusPaid
		if !ev.PaidAt.IsZero() {
			at = ev.PaidAt
		}
	case webhooks.PaymentFailed:
		ref, status, reason = ev.Ref, enums.TransactionStatusFailed, ev.Reason
	case webhooks.PaymentExpired:
		ref, status, reason = ev.Ref, enums.TransactionStatusExpired, "payment code expired"
	case webhooks.Unknown:
		s.metrics.WebhookEvent(result.Type, "ignored")
		result.Ignored = true
		return result, nil
	default:
		return result, fmt.Errorf("%w: unsupported event %T", ErrValidation, event)
	}

	tx, err := s.resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			s.log.Warn("webhook for unknown transaction",
				zap.String("event", result.Type),
				zap.String("transaction_id", ref.TransactionID),
				zap.String("provider_id", ref.ProviderID),
			)
			s.metrics.WebhookEvent(result.Type, "unknown_transaction")
			result.Ignored = true
			return result, nil
		}
		s.metrics.WebhookEvent(result.Type, "error")
		return result, err
	}

	applied, err := s.applyStatus(ctx, tx, status, at, reason, true)
	if err != nil {
		s.metrics.WebhookEvent(result.Type, "error")
		return result, err
	}
	result.Applied = applied.Changed
	result.Purchase = applied.Purchase
	result.Delivering = applied.Purchase.Status == enums.PurchaseStatusPaid && s.deliverer != nil
	if applied.Changed {
		s.metrics.WebhookEvent(result.Type, "applied")
	} else {
		s.metrics.WebhookEvent(result.Type, "duplicate")
	}
	return result, nil
}

// applyStatus stores the transition and, for a purchase left in paid, starts or resumes its
// delivery: inline, or in the background when detach is set.
func (s *Service) applyStatus(ctx context.Context, tx model.Transaction, status enums.TransactionStatus, at time.Time, reason string, detach bool) (PaymentResult, error) {
	if s.ledger == nil {
		return PaymentResult{}, fmt.Errorf("ledger is not configured")
	}

	switch status {
	case enums.TransactionStatusPaid:
		tr, err := s.ledger.MarkPaid(ctx, tx.ID, at)
		if err != nil {
			return PaymentResult{}, fmt.Errorf("mark transaction paid: %w", err)
		}
		out := PaymentResult{Purchase: tr.Purchase, Transaction: tr.Transaction, Changed: tr.TransactionChanged || tr.PurchaseChanged}
		if tr.TransactionChanged {
			s.metrics.Transition("transaction", string(enums.TransactionStatusPaid))
		}
		if tr.PurchaseChanged {
			s.metrics.Transition("purchase", string(enums.PurchaseStatusPaid))
			s.publish(ctx, EventPurchasePaid, tr.Purchase)
			s.log.Info("purchase paid", zap.Int64("purchase_id", tr.Purchase.ID), zap.String("transaction_id", tx.ID))
		}
		if tr.Purchase.Status != enums.PurchaseStatusPaid {
			return out, nil
		}
		if detach {
			s.deliverDetached(ctx, tr.Purchase)
		} else {
			out.Purchase = s.deliver(ctx, tr.Purchase)
		}
		return out, nil

	case enums.TransactionStatusFailed, enums.TransactionStatusExpired:
		if reason == "" {
			reason = "payment " + string(status)
		}
		tr, err := s.ledger.MarkFailed(ctx, tx.ID, status, at, reason)
		if err != nil {
			return PaymentResult{}, fmt.Errorf("mark transaction %s: %w", status, err)
		}
		if tr.TransactionChanged {
			s.metrics.Transition("transaction", string(status))
		}
		if tr.PurchaseChanged {
			s.metrics.Transition("purchase", string(enums.PurchaseStatusFailed))
			s.publish(ctx, EventPurchaseFailed, tr.Purchase)
		}
		return PaymentResult{Purchase: tr.Purchase, Transaction: tr.Transaction, Changed: tr.TransactionChanged || tr.PurchaseChanged}, nil

	case enums.TransactionStatusProcessing:
		updated, changed, err := s.ledger.MarkProcessing(ctx, tx.ID)
		if err != nil {
			return PaymentResult{}, fmt.Errorf("mark transaction processing: %w", err)
		}
		purchase, err := s.purchase(ctx, tx.PurchaseID)
		if err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Purchase: purchase, Transaction: updated, Changed: changed}, nil

	default:
		purchase, err := s.purchase(ctx, tx.PurchaseID)
		if err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Purchase: purchase, Transaction: tx}, nil
	}
}

// Complete is the operator override: a pending purchase is confirmed manually and delivered,
// a paid one has its delivery resumed.
func (s *Service) Complete(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	purchase, err := s.purchase(ctx, purchaseID)
	if err != nil {
		return model.Purchase{}, err
	}

	switch purchase.Status {
	case enums.PurchaseStatusPending:
		s.confirmSimulated(ctx, purchase)
		tr, err := s.ledger.ConfirmManually(ctx, purchase.ID, s.now().UTC(), manualConfirmNote)
		if err != nil {
			return model.Purchase{}, fmt.Errorf("confirm purchase manually: %w", err)
		}
		if !tr.PurchaseChanged && tr.Purchase.Status != enums.PurchaseStatusPaid {
			return tr.Purchase, fmt.Errorf("%w: purchase is %s", ErrInvalidTransition, tr.Purchase.Status)
		}
		if tr.PurchaseChanged {
			s.metrics.Transition("purchase", string(enums.PurchaseStatusPaid))
			s.publish(ctx, EventPurchasePaid, tr.Purchase)
		}
		purchase = tr.Purchase
	case enums.PurchaseStatusPaid:
	default:
		return purchase, fmt.Errorf("%w: purchase is %s", ErrInvalidTransition, purchase.Status)
	}

	if s.deliverer == nil {
		return purchase, nil
	}
	delivered, err := s.deliverer.Deliver(ctx, purchase.ID)
	if err != nil {
		s.log.Error("operator delivery failed", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
		return purchase, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return delivered, nil
}

// Refund moves a paid or completed purchase to refunded. Refunding twice is a no-op.
func (s *Service) Refund(ctx context.Context, purchaseID int64, reason string) (model.Purchase, error) {
	if s.purchases == nil {
		return model.Purchase{}, fmt.Errorf("purchase store is not configured")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	purchase, changed, err := s.purchases.Refund(ctx, purchaseID, reason)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, fmt.Errorf("refund purchase: %w", err)
	}
	if !changed {
		if purchase.Status == enums.PurchaseStatusRefunded {
			return purchase, nil
		}
		return purchase, fmt.Errorf("%w: purchase is %s", ErrInvalidTransition, purchase.Status)
	}

	s.metrics.Transition("purchase", string(enums.PurchaseStatusRefunded))
	s.publish(ctx, EventPurchaseRefunded, purchase)
	s.log.Info("purchase refunded", zap.Int64("purchase_id", purchase.ID), zap.String("reason", reason))
	return purchase, nil
}

func (s *Service) List(ctx context.Context, filter model.PurchaseFilter) ([]model.Purchase, error) {
	if s.purchases == nil {
		return nil, fmt.Errorf("purchase store is not configured")
	}
	if filter.Status != "" {
		if _, ok := enums.ParsePurchaseStatus(string(filter.Status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, ErrValidation
	}
	return s.purchases.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, purchaseID int64) (PurchaseDetails, error) {
	purchase, err := s.purchase(ctx, purchaseID)
	if err != nil {
		return PurchaseDetails{}, err
	}
	details := PurchaseDetails{Purchase: purchase}
	if purchase.TransactionID != nil && s.transactions != nil {
		tx, err := s.transactions.GetByID(ctx, *purchase.TransactionID)
		switch {
		case err == nil:
			details.Transaction = &tx
		case !errors.Is(err, pgrepo.ErrTransactionNotFound):
			return PurchaseDetails{}, err
		}
	}
	if s.buyers != nil {
		buyer, err := s.buyers.GetByTelegramID(ctx, purchase.BuyerID)
		switch {
		case err == nil:
			details.Buyer = &buyer
		case !errors.Is(err, pgrepo.ErrBuyerNotFound):
			return PurchaseDetails{}, err
		}
	}
	return details, nil
}

func (s *Service) Stats(ctx context.Context) (model.PurchaseStats, error) {
	if s.purchases == nil {
		return model.PurchaseStats{}, fmt.Errorf("purchase store is not configured")
	}
	return s.purchases.Stats(ctx)
}

func (s *Service) deliver(ctx context.Context, purchase model.Purchase) model.Purchase {
	if s.deliverer == nil {
		return purchase
	}
	delivered, err := s.deliverer.Deliver(ctx, purchase.ID)
	if err != nil {
		s.log.Error("content delivery failed", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
		if delivered.ID == 0 {
			return purchase
		}
		return delivered
	}
	return delivered
}

// deliverDetached runs delivery past the caller's request. A delivery cut short by the timeout
// is resumed by the next poll or by the redelivery job.
func (s *Service) deliverDetached(ctx context.Context, purchase model.Purchase) {
	if s.deliverer == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedDeliveryTimeout)
		defer cancel()
		s.deliver(dctx, purchase)
	}()
}

func (s *Service) confirmSimulated(ctx context.Context, purchase model.Purchase) {
	if s.transactions == nil || s.gateway == nil || purchase.TransactionID == nil {
		return
	}
	tx, err := s.transactions.GetByID(ctx, *purchase.TransactionID)
	if err != nil || tx.ExternalID == nil || !pix.IsSimulatedID(*tx.ExternalID) {
		return
	}
	if err := s.gateway.ConfirmManually(ctx, *tx.ExternalID); err != nil {
		s.log.Debug("simulated payment confirm skipped", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
}

func (s *Service) resolve(ctx context.Context, ref webhooks.Ref) (model.Transaction, error) {
	if s.transactions == nil {
		return model.Transaction{}, fmt.Errorf("transaction store is not configured")
	}
	if ref.TransactionID != "" {
		tx, err := s.transactions.GetByID(ctx, ref.TransactionID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return model.Transaction{}, err
		}
	}
	if ref.ProviderID != "" {
		tx, err := s.transactions.GetByExternalID(ctx, ref.ProviderID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return model.Transaction{}, err
		}
	}
	return model.Transaction{}, ErrTransactionNotFound
}

func (s *Service) transaction(ctx context.Context, transactionID string) (model.Transaction, error) {
	if s.transactions == nil {
		return model.Transaction{}, fmt.Errorf("transaction store is not configured")
	}
	if transactionID == "" {
		return model.Transaction{}, ErrValidation
	}
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return model.Transaction{}, ErrTransactionNotFound
		}
		return model.Transaction{}, err
	}
	return tx, nil
}

func (s *Service) purchase(ctx context.Context, purchaseID int64) (model.Purchase, error) {
	if s.purchases == nil {
		return model.Purchase{}, fmt.Errorf("purchase store is not configured")
	}
	if purchaseID <= 0 {
		return model.Purchase{}, ErrValidation
	}
	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, err
	}
	return purchase, nil
}

func (s *Service) publish(ctx context.Context, eventType string, purchase model.Purchase) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPurchase(ctx, eventType, purchase); err != nil {
		s.log.Warn("publish purchase event failed",
			zap.String("event", eventType),
			zap.Int64("purchase_id", purchase.ID),
			zap.Error(err),
		)
	}
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
