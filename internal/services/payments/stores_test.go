package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/rules"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/pix"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/telegram"
	pgrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/postgres"
)

// memDB mirrors the conditional-update semantics of the postgres repositories.
type memDB struct {
	mu           sync.Mutex
	purchases    map[int64]*model.Purchase
	transactions map[string]*model.Transaction
	buyers       map[int64]*model.Buyer
	nextPurchase int64
	nextTx       int
}

func newMemDB() *memDB {
	return &memDB{
		purchases:    make(map[int64]*model.Purchase),
		transactions: make(map[string]*model.Transaction),
		buyers:       make(map[int64]*model.Buyer),
	}
}

func (db *memDB) purchaseCopy(id int64) model.Purchase {
	p := *db.purchases[id]
	p.SentMessages = append([]model.SentMessage(nil), p.SentMessages...)
	return p
}

func (db *memDB) setPurchaseStatus(id int64, to enums.PurchaseStatus, note string) (model.Purchase, bool) {
	p := db.purchases[id]
	if !rules.CanTransitionPurchase(p.Status, to) {
		return db.purchaseCopy(id), false
	}
	p.Status = to
	if note != "" {
		p.Notes = note
	}
	return db.purchaseCopy(id), true
}

func (db *memDB) setTxStatus(id string, to enums.TransactionStatus, at time.Time, reason string) (model.Transaction, bool) {
	tx := db.transactions[id]
	if !rules.CanTransitionTransaction(tx.Status, to) {
		return *tx, false
	}
	tx.Status = to
	switch to {
	case enums.TransactionStatusPaid:
		paidAt := at
		tx.PaidAt = &paidAt
	case enums.TransactionStatusFailed, enums.TransactionStatusExpired:
		failedAt := at
		tx.FailedAt = &failedAt
		tx.FailureReason = reason
	}
	return *tx, true
}

type purchaseStub struct{ db *memDB }

func (s purchaseStub) CreatePending(_ context.Context, p model.Purchase) (model.Purchase, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.nextPurchase++
	p.ID = s.db.nextPurchase
	p.Status = enums.PurchaseStatusPending
	p.SentMessages = []model.SentMessage{}
	s.db.purchases[p.ID] = &p

	buyer, ok := s.db.buyers[p.BuyerID]
	if !ok {
		buyer = &model.Buyer{TelegramID: p.BuyerID, TotalSpent: decimal.Zero}
		s.db.buyers[p.BuyerID] = buyer
	}
	buyer.PurchaseCount++
	buyer.TotalSpent = buyer.TotalSpent.Add(p.Amount)
	return s.db.purchaseCopy(p.ID), nil
}

func (s purchaseStub) GetByID(_ context.Context, id int64) (model.Purchase, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.purchases[id]; !ok {
		return model.Purchase{}, pgrepo.ErrPurchaseNotFound
	}
	return s.db.purchaseCopy(id), nil
}

func (s purchaseStub) List(_ context.Context, filter model.PurchaseFilter) ([]model.Purchase, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Purchase, 0)
	for id := int64(1); id <= s.db.nextPurchase; id++ {
		p, ok := s.db.purchases[id]
		if !ok || (filter.Status != "" && p.Status != filter.Status) {
			continue
		}
		out = append(out, s.db.purchaseCopy(id))
	}
	return out, nil
}

func (s purchaseStub) Stats(_ context.Context) (model.PurchaseStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	stats := model.PurchaseStats{ByStatus: map[enums.PurchaseStatus]int64{}}
	for _, p := range s.db.purchases {
		stats.Total++
		stats.ByStatus[p.Status]++
	}
	return stats, nil
}

func (s purchaseStub) AttachTransaction(_ context.Context, purchaseID int64, txID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.purchases[purchaseID]
	if !ok {
		return pgrepo.ErrPurchaseNotFound
	}
	p.TransactionID = &txID
	return nil
}

func (s purchaseStub) Refund(_ context.Context, purchaseID int64, reason string) (model.Purchase, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.purchases[purchaseID]
	if !ok {
		return model.Purchase{}, false, pgrepo.ErrPurchaseNotFound
	}
	out, changed := s.db.setPurchaseStatus(purchaseID, enums.PurchaseStatusRefunded, reason)
	if !changed {
		return out, false, nil
	}
	if p.TransactionID != nil {
		s.db.setTxStatus(*p.TransactionID, enums.TransactionStatusRefunded, time.Now(), "")
	}
	buyer := s.db.buyers[p.BuyerID]
	buyer.TotalSpent = buyer.TotalSpent.Sub(p.Amount)
	return out, true, nil
}

func (s purchaseStub) ClaimDelivery(_ context.Context, id int64, now time.Time, lease time.Duration) (model.Purchase, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.purchases[id]
	if p.Status != enums.PurchaseStatusPaid || (p.DeliveryStartedAt != nil && p.DeliveryStartedAt.After(now.Add(-lease))) {
		return s.db.purchaseCopy(id), false, nil
	}
	started := now
	p.DeliveryStartedAt = &started
	return s.db.purchaseCopy(id), true, nil
}

func (s purchaseStub) ReleaseDelivery(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if p := s.db.purchases[id]; p.Status == enums.PurchaseStatusPaid {
		p.DeliveryStartedAt = nil
	}
	return nil
}

func (s purchaseStub) AppendSentMessage(_ context.Context, id int64, msg model.SentMessage) (model.Purchase, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.purchases[id]
	if p.Status != enums.PurchaseStatusPaid {
		return model.Purchase{}, pgrepo.ErrDeliveryNotClaimed
	}
	p.SentMessages = append(p.SentMessages, msg)
	return s.db.purchaseCopy(id), nil
}

func (s purchaseStub) MarkCompleted(_ context.Context, id int64, deliveredAt time.Time, accessExpiresAt *time.Time) (model.Purchase, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.purchases[id]
	if p.Status != enums.PurchaseStatusPaid {
		return s.db.purchaseCopy(id), false, nil
	}
	p.Status = enums.PurchaseStatusCompleted
	p.DeliveredAt = &deliveredAt
	p.AccessExpiresAt = accessExpiresAt
	p.DeliveryStartedAt = nil
	return s.db.purchaseCopy(id), true, nil
}

type transactionStub struct{ db *memDB }

func (s transactionStub) Create(_ context.Context, purchaseID int64, amountCents int64, currency string) (model.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.nextTx++
	tx := &model.Transaction{
		ID:         fmt.Sprintf("00000000-0000-0000-0000-%012d", s.db.nextTx),
		PurchaseID: purchaseID,
		Method:     model.PaymentMethodPix,
		Amount:     model.FromCents(amountCents),
		Currency:   currency,
		Status:     enums.TransactionStatusPending,
	}
	s.db.transactions[tx.ID] = tx
	return *tx, nil
}

func (s transactionStub) GetByID(_ context.Context, id string) (model.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	tx, ok := s.db.transactions[id]
	if !ok {
		return model.Transaction{}, pgrepo.ErrTransactionNotFound
	}
	return *tx, nil
}

func (s transactionStub) GetByExternalID(_ context.Context, externalID string) (model.Transaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, tx := range s.db.transactions {
		if tx.ExternalID != nil && *tx.ExternalID == externalID {
			return *tx, nil
		}
	}
	return model.Transaction{}, pgrepo.ErrTransactionNotFound
}

func (s transactionStub) Issue(_ context.Context, id string, issued pgrepo.IssuedPayment) (model.Transaction, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	tx := s.db.transactions[id]
	if tx.Status != enums.TransactionStatusPending {
		return *tx, false, nil
	}
	externalID := issued.ExternalID
	expiresAt := issued.ExpiresAt
	tx.ExternalID = &externalID
	tx.PaymentCode = issued.PaymentCode
	tx.QRImage = issued.QRImage
	tx.CodeExpiresAt = &expiresAt
	tx.Simulated = issued.Simulated
	tx.Status = enums.TransactionStatusProcessing
	return *tx, true, nil
}

type ledgerStub struct{ db *memDB }

func (s ledgerStub) MarkPaid(_ context.Context, txID string, paidAt time.Time) (pgrepo.Transition, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	tx, ok := s.db.transactions[txID]
	if !ok {
		return pgrepo.Transition{}, pgrepo.ErrTransactionNotFound
	}
	if tx.Status == enums.TransactionStatusPending {
		tx.Status = enums.TransactionStatusProcessing
	}
	var out pgrepo.Transition
	out.Transaction, out.TransactionChanged = s.db.setTxStatus(txID, enums.TransactionStatusPaid, paidAt, "")
	if out.Transaction.Status != enums.TransactionStatusPaid {
		out.Purchase = s.db.purchaseCopy(tx.PurchaseID)
		return out, nil
	}
	if s.db.purchases[tx.PurchaseID].Status == enums.PurchaseStatusPending {
		out.Purchase, out.PurchaseChanged = s.db.setPurchaseStatus(tx.PurchaseID, enums.PurchaseStatusPaid, "")
	} else {
		out.Purchase = s.db.purchaseCopy(tx.PurchaseID)
	}
	return out, nil
}

func (s ledgerStub) MarkFailed(_ context.Context, txID string, status enums.TransactionStatus, at time.Time, reason string) (pgrepo.Transition, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	tx, ok := s.db.transactions[txID]
	if !ok {
		return pgrepo.Transition{}, pgrepo.ErrTransactionNotFound
	}
	var out pgrepo.Transition
	out.Transaction, out.TransactionChanged = s.db.setTxStatus(txID, status, at, reason)
	current := s.db.purchases[tx.PurchaseID].Status
	failable := current == enums.PurchaseStatusPending || (status == enums.TransactionStatusFailed && current == enums.PurchaseStatusPaid)
	if !out.TransactionChanged || !failable {
		out.Purchase = s.db.purchaseCopy(tx.PurchaseID)
		return out, nil
	}
	out.Purchase, out.PurchaseChanged = s.db.setPurchaseStatus(tx.PurchaseID, enums.PurchaseStatusFailed, reason)
	return out, nil
}

func (s ledgerStub) MarkProcessing(_ context.Context, txID string) (model.Transaction, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.transactions[txID]; !ok {
		return model.Transaction{}, false, pgrepo.ErrTransactionNotFound
	}
	tx, changed := s.db.setTxStatus(txID, enums.TransactionStatusProcessing, time.Time{}, "")
	return tx, changed, nil
}

func (s ledgerStub) ConfirmManually(_ context.Context, purchaseID int64, at time.Time, note string) (pgrepo.Transition, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.purchases[purchaseID]
	if !ok {
		return pgrepo.Transition{}, pgrepo.ErrPurchaseNotFound
	}
	var out pgrepo.Transition
	if p.TransactionID != nil {
		tx := s.db.transactions[*p.TransactionID]
		if tx.Status == enums.TransactionStatusPending {
			tx.Status = enums.TransactionStatusProcessing
		}
		out.Transaction, out.TransactionChanged = s.db.setTxStatus(tx.ID, enums.TransactionStatusPaid, at, "")
	}
	out.Purchase, out.PurchaseChanged = s.db.setPurchaseStatus(purchaseID, enums.PurchaseStatusPaid, note)
	return out, nil
}

type buyerStub struct{ db *memDB }

func (s buyerStub) GetByTelegramID(_ context.Context, telegramID int64) (model.Buyer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.buyers[telegramID]
	if !ok {
		return model.Buyer{}, pgrepo.ErrBuyerNotFound
	}
	return *b, nil
}

type catalogStub struct {
	products map[int64]model.Product
	content  map[int64][]model.ContentItem
}

func (s catalogStub) GetProduct(_ context.Context, id int64) (model.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return model.Product{}, pgrepo.ErrProductNotFound
	}
	return p, nil
}

func (s catalogStub) ListContent(_ context.Context, productID int64) ([]model.ContentItem, error) {
	return s.content[productID], nil
}

type senderStub struct {
	mu      sync.Mutex
	nextID  int
	batches [][]telegram.Media
	texts   []string
	failAt  int
	// SendMedia waits on block when it is set.
	block chan struct{}
}

func (s *senderStub) SendMedia(_ context.Context, _ int64, items []telegram.Media) ([]int, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.batches)+1 == s.failAt {
		s.failAt = 0
		return nil, errors.New("telegram: too many requests")
	}
	ids := make([]int, 0, len(items))
	for range items {
		s.nextID++
		ids = append(ids, s.nextID)
	}
	s.batches = append(s.batches, items)
	return ids, nil
}

func (s *senderStub) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *senderStub) SendText(_ context.Context, _ int64, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.texts = append(s.texts, text)
	return s.nextID, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []string
}

func (p *publisherStub) PublishPurchase(_ context.Context, eventType string, _ model.Purchase) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type gatewayStub struct {
	createErr error
	statusErr error
	status    enums.TransactionStatus
	expiresAt time.Time
	created   int
}

func (g *gatewayStub) CreatePayment(_ context.Context, req pix.CreateRequest) (pix.Payment, error) {
	if g.createErr != nil {
		return pix.Payment{}, g.createErr
	}
	g.created++
	return pix.Payment{
		ID:          "ord_" + req.ExternalID,
		PaymentCode: "00020101021226",
		ExpiresAt:   g.expiresAt,
	}, nil
}

func (g *gatewayStub) CheckStatus(_ context.Context, _ string) (pix.Status, error) {
	if g.statusErr != nil {
		return pix.Status{}, g.statusErr
	}
	return pix.Status{Status: g.status}, nil
}

func (g *gatewayStub) ConfirmManually(_ context.Context, _ string) error {
	return nil
}
