package pix

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

type simPayment struct {
	id         string
	externalID string
	amount     decimal.Decimal
	code       string
	createdAt  time.Time
	expiresAt  time.Time
	paidAt     *time.Time
}

// Simulator serves payments in memory for environments without provider credentials.
// Nothing is persisted: a restart forgets every simulated payment.
type Simulator struct {
	mu       sync.Mutex
	payments map[string]*simPayment
	merchant Merchant
	ttl      time.Duration
	autopay  time.Duration
	now      func() time.Time
}

func NewSimulator(merchant Merchant, ttl, autopay time.Duration, now func() time.Time) *Simulator {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		payments: make(map[string]*simPayment),
		merchant: merchant,
		ttl:      ttl,
		autopay:  autopay,
		now:      now,
	}
}

func (s *Simulator) Create(req CreateRequest) (Payment, error) {
	now := s.now().UTC()
	id := simulatedIDPrefix + uuid.NewString()
	code := BuildBRCode(s.merchant, req.Amount, req.ExternalID)
	png, err := RenderQR(code)
	if err != nil {
		return Payment{}, err
	}

	p := &simPayment{
		id:         id,
		externalID: req.ExternalID,
		amount:     req.Amount,
		code:       code,
		createdAt:  now,
		expiresAt:  now.Add(s.ttl),
	}

	s.mu.Lock()
	s.payments[id] = p
	s.mu.Unlock()

	return Payment{
		ID:          id,
		PaymentCode: code,
		QRImage:     png,
		ExpiresAt:   p.expiresAt,
		Simulated:   true,
	}, nil
}

// Status settles the payment lazily: it is paid once the autopay delay has elapsed before
// expiry, expired once the code lifetime is over, processing otherwise.
func (s *Simulator) Status(id string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return Status{}, ErrPaymentNotFound
	}

	now := s.now().UTC()
	if p.paidAt == nil && s.autopay > 0 {
		payAt := p.createdAt.Add(s.autopay)
		if payAt.Before(p.expiresAt) && !now.Before(payAt) {
			p.paidAt = &payAt
		}
	}

	switch {
	case p.paidAt != nil:
		paidAt := *p.paidAt
		return Status{Status: enums.TransactionStatusPaid, PaidAt: &paidAt, Raw: "paid"}, nil
	case !now.Before(p.expiresAt):
		return Status{Status: enums.TransactionStatusExpired, Raw: "expired"}, nil
	default:
		return Status{Status: enums.TransactionStatusProcessing, Raw: "processing"}, nil
	}
}

func (s *Simulator) Confirm(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.paidAt == nil {
		now := s.now().UTC()
		p.paidAt = &now
	}
	return nil
}
