package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

// PurchaseEvent is the message published on every purchase status change.
type PurchaseEvent struct {
	Type       string    `json:"type"`
	PurchaseID int64     `json:"purchase_id"`
	BuyerID    int64     `json:"buyer_id"`
	ProductID  int64     `json:"product_id"`
	Status     string    `json:"status"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes purchase lifecycle events. With no brokers configured it only logs.
type Publisher struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
	now    func() time.Time
}

func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{
		topic: strings.TrimSpace(topic),
		log:   log,
		now:   time.Now,
	}
	if len(brokers) == 0 || p.topic == "" {
		return p
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        p.topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic", p.topic))
	return p
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// PublishPurchase keys messages by purchase id so events of one purchase stay ordered.
func (p *Publisher) PublishPurchase(ctx context.Context, eventType string, purchase model.Purchase) error {
	if !p.Enabled() {
		return nil
	}

	event := PurchaseEvent{
		Type:       eventType,
		PurchaseID: purchase.ID,
		BuyerID:    purchase.BuyerID,
		ProductID:  purchase.ProductID,
		Status:     string(purchase.Status),
		Amount:     purchase.Amount.StringFixed(2),
		Currency:   purchase.Currency,
		OccurredAt: p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(strconv.FormatInt(purchase.ID, 10)),
		Value: value,
		Time:  event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("write purchase event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}
