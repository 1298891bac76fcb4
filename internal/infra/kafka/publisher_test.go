package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishPurchaseWithoutBrokersIsNoop(t *testing.T) {
	p := NewPublisher(nil, "purchase-events", nil)
	if p.Enabled() {
		t.Fatalf("publisher without brokers must be disabled")
	}
	if err := p.PublishPurchase(context.Background(), "purchase.paid", model.Purchase{ID: 1}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

func TestPublishPurchaseKeysByPurchaseID(t *testing.T) {
	w := &recordingWriter{}
	p := &Publisher{writer: w, topic: "purchase-events", now: func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}}

	err := p.PublishPurchase(context.Background(), "purchase.completed", model.Purchase{
		ID:       42,
		BuyerID:  555,
		Status:   enums.PurchaseStatusCompleted,
		Amount:   decimal.RequireFromString("29.9"),
		Currency: "BRL",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "42" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}

	var event PurchaseEvent
	if err := json.Unmarshal(w.msgs[0].Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Amount != "29.90" || event.Status != "completed" || event.BuyerID != 555 {
		t.Fatalf("unexpected event: %+v", event)
	}
}
