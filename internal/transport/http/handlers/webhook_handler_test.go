package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
)

type eventHandlerStub struct {
	events []webhooks.Event
	result paymentsvc.EventResult
	err    error
}

func (s *eventHandlerStub) HandleEvent(_ context.Context, event webhooks.Event) (paymentsvc.EventResult, error) {
	s.events = append(s.events, event)
	if s.err != nil {
		return paymentsvc.EventResult{}, s.err
	}
	out := s.result
	out.Type = event.EventType()
	return out, nil
}

func postWebhook(t *testing.T, h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pix", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(DefaultSignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	h.Pix(rr, req)
	return rr
}

func TestWebhookRejectsBadSignatureWithoutDispatch(t *testing.T) {
	verifier := webhooks.NewVerifier("whsec_test")
	events := &eventHandlerStub{}
	h := NewWebhookHandler(verifier, events, "", nil)

	body := []byte(`{"type":"payment.confirmed","data":{"externalId":"tx-1"}}`)
	for _, signature := range []string{"", "deadbeef", webhooks.NewVerifier("other").Sign(body)} {
		rr := postWebhook(t, h, body, signature)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("signature %q: got status %d want %d", signature, rr.Code, http.StatusUnauthorized)
		}
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no dispatched events, got %d", len(events.events))
	}
}

func TestWebhookFailsClosedWithoutSecret(t *testing.T) {
	events := &eventHandlerStub{}
	h := NewWebhookHandler(webhooks.NewVerifier(""), events, "", nil)

	body := []byte(`{"type":"payment.confirmed","data":{"externalId":"tx-1"}}`)
	rr := postWebhook(t, h, body, webhooks.NewVerifier("").Sign(body))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d want %d", rr.Code, http.StatusUnauthorized)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no dispatched events, got %d", len(events.events))
	}
}

func TestWebhookDispatchesConfirmedEvent(t *testing.T) {
	verifier := webhooks.NewVerifier("whsec_test")
	events := &eventHandlerStub{result: paymentsvc.EventResult{
		Applied:  true,
		Purchase: model.Purchase{ID: 4, Status: enums.PurchaseStatusCompleted},
	}}
	h := NewWebhookHandler(verifier, events, "", nil)

	body := []byte(`{"type":"payment.confirmed","data":{"id":"ord_1","externalId":"tx-1"}}`)
	rr := postWebhook(t, h, body, "sha256="+verifier.Sign(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	if len(events.events) != 1 {
		t.Fatalf("expected one dispatched event, got %d", len(events.events))
	}
	confirmed, ok := events.events[0].(webhooks.PaymentConfirmed)
	if !ok {
		t.Fatalf("unexpected event type %T", events.events[0])
	}
	if confirmed.Ref.TransactionID != "tx-1" || confirmed.Ref.ProviderID != "ord_1" {
		t.Fatalf("unexpected ref: %+v", confirmed.Ref)
	}

	var ack struct {
		OK      bool `json:"ok"`
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !ack.OK || !ack.Applied {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestWebhookAcknowledgesDuplicatesAndUnknownTypes(t *testing.T) {
	verifier := webhooks.NewVerifier("whsec_test")
	events := &eventHandlerStub{}
	h := NewWebhookHandler(verifier, events, "X-Custom-Signature", nil)

	for _, body := range [][]byte{
		[]byte(`{"type":"payment.confirmed","data":{"externalId":"tx-1"}}`),
		[]byte(`{"type":"payment.refunded","data":{"externalId":"tx-1"}}`),
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/pix", bytes.NewReader(body))
		req.Header.Set("X-Custom-Signature", verifier.Sign(body))
		rr := httptest.NewRecorder()
		h.Pix(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("body %s: got status %d want %d", body, rr.Code, http.StatusOK)
		}
	}
	if _, ok := events.events[1].(webhooks.Unknown); !ok {
		t.Fatalf("expected unknown event, got %T", events.events[1])
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	verifier := webhooks.NewVerifier("whsec_test")
	events := &eventHandlerStub{}
	h := NewWebhookHandler(verifier, events, "", nil)

	body := []byte(`{"type":"payment.confirmed","data":{}}`)
	rr := postWebhook(t, h, body, verifier.Sign(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d want %d", rr.Code, http.StatusBadRequest)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no dispatched events, got %d", len(events.events))
	}
}

func TestWebhookReportsStorageFailure(t *testing.T) {
	verifier := webhooks.NewVerifier("whsec_test")
	events := &eventHandlerStub{err: errors.New("postgres down")}
	h := NewWebhookHandler(verifier, events, "", nil)

	body := []byte(`{"type":"payment.failed","data":{"externalId":"tx-1","reason":"denied"}}`)
	rr := postWebhook(t, h, body, verifier.Sign(body))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d want %d", rr.Code, http.StatusInternalServerError)
	}
}
