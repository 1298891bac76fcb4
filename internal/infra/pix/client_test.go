package pix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

const testAPIKey = "sk_test_0123456789abcdef"

func newLiveClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		APIKey:       testAPIKey,
		Live:         true,
		Timeout:      2 * time.Second,
		CodeTTL:      30 * time.Minute,
		AutopayDelay: 15 * time.Second,
		Merchant:     Merchant{Name: "Shop", City: "Rio", PixKey: "key"},
	}, nil)
	return c, srv
}

func TestCreatePaymentLivePostsOrder(t *testing.T) {
	var got orderRequest
	c, _ := newLiveClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+testAPIKey {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord_123","status":"pending","pix":{"qrCode":"00020101pix","expirationDate":"2026-05-01T12:30:00Z"}}`))
	})

	payment, err := c.CreatePayment(context.Background(), CreateRequest{
		Amount:      decimal.RequireFromString("29.90"),
		Currency:    "BRL",
		Description: "Pack Verão",
		ExternalID:  "b0f5c6c2-tx",
		Customer:    &Customer{Name: "Ana"},
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	if got.Value != 2990 || got.PaymentMethod != "pix" || got.ExternalID != "b0f5c6c2-tx" {
		t.Fatalf("unexpected order body: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].UnitPrice != 2990 || got.Customer == nil {
		t.Fatalf("unexpected order items/customer: %+v", got)
	}
	if payment.ID != "ord_123" || payment.Simulated {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if len(payment.QRImage) == 0 {
		t.Fatalf("qr image must be rendered when the provider omits it")
	}
	if !payment.ExpiresAt.Equal(time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry: %s", payment.ExpiresAt)
	}
}

func TestCreatePaymentFallsBackToSimulatorOnProviderError(t *testing.T) {
	c, _ := newLiveClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"upstream","message":"bank offline"}`))
	})

	payment, err := c.CreatePayment(context.Background(), CreateRequest{
		Amount:     decimal.RequireFromString("10"),
		ExternalID: "tx-fallback",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if !payment.Simulated || !IsSimulatedID(payment.ID) {
		t.Fatalf("expected simulated fallback, got %+v", payment)
	}
	if c.Simulated() {
		t.Fatalf("client must stay in live mode after a single fallback")
	}

	status, err := c.CheckStatus(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("status of fallback payment: %v", err)
	}
	if status.Status != enums.TransactionStatusProcessing {
		t.Fatalf("unexpected fallback status: %s", status.Status)
	}
}

func TestCheckStatusMapsProviderStatus(t *testing.T) {
	c, _ := newLiveClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/ord_9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord_9","status":"APPROVED","paidAt":"2026-05-01T12:05:00Z"}`))
	})

	status, err := c.CheckStatus(context.Background(), "ord_9")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.Status != enums.TransactionStatusPaid || status.PaidAt == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCheckStatusSurfacesProviderFailure(t *testing.T) {
	c, _ := newLiveClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.CheckStatus(context.Background(), "ord_9")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusServiceUnavailable || !perr.Temporary() {
		t.Fatalf("unexpected provider error: %+v", perr)
	}
}

func TestSimulatedClientRejectsProviderIDs(t *testing.T) {
	c := New(Config{APIKey: ""}, nil)
	if !c.Simulated() {
		t.Fatalf("client without key must be simulated")
	}
	if _, err := c.CheckStatus(context.Background(), "ord_1"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if err := c.ConfirmManually(context.Background(), "ord_1"); !errors.Is(err, ErrSimulationOnly) {
		t.Fatalf("expected ErrSimulationOnly, got %v", err)
	}
}

func TestCreatePaymentValidatesInput(t *testing.T) {
	c := New(Config{}, nil)
	_, err := c.CreatePayment(context.Background(), CreateRequest{Amount: decimal.Zero, ExternalID: "x"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero amount, got %v", err)
	}
	_, err = c.CreatePayment(context.Background(), CreateRequest{Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing external id, got %v", err)
	}
}
