package apiapp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
	authsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/auth"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
)

type routeLedgerStub struct{}

func (routeLedgerStub) List(context.Context, model.PurchaseFilter) ([]model.Purchase, error) {
	return nil, nil
}

func (routeLedgerStub) Get(context.Context, int64) (paymentsvc.PurchaseDetails, error) {
	return paymentsvc.PurchaseDetails{}, paymentsvc.ErrPurchaseNotFound
}

func (routeLedgerStub) Stats(context.Context) (model.PurchaseStats, error) {
	return model.PurchaseStats{}, nil
}

func (routeLedgerStub) Complete(context.Context, int64) (model.Purchase, error) {
	return model.Purchase{}, nil
}

func (routeLedgerStub) Refund(context.Context, int64, string) (model.Purchase, error) {
	return model.Purchase{}, nil
}

type routeEventsStub struct {
	calls int
}

func (s *routeEventsStub) HandleEvent(_ context.Context, event webhooks.Event) (paymentsvc.EventResult, error) {
	s.calls++
	return paymentsvc.EventResult{Type: event.EventType(), Applied: true}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *authsvc.Service, *routeEventsStub) {
	t.Helper()
	authService := authsvc.NewService(authsvc.NewJWTManager("dashboard-secret", time.Hour), nil)
	events := &routeEventsStub{}
	registry := prometheus.NewRegistry()
	metrics.New(registry).WebhookEvent("payment.confirmed", "applied")

	r := chi.NewRouter()
	RegisterRoutes(r, Dependencies{
		AuthService: authService,
		Ledger:      routeLedgerStub{},
		Events:      events,
		Verifier:    webhooks.NewVerifier("whsec"),
		Gatherer:    registry,
		Logger:      zap.NewNop(),
	})
	return r, authService, events
}

func TestRoutesProtectDashboardRPC(t *testing.T) {
	router, authService, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rpc/purchases", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: got %d want %d", rr.Code, http.StatusUnauthorized)
	}

	operator, err := authService.Issue(context.Background(), "op-1", authsvc.RoleOperator)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/rpc/purchases", nil)
	req.Header.Set("Authorization", "Bearer "+operator.AccessToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("operator list: got %d want %d", rr.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodPost, "/rpc/purchases/1/refund", nil)
	req.Header.Set("Authorization", "Bearer "+operator.AccessToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("operator refund: got %d want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRoutesServeWebhookWithoutBearer(t *testing.T) {
	router, _, events := newTestRouter(t)

	body := []byte(`{"type":"payment.confirmed","data":{"externalId":"tx-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pix", bytes.NewReader(body))
	req.Header.Set("X-Pix-Signature", webhooks.NewVerifier("whsec").Sign(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if events.calls != 1 {
		t.Fatalf("expected one event, got %d", events.calls)
	}
}

func TestRoutesExposeHealthAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: got %d want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: got %d want %d", rr.Code, http.StatusOK)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("webhook_events_total")) {
		t.Fatalf("metrics output misses webhook counter")
	}
}
