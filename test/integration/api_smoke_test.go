package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/app/apiapp"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
)

// newApp needs a reachable postgres and a real bot token, so it only runs when APP_INTEGRATION is set.
func newApp(t *testing.T) (*apiapp.App, config.Config) {
	t.Helper()
	if os.Getenv("APP_INTEGRATION") == "" {
		t.Skip("APP_INTEGRATION is not set")
	}

	cfg, err := config.Load(os.Getenv("APP_CONFIG"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.HTTP.Addr = ":0"
	if cfg.Payment.WebhookSecret == "" {
		cfg.Payment.WebhookSecret = "integration-secret"
	}

	app, err := apiapp.New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app, cfg
}

func TestHealthz(t *testing.T) {
	app, _ := newApp(t)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, http.StatusOK)
	}

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.OK {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWebhookUnknownTransactionIsAcknowledged(t *testing.T) {
	app, cfg := newApp(t)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	body := []byte(`{"type":"payment.confirmed","data":{"externalId":"00000000-0000-0000-0000-000000000000"}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/pix", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(cfg.Payment.SignatureHeader, webhooks.NewVerifier(cfg.Payment.WebhookSecret).Sign(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, http.StatusOK)
	}
}
