package pix

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/rules"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/httpclient"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/pkg/validate"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Live         bool
	Timeout      time.Duration
	CodeTTL      time.Duration
	AutopayDelay time.Duration
	Merchant     Merchant
}

// Client issues and polls PIX charges. Without a live credential every call goes to the
// in-process simulator; with one, a failed creation degrades to the simulator for that
// request only, and status checks of provider ids always ask the provider.
type Client struct {
	http    *resty.Client
	live    bool
	codeTTL time.Duration
	sim     *Simulator
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		live:    cfg.Live && strings.TrimSpace(cfg.APIKey) != "",
		codeTTL: cfg.CodeTTL,
		log:     log,
		now:     time.Now,
	}
	if c.codeTTL <= 0 {
		c.codeTTL = 30 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}

	c.sim = NewSimulator(cfg.Merchant, c.codeTTL, cfg.AutopayDelay, func() time.Time { return c.now() })
	if c.live {
		c.http = httpclient.New(cfg.BaseURL, cfg.Timeout).
			SetAuthToken(strings.TrimSpace(cfg.APIKey)).
			SetHeader("Content-Type", "application/json")
	}
	return c
}

// Simulated reports whether no provider credential is configured.
func (c *Client) Simulated() bool {
	return !c.live
}

type orderItem struct {
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	Value         int64       `json:"value"`
	PaymentMethod string      `json:"paymentMethod"`
	ExternalID    string      `json:"externalId"`
	ExpiresIn     int64       `json:"expiresIn,omitempty"`
	Items         []orderItem `json:"items"`
	Customer      *Customer   `json:"customer,omitempty"`
}

type orderResponse struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	PaidAt *time.Time `json:"paidAt,omitempty"`
	Pix    struct {
		QRCode       string     `json:"qrCode"`
		QRCodeBase64 string     `json:"qrCodeBase64"`
		ExpiresAt    *time.Time `json:"expirationDate"`
	} `json:"pix"`
}

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (Payment, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if err := validate.Struct(req); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !c.live {
		return c.sim.Create(req)
	}

	payment, err := c.createLive(ctx, req)
	if err == nil {
		return payment, nil
	}
	if ctx.Err() != nil {
		return Payment{}, ctx.Err()
	}

	c.log.Warn("pix provider create failed, falling back to simulator",
		zap.String("external_id", req.ExternalID),
		zap.Error(err),
	)
	return c.sim.Create(req)
}

func (c *Client) createLive(ctx context.Context, req CreateRequest) (Payment, error) {
	cents := model.ToCents(req.Amount)
	title := strings.TrimSpace(req.Description)
	if title == "" {
		title = "Pedido " + req.ExternalID
	}

	var (
		out     orderResponse
		errBody errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(orderRequest{
			Value:         cents,
			PaymentMethod: "pix",
			ExternalID:    req.ExternalID,
			ExpiresIn:     int64(c.codeTTL / time.Second),
			Items:         []orderItem{{Title: title, UnitPrice: cents, Quantity: 1}},
			Customer:      req.Customer,
		}).
		SetResult(&out).
		SetError(&errBody).
		Post("/orders")
	if err != nil {
		return Payment{}, fmt.Errorf("post pix order: %w", err)
	}
	if resp.IsError() {
		return Payment{}, providerError(resp, errBody)
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.Pix.QRCode) == "" {
		return Payment{}, &ProviderError{StatusCode: resp.StatusCode(), Code: "incomplete_response", Message: "order id or pix code missing"}
	}

	expiresAt := c.now().UTC().Add(c.codeTTL)
	if out.Pix.ExpiresAt != nil && !out.Pix.ExpiresAt.IsZero() {
		expiresAt = out.Pix.ExpiresAt.UTC()
	}

	image, err := decodeQRImage(out.Pix.QRCodeBase64)
	if err != nil || len(image) == 0 {
		image, err = RenderQR(out.Pix.QRCode)
		if err != nil {
			return Payment{}, err
		}
	}

	return Payment{
		ID:          out.ID,
		PaymentCode: out.Pix.QRCode,
		QRImage:     image,
		ExpiresAt:   expiresAt,
	}, nil
}

// CheckStatus never falls back to the simulator for provider-issued ids.
func (c *Client) CheckStatus(ctx context.Context, paymentID string) (Status, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Status{}, ErrPaymentNotFound
	}
	if IsSimulatedID(paymentID) {
		return c.sim.Status(paymentID)
	}
	if !c.live {
		return Status{}, ErrPaymentNotFound
	}

	var (
		out     orderResponse
		errBody errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errBody).
		Get("/orders/" + url.PathEscape(paymentID))
	if err != nil {
		return Status{}, fmt.Errorf("get pix order: %w", err)
	}
	if resp.StatusCode() == 404 {
		return Status{}, ErrPaymentNotFound
	}
	if resp.IsError() {
		return Status{}, providerError(resp, errBody)
	}

	status := Status{Status: rules.MapProviderStatus(out.Status), Raw: out.Status}
	if out.PaidAt != nil && !out.PaidAt.IsZero() {
		paidAt := out.PaidAt.UTC()
		status.PaidAt = &paidAt
	}
	return status, nil
}

// ConfirmManually marks a simulated payment as paid.
func (c *Client) ConfirmManually(_ context.Context, paymentID string) error {
	if !IsSimulatedID(paymentID) {
		return ErrSimulationOnly
	}
	return c.sim.Confirm(strings.TrimSpace(paymentID))
}

func providerError(resp *resty.Response, body errorResponse) error {
	perr := &ProviderError{
		StatusCode: resp.StatusCode(),
		Code:       body.Code,
		Message:    body.Message,
		Details:    body.Details,
	}
	if perr.Message == "" {
		perr.Message = strings.TrimSpace(resp.Status())
	}
	return perr
}

func decodeQRImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty qr image")
	}
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i > 0 {
		raw = raw[i+1:]
	}
	return base64.StdEncoding.DecodeString(raw)
}
