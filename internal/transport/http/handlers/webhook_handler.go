package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/dto"
	httperrors "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/errors"
)

const (
	DefaultSignatureHeader = "X-Pix-Signature"
	maxWebhookBody         = 1 << 20
)

type PaymentEventHandler interface {
	HandleEvent(ctx context.Context, event webhooks.Event) (paymentsvc.EventResult, error)
}

type WebhookHandler struct {
	verifier *webhooks.Verifier
	events   PaymentEventHandler
	header   string
	logger   *zap.Logger
}

func NewWebhookHandler(verifier *webhooks.Verifier, events PaymentEventHandler, header string, log *zap.Logger) *WebhookHandler {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultSignatureHeader
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		verifier: verifier,
		events:   events,
		header:   header,
		logger:   log,
	}
}

func (h *WebhookHandler) Pix(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(h.header)); err != nil {
		h.logger.Warn("webhook signature rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("body_len", len(body)),
			zap.Error(err),
		)
		writeUnauthorized(w, "UNAUTHORIZED", "invalid signature")
		return
	}

	event, err := webhooks.Parse(body)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "malformed webhook event")
		return
	}

	result, err := h.events.HandleEvent(r.Context(), event)
	if err != nil {
		if errors.Is(err, paymentsvc.ErrInvalidTransition) {
			httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{OK: true, Ignored: true})
			return
		}
		h.logger.Error("webhook event failed",
			zap.String("type", event.EventType()),
			zap.Error(err),
		)
		writeInternal(w, "INTERNAL_ERROR", "failed to apply webhook event")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{
		OK:      true,
		Applied: result.Applied,
		Ignored: result.Ignored,
	})
}
