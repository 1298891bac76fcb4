package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/dto"
	httperrors "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type PurchaseLedger interface {
	List(ctx context.Context, filter model.PurchaseFilter) ([]model.Purchase, error)
	Get(ctx context.Context, purchaseID int64) (paymentsvc.PurchaseDetails, error)
	Stats(ctx context.Context) (model.PurchaseStats, error)
	Complete(ctx context.Context, purchaseID int64) (model.Purchase, error)
	Refund(ctx context.Context, purchaseID int64, reason string) (model.Purchase, error)
}

type PurchaseHandler struct {
	ledger PurchaseLedger
}

func NewPurchaseHandler(ledger PurchaseLedger) *PurchaseHandler {
	return &PurchaseHandler{ledger: ledger}
}

func (h *PurchaseHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	filter, err := parsePurchaseFilter(r)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	items, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := dto.PurchaseListResponse{
		Items:  make([]dto.PurchaseResponse, 0, len(items)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, p := range items {
		resp.Items = append(resp.Items, dto.NewPurchaseResponse(p))
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *PurchaseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.NewPurchaseStatsResponse(stats))
}

func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := purchaseIDParam(w, r)
	if !ok {
		return
	}

	details, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := dto.PurchaseDetailsResponse{Purchase: dto.NewPurchaseResponse(details.Purchase)}
	if details.Transaction != nil {
		tx := dto.NewTransactionResponse(*details.Transaction)
		resp.Transaction = &tx
	}
	if details.Buyer != nil {
		buyer := dto.NewBuyerResponse(*details.Buyer)
		resp.Buyer = &buyer
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *PurchaseHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := purchaseIDParam(w, r)
	if !ok {
		return
	}

	purchase, err := h.ledger.Complete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.NewPurchaseResponse(purchase))
}

func (h *PurchaseHandler) Refund(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := purchaseIDParam(w, r)
	if !ok {
		return
	}

	var req dto.RefundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}

	purchase, err := h.ledger.Refund(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.NewPurchaseResponse(purchase))
}

func (h *PurchaseHandler) ready(w http.ResponseWriter) bool {
	if h.ledger == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return false
	}
	return true
}

func (h *PurchaseHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paymentsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase request")
	case errors.Is(err, paymentsvc.ErrPurchaseNotFound):
		writeNotFound(w, "NOT_FOUND", "purchase not found")
	case errors.Is(err, paymentsvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "purchase status does not allow this operation")
	case errors.Is(err, paymentsvc.ErrDeliveryFailed):
		httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
			Code:    "DELIVERY_FAILED",
			Message: "content delivery failed; retry later",
		})
	default:
		writeInternal(w, "INTERNAL_ERROR", "failed to process purchase request")
	}
}

func purchaseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase id")
		return 0, false
	}
	return id, true
}

func parsePurchaseFilter(r *http.Request) (model.PurchaseFilter, error) {
	q := r.URL.Query()
	filter := model.PurchaseFilter{Limit: defaultListLimit}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := enums.ParsePurchaseStatus(raw)
		if !ok {
			return model.PurchaseFilter{}, errors.New("unknown status")
		}
		filter.Status = status
	}

	var err error
	if filter.ModelID, err = int64Query(q.Get("modelId")); err != nil {
		return model.PurchaseFilter{}, errors.New("invalid modelId")
	}
	if filter.BuyerID, err = int64Query(q.Get("buyerId")); err != nil {
		return model.PurchaseFilter{}, errors.New("invalid buyerId")
	}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return model.PurchaseFilter{}, errors.New("invalid limit")
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return model.PurchaseFilter{}, errors.New("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func int64Query(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid id")
	}
	return v, nil
}
