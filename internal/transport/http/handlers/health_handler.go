package handlers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/errors"
)

// Pinger is satisfied by the postgres pool and the redis client wrappers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

type healthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]Pinger)}
}

// AttachCheck adds a dependency probed by Ready.
func (h *HealthHandler) AttachCheck(name string, p Pinger) {
	if p != nil {
		h.checks[name] = p
	}
}

func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, healthResponse{OK: true})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{OK: true, Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			resp.OK = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	httperrors.Write(w, status, resp)
}
