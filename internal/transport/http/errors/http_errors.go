package errors

import (
	"encoding/json"
	"net/http"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-Id"

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Write encodes payload as JSON. An APIError without a request id takes the one already set
// on the response headers, so operators can match a dashboard error to the server log line.
func Write(w http.ResponseWriter, status int, payload any) {
	if apiErr, ok := payload.(APIError); ok && apiErr.RequestID == "" {
		apiErr.RequestID = w.Header().Get(RequestIDHeader)
		payload = apiErr
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
