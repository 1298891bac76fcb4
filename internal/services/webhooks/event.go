package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	TypePaymentConfirmed = "payment.confirmed"
	TypePaymentFailed    = "payment.failed"
	TypePaymentExpired   = "payment.expired"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is one of PaymentConfirmed, PaymentFailed, PaymentExpired or Unknown.
type Event interface {
	EventType() string
	isEvent()
}

// Ref identifies the payment an event is about. TransactionID is our id echoed back as the
// provider externalId; ProviderID is the provider's own order id.
type Ref struct {
	TransactionID string
	ProviderID    string
}

type PaymentConfirmed struct {
	Ref    Ref
	PaidAt time.Time
}

type PaymentFailed struct {
	Ref    Ref
	Reason string
}

type PaymentExpired struct {
	Ref Ref
}

// Unknown is acknowledged without touching any state.
type Unknown struct {
	Type string
}

func (PaymentConfirmed) EventType() string { return TypePaymentConfirmed }
func (PaymentFailed) EventType() string    { return TypePaymentFailed }
func (PaymentExpired) EventType() string   { return TypePaymentExpired }
func (u Unknown) EventType() string        { return u.Type }

func (PaymentConfirmed) isEvent() {}
func (PaymentFailed) isEvent()    {}
func (PaymentExpired) isEvent()   {}
func (Unknown) isEvent()          {}

type envelope struct {
	Type string `json:"type"`
	Data struct {
		ID         string     `json:"id"`
		ExternalID string     `json:"externalId"`
		PaidAt     *time.Time `json:"paidAt"`
		Reason     string     `json:"reason"`
	} `json:"data"`
}

// Parse decodes a verified webhook body.
func Parse(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	eventType := strings.ToLower(strings.TrimSpace(env.Type))
	ref := Ref{
		TransactionID: strings.TrimSpace(env.Data.ExternalID),
		ProviderID:    strings.TrimSpace(env.Data.ID),
	}

	switch eventType {
	case TypePaymentConfirmed, TypePaymentFailed, TypePaymentExpired:
		if ref.TransactionID == "" && ref.ProviderID == "" {
			return nil, fmt.Errorf("%w: payment reference is missing", ErrMalformedEvent)
		}
	}

	switch eventType {
	case TypePaymentConfirmed:
		ev := PaymentConfirmed{Ref: ref}
		if env.Data.PaidAt != nil {
			ev.PaidAt = env.Data.PaidAt.UTC()
		}
		return ev, nil
	case TypePaymentFailed:
		return PaymentFailed{Ref: ref, Reason: strings.TrimSpace(env.Data.Reason)}, nil
	case TypePaymentExpired:
		return PaymentExpired{Ref: ref}, nil
	default:
		return Unknown{Type: eventType}, nil
	}
}
