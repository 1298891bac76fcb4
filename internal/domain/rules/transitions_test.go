package rules

import (
	"reflect"
	"testing"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

func TestPurchaseTransitions(t *testing.T) {
	cases := []struct {
		from enums.PurchaseStatus
		to   enums.PurchaseStatus
		want bool
	}{
		{enums.PurchaseStatusPending, enums.PurchaseStatusPaid, true},
		{enums.PurchaseStatusPending, enums.PurchaseStatusFailed, true},
		{enums.PurchaseStatusPending, enums.PurchaseStatusCompleted, false},
		{enums.PurchaseStatusPaid, enums.PurchaseStatusCompleted, true},
		{enums.PurchaseStatusPaid, enums.PurchaseStatusFailed, true},
		{enums.PurchaseStatusPaid, enums.PurchaseStatusRefunded, true},
		{enums.PurchaseStatusPaid, enums.PurchaseStatusExpired, false},
		{enums.PurchaseStatusCompleted, enums.PurchaseStatusExpired, true},
		{enums.PurchaseStatusCompleted, enums.PurchaseStatusRefunded, true},
		{enums.PurchaseStatusCompleted, enums.PurchaseStatusPaid, false},
		{enums.PurchaseStatusExpired, enums.PurchaseStatusCompleted, false},
		{enums.PurchaseStatusRefunded, enums.PurchaseStatusPaid, false},
		{enums.PurchaseStatusFailed, enums.PurchaseStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPurchase(tc.from, tc.to); got != tc.want {
			t.Fatalf("purchase %s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransactionTerminalStatesOnlyRefund(t *testing.T) {
	for _, from := range []enums.TransactionStatus{
		enums.TransactionStatusFailed,
		enums.TransactionStatusExpired,
		enums.TransactionStatusRefunded,
	} {
		for _, to := range []enums.TransactionStatus{
			enums.TransactionStatusPending,
			enums.TransactionStatusProcessing,
			enums.TransactionStatusPaid,
			enums.TransactionStatusFailed,
			enums.TransactionStatusExpired,
			enums.TransactionStatusRefunded,
		} {
			if CanTransitionTransaction(from, to) {
				t.Fatalf("terminal transaction %s must not move to %s", from, to)
			}
		}
	}
	if !CanTransitionTransaction(enums.TransactionStatusPaid, enums.TransactionStatusRefunded) {
		t.Fatalf("paid transaction must be refundable")
	}
	if CanTransitionTransaction(enums.TransactionStatusPending, enums.TransactionStatusPaid) {
		t.Fatalf("pending transaction must pass through processing before paid")
	}
	if CanTransitionTransaction(enums.TransactionStatusPaid, enums.TransactionStatusFailed) {
		t.Fatalf("paid transaction must not fail")
	}
}

func TestPredecessors(t *testing.T) {
	if got, want := PurchasePredecessors(enums.PurchaseStatusRefunded), []string{"paid", "completed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("refunded predecessors: got %v want %v", got, want)
	}
	if got, want := PurchasePredecessors(enums.PurchaseStatusExpired), []string{"completed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expired predecessors: got %v want %v", got, want)
	}
	if got, want := TransactionPredecessors(enums.TransactionStatusPaid), []string{"processing"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("paid predecessors: got %v want %v", got, want)
	}
	if got := PurchasePredecessors(enums.PurchaseStatusPending); len(got) != 0 {
		t.Fatalf("pending must have no predecessors, got %v", got)
	}
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]enums.TransactionStatus{
		"approved":    enums.TransactionStatusPaid,
		" PAID ":      enums.TransactionStatusPaid,
		"in_analysis": enums.TransactionStatusProcessing,
		"cancelled":   enums.TransactionStatusFailed,
		"refused":     enums.TransactionStatusFailed,
		"expired":     enums.TransactionStatusExpired,
		"waiting":     enums.TransactionStatusPending,
		"mystery":     enums.TransactionStatusPending,
		"":            enums.TransactionStatusPending,
	}
	for raw, want := range cases {
		if got := MapProviderStatus(raw); got != want {
			t.Fatalf("MapProviderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}
