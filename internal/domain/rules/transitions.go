package rules

import (
	"strings"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

var purchaseTransitions = map[enums.PurchaseStatus][]enums.PurchaseStatus{
	enums.PurchaseStatusPending:   {enums.PurchaseStatusPaid, enums.PurchaseStatusFailed},
	enums.PurchaseStatusPaid:      {enums.PurchaseStatusCompleted, enums.PurchaseStatusFailed, enums.PurchaseStatusRefunded},
	enums.PurchaseStatusCompleted: {enums.PurchaseStatusExpired, enums.PurchaseStatusRefunded},
}

var transactionTransitions = map[enums.TransactionStatus][]enums.TransactionStatus{
	enums.TransactionStatusPending: {
		enums.TransactionStatusProcessing,
		enums.TransactionStatusFailed,
		enums.TransactionStatusExpired,
	},
	enums.TransactionStatusProcessing: {
		enums.TransactionStatusPaid,
		enums.TransactionStatusFailed,
		enums.TransactionStatusExpired,
	},
	enums.TransactionStatusPaid: {enums.TransactionStatusRefunded},
}

func CanTransitionPurchase(from, to enums.PurchaseStatus) bool {
	for _, next := range purchaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionTransaction(from, to enums.TransactionStatus) bool {
	for _, next := range transactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PurchasePredecessors lists the stored statuses from which to is reachable in one step.
// Repositories use it as the guard of conditional updates.
func PurchasePredecessors(to enums.PurchaseStatus) []string {
	out := make([]string, 0, 2)
	for _, from := range enums.PurchaseStatuses() {
		if CanTransitionPurchase(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

func TransactionPredecessors(to enums.TransactionStatus) []string {
	out := make([]string, 0, 2)
	for _, from := range []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusProcessing,
		enums.TransactionStatusPaid,
	} {
		if CanTransitionTransaction(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

// MapProviderStatus normalizes provider-specific status strings. Unknown values map to pending
// so that the next poll retries instead of settling on a guess.
func MapProviderStatus(raw string) enums.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "processing", "in_analysis", "authorized":
		return enums.TransactionStatusProcessing
	case "paid", "approved", "completed", "confirmed":
		return enums.TransactionStatusPaid
	case "failed", "refused", "canceled", "cancelled", "rejected":
		return enums.TransactionStatusFailed
	case "expired":
		return enums.TransactionStatusExpired
	default:
		return enums.TransactionStatusPending
	}
}
