package enums

import "strings"

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusPaid      PurchaseStatus = "paid"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusExpired   PurchaseStatus = "expired"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

var purchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusPaid,
	PurchaseStatusCompleted,
	PurchaseStatusFailed,
	PurchaseStatusExpired,
	PurchaseStatusRefunded,
}

func PurchaseStatuses() []PurchaseStatus {
	out := make([]PurchaseStatus, len(purchaseStatuses))
	copy(out, purchaseStatuses)
	return out
}

func ParsePurchaseStatus(raw string) (PurchaseStatus, bool) {
	status := PurchaseStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range purchaseStatuses {
		if status == known {
			return status, true
		}
	}
	return "", false
}
