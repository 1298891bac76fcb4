package enums

import "strings"

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusPaid       TransactionStatus = "paid"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusExpired    TransactionStatus = "expired"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

func ParseTransactionStatus(raw string) (TransactionStatus, bool) {
	status := TransactionStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case TransactionStatusPending,
		TransactionStatusProcessing,
		TransactionStatusPaid,
		TransactionStatusFailed,
		TransactionStatusExpired,
		TransactionStatusRefunded:
		return status, true
	default:
		return "", false
	}
}

// Terminal statuses only change through refund bookkeeping.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusPaid, TransactionStatusFailed, TransactionStatusExpired, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}
