package models

import (
	"strings"
	"time"
)

// ReceiptTicket is handed back to the caller once a receipt has been queued.
type ReceiptTicket struct {
	ReceiptID string    `json:"receipt_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReceiptJob is the queue payload rendered into a PDF by the receipt worker.
type ReceiptJob struct {
	ReceiptID   string
	BranchID    string
	AdmissionNo string
	Records     []IncomeRecord
	IssuedAt    time.Time
}

// ReceiptKey is the storage key of a rendered receipt.
func ReceiptKey(branchID, receiptID string) string {
	return receiptPrefix(branchID) + receiptID + ".pdf"
}

// ReceiptInBranch reports whether key names a receipt stored for branchID.
func ReceiptInBranch(key, branchID string) bool {
	return branchID != "" && strings.HasPrefix(key, receiptPrefix(branchID))
}

func receiptPrefix(branchID string) string {
	return "receipts/" + branchID + "/"
}
