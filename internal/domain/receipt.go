package domain

import "time"

// ReceiptKind distinguishes ordinary payments from credit notes (refunds,
// reversals), which legitimately carry negative amounts.
type ReceiptKind string

const (
	ReceiptPayment ReceiptKind = "PAYMENT"
	ReceiptCredit  ReceiptKind = "CREDIT"
)

// Receipt is one historical payment to reconcile. Receipts are immutable
// once ingested; the engine only annotates them through ReconciliationResults.
type Receipt struct {
	ID        string      `json:"id"`
	StudentID string      `json:"student_id"`
	TermID    string      `json:"term_id"`
	Amount    Money       `json:"amount_cents"`
	Currency  string      `json:"currency"`
	Kind      ReceiptKind `json:"kind"`
	PaidAt    time.Time   `json:"paid_at"`

	// Free-text ledger notes. May contain pricing hints ("reading class",
	// "senior project") that narrow which rule category to try first;
	// never the sole basis for a match.
	Notes string `json:"notes,omitempty"`
}
