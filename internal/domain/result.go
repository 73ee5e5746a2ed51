package domain

// Status is the per-receipt reconciliation state. PENDING and MATCHING are
// transient orchestrator states; only the three terminal values are ever
// persisted on a ReconciliationResult.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusMatching   Status = "MATCHING"
	StatusReconciled Status = "RECONCILED"
	StatusFlagged    Status = "FLAGGED"
	StatusRejected   Status = "REJECTED"
)

// ConfidenceBand is the discrete match-quality label. Zero means no band
// (flagged or rejected).
type ConfidenceBand int

const (
	BandNone   ConfidenceBand = 0
	BandLow    ConfidenceBand = 75
	BandMedium ConfidenceBand = 85
	BandHigh   ConfidenceBand = 95
	BandExact  ConfidenceBand = 100
)

// RejectReason enumerates why a receipt never reached matching.
type RejectReason string

const (
	RejectMissingStudent    RejectReason = "missing_student"
	RejectMissingTerm       RejectReason = "missing_term"
	RejectNegativeAmount    RejectReason = "negative_amount"
	RejectCurrencyMismatch  RejectReason = "currency_mismatch"
	RejectInternalInvariant RejectReason = "internal_invariant"
)

// TierChoice records, for the audit trail, which cohort-size tier priced a
// tiered-category course and whether it was inferred from the payment
// rather than taken from a recorded cohort size.
type TierChoice struct {
	CourseID string         `json:"course_id"`
	Category CourseCategory `json:"category"`
	MinSize  int            `json:"min_size"`
	MaxSize  int            `json:"max_size"`
	Price    Money          `json:"price_cents"`
	Inferred bool           `json:"inferred"`
}

// ReconciliationResult links a Receipt to its matched candidate (or none).
// One Result exists per Receipt; recomputation replaces the prior Result.
// Results carry no wall-clock fields so that re-running over unchanged
// input reproduces them byte for byte.
type ReconciliationResult struct {
	ReceiptID string `json:"receipt_id"`
	StudentID string `json:"student_id"`
	TermID    string `json:"term_id"`

	Status Status         `json:"status"`
	Band   ConfidenceBand `json:"band,omitempty"`

	Expected Money `json:"expected_cents"`
	Actual   Money `json:"actual_cents"`
	// Variance is signed: expected minus actual.
	Variance Money `json:"variance_cents"`
	// RelativeVariance is display-only; banding decisions are made in
	// exact integer arithmetic, never on this float.
	RelativeVariance float64 `json:"relative_variance"`

	CandidateLabel  string       `json:"candidate_label,omitempty"`
	ExcludedCourses []string     `json:"excluded_courses,omitempty"`
	RuleVersions    []string     `json:"rule_versions,omitempty"`
	TierChoices     []TierChoice `json:"tier_choices,omitempty"`
	Reasons         []string     `json:"reasons,omitempty"`
	RejectReason    RejectReason `json:"reject_reason,omitempty"`

	// Fingerprint digests the receipt, its enrollments, and the rule set
	// in effect; the orchestrator skips rewriting a Result whose inputs
	// have not changed unless a force recompute is requested.
	Fingerprint string `json:"fingerprint"`
}
