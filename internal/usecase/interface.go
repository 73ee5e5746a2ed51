package usecase

import (
	"context"

	"tuition-reconciliation/internal/domain"
)

// The engine consumes its collaborators through these interfaces; the
// usecase layer never depends on a concrete gateway or store.
//
//go:generate mockgen -destination=mocks/mock_repository.go -source=interface.go

// ReceiptSource streams the receipts a run should reconcile.
type ReceiptSource interface {
	Receipts(ctx context.Context, params domain.RunParams) ([]domain.Receipt, error)
}

// EnrollmentSource reads a student's course registrations for one term.
type EnrollmentSource interface {
	EnrollmentsFor(ctx context.Context, studentID, termID string) ([]domain.Enrollment, error)
}

// RuleSource lists the published pricing rules; the orchestrator
// materializes them into an immutable catalog once per run.
type RuleSource interface {
	Rules(ctx context.Context) ([]domain.PricingRule, error)
}

// ResultSink persists reconciliation results, keyed by receipt ID.
// Upsert replaces any prior result for the same receipt. Implementations
// must be safe for concurrent use.
type ResultSink interface {
	Upsert(ctx context.Context, result domain.ReconciliationResult) error
	Get(ctx context.Context, receiptID string) (domain.ReconciliationResult, bool, error)
}
