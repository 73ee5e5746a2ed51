package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tuition-reconciliation/internal/domain"
)

// SQLite persists reconciliation results in a single-file database, one
// row per receipt. WAL mode keeps readers unblocked while a run writes.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLite opens (or creates) the database at path and migrates the
// schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("could not open result store: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate result store: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		receipt_id        TEXT PRIMARY KEY,
		student_id        TEXT NOT NULL,
		term_id           TEXT NOT NULL,
		status            TEXT NOT NULL,
		band              INTEGER NOT NULL,
		expected_cents    INTEGER NOT NULL,
		actual_cents      INTEGER NOT NULL,
		variance_cents    INTEGER NOT NULL,
		relative_variance REAL NOT NULL,
		candidate_label   TEXT,
		excluded_json     TEXT,
		rules_json        TEXT,
		tiers_json        TEXT,
		reasons_json      TEXT,
		reject_reason     TEXT,
		fingerprint       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_student ON results(student_id, term_id);
	CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes the result, replacing any prior row for the same receipt.
func (s *SQLite) Upsert(ctx context.Context, result domain.ReconciliationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	excludedJSON, err := json.Marshal(result.ExcludedCourses)
	if err != nil {
		return fmt.Errorf("could not encode result for receipt %s: %w", result.ReceiptID, err)
	}
	rulesJSON, err := json.Marshal(result.RuleVersions)
	if err != nil {
		return fmt.Errorf("could not encode result for receipt %s: %w", result.ReceiptID, err)
	}
	tiersJSON, err := json.Marshal(result.TierChoices)
	if err != nil {
		return fmt.Errorf("could not encode result for receipt %s: %w", result.ReceiptID, err)
	}
	reasonsJSON, err := json.Marshal(result.Reasons)
	if err != nil {
		return fmt.Errorf("could not encode result for receipt %s: %w", result.ReceiptID, err)
	}

	query := `
		INSERT INTO results (receipt_id, student_id, term_id, status, band,
			expected_cents, actual_cents, variance_cents, relative_variance,
			candidate_label, excluded_json, rules_json, tiers_json,
			reasons_json, reject_reason, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(receipt_id) DO UPDATE SET
			student_id        = excluded.student_id,
			term_id           = excluded.term_id,
			status            = excluded.status,
			band              = excluded.band,
			expected_cents    = excluded.expected_cents,
			actual_cents      = excluded.actual_cents,
			variance_cents    = excluded.variance_cents,
			relative_variance = excluded.relative_variance,
			candidate_label   = excluded.candidate_label,
			excluded_json     = excluded.excluded_json,
			rules_json        = excluded.rules_json,
			tiers_json        = excluded.tiers_json,
			reasons_json      = excluded.reasons_json,
			reject_reason     = excluded.reject_reason,
			fingerprint       = excluded.fingerprint
	`

	_, err = s.db.ExecContext(ctx, query,
		result.ReceiptID, result.StudentID, result.TermID, result.Status, result.Band,
		result.Expected, result.Actual, result.Variance, result.RelativeVariance,
		result.CandidateLabel, string(excludedJSON), string(rulesJSON), string(tiersJSON),
		string(reasonsJSON), result.RejectReason, result.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("could not upsert result for receipt %s: %w", result.ReceiptID, err)
	}
	return nil
}

// Get returns the stored result for the receipt, if any.
func (s *SQLite) Get(ctx context.Context, receiptID string) (domain.ReconciliationResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT receipt_id, student_id, term_id, status, band,
			expected_cents, actual_cents, variance_cents, relative_variance,
			candidate_label, excluded_json, rules_json, tiers_json,
			reasons_json, reject_reason, fingerprint
		FROM results WHERE receipt_id = ?
	`

	var res domain.ReconciliationResult
	var excludedJSON, rulesJSON, tiersJSON, reasonsJSON string

	err := s.db.QueryRowContext(ctx, query, receiptID).Scan(
		&res.ReceiptID, &res.StudentID, &res.TermID, &res.Status, &res.Band,
		&res.Expected, &res.Actual, &res.Variance, &res.RelativeVariance,
		&res.CandidateLabel, &excludedJSON, &rulesJSON, &tiersJSON,
		&reasonsJSON, &res.RejectReason, &res.Fingerprint,
	)
	if err == sql.ErrNoRows {
		return domain.ReconciliationResult{}, false, nil
	}
	if err != nil {
		return domain.ReconciliationResult{}, false, fmt.Errorf("could not read result for receipt %s: %w", receiptID, err)
	}

	for _, col := range []struct {
		raw  string
		dest interface{}
	}{
		{excludedJSON, &res.ExcludedCourses},
		{rulesJSON, &res.RuleVersions},
		{tiersJSON, &res.TierChoices},
		{reasonsJSON, &res.Reasons},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return domain.ReconciliationResult{}, false, fmt.Errorf("could not decode result for receipt %s: %w", receiptID, err)
		}
	}
	return res, true, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
