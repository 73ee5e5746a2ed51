package domain

import "time"

// RunParams select which receipts a reconciliation run covers. Zero values
// leave the corresponding bound open.
type RunParams struct {
	TermID      string    `json:"term_id,omitempty"`
	StudentFrom string    `json:"student_from,omitempty"` // inclusive
	StudentTo   string    `json:"student_to,omitempty"`   // inclusive
	From        time.Time `json:"from,omitempty"`         // paid-at lower bound
	To          time.Time `json:"to,omitempty"`           // paid-at upper bound
}

// BandCounts breaks reconciled receipts down by confidence band.
type BandCounts struct {
	Exact  int `json:"exact_100"`
	High   int `json:"high_95"`
	Medium int `json:"medium_85"`
	Low    int `json:"low_75"`
}

// Count folds one band into the tally.
func (b *BandCounts) Count(band ConfidenceBand) {
	switch band {
	case BandExact:
		b.Exact++
	case BandHigh:
		b.High++
	case BandMedium:
		b.Medium++
	case BandLow:
		b.Low++
	}
}

// RunReport is the aggregate summary of one reconciliation run. A run
// always completes with a report; single bad receipts surface in the
// rejection counts, never as run failures.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Params    RunParams `json:"params"`
	DryRun    bool      `json:"dry_run"`
	Force     bool      `json:"force"`
	Workers   int       `json:"workers"`
	BatchSize int       `json:"batch_size"`

	Processed  int        `json:"processed"`
	Reconciled int        `json:"reconciled"`
	Bands      BandCounts `json:"reconciled_by_band"`
	Flagged    int        `json:"flagged"`
	Rejected   int        `json:"rejected"`
	// Skipped counts receipts whose inputs were unchanged since the prior
	// run; their prior status is still folded into the counts above.
	Skipped int `json:"skipped_unchanged"`

	RejectionReasons map[string]int `json:"rejection_reasons,omitempty"`
	// TotalAbsVariance sums |expected - actual| over every non-rejected
	// receipt in the run.
	TotalAbsVariance Money `json:"total_abs_variance_cents"`
}

// CountResult folds one receipt outcome into the report.
func (rep *RunReport) CountResult(res ReconciliationResult, skipped bool) {
	rep.Processed++
	if skipped {
		rep.Skipped++
	}
	switch res.Status {
	case StatusReconciled:
		rep.Reconciled++
		rep.Bands.Count(res.Band)
		rep.TotalAbsVariance += res.Variance.Abs()
	case StatusFlagged:
		rep.Flagged++
		rep.TotalAbsVariance += res.Variance.Abs()
	case StatusRejected:
		rep.Rejected++
		if rep.RejectionReasons == nil {
			rep.RejectionReasons = make(map[string]int)
		}
		rep.RejectionReasons[string(res.RejectReason)]++
	}
}
