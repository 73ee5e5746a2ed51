package matching

import (
	"fmt"
	"sort"
	"strings"

	"tuition-reconciliation/internal/domain"
)

// bands is the ordered confidence mapping. A row applies when
// |variance| * scaleDen <= scaleNum * expected, i.e. relative variance at
// most scaleNum/scaleDen; the first applicable row wins. The exact band
// demands a variance of zero, a fractional cent off is already 95.
var bands = []struct {
	scaleNum int64
	scaleDen int64
	band     domain.ConfidenceBand
	note     string
}{
	{0, 1, domain.BandExact, "exact"},
	{1, 50, domain.BandHigh, "high confidence"},
	{1, 20, domain.BandMedium, "medium confidence"},
	{1, 10, domain.BandLow, "low confidence, spot review"},
}

// mapBand maps an absolute variance against its denominator to a band.
// Callers only invoke it for selections inside the outer ceiling, so a row
// always applies; falling through returns no band.
func mapBand(abs, den int64) (domain.ConfidenceBand, string) {
	for _, b := range bands {
		if abs*b.scaleDen <= b.scaleNum*den {
			return b.band, b.note
		}
	}
	return domain.BandNone, ""
}

// Score turns a match selection into the persisted result row, attaching
// deterministic human-readable reasoning for the reviewer. It never sets
// the fingerprint; the orchestrator owns that.
func Score(receipt domain.Receipt, enrollments []domain.Enrollment, sel Selection) domain.ReconciliationResult {
	res := domain.ReconciliationResult{
		ReceiptID: receipt.ID,
		StudentID: receipt.StudentID,
		TermID:    receipt.TermID,
		Actual:    receipt.Amount,
	}

	if sel.AllUnpriceable {
		res.Status = domain.StatusFlagged
		res.Reasons = append(res.Reasons, "no candidate could be priced against the catalog")
		res.Reasons = append(res.Reasons, skippedReasons(sel)...)
		appendContext(&res, enrollments, sel)
		return res
	}

	res.Expected = sel.Expected.Total
	res.Variance = sel.Variance
	res.CandidateLabel = sel.Candidate.Label
	res.ExcludedCourses = sel.Candidate.Excluded
	res.RuleVersions = sel.Expected.RuleVersions
	res.TierChoices = sel.Expected.TierChoices

	abs := int64(sel.Variance)
	if abs < 0 {
		abs = -abs
	}
	den := int64(sel.Expected.Total)
	if den < 1 {
		den = 1
	}
	res.RelativeVariance = float64(abs) / float64(den)

	if sel.Matched {
		band, note := mapBand(abs, den)
		res.Status = domain.StatusReconciled
		res.Band = band
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("matched %s at %d%% (%s): expected %s, paid %s",
				sel.Candidate.Label, band, note, sel.Expected.Total, receipt.Amount))
	} else {
		res.Status = domain.StatusFlagged
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("no candidate within the 10%% ceiling; closest was %s: expected %s, paid %s",
				sel.Candidate.Label, sel.Expected.Total, receipt.Amount))
	}

	if len(res.RuleVersions) > 0 {
		res.Reasons = append(res.Reasons, "rules applied: "+strings.Join(res.RuleVersions, ", "))
	}
	for _, tc := range res.TierChoices {
		if tc.Inferred {
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("tier %d-%d at %s inferred for %s", tc.MinSize, tc.MaxSize, tc.Price, tc.CourseID))
		}
	}
	res.Reasons = append(res.Reasons, sel.Expected.Notes...)
	res.Reasons = append(res.Reasons, skippedReasons(sel)...)
	appendContext(&res, enrollments, sel)
	return res
}

func skippedReasons(sel Selection) []string {
	var out []string
	for _, label := range sel.SkippedLabels {
		out = append(out, "candidate unpriceable: "+label)
	}
	return out
}

// appendContext adds the signals shared by every outcome: the notes hint,
// when one was detected, and any waived courses that were held out of
// every candidate.
func appendContext(res *domain.ReconciliationResult, enrollments []domain.Enrollment, sel Selection) {
	if sel.Hint != "" {
		res.Reasons = append(res.Reasons, fmt.Sprintf("notes hint: %s", sel.Hint))
	}
	var waived []string
	for _, e := range enrollments {
		if e.Status == domain.EnrollmentWaived {
			waived = append(waived, e.CourseID)
		}
	}
	if len(waived) > 0 {
		sort.Strings(waived)
		res.Reasons = append(res.Reasons, "waived, never charged: "+strings.Join(waived, ", "))
	}
}
