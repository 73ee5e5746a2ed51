package matching

import (
	"tuition-reconciliation/internal/domain"
	"tuition-reconciliation/internal/pricing"
)

// varianceCeilingPct is the outer relative-variance ceiling. A candidate
// farther than 10% from the amount paid is never coerced into a match.
const varianceCeilingPct = 10

// Selection is the matcher's verdict for one receipt: the winning (or,
// on NoMatch, closest) candidate plus everything the scorer needs to
// explain the outcome.
type Selection struct {
	Candidate CandidateSet
	Expected  pricing.Expected
	// Variance is signed: expected minus amount paid.
	Variance domain.Money
	// Matched is false when even the closest candidate exceeds the
	// ceiling; the candidate is still retained for reviewer reasoning.
	Matched bool
	// SkippedLabels names candidates that could not be priced at all.
	SkippedLabels []string
	// AllUnpriceable means no candidate could be priced; Candidate and
	// Variance are meaningless in that case.
	AllUnpriceable bool
	Hint           domain.CourseCategory
}

// Match runs the full candidate search for one receipt: every generated
// charged subset is priced as of the payment date and the one with minimal
// relative variance wins. Ties prefer fewer excluded enrollments, then the
// earliest generated candidate.
//
// Comparisons use exact integer cross-multiplication. Only internal
// invariant violations are returned as errors; unpriceable candidates are
// skipped and recorded.
func Match(receipt domain.Receipt, enrollments []domain.Enrollment, cat *pricing.Catalog) (Selection, error) {
	sel := Selection{Hint: DetectHint(receipt.Notes)}
	gen := NewGenerator(enrollments)

	found := false
	var bestAbs, bestDen int64
	for {
		cand, ok := gen.Next()
		if !ok {
			break
		}
		exp, err := pricing.ComputeExpected(cand.Charged, receipt.Amount, sel.Hint, cat, receipt.PaidAt)
		if err != nil {
			if domain.IsUnpriceable(err) {
				sel.SkippedLabels = append(sel.SkippedLabels, cand.Label)
				continue
			}
			return Selection{}, err
		}

		variance := exp.Total - receipt.Amount
		den := int64(exp.Total)
		if den < 1 {
			den = 1
		}
		abs := clampAbs(int64(variance), den)

		replace := !found ||
			relVarLess(abs, den, bestAbs, bestDen) ||
			(relVarEqual(abs, den, bestAbs, bestDen) && len(cand.Excluded) < len(sel.Candidate.Excluded))
		if replace {
			found = true
			bestAbs, bestDen = abs, den
			sel.Candidate = cand
			sel.Expected = exp
			sel.Variance = variance
		}
	}

	if !found {
		sel.AllUnpriceable = true
		return sel, nil
	}

	abs := int64(sel.Variance)
	if abs < 0 {
		abs = -abs
	}
	den := int64(sel.Expected.Total)
	if den < 1 {
		den = 1
	}
	sel.Matched = abs*varianceCeilingPct <= den
	return sel, nil
}

// clampAbs returns |v| clamped to just over twice the denominator. Beyond
// the ceiling the exact magnitude no longer changes any outcome, and the
// clamp keeps cross products within int64.
func clampAbs(v, den int64) int64 {
	if v < 0 {
		v = -v
	}
	if limit := 2*den + 1; v > limit {
		v = limit
	}
	return v
}

// relVarLess reports va/da < vb/db exactly.
func relVarLess(va, da, vb, db int64) bool {
	return va*db < vb*da
}

// relVarEqual reports va/da == vb/db exactly.
func relVarEqual(va, da, vb, db int64) bool {
	return va*db == vb*da
}
