package matching

import (
	"errors"
	"testing"
	"time"

	"tuition-reconciliation/internal/domain"
	"tuition-reconciliation/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paidAt = time.Date(2019, time.October, 3, 0, 0, 0, 0, time.UTC)

func defaultRateCatalog(rate domain.Money) *pricing.Catalog {
	return pricing.NewCatalog([]domain.PricingRule{
		{
			ID: "DEF-2019", Kind: domain.RuleDefault, Version: 1,
			EffectiveFrom: time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC),
			TermID:        "2019FA",
			Rate:          rate,
		},
	})
}

func receipt(amount domain.Money, notes string) domain.Receipt {
	return domain.Receipt{
		ID:        "R001",
		StudentID: "S100",
		TermID:    "2019FA",
		Amount:    amount,
		Currency:  "USD",
		Kind:      domain.ReceiptPayment,
		PaidAt:    paidAt,
		Notes:     notes,
	}
}

func TestMatch_ExactSingleEnrollment(t *testing.T) {
	// One active course at the 800.00 default rate, 800.00 paid.
	enrollments := []domain.Enrollment{enrolled("MATH101", domain.EnrollmentActive)}

	sel, err := Match(receipt(domain.Money(80000), ""), enrollments, defaultRateCatalog(domain.Money(80000)))
	require.NoError(t, err)
	assert.True(t, sel.Matched)
	assert.Equal(t, domain.Money(0), sel.Variance)
	assert.Equal(t, "all active enrollments", sel.Candidate.Label)
	assert.Equal(t, domain.Money(80000), sel.Expected.Total)
}

func TestMatch_DroppedCourseWasCharged(t *testing.T) {
	// The payment covers the dropped course too, so the charged-before-drop
	// hypothesis must win over the all-active candidate.
	enrollments := []domain.Enrollment{
		enrolled("MATH101", domain.EnrollmentActive),
		enrolled("ARTS150", domain.EnrollmentDropped),
	}

	sel, err := Match(receipt(domain.Money(80000), ""), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.True(t, sel.Matched)
	assert.Equal(t, domain.Money(0), sel.Variance)
	assert.Equal(t, "active plus all dropped enrollments", sel.Candidate.Label)
	assert.Empty(t, sel.Candidate.Excluded)
}

func TestMatch_NoCandidateWithinCeiling(t *testing.T) {
	enrollments := []domain.Enrollment{
		enrolled("MATH101", domain.EnrollmentActive),
		enrolled("ARTS150", domain.EnrollmentDropped),
	}

	// 2000.00 paid, nothing prices above 800.00: no match, but the
	// closest candidate is retained for the reviewer.
	sel, err := Match(receipt(domain.Money(200000), ""), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.False(t, sel.Matched)
	assert.False(t, sel.AllUnpriceable)
	assert.Equal(t, "active plus all dropped enrollments", sel.Candidate.Label,
		"800.00 expected is relatively closer to 2000.00 than 400.00 is")
}

func TestMatch_TiePrefersFewerExclusions(t *testing.T) {
	enrollments := []domain.Enrollment{
		enrolled("MATH101", domain.EnrollmentActive),
		enrolled("ARTS150", domain.EnrollmentDropped),
		enrolled("BIOL220", domain.EnrollmentDropped),
	}

	// At 960.00 paid the 1200.00 candidate and the two 800.00 candidates
	// sit at exactly 20% relative variance each; the tie goes to the
	// candidate that excludes nothing.
	sel, err := Match(receipt(domain.Money(96000), ""), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.False(t, sel.Matched)
	assert.Empty(t, sel.Candidate.Excluded)
	assert.Equal(t, domain.Money(120000), sel.Expected.Total)
}

func TestMatch_TiePrefersEarliestGenerated(t *testing.T) {
	enrollments := []domain.Enrollment{
		enrolled("ARTS150", domain.EnrollmentDropped),
		enrolled("BIOL220", domain.EnrollmentDropped),
	}

	// 400.00 paid matches either single dropped course exactly; the
	// earlier-generated candidate (charging BIOL220, excluding ARTS150)
	// must win.
	sel, err := Match(receipt(domain.Money(40000), ""), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.True(t, sel.Matched)
	assert.Equal(t, domain.Money(0), sel.Variance)
	assert.Equal(t, []string{"ARTS150"}, sel.Candidate.Excluded)
}

func TestMatch_ZeroChargeZeroPaid(t *testing.T) {
	enrollments := []domain.Enrollment{
		enrolled("MATH101", domain.EnrollmentDropped),
	}

	sel, err := Match(receipt(domain.Money(0), ""), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.True(t, sel.Matched)
	assert.Equal(t, domain.Money(0), sel.Variance)
	assert.Empty(t, sel.Candidate.Charged)
}

func TestMatch_UnpriceableCandidatesAreSkipped(t *testing.T) {
	cat := pricing.NewCatalog([]domain.PricingRule{
		{
			ID: "FIX-MATH101", Kind: domain.RuleFixedCourse, Version: 1,
			EffectiveFrom: time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC),
			TermID:        "2019FA",
			CourseID:      "MATH101",
			Price:         domain.Money(72550),
		},
	})
	enrollments := []domain.Enrollment{
		enrolled("MATH101", domain.EnrollmentActive),
		enrolled("ARTS150", domain.EnrollmentDropped), // no rule prices this course
	}

	sel, err := Match(receipt(domain.Money(72550), ""), enrollments, cat)
	require.NoError(t, err)
	assert.True(t, sel.Matched)
	assert.Equal(t, domain.Money(0), sel.Variance)
	require.Len(t, sel.SkippedLabels, 1)
	assert.Equal(t, "active plus all dropped enrollments", sel.SkippedLabels[0])
}

func TestMatch_EverythingUnpriceable(t *testing.T) {
	enrollments := []domain.Enrollment{enrolled("MATH101", domain.EnrollmentActive)}

	sel, err := Match(receipt(domain.Money(40000), ""), enrollments, pricing.NewCatalog(nil))
	require.NoError(t, err)
	assert.True(t, sel.AllUnpriceable)
	assert.Len(t, sel.SkippedLabels, 1)
}

func TestMatch_InvariantViolationSurfaces(t *testing.T) {
	enrollments := []domain.Enrollment{enrolled("MATH101", domain.EnrollmentActive)}

	sel, err := Match(receipt(domain.Money(40000), ""), enrollments, defaultRateCatalog(domain.Money(-40000)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvariantViolation))
	assert.False(t, sel.Matched)
}

func TestMatch_HintDetected(t *testing.T) {
	enrollments := []domain.Enrollment{enrolled("MATH101", domain.EnrollmentActive)}

	sel, err := Match(receipt(domain.Money(40000), "makeup for reading class"), enrollments, defaultRateCatalog(domain.Money(40000)))
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryReading, sel.Hint)
}
