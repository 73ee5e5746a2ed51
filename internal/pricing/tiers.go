package pricing

import "tuition-reconciliation/internal/domain"

// tierCeilingPct is the outer relative-difference ceiling for reverse tier
// lookup; a fragment more than 10% away from every tier price fits no tier.
const tierCeilingPct = 10

// InferTier reverse-looks-up which tier a payment fragment was most likely
// priced under. Tiers must be in ascending MinSize order (NewCatalog
// normalizes schedules that way). The tier with the minimal relative
// difference |fragment-price|/price wins; within a 0.1% tie window the
// smaller-cohort tier is preferred. Returns false when even the best tier
// is more than 10% away.
//
// All comparisons are exact integer cross-multiplications. No floats.
func InferTier(tiers []domain.Tier, fragment domain.Money) (domain.Tier, bool) {
	if len(tiers) == 0 {
		return domain.Tier{}, false
	}

	best := 0
	for i := 1; i < len(tiers); i++ {
		if relDiffLess(diffAgainst(fragment, tiers[i].Price), price(tiers[i]),
			diffAgainst(fragment, tiers[best].Price), price(tiers[best])) {
			best = i
		}
	}

	// Smallest-cohort tier within the tie window of the minimum wins.
	chosen := best
	for i := 0; i < best; i++ {
		if withinTieWindow(diffAgainst(fragment, tiers[i].Price), price(tiers[i]),
			diffAgainst(fragment, tiers[best].Price), price(tiers[best])) {
			chosen = i
			break
		}
	}

	d, p := diffAgainst(fragment, tiers[chosen].Price), price(tiers[chosen])
	if d*int64(tierCeilingPct) > p {
		return domain.Tier{}, false
	}
	return tiers[chosen], true
}

// price returns the tier price as a safe denominator, at least one cent.
func price(t domain.Tier) int64 {
	if t.Price < 1 {
		return 1
	}
	return int64(t.Price)
}

// diffAgainst returns |fragment - price| clamped to just over twice the
// price. Differences beyond that are far outside the ceiling regardless of
// exact magnitude, and the clamp keeps every cross product within int64.
func diffAgainst(fragment, p domain.Money) int64 {
	d := int64(fragment - p)
	if d < 0 {
		d = -d
	}
	denom := int64(p)
	if denom < 1 {
		denom = 1
	}
	if limit := 2*denom + 1; d > limit {
		d = limit
	}
	return d
}

// relDiffLess reports da/pa < db/pb exactly.
func relDiffLess(da, pa, db, pb int64) bool {
	return da*pb < db*pa
}

// withinTieWindow reports da/pa <= db/pb + 1/1000 exactly.
func withinTieWindow(da, pa, db, pb int64) bool {
	return 1000*da*pb <= 1000*db*pa + pa*pb
}
