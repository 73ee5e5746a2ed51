package pricing

import (
	"fmt"
	"sort"
	"time"

	"tuition-reconciliation/internal/domain"
)

// LineItem is the priced charge for a single enrollment.
type LineItem struct {
	CourseID string                `json:"course_id"`
	Category domain.CourseCategory `json:"category"`
	Price    domain.Money          `json:"price_cents"`
	RuleRef  string                `json:"rule_ref"`
}

// Expected is the computed charge for one hypothesized enrollment set,
// with the audit trail of rules and tier choices behind it.
type Expected struct {
	Total        domain.Money
	Lines        []LineItem
	RuleVersions []string
	TierChoices  []domain.TierChoice
	Notes        []string
}

// ComputeExpected prices a charged enrollment set against the catalog as of
// the given time. The paid amount is consulted only for reverse tier
// inference on tiered courses without a recorded cohort size; it never
// changes which rules apply.
//
// An empty enrollment set prices to zero. Returns ErrUnpriceable when any
// enrollment has no covering rule, and ErrInvariantViolation when a rule
// yields a negative price.
func ComputeExpected(enrollments []domain.Enrollment, paid domain.Money, hint domain.CourseCategory, cat *Catalog, asOf time.Time) (Expected, error) {
	exp := Expected{}
	if len(enrollments) == 0 {
		return exp, nil
	}

	// Stable course-ID order fixes both line ordering and which item
	// absorbs the apportionment remainder.
	charged := make([]domain.Enrollment, len(enrollments))
	copy(charged, enrollments)
	sort.Slice(charged, func(i, j int) bool { return charged[i].CourseID < charged[j].CourseID })

	type pending struct {
		line int
		rule domain.PricingRule
	}
	lines := make([]LineItem, len(charged))
	versions := map[string]bool{}
	var deferred []pending
	var knownSum domain.Money

	for i, e := range charged {
		rule, ok := cat.PriceFor(scopeFor(e), asOf)
		if !ok && hint != "" && hint != e.Category {
			hinted := scopeFor(e)
			hinted.Category = hint
			if rule, ok = cat.PriceFor(hinted, asOf); ok {
				exp.Notes = append(exp.Notes,
					fmt.Sprintf("course %s priced under hinted category %s", e.CourseID, hint))
			}
		}
		if !ok {
			return Expected{}, &domain.UnpriceableError{
				CourseID: e.CourseID,
				Category: e.Category,
				TermID:   e.TermID,
				Detail:   "no rule covers this scope",
			}
		}
		versions[rule.VersionRef()] = true
		lines[i] = LineItem{CourseID: e.CourseID, Category: rule.Category, RuleRef: rule.VersionRef()}
		if lines[i].Category == "" {
			lines[i].Category = e.Category
		}

		switch rule.Kind {
		case domain.RuleFixedCourse:
			lines[i].Price = rule.Price

		case domain.RuleDefault:
			lines[i].Price = rule.Rate
			if e.Citizenship == domain.CitizenForeign && rule.ForeignRate > 0 {
				lines[i].Price = rule.ForeignRate
			}

		case domain.RuleTieredSchedule:
			if len(rule.Tiers) == 0 {
				return Expected{}, &domain.UnpriceableError{
					CourseID: e.CourseID,
					Category: e.Category,
					TermID:   e.TermID,
					Detail:   fmt.Sprintf("schedule %s has no tiers", rule.VersionRef()),
				}
			}
			if e.CohortSize > 0 {
				tier, found := tierForSize(rule.Tiers, e.CohortSize)
				if !found {
					return Expected{}, &domain.UnpriceableError{
						CourseID: e.CourseID,
						Category: e.Category,
						TermID:   e.TermID,
						Detail:   fmt.Sprintf("no tier covers cohort size %d", e.CohortSize),
					}
				}
				lines[i].Price = tier.Price
				exp.TierChoices = append(exp.TierChoices, domain.TierChoice{
					CourseID: e.CourseID,
					Category: rule.Category,
					MinSize:  tier.MinSize,
					MaxSize:  tier.MaxSize,
					Price:    tier.Price,
					Inferred: false,
				})
			} else {
				// Cohort size unknown; priced in the second pass from
				// the leftover payment fragment.
				deferred = append(deferred, pending{line: i, rule: rule})
				continue
			}
		}
		if lines[i].Price < 0 {
			return Expected{}, fmt.Errorf("%w: rule %s produced negative price for course %s",
				domain.ErrInvariantViolation, rule.VersionRef(), e.CourseID)
		}
		knownSum += lines[i].Price
	}

	if len(deferred) > 0 {
		frags := (paid - knownSum).Split(len(deferred))
		for k, p := range deferred {
			e := charged[p.line]
			tier, ok := InferTier(p.rule.Tiers, frags[k])
			inferred := ok
			if !ok {
				if note, fits := hintedScheduleNote(e, hint, frags[k], cat, asOf); fits {
					exp.Notes = append(exp.Notes, note)
				}
				// No tier within reach of the fragment; fall back to the
				// smallest-cohort tier so the variance can speak for itself.
				tier = p.rule.Tiers[0]
				exp.Notes = append(exp.Notes,
					fmt.Sprintf("no tier fits payment fragment %s for course %s; assumed smallest-cohort tier", frags[k], e.CourseID))
			}
			lines[p.line].Price = tier.Price
			if lines[p.line].Price < 0 {
				return Expected{}, fmt.Errorf("%w: rule %s produced negative price for course %s",
					domain.ErrInvariantViolation, p.rule.VersionRef(), e.CourseID)
			}
			exp.TierChoices = append(exp.TierChoices, domain.TierChoice{
				CourseID: e.CourseID,
				Category: p.rule.Category,
				MinSize:  tier.MinSize,
				MaxSize:  tier.MaxSize,
				Price:    tier.Price,
				Inferred: inferred,
			})
		}
	}

	for _, l := range lines {
		exp.Total += l.Price
	}
	exp.Lines = lines
	exp.RuleVersions = sortedKeys(versions)
	return exp, nil
}

// hintedScheduleNote checks whether a fragment that fits no tier of the
// enrollment's own category would fit the hinted category's schedule. The
// hint never reprices anything; the disagreement is only surfaced for the
// reviewer.
func hintedScheduleNote(e domain.Enrollment, hint domain.CourseCategory, frag domain.Money, cat *Catalog, asOf time.Time) (string, bool) {
	if hint == "" || hint == e.Category {
		return "", false
	}
	scope := scopeFor(e)
	scope.CourseID = ""
	scope.Category = hint
	rule, ok := cat.PriceFor(scope, asOf)
	if !ok || rule.Kind != domain.RuleTieredSchedule {
		return "", false
	}
	tier, ok := InferTier(rule.Tiers, frag)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("fragment %s for course %s fits %s tier %d-%d but enrollment is %s",
		frag, e.CourseID, hint, tier.MinSize, tier.MaxSize, e.Category), true
}

func scopeFor(e domain.Enrollment) domain.Scope {
	return domain.Scope{
		TermID:      e.TermID,
		CourseID:    e.CourseID,
		Category:    e.Category,
		Program:     e.Program,
		Citizenship: e.Citizenship,
	}
}

func tierForSize(tiers []domain.Tier, size int) (domain.Tier, bool) {
	for _, t := range tiers {
		if t.Contains(size) {
			return t, true
		}
	}
	return domain.Tier{}, false
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
