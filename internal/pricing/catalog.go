package pricing

import (
	"sort"
	"time"

	"tuition-reconciliation/internal/domain"
)

// Catalog is an immutable, indexed view over a published rule set. Build it
// once per run; lookups are safe for concurrent use.
type Catalog struct {
	byCourse   map[string][]domain.PricingRule
	byCategory map[domain.CourseCategory][]domain.PricingRule
	defaults   []domain.PricingRule
	all        []domain.PricingRule
}

// NewCatalog indexes the given rules. Tier schedules are normalized to
// ascending MinSize order so that the first tier is always the
// smallest-cohort tier.
func NewCatalog(rules []domain.PricingRule) *Catalog {
	c := &Catalog{
		byCourse:   make(map[string][]domain.PricingRule),
		byCategory: make(map[domain.CourseCategory][]domain.PricingRule),
	}
	for _, r := range rules {
		if r.Kind == domain.RuleTieredSchedule {
			tiers := make([]domain.Tier, len(r.Tiers))
			copy(tiers, r.Tiers)
			sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinSize < tiers[j].MinSize })
			r.Tiers = tiers
		}
		c.all = append(c.all, r)
		switch r.Kind {
		case domain.RuleFixedCourse:
			c.byCourse[r.CourseID] = append(c.byCourse[r.CourseID], r)
		case domain.RuleTieredSchedule:
			c.byCategory[r.Category] = append(c.byCategory[r.Category], r)
		case domain.RuleDefault:
			c.defaults = append(c.defaults, r)
		}
	}
	return c
}

// Len returns the number of published rules.
func (c *Catalog) Len() int { return len(c.all) }

// PriceFor resolves the single rule governing the given scope at the given
// time. The second return is false when no rule covers the scope; callers
// treat that as "cannot price", not as a failure.
//
// Resolution order is most-specific-wins: a FixedCourse rule beats a
// TieredSchedule, which beats a Default rate. Within one level, rules that
// name the term or program bind tighter than wildcards; then the latest
// EffectiveFrom wins, then the highest Version, then the smallest rule ID.
func (c *Catalog) PriceFor(scope domain.Scope, asOf time.Time) (domain.PricingRule, bool) {
	if r, ok := pickBest(c.byCourse[scope.CourseID], scope, asOf); ok {
		return r, true
	}
	if r, ok := pickBest(c.byCategory[scope.Category], scope, asOf); ok {
		return r, true
	}
	return pickBest(c.defaults, scope, asOf)
}

// VersionsFor lists the version refs of every rule in effect for the term at
// the given time, sorted. Term-unscoped rules are included since they apply
// to every term. The orchestrator folds this into result fingerprints.
func (c *Catalog) VersionsFor(termID string, asOf time.Time) []string {
	var refs []string
	for _, r := range c.all {
		if r.TermID != "" && r.TermID != termID {
			continue
		}
		if !r.InEffect(asOf) {
			continue
		}
		refs = append(refs, r.VersionRef())
	}
	sort.Strings(refs)
	return refs
}

func pickBest(rules []domain.PricingRule, scope domain.Scope, asOf time.Time) (domain.PricingRule, bool) {
	var best domain.PricingRule
	found := false
	for _, r := range rules {
		if !ruleCovers(r, scope) || !r.InEffect(asOf) {
			continue
		}
		if !found || preferRule(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func ruleCovers(r domain.PricingRule, scope domain.Scope) bool {
	if r.TermID != "" && r.TermID != scope.TermID {
		return false
	}
	if r.Program != "" && r.Program != scope.Program {
		return false
	}
	switch r.Kind {
	case domain.RuleFixedCourse:
		return r.CourseID == scope.CourseID
	case domain.RuleTieredSchedule:
		return r.Category == scope.Category
	default:
		return true
	}
}

// preferRule reports whether a should replace b as the winning rule within
// one specificity level.
func preferRule(a, b domain.PricingRule) bool {
	if ta, tb := tightness(a), tightness(b); ta != tb {
		return ta > tb
	}
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return a.EffectiveFrom.After(b.EffectiveFrom)
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.ID < b.ID
}

// tightness counts the scope fields a rule names explicitly. A rule bound
// to a specific term or program must beat a wildcard sibling, otherwise
// program rates could never take effect for their own students.
func tightness(r domain.PricingRule) int {
	n := 0
	if r.TermID != "" {
		n++
	}
	if r.Program != "" {
		n++
	}
	return n
}
