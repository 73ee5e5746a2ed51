package matching

import (
	"fmt"
	"sort"
	"strings"

	"tuition-reconciliation/internal/domain"
)

// maxCandidates caps subset exploration per receipt. The cap is the
// engine's per-receipt bound; there are no wall-clock timeouts inside the
// matching pipeline.
const maxCandidates = 32

// CandidateSet is one hypothesized charged subset of a student's
// enrollments. Candidates are constructed and discarded within a single
// matching call, never persisted.
type CandidateSet struct {
	Ordinal  int
	Label    string
	Charged  []domain.Enrollment
	Excluded []string // dropped course IDs assumed not charged
}

// Generator emits candidate charged subsets in a fixed order: the
// all-active set first, then, when dropped enrollments exist, the
// charged-before-drop hypothesis (active plus all dropped) followed by
// subsets excluding one dropped course at a time, then pairs, and so on,
// bounded by maxCandidates. Waived enrollments are never charged.
//
// A Generator is single-use; construct a new one to restart.
type Generator struct {
	active  []domain.Enrollment
	dropped []domain.Enrollment
	// exclusions holds, per remaining candidate, the indexes into dropped
	// that the candidate leaves uncharged.
	exclusions [][]int
	next       int
}

func NewGenerator(enrollments []domain.Enrollment) *Generator {
	g := &Generator{}
	for _, e := range enrollments {
		switch e.Status {
		case domain.EnrollmentActive:
			g.active = append(g.active, e)
		case domain.EnrollmentDropped:
			g.dropped = append(g.dropped, e)
		}
	}
	sort.Slice(g.active, func(i, j int) bool { return g.active[i].CourseID < g.active[j].CourseID })
	sort.Slice(g.dropped, func(i, j int) bool { return g.dropped[i].CourseID < g.dropped[j].CourseID })
	g.exclusions = exclusionPlan(len(g.dropped), maxCandidates-1)
	return g
}

// Next returns the next candidate. The second return is false once the
// sequence is exhausted.
func (g *Generator) Next() (CandidateSet, bool) {
	if g.next == 0 {
		g.next++
		return g.allActive(), true
	}
	i := g.next - 1
	if i >= len(g.exclusions) {
		return CandidateSet{}, false
	}
	g.next++
	return g.withDropped(i+1, g.exclusions[i]), true
}

func (g *Generator) allActive() CandidateSet {
	c := CandidateSet{
		Ordinal: 0,
		Label:   "all active enrollments",
		Charged: append([]domain.Enrollment(nil), g.active...),
	}
	if len(g.active) == 0 {
		c.Label = "zero charge, no active enrollments"
	}
	for _, d := range g.dropped {
		c.Excluded = append(c.Excluded, d.CourseID)
	}
	return c
}

func (g *Generator) withDropped(ordinal int, excluded []int) CandidateSet {
	c := CandidateSet{
		Ordinal: ordinal,
		Charged: append([]domain.Enrollment(nil), g.active...),
	}
	skip := make(map[int]bool, len(excluded))
	for _, i := range excluded {
		skip[i] = true
	}
	for i, d := range g.dropped {
		if skip[i] {
			c.Excluded = append(c.Excluded, d.CourseID)
			continue
		}
		c.Charged = append(c.Charged, d)
	}
	if len(excluded) == 0 {
		c.Label = "active plus all dropped enrollments"
	} else {
		c.Label = fmt.Sprintf("active plus dropped excluding %s", strings.Join(c.Excluded, ", "))
	}
	return c
}

// exclusionPlan enumerates which dropped courses each candidate leaves
// uncharged: first none, then singles, then pairs, in course order, up to
// limit entries. Excluding every dropped course reproduces the all-active
// candidate, so that subset is skipped.
func exclusionPlan(dropped, limit int) [][]int {
	if dropped == 0 || limit <= 0 {
		return nil
	}
	var plan [][]int
	for k := 0; k < dropped && len(plan) < limit; k++ {
		plan = append(plan, combinations(dropped, k, limit-len(plan))...)
	}
	return plan
}

// combinations lists k-element index subsets of [0,n) in lexicographic
// order, at most limit of them.
func combinations(n, k, limit int) [][]int {
	if limit <= 0 || k > n {
		return nil
	}
	if k == 0 {
		return [][]int{{}}
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	var out [][]int
	for {
		out = append(out, append([]int(nil), idx...))
		if len(out) >= limit {
			return out
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
