package domain

import (
	"strconv"
	"time"
)

// RuleKind identifies the three pricing rule shapes, in specificity order.
type RuleKind string

const (
	RuleDefault        RuleKind = "DEFAULT"
	RuleFixedCourse    RuleKind = "FIXED_COURSE"
	RuleTieredSchedule RuleKind = "TIERED_SCHEDULE"
)

// Tier is one cohort-size band of a tiered schedule.
type Tier struct {
	MinSize int   `json:"min_size"`
	MaxSize int   `json:"max_size"`
	Price   Money `json:"price_cents"`
}

// Contains reports whether a cohort size falls inside the tier's band.
func (t Tier) Contains(size int) bool {
	return size >= t.MinSize && size <= t.MaxSize
}

// PricingRule is one versioned price rule. Rules are invariant once
// published; corrections are new rules with later effective dates, never
// edits. Which fields apply depends on Kind:
//
//	DEFAULT         TermID/Program scope, Rate (+ optional ForeignRate)
//	FIXED_COURSE    CourseID, Price
//	TIERED_SCHEDULE Category, Tiers ordered by MinSize ascending
type PricingRule struct {
	ID            string     `json:"id"`
	Kind          RuleKind   `json:"kind"`
	Version       int        `json:"version"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"` // nil = still in effect

	TermID   string         `json:"term_id,omitempty"`   // empty = any term
	Program  string         `json:"program,omitempty"`   // DEFAULT only; empty = any program
	CourseID string         `json:"course_id,omitempty"` // FIXED_COURSE only
	Category CourseCategory `json:"category,omitempty"`  // TIERED_SCHEDULE only

	Rate        Money  `json:"rate_cents,omitempty"`         // DEFAULT per-course rate
	ForeignRate Money  `json:"foreign_rate_cents,omitempty"` // DEFAULT, 0 = no foreign rate
	Price       Money  `json:"price_cents,omitempty"`        // FIXED_COURSE
	Tiers       []Tier `json:"tiers,omitempty"`              // TIERED_SCHEDULE
}

// InEffect reports whether the rule applies at the given date.
func (r PricingRule) InEffect(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && at.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// Specificity orders overlapping rules: FIXED_COURSE beats TIERED_SCHEDULE
// beats DEFAULT.
func (r PricingRule) Specificity() int {
	switch r.Kind {
	case RuleFixedCourse:
		return 3
	case RuleTieredSchedule:
		return 2
	case RuleDefault:
		return 1
	default:
		return 0
	}
}

// VersionRef is the audit identifier recorded on every result that used
// this rule, e.g. "FEE-2019-DEFAULT@3".
func (r PricingRule) VersionRef() string {
	return r.ID + "@" + strconv.Itoa(r.Version)
}

// Scope is one pricing lookup: which enrollment, in which term, for which
// kind of student.
type Scope struct {
	TermID      string
	CourseID    string
	Category    CourseCategory
	Program     string
	Citizenship Citizenship
}
