package models

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanMonthly   Plan = "monthly"
	PlanQuarterly Plan = "quarterly"
	PlanYearly    Plan = "yearly"
)

var Plans = []Plan{PlanMonthly, PlanQuarterly, PlanYearly}

func ParsePlan(raw string) (Plan, bool) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlanMonthly, PlanQuarterly, PlanYearly:
		return p, true
	default:
		return "", false
	}
}

// NormalizePlan maps unknown or empty plans to monthly.
func NormalizePlan(raw string) Plan {
	if p, ok := ParsePlan(raw); ok {
		return p
	}
	return PlanMonthly
}

// Extend adds the plan period to t using calendar arithmetic.
func (p Plan) Extend(t time.Time) time.Time {
	switch p {
	case PlanQuarterly:
		return t.AddDate(0, 3, 0)
	case PlanYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// RenewalExpiry extends from whichever of current and now is later. Month
// arithmetic normalizes overflowing days (Jan 31 + 1 month = Mar 3), so both
// candidates are extended and the later one is kept: the result is never
// before current+period nor before now+period.
func RenewalExpiry(current, now time.Time, p Plan) time.Time {
	fromCurrent := p.Extend(current)
	fromNow := p.Extend(now)
	if fromCurrent.After(fromNow) {
		return fromCurrent
	}
	return fromNow
}
