package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// RuleKind selects which signal kind a rule listens for.
type RuleKind string

const (
	RuleNewEvent    RuleKind = "new_event"
	RulePriceChange RuleKind = "price_change"
)

// NotificationRule is a user-defined filter set. A nil filter field means
// "unset" and matches everything for that dimension; set filters must all be
// satisfied (conjunctive match).
//
// EventReference scopes the rule to a single event: when set, reference
// equality alone decides the match and the other filters are ignored.
type NotificationRule struct {
	ID     uuid.UUID
	Kind   RuleKind
	Active bool

	Categories    []string
	Subcategories []string
	Districts     []string
	MinPrice      *float64
	MaxPrice      *float64

	// MinVariationPct lower-bounds the relative price delta as a fraction
	// (0.1 == 10%). Only meaningful for price_change rules.
	MinVariationPct *float64
	// MaxMinutesLeft upper-bounds the event's remaining minutes at match
	// time. Only meaningful for price_change rules.
	MaxMinutesLeft *int

	EventReference *string

	TriggerCount  int
	LastTriggered *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate reports a malformed filter set. Malformed rules are skipped
// during evaluation, never fatal to the pass.
func (r *NotificationRule) Validate() error {
	switch r.Kind {
	case RuleNewEvent, RulePriceChange:
	default:
		return NewValidationError("kind", "unknown rule kind")
	}
	if r.MinPrice != nil && r.MaxPrice != nil && *r.MinPrice > *r.MaxPrice {
		return NewValidationError("price_range", "min_price exceeds max_price")
	}
	if r.MinVariationPct != nil && *r.MinVariationPct < 0 {
		return NewValidationError("min_variation_pct", "must not be negative")
	}
	if r.MaxMinutesLeft != nil && *r.MaxMinutesLeft < 0 {
		return NewValidationError("max_minutes_left", "must not be negative")
	}
	return nil
}

// Matches evaluates the rule against a signal at the given time. Rule kind
// and signal kind must agree; inactive rules never match.
func (r *NotificationRule) Matches(sig Signal, now time.Time) bool {
	if !r.Active {
		return false
	}
	if RuleKind(sig.Kind) != r.Kind {
		return false
	}

	if r.EventReference != nil {
		return sig.Event.Reference == *r.EventReference
	}

	ev := &sig.Event
	if !matchList(r.Categories, ev.Category) {
		return false
	}
	if !matchList(r.Subcategories, ev.Subcategory) {
		return false
	}
	if !matchList(r.Districts, ev.District) {
		return false
	}
	if !matchPriceRange(r.MinPrice, r.MaxPrice, ev.CurrentBid) {
		return false
	}

	if r.Kind == RulePriceChange {
		if !matchVariation(r.MinVariationPct, sig) {
			return false
		}
		if !matchMinutesLeft(r.MaxMinutesLeft, ev, now) {
			return false
		}
	}

	return true
}

// matchList: unset (empty) list is vacuously true.
func matchList(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, value)
}

func matchPriceRange(min, max *float64, price float64) bool {
	if min != nil && price < *min {
		return false
	}
	if max != nil && price > *max {
		return false
	}
	return true
}

func matchVariation(minPct *float64, sig Signal) bool {
	if minPct == nil {
		return true
	}
	return sig.VariationPct() >= *minPct
}

func matchMinutesLeft(maxMinutes *int, ev *Event, now time.Time) bool {
	if maxMinutes == nil {
		return true
	}
	remaining := ev.TimeToClose(now)
	if remaining < 0 {
		return false
	}
	return remaining <= time.Duration(*maxMinutes)*time.Minute
}
