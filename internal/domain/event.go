package domain

import (
	"time"
)

// Event represents one auction listing tracked from the upstream site.
// Reference is the upstream's opaque stable identifier and never changes.
type Event struct {
	Reference string

	Title       string
	Category    string
	Subcategory string

	District     string
	Municipality string

	BaseValue    float64
	OpeningValue float64
	MinimumValue float64
	CurrentBid   float64

	StartTime time.Time
	EndTime   time.Time
	// EndTimeInitial is set once at creation and never mutated afterwards,
	// even when upstream extends EndTime.
	EndTimeInitial time.Time

	Canceled bool
	Started  bool
	Closed   bool

	// CheckFailures counts consecutive failed price checks. Reset on the
	// first successful fetch. Never a reason to close the event.
	CheckFailures int
	LastCheckedAt *time.Time
	NextCheckAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeToClose returns how long until the event's end time.
// Negative when the end time has already passed.
func (e *Event) TimeToClose(now time.Time) time.Duration {
	return e.EndTime.Sub(now)
}

// IsActive reports whether the event is still a live listing:
// not closed and not canceled.
func (e *Event) IsActive() bool {
	return !e.Closed && !e.Canceled
}

// DueForCheck reports whether the event's per-event due time has elapsed.
// An event with no recorded due time is immediately due.
func (e *Event) DueForCheck(now time.Time) bool {
	if e.NextCheckAt == nil {
		return true
	}
	return !e.NextCheckAt.After(now)
}

// PriceUpdateParams holds the fields the price monitor is allowed to mutate
// on an event. EndTimeInitial is deliberately absent: it is written once at
// insert and never again.
type PriceUpdateParams struct {
	CurrentBid  float64
	EndTime     time.Time
	CheckedAt   time.Time
	NextCheckAt time.Time
}

// PriceHistoryEntry is an immutable append-only record of one observed
// price change.
type PriceHistoryEntry struct {
	Reference  string
	OldPrice   float64
	NewPrice   float64
	Delta      float64
	Source     PipelineName
	RecordedAt time.Time
}

// NewPriceHistoryEntry builds an entry for a price transition observed by
// the given pipeline.
func NewPriceHistoryEntry(reference string, oldPrice, newPrice float64, source PipelineName, at time.Time) PriceHistoryEntry {
	return PriceHistoryEntry{
		Reference:  reference,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		Delta:      newPrice - oldPrice,
		Source:     source,
		RecordedAt: at,
	}
}
