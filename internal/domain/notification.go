package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an alert produced when a rule matches a signal. It carries
// a denormalized snapshot of the event at match time so it stays meaningful
// even if the event changes again later. Immutable once created except for
// the Read flag, which the user-facing layer toggles.
type Notification struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	Kind           RuleKind
	EventReference string

	Title    string
	Category string
	District string

	PreviousPrice *float64
	CurrentPrice  float64

	Read      bool
	CreatedAt time.Time
}

// NewNotification snapshots the signal's event for the given rule.
func NewNotification(rule *NotificationRule, sig Signal, at time.Time) Notification {
	return Notification{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		Kind:           rule.Kind,
		EventReference: sig.Event.Reference,
		Title:          sig.Event.Title,
		Category:       sig.Event.Category,
		District:       sig.Event.District,
		PreviousPrice:  sig.PreviousPrice,
		CurrentPrice:   sig.Event.CurrentBid,
		CreatedAt:      at,
	}
}
