package domain

import "time"

// Tier is the polling priority assigned to an event from its time to close.
type Tier string

const (
	// TierCritical — closing within 5 minutes, polled every 5 seconds.
	TierCritical Tier = "critical"
	// TierUrgent — closing within 1 hour, polled every minute.
	TierUrgent Tier = "urgent"
	// TierSoon — closing within 24 hours, polled every 10 minutes.
	TierSoon Tier = "soon"
	// TierNone — outside the monitoring horizon; excluded from price checks.
	TierNone Tier = ""
)

const (
	criticalWindow = 5 * time.Minute
	urgentWindow   = time.Hour
	soonWindow     = 24 * time.Hour

	criticalInterval = 5 * time.Second
	urgentInterval   = time.Minute
	soonInterval     = 10 * time.Minute
)

// ClassifyTier maps a time-to-close into a polling tier. It is re-evaluated
// on every monitor pass: as the close time approaches an event transitions
// critical ← urgent ← soon on its own, and the assigned interval never grows
// while time-to-close shrinks.
func ClassifyTier(timeToClose time.Duration) Tier {
	switch {
	case timeToClose <= criticalWindow:
		return TierCritical
	case timeToClose <= urgentWindow:
		return TierUrgent
	case timeToClose <= soonWindow:
		return TierSoon
	default:
		return TierNone
	}
}

// Interval returns the polling interval mandated by the tier.
// TierNone has no interval (zero): such events are not polled at all.
func (t Tier) Interval() time.Duration {
	switch t {
	case TierCritical:
		return criticalInterval
	case TierUrgent:
		return urgentInterval
	case TierSoon:
		return soonInterval
	default:
		return 0
	}
}

// NextCheckAfter schedules the next poll for an event closing at endTime.
// The step is the tier's interval, capped at the next tier boundary: an event
// about to cross into a tighter tier must be re-checked at the crossing, not
// a full interval later.
func (t Tier) NextCheckAfter(now, endTime time.Time) time.Time {
	next := now.Add(t.Interval())
	for _, window := range []time.Duration{urgentWindow, criticalWindow} {
		boundary := endTime.Add(-window)
		if boundary.After(now) && boundary.Before(next) {
			next = boundary
		}
	}
	return next
}

// MonitorHorizon is the widest time-to-close still monitored by the price
// monitor. Events closing later than this are left to the discovery and
// reconciliation passes.
const MonitorHorizon = soonWindow
