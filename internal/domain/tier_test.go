package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		timeToClose time.Duration
		want        Tier
	}{
		{"already past close", -time.Minute, TierCritical},
		{"thirty seconds left", 30 * time.Second, TierCritical},
		{"exactly five minutes", 5 * time.Minute, TierCritical},
		{"six minutes", 6 * time.Minute, TierUrgent},
		{"exactly one hour", time.Hour, TierUrgent},
		{"two hours", 2 * time.Hour, TierSoon},
		{"exactly twenty-four hours", 24 * time.Hour, TierSoon},
		{"three days", 72 * time.Hour, TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyTier(tt.timeToClose))
		})
	}
}

func TestTierInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, TierCritical.Interval())
	assert.Equal(t, time.Minute, TierUrgent.Interval())
	assert.Equal(t, 10*time.Minute, TierSoon.Interval())
	assert.Equal(t, time.Duration(0), TierNone.Interval())
}

// As time-to-close decreases the assigned interval must never increase:
// tier transitions are one-directional with time.
func TestTierMonotonicity(t *testing.T) {
	t.Parallel()

	prev := time.Duration(-1)
	for ttc := 48 * time.Hour; ttc >= -time.Hour; ttc -= time.Minute {
		tier := ClassifyTier(ttc)
		if tier == TierNone {
			continue
		}
		interval := tier.Interval()
		require.Positive(t, interval)
		if prev > 0 {
			require.LessOrEqual(t, interval, prev,
				"interval grew as time_to_close shrank to %s", ttc)
		}
		prev = interval
	}
}

func TestTierNextCheckAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		timeToClose time.Duration
		want        time.Duration // from now
	}{
		{"deep in soon tier, full interval", 5 * time.Hour, 10 * time.Minute},
		{"soon tier crossing into urgent", 61 * time.Minute, time.Minute},
		{"urgent tier, full interval", 30 * time.Minute, time.Minute},
		{"urgent tier crossing into critical", 5*time.Minute + 30*time.Second, 30 * time.Second},
		{"critical tier keeps its own interval", 2 * time.Minute, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			endTime := now.Add(tt.timeToClose)
			tier := ClassifyTier(tt.timeToClose)
			require.NotEqual(t, TierNone, tier)
			assert.Equal(t, now.Add(tt.want), tier.NextCheckAfter(now, endTime))
		})
	}
}

// A scheduled check must never land past a tier boundary: the event would be
// polled at the old, slower cadence while already inside a tighter tier.
func TestTierNextCheckAfterNeverOvershootsBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for ttc := 24 * time.Hour; ttc > 0; ttc -= 17 * time.Second {
		endTime := now.Add(ttc)
		tier := ClassifyTier(ttc)
		next := tier.NextCheckAfter(now, endTime)

		for _, window := range []time.Duration{time.Hour, 5 * time.Minute} {
			boundary := endTime.Add(-window)
			if boundary.After(now) {
				require.False(t, next.After(boundary),
					"check at %s overshoots the %s boundary for time_to_close %s",
					next, window, ttc)
			}
		}
	}
}

func TestEventDueForCheck(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	ev := Event{Reference: "ref-1"}
	assert.True(t, ev.DueForCheck(now), "no recorded due time means immediately due")

	ev.NextCheckAt = &later
	assert.False(t, ev.DueForCheck(now))

	ev.NextCheckAt = &earlier
	assert.True(t, ev.DueForCheck(now))

	ev.NextCheckAt = &now
	assert.True(t, ev.DueForCheck(now))
}
