// Package notify implements the notification engine: rule evaluation
// against incoming signals plus the side-effecting emit step.
//
// The engine keeps no matching state in memory. All dedup state lives in the
// rule and notification rows, so a process restart cannot replay a signal
// into a duplicate alert.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/auctionwatch/internal/domain"
)

type ruleRepo interface {
	GetActive(ctx context.Context, kind domain.RuleKind) ([]domain.NotificationRule, error)
	IncrementTrigger(ctx context.Context, ruleID uuid.UUID, at time.Time) error
}

type notificationRepo interface {
	InsertIgnore(ctx context.Context, n domain.Notification) (bool, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer receives notification telemetry. Satisfied by metrics.Metrics.
type Observer interface {
	ObserveNotifications(n int)
}

// Engine evaluates signals against the active rule set and persists alerts.
type Engine struct {
	rules         ruleRepo
	notifications notificationRepo
	tx            txManager
	obs           Observer
	now           func() time.Time
	log           *slog.Logger
}

// NewEngine creates a notification engine.
func NewEngine(log *slog.Logger, rules ruleRepo, notifications notificationRepo, tx txManager, obs Observer) *Engine {
	return &Engine{
		rules:         rules,
		notifications: notifications,
		tx:            tx,
		obs:           obs,
		now:           time.Now,
		log:           log.With("service", "notify"),
	}
}

// Dispatch evaluates one signal against all active rules of its kind and
// returns how many notifications were created.
//
// Per rule: at most one notification per signal. Notification persistence and
// the rule's trigger_count increment run in one transaction; if the
// notification row already exists (replayed signal) the increment is skipped,
// so counters stay consistent with stored alerts across restarts.
//
// A malformed rule is skipped with a warning, never fatal to the pass. Store
// errors on one rule do not stop evaluation of the rest; the joined error is
// returned so the pipeline can record the failure.
func (e *Engine) Dispatch(ctx context.Context, sig domain.Signal) (int, error) {
	rules, err := e.rules.GetActive(ctx, domain.RuleKind(sig.Kind))
	if err != nil {
		return 0, err
	}

	now := e.now().UTC().Truncate(time.Microsecond)

	created := 0
	var errs []error
	for i := range rules {
		rule := &rules[i]

		if err := rule.Validate(); err != nil {
			e.log.WarnContext(ctx, "skipping malformed rule",
				slog.String("rule_id", rule.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		if !rule.Matches(sig, now) {
			continue
		}

		inserted := false
		err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
			var txErr error
			inserted, txErr = e.notifications.InsertIgnore(txCtx, domain.NewNotification(rule, sig, now))
			if txErr != nil {
				return txErr
			}
			if !inserted {
				// Already emitted for this signal (replay after restart).
				return nil
			}
			return e.rules.IncrementTrigger(txCtx, rule.ID, now)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if inserted {
			created++
			e.log.InfoContext(ctx, "notification created",
				slog.String("rule_id", rule.ID.String()),
				slog.String("kind", string(sig.Kind)),
				slog.String("reference", sig.Event.Reference),
			)
		}
	}

	if created > 0 && e.obs != nil {
		e.obs.ObserveNotifications(created)
	}

	return created, errors.Join(errs...)
}
