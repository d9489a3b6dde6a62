// Package schedule evaluates the recurring lighting schedule and
// reconciles relay state with it while the system is in automatic mode.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smart-building-backend/config"
	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/model"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/store"
)

// OvertimeGuard reports whether overtime sessions currently claim relay
// control. A nil guard never stands the evaluator down.
type OvertimeGuard interface {
	ActiveAt(ctx context.Context, now time.Time) (bool, error)
}

// Evaluator recomputes the desired relay states from the active rule set
// on every tick. There is no memory of previous schedule decisions: the
// desired state is rebuilt from scratch each time, so two back-to-back
// rules with a gap between them will switch the relay off for the gap.
type Evaluator struct {
	rules    store.Store
	relays   relaystate.Store
	coord    *coordinator.Coordinator
	overtime OvertimeGuard
	interval time.Duration
	loc      *time.Location

	refreshCh chan struct{}

	mu       sync.Mutex
	lastTick time.Time
}

// NewEvaluator creates a schedule evaluator.
func NewEvaluator(rules store.Store, relays relaystate.Store, coord *coordinator.Coordinator, overtime OvertimeGuard, cfg config.EvaluatorConfig) (*Evaluator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	return &Evaluator{
		rules:     rules,
		relays:    relays,
		coord:     coord,
		overtime:  overtime,
		interval:  cfg.Interval,
		loc:       loc,
		refreshCh: make(chan struct{}, 1),
	}, nil
}

// Location returns the evaluator's wall-clock location.
func (e *Evaluator) Location() *time.Location { return e.loc }

// TriggerRefresh requests an immediate evaluation outside the regular tick.
func (e *Evaluator) TriggerRefresh() {
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

// Run evaluates on a fixed interval until the context is cancelled. When
// the coordinator announces a return to automatic mode, the next tick is
// pulled forward instead of waiting out the interval.
func (e *Evaluator) Run(ctx context.Context) {
	unsubscribe := e.coord.Notifier().Subscribe(func(ev coordinator.Event) {
		if ev.Mode == coordinator.ModeAuto {
			e.TriggerRefresh()
		}
	})
	defer unsubscribe()

	log.Println("Starting schedule evaluator...")
	e.tick(ctx, false)

	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		force := false
		select {
		case <-ctx.Done():
			log.Println("Schedule evaluator shutting down.")
			return
		case <-e.refreshCh:
			force = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		e.tick(ctx, force)
		timer.Reset(e.interval)
	}
}

func (e *Evaluator) tick(ctx context.Context, force bool) {
	if err := e.evaluate(ctx, time.Now().In(e.loc), force); err != nil {
		log.Printf("schedule: evaluation failed: %v", err)
	}
}

// EvaluateOnce runs a single evaluation for the given instant. Repeated
// calls within the same wall-clock second are no-ops.
func (e *Evaluator) EvaluateOnce(ctx context.Context, now time.Time) error {
	return e.evaluate(ctx, now, false)
}

// evaluate is the body of a tick. A forced evaluation (a refresh pulled
// forward by a mode change) bypasses the same-second dedupe, so a relay
// knocked out by an expiring manual window is repaired immediately even
// when a regular tick just ran.
func (e *Evaluator) evaluate(ctx context.Context, now time.Time, force bool) error {
	sec := now.Truncate(time.Second)
	e.mu.Lock()
	if !force && sec.Equal(e.lastTick) {
		e.mu.Unlock()
		return nil
	}
	e.lastTick = sec
	e.mu.Unlock()

	manual, err := e.coord.ManualMode(ctx)
	if err != nil {
		return fmt.Errorf("failed to read manual mode: %w", err)
	}
	if manual {
		return nil
	}

	// Overtime owns the relays while a session is Running or due. The
	// schedule has no window memory, so writing here would switch off
	// lights the overtime evaluator is holding on.
	if e.overtime != nil {
		active, err := e.overtime.ActiveAt(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to check overtime activity: %w", err)
		}
		if active {
			return nil
		}
	}

	rules, err := e.rules.ActiveRulesForDay(ctx, model.DayName(now))
	if err != nil {
		return err
	}
	desired := Desired(rules, now)

	for _, id := range model.AllRelays() {
		current, err := e.relays.Relay(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", id, err)
		}
		if desired[id] == current {
			continue
		}
		// Re-read the flag right before writing: a manual toggle may have
		// landed since the check at the top of the tick.
		manual, err = e.coord.ManualMode(ctx)
		if err != nil || manual {
			return err
		}
		if err := e.relays.SetRelay(ctx, id, desired[id]); err != nil {
			log.Printf("schedule: failed to write %s=%d: %v", id, desired[id], err)
			continue
		}
		log.Printf("schedule: %s -> %d", id, desired[id])
	}
	return nil
}

// Desired computes the relay states the rule set asks for at the given
// instant. Relays default to off outside any matching window; matching
// windows OR together, so any active window wins ON. Rules that fail
// their own invariants (including midnight-crossing windows) are skipped.
func Desired(rules []model.ScheduleRule, now time.Time) map[model.RelayID]int {
	desired := make(map[model.RelayID]int, 2)
	for _, id := range model.AllRelays() {
		desired[id] = 0
	}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if err := rule.Validate(); err != nil {
			log.Printf("schedule: skipping malformed rule %d: %v", rule.ID, err)
			continue
		}
		if rule.Contains(now) {
			desired[rule.DeviceType] = 1
		}
	}
	return desired
}
