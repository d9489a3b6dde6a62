// Package overtime drives the lifecycle of overtime sessions and the
// relay outputs that follow from them. Sessions advance NotStarted ->
// Running -> Completed as wall-clock time passes; the relays are held on
// for the union of the light selections of all Running sessions, and the
// last session out turns the lights off.
package overtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"smart-building-backend/config"
	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/model"
	"smart-building-backend/internal/notification"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/store"
)

// ErrNotRunning is returned by Cutoff for a session that is not Running.
var ErrNotRunning = errors.New("overtime session is not running")

// ErrCompleted is returned by Start for a session that has already
// completed. Completed is terminal.
var ErrCompleted = errors.New("overtime session is already completed")

// ErrNotDue is returned by Start for a session whose start time has not
// been reached yet.
var ErrNotDue = errors.New("overtime session has not reached its start time")

// Alerter receives overtime lifecycle alerts for operator notification.
// A nil Alerter disables alerts.
type Alerter interface {
	Dispatch(job notification.Job)
}

// Evaluator polls the session list, applies due status transitions, and
// reconciles relay state after any transition.
type Evaluator struct {
	sessions store.Store
	relays   relaystate.Store
	coord    *coordinator.Coordinator
	alerts   Alerter
	interval time.Duration
	loc      *time.Location

	// mu serializes evaluation passes: the polling loop and the HTTP
	// handlers both drive the same transition logic.
	mu sync.Mutex
}

// NewEvaluator creates an overtime evaluator.
func NewEvaluator(sessions store.Store, relays relaystate.Store, coord *coordinator.Coordinator, alerts Alerter, cfg config.EvaluatorConfig) (*Evaluator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	return &Evaluator{
		sessions: sessions,
		relays:   relays,
		coord:    coord,
		alerts:   alerts,
		interval: cfg.Interval,
		loc:      loc,
	}, nil
}

// Location returns the evaluator's wall-clock location.
func (e *Evaluator) Location() *time.Location { return e.loc }

// Run evaluates on a fixed interval until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	log.Println("Starting overtime evaluator...")
	e.tick(ctx)

	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Overtime evaluator shutting down.")
			return
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.interval)
		}
	}
}

func (e *Evaluator) tick(ctx context.Context) {
	if err := e.EvaluateOnce(ctx, time.Now().In(e.loc)); err != nil {
		log.Printf("overtime: evaluation failed: %v", err)
	}
}

// EvaluateOnce runs a single evaluation for the given instant: it applies
// every due status transition and, only if some transition occurred,
// recomputes and writes the relay outputs. A fetch failure abandons the
// tick; the next interval retries. An empty session list with no
// transition writes nothing, so a transient empty response cannot switch
// the lights off by itself.
func (e *Evaluator) EvaluateOnce(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.sessions.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sessions: %w", err)
	}

	transitioned := false
	for i := range sessions {
		s := &sessions[i]
		next, ok := nextStatus(*s, now, e.loc)
		if !ok || next == s.Status {
			continue
		}
		if err := e.persistTransition(ctx, s, next, now); err != nil {
			log.Printf("overtime: failed to persist transition of session %d: %v", s.ID, err)
			continue
		}
		s.Status = next
		transitioned = true
	}

	if !transitioned {
		return nil
	}
	return e.applyRelays(ctx, runningOf(sessions))
}

func (e *Evaluator) persistTransition(ctx context.Context, s *model.OvertimeSession, next model.SessionStatus, now time.Time) error {
	switch next {
	case model.StatusRunning:
		if err := e.sessions.StartSession(ctx, s.ID); err != nil {
			return err
		}
		log.Printf("overtime: session %d (%s) started", s.ID, s.EmployeeName)
		e.alert(notification.Job{SessionID: s.ID, Kind: notification.KindStarted})
	case model.StatusCompleted:
		duration := durationMinutes(*s, now, e.loc)
		if err := e.sessions.CompleteSession(ctx, s.ID, now.Format("15:04"), duration); err != nil {
			return err
		}
		log.Printf("overtime: session %d (%s) completed", s.ID, s.EmployeeName)
		e.alert(notification.Job{SessionID: s.ID, Kind: notification.KindCompleted})
	}
	return nil
}

// Start marks a session Running without waiting for the next poll and
// reconciles the relays. Starting an already Running session only
// re-reconciles; a Completed session is never restarted, and a session
// whose start time lies in the future is not started early.
func (e *Evaluator) Start(ctx context.Context, id int64, now time.Time) (model.OvertimeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return model.OvertimeSession{}, err
	}
	if session.Status == model.StatusCompleted {
		return session, ErrCompleted
	}
	if session.Status == model.StatusNotStarted {
		start, err := session.StartAt(e.loc)
		if err != nil {
			return session, fmt.Errorf("failed to parse start of session %d: %w", id, err)
		}
		if now.Before(start) {
			return session, ErrNotDue
		}
		if err := e.sessions.StartSession(ctx, id); err != nil {
			return session, fmt.Errorf("failed to start session %d: %w", id, err)
		}
		log.Printf("overtime: session %d (%s) started", id, session.EmployeeName)
		e.alert(notification.Job{SessionID: id, Kind: notification.KindStarted})
	}
	return e.reconcile(ctx, id)
}

// Complete marks a session Completed without waiting for the next poll
// and reconciles the relays. Completing an already Completed session is
// a no-op.
func (e *Evaluator) Complete(ctx context.Context, id int64, now time.Time) (model.OvertimeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return model.OvertimeSession{}, err
	}
	if session.Status != model.StatusCompleted {
		duration := durationMinutes(session, now, e.loc)
		if err := e.sessions.CompleteSession(ctx, id, now.Format("15:04"), duration); err != nil {
			return session, fmt.Errorf("failed to complete session %d: %w", id, err)
		}
		log.Printf("overtime: session %d (%s) completed", id, session.EmployeeName)
		e.alert(notification.Job{SessionID: id, Kind: notification.KindCompleted})
	}
	return e.reconcile(ctx, id)
}

// reconcile refetches the session list, applies the relay outputs of the
// Running set, and returns the session's fresh row.
func (e *Evaluator) reconcile(ctx context.Context, id int64) (model.OvertimeSession, error) {
	if err := e.resync(ctx); err != nil {
		return model.OvertimeSession{}, err
	}
	return e.sessions.GetSession(ctx, id)
}

// Resync reapplies the relay outputs of the current Running set. Callers
// use it after out-of-band session changes, such as deleting a Running
// session, that EvaluateOnce would not see as a transition.
func (e *Evaluator) Resync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resync(ctx)
}

// ActiveAt reports whether any session claims relay control at the
// given instant: a Running session, or a NotStarted session dated today
// whose start time has been reached. The schedule evaluator stands down
// while this holds, so its default-off windows cannot pull a relay low
// underneath an overtime session.
func (e *Evaluator) ActiveAt(ctx context.Context, now time.Time) (bool, error) {
	sessions, err := e.sessions.ListSessions(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fetch sessions: %w", err)
	}
	today := now.In(e.loc).Format("2006-01-02")
	for _, s := range sessions {
		if s.Status == model.StatusRunning {
			return true, nil
		}
		if s.Status != model.StatusNotStarted || s.OvertimeDate != today {
			continue
		}
		start, err := s.StartAt(e.loc)
		if err != nil {
			continue
		}
		if !now.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) resync(ctx context.Context) error {
	sessions, err := e.sessions.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to refetch sessions: %w", err)
	}
	return e.applyRelays(ctx, runningOf(sessions))
}

// Cutoff completes a Running session immediately, bypassing its end time,
// and forces the system back to automatic control so the remaining
// Running set takes effect right away instead of after the manual-mode
// countdown.
func (e *Evaluator) Cutoff(ctx context.Context, id int64, now time.Time) (model.OvertimeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return model.OvertimeSession{}, err
	}
	if session.Status != model.StatusRunning {
		return session, ErrNotRunning
	}

	duration := durationMinutes(session, now, e.loc)
	if err := e.sessions.CompleteSession(ctx, id, now.Format("15:04"), duration); err != nil {
		return session, fmt.Errorf("failed to complete session %d: %w", id, err)
	}
	log.Printf("overtime: session %d (%s) cut off", id, session.EmployeeName)
	e.alert(notification.Job{SessionID: id, Kind: notification.KindCutOff})

	// Automatic control resumes immediately on cut-off.
	if err := e.coord.ResumeAuto(ctx, coordinator.SourceCutoff); err != nil {
		log.Printf("overtime: failed to resume auto mode after cutoff: %v", err)
	}

	updated, err := e.reconcile(ctx, id)
	if err != nil {
		return session, err
	}
	return updated, nil
}

// applyRelays reconciles the relay outputs with the Running set. The
// manual-mode flag is re-read from the store immediately before each
// write, not cached from the top of the tick.
func (e *Evaluator) applyRelays(ctx context.Context, running []model.OvertimeSession) error {
	desired := DesiredRelays(running)
	for _, id := range model.AllRelays() {
		current, err := e.relays.Relay(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", id, err)
		}
		if current == desired[id] {
			continue
		}
		manual, err := e.coord.ManualMode(ctx)
		if err != nil {
			return fmt.Errorf("failed to read manual mode: %w", err)
		}
		if manual {
			return nil
		}
		if err := e.relays.SetRelay(ctx, id, desired[id]); err != nil {
			log.Printf("overtime: failed to write %s=%d: %v", id, desired[id], err)
			continue
		}
		log.Printf("overtime: %s -> %d", id, desired[id])
	}
	return nil
}

func (e *Evaluator) alert(job notification.Job) {
	if e.alerts != nil {
		e.alerts.Dispatch(job)
	}
}

func runningOf(sessions []model.OvertimeSession) []model.OvertimeSession {
	var running []model.OvertimeSession
	for _, s := range sessions {
		if s.Status == model.StatusRunning {
			running = append(running, s)
		}
	}
	return running
}

// DesiredRelays computes the union of relay requirements over the
// Running sessions: a relay is on when any Running session's light
// selection covers it, and both relays are off when the set is empty.
func DesiredRelays(running []model.OvertimeSession) map[model.RelayID]int {
	desired := make(map[model.RelayID]int, 2)
	for _, id := range model.AllRelays() {
		desired[id] = 0
		for _, s := range running {
			if s.LightSelection.Covers(id) {
				desired[id] = 1
				break
			}
		}
	}
	return desired
}

// nextStatus computes the status a session should hold at the given
// instant. Completed is terminal: editing a completed session's time
// fields does not resurrect it. The second return is false for sessions
// whose time fields fail to parse; those are left untouched.
func nextStatus(s model.OvertimeSession, now time.Time, loc *time.Location) (model.SessionStatus, bool) {
	if s.Status == model.StatusCompleted {
		return model.StatusCompleted, true
	}
	start, err := s.StartAt(loc)
	if err != nil {
		return s.Status, false
	}
	end, err := s.EndAt(loc)
	if err != nil {
		return s.Status, false
	}

	switch s.Status {
	case model.StatusNotStarted:
		if now.Before(start) {
			return model.StatusNotStarted, true
		}
		// The whole window may already have elapsed.
		if end != nil && !now.Before(*end) {
			return model.StatusCompleted, true
		}
		return model.StatusRunning, true
	case model.StatusRunning:
		if end != nil && !now.Before(*end) {
			return model.StatusCompleted, true
		}
		return model.StatusRunning, true
	}
	return s.Status, true
}

func durationMinutes(s model.OvertimeSession, now time.Time, loc *time.Location) *int {
	start, err := s.StartAt(loc)
	if err != nil || now.Before(start) {
		return nil
	}
	minutes := int(now.Sub(start).Minutes())
	return &minutes
}
