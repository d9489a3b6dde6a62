// Package coordinator reconciles the three authorities that compete for
// the relays: manual operator toggles, the time-of-day lighting schedule,
// and overtime sessions. Its invariant: manual intent always wins over
// automatic intent for a bounded window, after which automatic control
// resumes. Only the manual trigger may set the manual-mode flag; the
// evaluators read it and stand down.
//
// The mode flag itself lives in the shared store and is last-write-wins;
// two processes toggling it simultaneously race, which is a known
// limitation of the store's concurrency model.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"smart-building-backend/internal/model"
	"smart-building-backend/internal/relaystate"
)

// DefaultManualTimeout is how long manual mode holds without further
// manual activity before automatic control resumes.
const DefaultManualTimeout = 10 * time.Minute

// Coordinator owns the manual-mode state machine: the store-backed flag,
// the local expiry timer, and the mode-change notifier.
type Coordinator struct {
	store    relaystate.Store
	notifier *Notifier
	clock    Clock
	timeout  time.Duration

	mu         sync.Mutex
	timer      Timer
	generation int
	lastManual time.Time // zero while in auto mode
}

// New creates a coordinator. A nil clock means the system clock; a
// non-positive timeout means DefaultManualTimeout.
func New(store relaystate.Store, timeout time.Duration, clock Clock) *Coordinator {
	if clock == nil {
		clock = RealClock()
	}
	if timeout <= 0 {
		timeout = DefaultManualTimeout
	}
	return &Coordinator{
		store:    store,
		notifier: NewNotifier(),
		clock:    clock,
		timeout:  timeout,
	}
}

// Notifier exposes the mode-change broadcast for displays and evaluators.
func (c *Coordinator) Notifier() *Notifier { return c.notifier }

// ManualMode reads the authoritative flag from the store. Evaluators
// must call this immediately before writing relays, not at the top of a
// tick, to shrink the race window against a concurrent manual action.
func (c *Coordinator) ManualMode(ctx context.Context) (bool, error) {
	return c.store.ManualMode(ctx)
}

// LastManualActivity returns the time of the most recent manual action,
// or false while in auto mode.
func (c *Coordinator) LastManualActivity() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastManual, !c.lastManual.IsZero()
}

// ManualSet applies an operator toggle of a single relay: it raises the
// manual-mode flag, (re)arms the expiry countdown, writes the relay, and
// broadcasts the transition. Store write failures are logged and the
// local mode state is kept armed regardless (best-effort semantics).
func (c *Coordinator) ManualSet(ctx context.Context, id model.RelayID, value int) error {
	now := c.enterManual(ctx)

	err := c.store.SetRelay(ctx, id, value)
	if err != nil {
		log.Printf("coordinator: manual write of %s=%d failed: %v", id, value, err)
	}

	c.notifier.Publish(Event{Mode: ModeManual, Timestamp: now, Source: SourceUserAction})
	return err
}

// ManualSOS applies the SOS override: SOS is all-on/all-off, not an
// independent third relay, so both relays are forced to the same value.
func (c *Coordinator) ManualSOS(ctx context.Context, value int) error {
	now := c.enterManual(ctx)

	err := c.store.SetSOS(ctx, value)
	if err != nil {
		log.Printf("coordinator: manual write of sos=%d failed: %v", value, err)
	}
	for _, id := range model.AllRelays() {
		if werr := c.store.SetRelay(ctx, id, value); werr != nil {
			log.Printf("coordinator: sos write of %s=%d failed: %v", id, value, werr)
			if err == nil {
				err = werr
			}
		}
	}

	c.notifier.Publish(Event{Mode: ModeManual, Timestamp: now, Source: SourceUserAction})
	return err
}

// enterManual raises the store flag and re-arms the expiry timer,
// cancelling any pending countdown. Countdowns never stack: expiry needs
// timeout's worth of manual inactivity, not timeout from the first action.
func (c *Coordinator) enterManual(ctx context.Context) time.Time {
	if err := c.store.SetManualMode(ctx, true); err != nil {
		log.Printf("coordinator: failed to set manual mode flag: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.lastManual = now
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.timer = c.clock.AfterFunc(c.timeout, func() { c.expire(gen) })
	return now
}

// expire fires when the countdown elapses. A countdown superseded by a
// re-arm or an explicit resume is ignored via the generation check.
func (c *Coordinator) expire(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.lastManual = time.Time{}
	c.mu.Unlock()

	if err := c.store.SetManualMode(context.Background(), false); err != nil {
		log.Printf("coordinator: failed to clear manual mode flag on expiry: %v", err)
	}
	c.notifier.Publish(Event{Mode: ModeAuto, Timestamp: c.clock.Now(), Source: SourceTimeout})
}

// ResumeAuto ends manual mode immediately, without waiting for the
// countdown. Used by the overtime cut-off action.
func (c *Coordinator) ResumeAuto(ctx context.Context, source Source) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.lastManual = time.Time{}
	c.mu.Unlock()

	err := c.store.SetManualMode(ctx, false)
	if err != nil {
		log.Printf("coordinator: failed to clear manual mode flag: %v", err)
	}
	c.notifier.Publish(Event{Mode: ModeAuto, Timestamp: c.clock.Now(), Source: source})
	return err
}
