package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-building-backend/internal/model"
	"smart-building-backend/internal/relaystate"
)

// fakeClock is a manually advanced clock for driving the expiry timer.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires every timer that came due.
// The callbacks run outside the clock lock, like real timer goroutines.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, relaystate.Store, *fakeClock) {
	t.Helper()
	store := relaystate.NewMemory()
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	return New(store, 10*time.Minute, clock), store, clock
}

func TestManualSet_EntersManualModeAndWritesRelay(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.ManualSet(ctx, model.Relay1, 1))

	manual, err := store.ManualMode(ctx)
	require.NoError(t, err)
	assert.True(t, manual)

	v, err := store.Relay(ctx, model.Relay1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, active := coord.LastManualActivity()
	assert.True(t, active)
}

func TestManualMode_ExpiresExactlyOnce(t *testing.T) {
	coord, store, clock := newTestCoordinator(t)
	ctx := context.Background()

	var events []Event
	coord.Notifier().Subscribe(func(e Event) { events = append(events, e) })

	require.NoError(t, coord.ManualSet(ctx, model.Relay2, 1))
	require.Len(t, events, 1)
	assert.Equal(t, ModeManual, events[0].Mode)
	assert.Equal(t, SourceUserAction, events[0].Source)

	// Just short of the timeout nothing happens.
	clock.Advance(10*time.Minute - time.Second)
	manual, _ := store.ManualMode(ctx)
	assert.True(t, manual)
	assert.Len(t, events, 1)

	clock.Advance(time.Second)
	manual, _ = store.ManualMode(ctx)
	assert.False(t, manual)
	require.Len(t, events, 2)
	assert.Equal(t, ModeAuto, events[1].Mode)
	assert.Equal(t, SourceTimeout, events[1].Source)

	// No second expiry later on.
	clock.Advance(time.Hour)
	assert.Len(t, events, 2)

	_, active := coord.LastManualActivity()
	assert.False(t, active)
}

func TestManualMode_ActivityReArmsCountdown(t *testing.T) {
	coord, store, clock := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.ManualSet(ctx, model.Relay1, 1))
	clock.Advance(7 * time.Minute)

	// A second toggle restarts the countdown; the first timer must not
	// fire at the 10 minute mark.
	require.NoError(t, coord.ManualSet(ctx, model.Relay1, 0))
	clock.Advance(7 * time.Minute)

	manual, _ := store.ManualMode(ctx)
	assert.True(t, manual, "countdown should be measured from the last action")

	clock.Advance(3 * time.Minute)
	manual, _ = store.ManualMode(ctx)
	assert.False(t, manual)
}

func TestManualSOS_ForcesBothRelays(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.ManualSOS(ctx, 1))

	sos, _ := store.SOS(ctx)
	assert.Equal(t, 1, sos)
	for _, id := range model.AllRelays() {
		v, err := store.Relay(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, v, "relay %s should follow SOS", id)
	}
	manual, _ := store.ManualMode(ctx)
	assert.True(t, manual)

	require.NoError(t, coord.ManualSOS(ctx, 0))
	sos, _ = store.SOS(ctx)
	assert.Equal(t, 0, sos)
	for _, id := range model.AllRelays() {
		v, _ := store.Relay(ctx, id)
		assert.Equal(t, 0, v, "relay %s should clear with SOS", id)
	}
}

func TestResumeAuto_CancelsCountdown(t *testing.T) {
	coord, store, clock := newTestCoordinator(t)
	ctx := context.Background()

	var events []Event
	coord.Notifier().Subscribe(func(e Event) { events = append(events, e) })

	require.NoError(t, coord.ManualSet(ctx, model.Relay1, 1))
	require.NoError(t, coord.ResumeAuto(ctx, SourceCutoff))

	manual, _ := store.ManualMode(ctx)
	assert.False(t, manual)

	// The cancelled countdown must not publish a timeout later.
	clock.Advance(time.Hour)
	require.Len(t, events, 2)
	assert.Equal(t, ModeAuto, events[1].Mode)
	assert.Equal(t, SourceCutoff, events[1].Source)
}

func TestNotifier_DeliversInRegistrationOrder(t *testing.T) {
	n := NewNotifier()

	var order []string
	n.Subscribe(func(Event) { order = append(order, "first") })
	unsub := n.Subscribe(func(Event) { order = append(order, "second") })
	n.Subscribe(func(Event) { order = append(order, "third") })

	n.Publish(Event{Mode: ModeManual})
	assert.Equal(t, []string{"first", "second", "third"}, order)

	unsub()
	order = nil
	n.Publish(Event{Mode: ModeAuto})
	assert.Equal(t, []string{"first", "third"}, order)
}
