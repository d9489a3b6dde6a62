package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-building-backend/config"
	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/model"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/store"
)

// fakeRules serves a fixed rule set; every other store method panics.
type fakeRules struct {
	store.Store
	rules []model.ScheduleRule
}

func (f *fakeRules) ActiveRulesForDay(_ context.Context, day string) ([]model.ScheduleRule, error) {
	var out []model.ScheduleRule
	for _, r := range f.rules {
		if r.IsActive && r.DayOfWeek == day {
			out = append(out, r)
		}
	}
	return out, nil
}

// monday returns a fixed Monday at the given clock time.
func monday(hh, mm int) time.Time {
	return time.Date(2025, 3, 10, hh, mm, 0, 0, time.UTC)
}

func rule(id int64, relay model.RelayID, day, start, end string) model.ScheduleRule {
	return model.ScheduleRule{
		ID:         id,
		Name:       "test rule",
		DeviceType: relay,
		DayOfWeek:  day,
		StartTime:  start,
		EndTime:    end,
		IsActive:   true,
	}
}

// stubGuard reports a fixed overtime-activity answer.
type stubGuard struct {
	active bool
}

func (g *stubGuard) ActiveAt(context.Context, time.Time) (bool, error) {
	return g.active, nil
}

func newTestEvaluator(t *testing.T, rules []model.ScheduleRule) (*Evaluator, relaystate.Store) {
	t.Helper()
	relays := relaystate.NewMemory()
	coord := coordinator.New(relays, 0, nil)
	eval, err := NewEvaluator(&fakeRules{rules: rules}, relays, coord, nil, config.EvaluatorConfig{
		Interval: time.Minute,
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return eval, relays
}

func TestDesired_WindowBoundsAreInclusive(t *testing.T) {
	rules := []model.ScheduleRule{rule(1, model.Relay1, "monday", "09:00", "14:00")}

	testCases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"one minute before start", monday(8, 59), 0},
		{"exactly at start", monday(9, 0), 1},
		{"mid window", monday(11, 30), 1},
		{"exactly at end", monday(14, 0), 1},
		{"one minute after end", monday(14, 1), 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			desired := Desired(rules, tc.now)
			assert.Equal(t, tc.want, desired[model.Relay1])
			assert.Equal(t, 0, desired[model.Relay2], "relay2 has no rule and defaults off")
		})
	}
}

func TestDesired_OverlappingWindowsOrTogether(t *testing.T) {
	rules := []model.ScheduleRule{
		rule(1, model.Relay1, "monday", "09:00", "12:00"),
		rule(2, model.Relay1, "monday", "11:00", "15:00"),
		rule(3, model.Relay2, "monday", "13:00", "14:00"),
	}

	desired := Desired(rules, monday(11, 30))
	assert.Equal(t, 1, desired[model.Relay1], "inside both windows")
	assert.Equal(t, 0, desired[model.Relay2])

	desired = Desired(rules, monday(14, 30))
	assert.Equal(t, 1, desired[model.Relay1], "still inside the second window")
	assert.Equal(t, 0, desired[model.Relay2], "relay2 window already closed")
}

func TestDesired_SkipsInactiveAndMalformedRules(t *testing.T) {
	inactive := rule(1, model.Relay1, "monday", "09:00", "14:00")
	inactive.IsActive = false

	// A midnight-crossing window fails validation and must never match.
	crossing := rule(2, model.Relay2, "monday", "22:00", "02:00")

	desired := Desired([]model.ScheduleRule{inactive, crossing}, monday(10, 0))
	assert.Equal(t, 0, desired[model.Relay1])
	assert.Equal(t, 0, desired[model.Relay2])

	desired = Desired([]model.ScheduleRule{crossing}, monday(23, 0))
	assert.Equal(t, 0, desired[model.Relay2], "midnight-crossing rule is skipped even inside its nominal window")
}

func TestEvaluateOnce_ReconcilesRelays(t *testing.T) {
	eval, relays := newTestEvaluator(t, []model.ScheduleRule{
		rule(1, model.Relay1, "monday", "09:00", "14:00"),
	})
	ctx := context.Background()

	require.NoError(t, eval.EvaluateOnce(ctx, monday(10, 0)))
	v, _ := relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v)

	require.NoError(t, eval.EvaluateOnce(ctx, monday(14, 1)))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 0, v)
}

func TestEvaluateOnce_ManualModeStandsDown(t *testing.T) {
	eval, relays := newTestEvaluator(t, []model.ScheduleRule{
		rule(1, model.Relay1, "monday", "09:00", "14:00"),
	})
	ctx := context.Background()

	require.NoError(t, relays.SetManualMode(ctx, true))
	require.NoError(t, eval.EvaluateOnce(ctx, monday(10, 0)))

	v, _ := relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 0, v, "the evaluator must not touch relays in manual mode")
}

func TestEvaluateOnce_OvertimeStandsDown(t *testing.T) {
	eval, relays := newTestEvaluator(t, nil)
	guard := &stubGuard{active: true}
	eval.overtime = guard
	ctx := context.Background()

	// Relay2 is held on from outside the schedule, which has no rule for
	// it. While overtime is active the evaluator must leave it alone.
	require.NoError(t, relays.SetRelay(ctx, model.Relay2, 1))
	require.NoError(t, eval.EvaluateOnce(ctx, monday(22, 0)))
	v, _ := relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 1, v, "a running overtime session keeps its relay across schedule ticks")

	// Once the overtime set drains, the default-off schedule takes over.
	guard.active = false
	require.NoError(t, eval.EvaluateOnce(ctx, monday(22, 1)))
	v, _ = relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 0, v)
}

func TestEvaluateOnce_DedupesWithinOneSecond(t *testing.T) {
	eval, relays := newTestEvaluator(t, []model.ScheduleRule{
		rule(1, model.Relay1, "monday", "09:00", "14:00"),
	})
	ctx := context.Background()
	now := monday(10, 0)

	require.NoError(t, eval.EvaluateOnce(ctx, now))
	v, _ := relays.Relay(ctx, model.Relay1)
	require.Equal(t, 1, v)

	// Knock the relay out from under the evaluator; a repeated call for
	// the same second is a no-op and must not repair it.
	require.NoError(t, relays.SetRelay(ctx, model.Relay1, 0))
	require.NoError(t, eval.EvaluateOnce(ctx, now))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 0, v)

	// The next second evaluates again.
	require.NoError(t, eval.EvaluateOnce(ctx, now.Add(time.Second)))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v)
}

func TestEvaluate_ForcedRefreshBypassesDedupe(t *testing.T) {
	eval, relays := newTestEvaluator(t, []model.ScheduleRule{
		rule(1, model.Relay1, "monday", "09:00", "14:00"),
	})
	ctx := context.Background()
	now := monday(10, 0)

	require.NoError(t, eval.EvaluateOnce(ctx, now))
	require.NoError(t, relays.SetRelay(ctx, model.Relay1, 0))

	// A refresh pulled forward by a mode change lands in the same second
	// as the regular tick and must still repair the relay.
	require.NoError(t, eval.evaluate(ctx, now, true))
	v, _ := relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v)
}
