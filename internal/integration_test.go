package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"smart-building-backend/config"
	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/model"
	"smart-building-backend/internal/overtime"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/schedule"
	"smart-building-backend/internal/store"
)

// TestRelayCoordinationLifecycle walks one day of relay control: the
// schedule switches a light on, a manual toggle overrides it, the
// override times out, and an overtime session then drives the second
// light through start and cut-off.
func TestRelayCoordinationLifecycle(t *testing.T) {
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, testDB.AutoMigrate(&model.ScheduleRule{}, &model.OvertimeSession{}, &model.PushSubscription{}))

	appStore := store.NewGormStore(testDB)
	relays := relaystate.NewMemory()

	// A short timeout keeps the manual-expiry leg of the test fast.
	coord := coordinator.New(relays, 100*time.Millisecond, nil)

	evalCfg := config.EvaluatorConfig{Interval: time.Minute, Timezone: "UTC"}
	otEval, err := overtime.NewEvaluator(appStore, relays, coord, nil, evalCfg)
	require.NoError(t, err)
	schedEval, err := schedule.NewEvaluator(appStore, relays, coord, otEval, evalCfg)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC()

	// --- Leg 1: the schedule switches relay1 on ---
	rule := model.ScheduleRule{
		Name:       "all day",
		DeviceType: model.Relay1,
		DayOfWeek:  model.DayName(now),
		StartTime:  "00:00",
		EndTime:    "23:59",
		IsActive:   true,
	}
	require.NoError(t, appStore.CreateRule(ctx, &rule))

	require.NoError(t, schedEval.EvaluateOnce(ctx, now))
	v, _ := relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v, "schedule window is open, relay1 on")

	// --- Leg 2: a manual toggle wins over the schedule ---
	require.NoError(t, coord.ManualSet(ctx, model.Relay1, 0))
	require.NoError(t, schedEval.EvaluateOnce(ctx, now.Add(time.Second)))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 0, v, "the schedule must not fight a manual override")

	// --- Leg 3: the override expires and automatic control resumes ---
	assert.Eventually(t, func() bool {
		manual, _ := coord.ManualMode(ctx)
		return !manual
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, schedEval.EvaluateOnce(ctx, now.Add(2*time.Second)))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v, "the schedule repairs the relay after the override expires")

	// --- Leg 4: an overtime session drives relay2 ---
	session := model.OvertimeSession{
		EmployeeName:   "Budi",
		DivisionName:   "IT",
		OvertimeDate:   now.Format("2006-01-02"),
		StartTime:      "00:00",
		LightSelection: model.LightITMS2,
	}
	require.NoError(t, appStore.CreateSession(ctx, &session))

	require.NoError(t, otEval.EvaluateOnce(ctx, now))
	got, err := appStore.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	v, _ = relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 1, v)

	// --- Leg 5: cut-off completes the session and clears relay2 ---
	updated, err := otEval.Cutoff(ctx, session.ID, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)

	v, _ = relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 0, v)

	// The cut-off's all-off pass also dropped relay1; the next schedule
	// tick restores it.
	require.NoError(t, schedEval.EvaluateOnce(ctx, now.Add(3*time.Second)))
	v, _ = relays.Relay(ctx, model.Relay1)
	assert.Equal(t, 1, v)
}

// TestScheduleHoldsDuringOvertime pins the hand-off between the two
// evaluators: while a session is Running, schedule ticks must not pull
// down the relay it holds, even with no schedule window open.
func TestScheduleHoldsDuringOvertime(t *testing.T) {
	testDB, err := gorm.Open(sqlite.Open("file:schedhold?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, testDB.AutoMigrate(&model.ScheduleRule{}, &model.OvertimeSession{}, &model.PushSubscription{}))

	appStore := store.NewGormStore(testDB)
	relays := relaystate.NewMemory()
	coord := coordinator.New(relays, 0, nil)

	evalCfg := config.EvaluatorConfig{Interval: time.Minute, Timezone: "UTC"}
	otEval, err := overtime.NewEvaluator(appStore, relays, coord, nil, evalCfg)
	require.NoError(t, err)
	schedEval, err := schedule.NewEvaluator(appStore, relays, coord, otEval, evalCfg)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC()

	// An open-ended session keeps the Running set non-empty across the
	// whole test. No schedule rule exists, so the schedule's desired
	// state is all-off.
	session := model.OvertimeSession{
		EmployeeName:   "Budi",
		DivisionName:   "IT",
		OvertimeDate:   now.Format("2006-01-02"),
		StartTime:      "00:00",
		LightSelection: model.LightITMS2,
	}
	require.NoError(t, appStore.CreateSession(ctx, &session))

	require.NoError(t, otEval.EvaluateOnce(ctx, now))
	v, _ := relays.Relay(ctx, model.Relay2)
	require.Equal(t, 1, v)

	require.NoError(t, schedEval.EvaluateOnce(ctx, now.Add(time.Second)))
	v, _ = relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 1, v, "a schedule tick must not turn off a relay held by a running session")

	// Once the session completes the schedule takes the relays back.
	_, err = otEval.Complete(ctx, session.ID, now.Add(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, schedEval.EvaluateOnce(ctx, now.Add(3*time.Second)))
	v, _ = relays.Relay(ctx, model.Relay2)
	assert.Equal(t, 0, v)
}
