package chaos

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFillsDefaults(t *testing.T) {
	inj := NewInjector()
	ev, err := inj.Add(Event{Type: TrafficSpike})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, defaultDuration, ev.Duration)
	assert.Equal(t, 3.0, ev.Params[ParamMultiplier])
	assert.Len(t, inj.Events(), 1)
}

func TestAddRejectsInvalid(t *testing.T) {
	inj := NewInjector()
	_, err := inj.Add(Event{Type: "meteor"})
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = inj.Add(Event{Type: NetworkPartition})
	assert.True(t, errors.Is(err, ErrMissingTargets))

	ev, err := inj.Add(Event{ID: "fixed", Type: TrafficSpike})
	require.NoError(t, err)
	_, err = inj.Add(ev)
	assert.Error(t, err)
}

func TestActiveWindow(t *testing.T) {
	ev := Event{Type: TrafficSpike, Start: 10 * time.Second, Duration: 5 * time.Second}
	assert.False(t, ev.Active(9*time.Second))
	assert.True(t, ev.Active(10*time.Second))
	assert.True(t, ev.Active(14*time.Second))
	assert.False(t, ev.Active(15*time.Second))
}

func TestMultipliersCompose(t *testing.T) {
	inj := NewInjector()
	for _, ev := range []Event{
		{Type: TrafficSpike, Duration: time.Minute, Params: map[string]float64{ParamMultiplier: 2}},
		{Type: TrafficSpike, Duration: time.Minute, Params: map[string]float64{ParamMultiplier: 1.5}},
		{Type: NetworkLatency, Duration: time.Minute},
		{Type: NetworkPartition, Duration: time.Minute, Targets: []string{"a"}},
		{Type: NetworkPartition, Duration: time.Minute, Targets: []string{"b"}},
		{Type: CacheInvalidation, Duration: time.Minute, Params: map[string]float64{ParamHitRate: 0.3}},
		{Type: CacheInvalidation, Duration: time.Minute, Params: map[string]float64{ParamHitRate: 0.1}},
		{Type: ComponentCrash, Duration: time.Minute, Targets: []string{"c"}, Cause: CauseDeployment},
		{Type: DatabaseSlowdown, Duration: time.Minute, Targets: []string{"db"}, Cause: CauseMigration},
	} {
		_, err := inj.Add(ev)
		require.NoError(t, err)
	}

	m := inj.Multipliers(time.Second)
	assert.InDelta(t, 3.0, m.Traffic, 1e-9)
	assert.InDelta(t, 2.5, m.Latency, 1e-9)
	assert.InDelta(t, 1.5, m.FailureRate, 1e-9)
	assert.True(t, m.Disconnected["a"])
	assert.True(t, m.Disconnected["b"])
	assert.True(t, m.HasCacheHitOverride)
	assert.InDelta(t, 0.1, m.CacheHitOverride, 1e-9)
	assert.True(t, m.Crashed["c"])
	assert.Equal(t, CauseDeployment, m.Causes["c"])
	assert.InDelta(t, 4.0, m.DBLatencyFor("db"), 1e-9)
	assert.InDelta(t, 1.0, m.DBLatencyFor("other"), 1e-9)
	assert.Equal(t, CauseMigration, m.DBCauseFor("db"))
}

func TestTargetedLatencyMarksSlowNodes(t *testing.T) {
	m := Fold([]Event{
		{Type: NetworkLatency, Targets: []string{"x"}, Params: map[string]float64{ParamMultiplier: 2}},
		{Type: NetworkLatency, Targets: []string{"x"}, Params: map[string]float64{ParamMultiplier: 5}},
	})
	assert.InDelta(t, 5.0, m.SlowFactor("x"), 1e-9)
	assert.InDelta(t, 1.0, m.SlowFactor("y"), 1e-9)
	assert.InDelta(t, 1.0, m.Latency, 1e-9)
}

func TestMultipliersArePureOverTime(t *testing.T) {
	inj := NewInjector()
	_, err := inj.Add(Event{Type: NetworkPartition, Start: 2 * time.Second, Duration: 3 * time.Second, Targets: []string{"x"}})
	require.NoError(t, err)

	first := inj.Multipliers(3 * time.Second)
	// Querying other instants in between must not change later answers.
	_ = inj.Multipliers(10 * time.Second)
	_ = inj.Multipliers(0)
	again := inj.Multipliers(3 * time.Second)
	assert.Equal(t, first, again)

	assert.True(t, inj.Multipliers(4*time.Second).Disconnected["x"])
	assert.False(t, inj.Multipliers(5*time.Second).Disconnected["x"])
	assert.True(t, inj.Multipliers(5*time.Second).Quiet())
}

func TestRemoveAndClear(t *testing.T) {
	inj := NewInjector()
	ev, err := inj.Add(Event{Type: TrafficSpike})
	require.NoError(t, err)
	assert.False(t, inj.Remove("nope"))
	assert.True(t, inj.Remove(ev.ID))
	assert.Empty(t, inj.Events())

	_, err = inj.Add(Event{Type: TrafficSpike})
	require.NoError(t, err)
	inj.Clear()
	assert.True(t, inj.Multipliers(0).Quiet())
}
