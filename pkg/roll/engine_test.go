package roll

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/roll/pkg/roll/actions"
	"github.com/chosenoffset/roll/pkg/roll/metrics"
)

func TestEngineRun(t *testing.T) {
	registry := actions.NewRegistry()
	var mu sync.Mutex
	var events []actions.Event
	registry.Register(actions.RollEvent, actions.HandlerFunc(func(_ context.Context, e actions.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	}))

	counters := metrics.NewRollCounters(10)
	engine := NewEngine(WithRegistry(registry), WithCounters(counters))

	values, err := engine.Run(context.Background(), mustParse(t, "2d4!"), NewSequence(4, 4, 4, 1, 2, 3), 2)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 13, values[0].Total)
	assert.Equal(t, 5, values[1].Total)

	require.Len(t, events, 2)
	assert.Equal(t, "2d4!", events[0].Expression)
	assert.Equal(t, "4, 4, 4*, 1* = 13", events[0].Summary)
	assert.Same(t, values[0], events[0].Payload)

	stats := counters.GetStats()
	assert.Equal(t, int64(2), stats.Evaluations)
	assert.Equal(t, int64(6), stats.DiceRolled)
	assert.Equal(t, int64(2), stats.BonusDice)
	assert.Equal(t, []int{13, 5}, counters.Recent())
}

func TestEngineRunRejectsInvalid(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	failures := 0
	registry := actions.NewRegistry()
	registry.Register(actions.FailureEvent, actions.HandlerFunc(func(context.Context, actions.Event) error {
		failures++
		return nil
	}))

	engine := NewEngine(WithLogger(logger), WithRegistry(registry))
	src := NewSequence(1, 1, 1)

	values, err := engine.Run(context.Background(), mustParse(t, "3d1!!"), src, 5)
	assert.Nil(t, values)
	assert.ErrorIs(t, err, ErrNonTerminatingExplosion)
	assert.Zero(t, src.Drawn())
	assert.Equal(t, 1, failures)
	assert.Contains(t, logs.String(), "evaluation failed")
	assert.Equal(t, int64(1), engine.Counters().GetStats().Failures)

	_, err = engine.Run(context.Background(), mustParse(t, "1d6"), src, 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestEngineRunKeepsSuccessfulRuns(t *testing.T) {
	limits := &ResourceLimits{MaxExplosionRounds: 1}
	engine := NewEngine(WithResourceLimits(limits))

	// the first run needs a second explosion round, the second run none
	values, err := engine.Run(context.Background(), mustParse(t, "1d6!!"), NewSequence(6, 6, 3), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Contains(t, err.Error(), "run 1")
	require.Len(t, values, 1)
	assert.Equal(t, 3, values[0].Total)
}

func TestEngineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	values, err := NewEngine().Run(ctx, mustParse(t, "1d6"), NewSource(1), 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, values)
}

func TestEngineRunLimit(t *testing.T) {
	engine := NewEngine(WithResourceLimits(&ResourceLimits{MaxRuns: 10}))
	_, err := engine.Run(context.Background(), mustParse(t, "1d6"), NewSource(1), 11)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestEngineHistogram(t *testing.T) {
	var got *Histogram
	registry := actions.NewRegistry()
	registry.Register(actions.HistogramEvent, actions.HandlerFunc(func(_ context.Context, e actions.Event) error {
		got = e.Payload.(*Histogram)
		return nil
	}))

	engine := NewEngine(WithRegistry(registry))
	h, err := engine.Histogram(context.Background(), mustParse(t, "1d4"), NewSequence(1, 2, 3, 4, 4, 4, 2, 3), 8)
	require.NoError(t, err)
	assert.Same(t, h, got)

	assert.Equal(t, 8, h.Samples)
	require.Len(t, h.Buckets, 4)
	assert.Equal(t, Bucket{Total: 1, Count: 1, AtLeast: 1}, h.Buckets[0])
	assert.Equal(t, Bucket{Total: 2, Count: 2, AtLeast: 7.0 / 8}, h.Buckets[1])
	assert.Equal(t, Bucket{Total: 3, Count: 2, AtLeast: 5.0 / 8}, h.Buckets[2])
	assert.Equal(t, Bucket{Total: 4, Count: 3, AtLeast: 3.0 / 8}, h.Buckets[3])
	assert.InDelta(t, 23.0/8, h.Mean(), 1e-9)
	assert.Equal(t, 3, h.MaxCount())
}

func TestEngineHistogramUsesSuccessLevel(t *testing.T) {
	h, err := NewEngine().Histogram(context.Background(), mustParse(t, "1d10{5,2}"), NewSequence(4, 5, 9), 3)
	require.NoError(t, err)

	totals := make([]int, 0, len(h.Buckets))
	for _, b := range h.Buckets {
		totals = append(totals, b.Total)
	}
	assert.Equal(t, []int{0, 1, 3}, totals)
}

func TestSampleParallel(t *testing.T) {
	engine := NewEngine()
	expr := mustParse(t, "3d6")

	a, err := engine.SampleParallel(context.Background(), expr, 10000, 4, 99)
	require.NoError(t, err)
	b, err := engine.SampleParallel(context.Background(), expr, 10000, 4, 99)
	require.NoError(t, err)

	assert.Equal(t, a, b, "equal seeds and workers give equal histograms")
	assert.Equal(t, 10000, a.Samples)
	assert.Equal(t, 3, a.Buckets[0].Total)
	assert.Equal(t, 18, a.Buckets[len(a.Buckets)-1].Total)
	assert.Equal(t, 1.0, a.Buckets[0].AtLeast)
	assert.InDelta(t, 10.5, a.Mean(), 0.2)

	few, err := engine.SampleParallel(context.Background(), expr, 3, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, few.Samples)
}

func TestSampleParallelFailure(t *testing.T) {
	engine := NewEngine(WithResourceLimits(&ResourceLimits{MaxExplosionRounds: 1}))
	_, err := engine.SampleParallel(context.Background(), mustParse(t, "1d2!!"), 5000, 4, 1)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestMergeHistograms(t *testing.T) {
	merged := Merge(NewHistogram([]int{1, 2}), nil, NewHistogram([]int{2, 3}))
	assert.Equal(t, 4, merged.Samples)
	require.Len(t, merged.Buckets, 3)
	assert.Equal(t, 2, merged.Buckets[1].Count)
	assert.Equal(t, 0.75, merged.Buckets[1].AtLeast)

	empty := NewHistogram(nil)
	assert.Zero(t, empty.Samples)
	assert.Empty(t, empty.Buckets)
	assert.Zero(t, empty.Mean())
}
