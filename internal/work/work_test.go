package work

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leappipe/internal/testutil"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

func TestInstant_Messages(t *testing.T) {
	unit := NewInstant(42)
	ctx := context.Background()

	tests := []struct {
		kind    core.NodeKind
		pattern string
		metric  string
	}{
		{core.KindDataSource, `^Loaded \d{3} records from data source$`, core.MetricRecords},
		{core.KindTransformer, `^Applied [1-5] transformation steps$`, core.MetricSteps},
		{core.KindModel, `^Generated predictions with (0\.(8[5-9]|9\d)\d|1\.000) accuracy$`, core.MetricAccuracy},
		{core.KindSink, `^Saved \d{3} results to destination$`, core.MetricResults},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			for i := 0; i < 20; i++ {
				result, err := unit.Process(ctx, testutil.Node("n", tt.kind))
				require.NoError(t, err)
				assert.Regexp(t, regexp.MustCompile(tt.pattern), result.Message)
				assert.Contains(t, result.Metrics, tt.metric)
			}
		})
	}
}

func TestInstant_UnknownKind(t *testing.T) {
	node := core.PipelineNode{ID: "x", NodeType: core.NodeType{ID: "9", Name: "Filter"}}
	result, err := NewInstant(1).Process(context.Background(), node)
	require.NoError(t, err)
	assert.Empty(t, result.Message)
	assert.Nil(t, result.Metrics)
}

func TestSimulated_Deterministic(t *testing.T) {
	a := NewInstant(7)
	b := NewInstant(7)
	node := testutil.Node("m", core.KindModel)

	for i := 0; i < 5; i++ {
		ra, err := a.Process(context.Background(), node)
		require.NoError(t, err)
		rb, err := b.Process(context.Background(), node)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestSimulated_DurationRanges(t *testing.T) {
	s := NewSimulated(1, 3)
	ranges := map[core.NodeKind][2]time.Duration{
		core.KindDataSource:  {time.Second, 2 * time.Second},
		core.KindTransformer: {1500 * time.Millisecond, 2500 * time.Millisecond},
		core.KindModel:       {2 * time.Second, 3500 * time.Millisecond},
		core.KindSink:        {800 * time.Millisecond, 1300 * time.Millisecond},
	}
	for kind, r := range ranges {
		for i := 0; i < 50; i++ {
			d := s.duration(kind, true)
			assert.GreaterOrEqual(t, d, r[0], kind)
			assert.Less(t, d, r[1], kind)
		}
	}
	assert.Equal(t, time.Second, s.duration("", false))

	fast := NewSimulated(4, 3)
	assert.Equal(t, 250*time.Millisecond, fast.duration("", false))
}

func TestSimulated_HonorsCancellation(t *testing.T) {
	s := NewSimulated(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := s.Process(ctx, testutil.Node("m", core.KindModel))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimeout(t *testing.T) {
	blocking := Func(func(ctx context.Context, _ core.PipelineNode) (core.WorkResult, error) {
		<-ctx.Done()
		return core.WorkResult{}, ctx.Err()
	})

	t.Run("deadline is a failure", func(t *testing.T) {
		_, err := Timeout(blocking, 10*time.Millisecond).Process(context.Background(), testutil.Node("a", core.KindSink))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Contains(t, err.Error(), "after 10ms")
	})

	t.Run("parent cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Timeout(blocking, time.Minute).Process(ctx, testutil.Node("a", core.KindSink))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, ErrTimeout))
	})

	t.Run("fast unit succeeds", func(t *testing.T) {
		result, err := Timeout(NewInstant(1), time.Second).Process(context.Background(), testutil.Node("a", core.KindSink))
		require.NoError(t, err)
		assert.NotEmpty(t, result.Message)
	})

	t.Run("zero disables", func(t *testing.T) {
		unit := NewInstant(1)
		assert.Same(t, unit, Timeout(unit, 0))
	})
}

func TestNew(t *testing.T) {
	unit, err := New(ModeInstant, 1, 1, 0)
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, unit)

	unit, err = New(ModeSimulated, 1, 1, time.Second)
	require.NoError(t, err)
	assert.IsType(t, Func(nil), unit)

	_, err = New("turbo", 1, 1, 0)
	assert.ErrorContains(t, err, `unknown work mode "turbo"`)
}
