package work

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Mode selects the built-in work unit.
type Mode string

// Work unit modes.
const (
	ModeSimulated Mode = "simulated"
	ModeInstant   Mode = "instant"
)

// durationRange is a base duration plus a random spread.
type durationRange struct {
	base, spread time.Duration
}

var durations = map[core.NodeKind]durationRange{
	core.KindDataSource:  {1000 * time.Millisecond, 1000 * time.Millisecond},
	core.KindTransformer: {1500 * time.Millisecond, 1000 * time.Millisecond},
	core.KindModel:       {2000 * time.Millisecond, 1500 * time.Millisecond},
	core.KindSink:        {800 * time.Millisecond, 500 * time.Millisecond},
}

const defaultDuration = time.Second

// Simulated stands in for real work. It sleeps for a kind-dependent duration
// and reports a kind-dependent completion message with metrics.
type Simulated struct {
	speed   float64
	instant bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated returns a simulated unit. speed divides every duration
// (2 runs twice as fast); values <= 0 are treated as 1. Equal seeds produce
// equal sequences of durations and metrics.
func NewSimulated(speed float64, seed uint64) *Simulated {
	if speed <= 0 {
		speed = 1
	}
	return &Simulated{speed: speed, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewInstant returns a unit with the simulated messages and no delay.
func NewInstant(seed uint64) *Simulated {
	s := NewSimulated(1, seed)
	s.instant = true
	return s
}

// New builds the unit for mode, wrapped with a per-node timeout when set.
func New(mode Mode, speed float64, seed uint64, timeout time.Duration) (core.WorkUnit, error) {
	var unit core.WorkUnit
	switch mode {
	case ModeSimulated, "":
		unit = NewSimulated(speed, seed)
	case ModeInstant:
		unit = NewInstant(seed)
	default:
		return nil, fmt.Errorf("unknown work mode %q (expected %q or %q)", mode, ModeSimulated, ModeInstant)
	}
	return Timeout(unit, timeout), nil
}

// Process implements core.WorkUnit.
func (s *Simulated) Process(ctx context.Context, node core.PipelineNode) (core.WorkResult, error) {
	kind, known := node.NodeType.Kind()

	s.mu.Lock()
	delay := s.duration(kind, known)
	result := s.result(kind, known)
	s.mu.Unlock()

	if !s.instant {
		if err := sleep(ctx, delay); err != nil {
			return core.WorkResult{}, err
		}
	}
	return result, nil
}

// duration returns the delay the unit would use for kind, consuming randomness.
func (s *Simulated) duration(kind core.NodeKind, known bool) time.Duration {
	d := defaultDuration
	if r, ok := durations[kind]; ok && known {
		d = r.base + time.Duration(s.rng.Int64N(int64(r.spread)))
	}
	return time.Duration(float64(d) / s.speed)
}

func (s *Simulated) result(kind core.NodeKind, known bool) core.WorkResult {
	if !known {
		return core.WorkResult{}
	}

	switch kind {
	case core.KindDataSource:
		n := 100 + s.rng.IntN(900)
		return core.WorkResult{
			Message: fmt.Sprintf("Loaded %d records from data source", n),
			Metrics: map[string]float64{core.MetricRecords: float64(n)},
		}
	case core.KindTransformer:
		n := 1 + s.rng.IntN(5)
		return core.WorkResult{
			Message: fmt.Sprintf("Applied %d transformation steps", n),
			Metrics: map[string]float64{core.MetricSteps: float64(n)},
		}
	case core.KindModel:
		acc := 0.85 + s.rng.Float64()*0.15
		return core.WorkResult{
			Message: fmt.Sprintf("Generated predictions with %.3f accuracy", acc),
			Metrics: map[string]float64{core.MetricAccuracy: acc},
		}
	case core.KindSink:
		n := 100 + s.rng.IntN(900)
		return core.WorkResult{
			Message: fmt.Sprintf("Saved %d results to destination", n),
			Metrics: map[string]float64{core.MetricResults: float64(n)},
		}
	}
	return core.WorkResult{}
}
