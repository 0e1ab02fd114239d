package vsm

import (
	"fmt"
	"math/rand"
	"time"
)

// Bounds of the simulated stage values, inclusive.
const (
	simCycleMin, simCycleMax   = 20, 80
	simIdleMin, simIdleMax     = 5, 30
	simSetupMin, simSetupMax   = 5, 25
	simErrorsMin, simErrorsMax = 0, 3
	simRejectMin, simRejectMax = 0, 8

	MinSimulatedStages = 3
	MaxSimulatedStages = 20
)

// Simulate generates a plausible stage table for stages so the dashboard is
// usable without production data. A nil seed draws a fresh one; the same
// seed and stages always give the same rows.
func Simulate(stages []string, seed *int64) []StageAggregate {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	rng := rand.New(rand.NewSource(s))

	rows := make([]StageAggregate, 0, len(stages))
	for _, stage := range stages {
		ct := between(rng, simCycleMin, simCycleMax)
		idle := between(rng, simIdleMin, simIdleMax)
		setup := between(rng, simSetupMin, simSetupMax)
		errs := between(rng, simErrorsMin, simErrorsMax)
		rejects := between(rng, simRejectMin, simRejectMax)
		rows = append(rows, StageAggregate{
			StageName:   stage,
			CycleTime:   float64(ct),
			IdleTime:    float64(idle),
			SetupTime:   float64(setup),
			TotalTime:   float64(ct + idle + setup),
			Headcount:   1,
			ErrorCount:  errs,
			RejectCount: rejects,
		})
	}
	accumulate(rows)
	return rows
}

func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// SimulatedStageNames picks n stage names from defaults, clamping n to
// [MinSimulatedStages, MaxSimulatedStages] and naming extra stages "Stage k".
func SimulatedStageNames(defaults []string, n int) []string {
	if n < MinSimulatedStages {
		n = MinSimulatedStages
	}
	if n > MaxSimulatedStages {
		n = MaxSimulatedStages
	}
	if n <= len(defaults) {
		return append([]string(nil), defaults[:n]...)
	}
	out := append([]string(nil), defaults...)
	for i := len(defaults) + 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("Stage %d", i))
	}
	return out
}

// Source produces the stage table for an order. The aggregator and the
// recommendation engine do not know which implementation was used.
type Source interface {
	Name() string
	StageTable(order Order) ([]StageAggregate, error)
}

// Real reads stage tables from recorded traces.
type Real struct {
	Traces []TraceRecord
}

func (Real) Name() string { return "real" }

// StageTable returns ErrNoData when there are no traces at all.
func (r Real) StageTable(order Order) ([]StageAggregate, error) {
	if len(r.Traces) == 0 {
		return nil, &NoDataError{OrderID: order.OrderNumber, Reason: reasonNoTraces}
	}
	return BuildStageTable(order, r.Traces), nil
}

// Simulated generates stage tables with the simulator.
type Simulated struct {
	Seed *int64
}

func (Simulated) Name() string { return "simulated" }

func (s Simulated) StageTable(order Order) ([]StageAggregate, error) {
	return Simulate(order.StageSequence, s.Seed), nil
}
