package vsm

import "math"

// StageAggregate is the derived row for one stage of an order. Rows are
// rebuilt on every request and never stored.
type StageAggregate struct {
	StageName          string       `json:"stage_name"`
	CycleTime          float64      `json:"cycle_time"`
	IdleTime           float64      `json:"idle_time"`
	SetupTime          float64      `json:"setup_time"`
	WasteQty           float64      `json:"waste_qty"`
	FinalQuantity      float64      `json:"final_quantity"`
	TotalTime          float64      `json:"total_time"`
	EfficiencyPct      float64      `json:"efficiency_pct"`
	CumulativeLeadTime float64      `json:"cumulative_lead_time"`
	Headcount          float64      `json:"headcount"`
	ErrorCount         int          `json:"error_count"`
	RejectCount        int          `json:"reject_count"`
	Matched            bool         `json:"matched"`
	Raw                MetricValues `json:"raw"`
}

// Aggregate builds the stage table and KPI summary for orderID from real
// trace data. It returns a *NoDataError when there are no orders, no traces
// at all, or no order with that number.
func Aggregate(orderID string, ds Dataset, shiftMinutes float64) ([]StageAggregate, KPISummary, error) {
	if len(ds.Orders) == 0 {
		return nil, KPISummary{}, &NoDataError{OrderID: orderID, Reason: reasonNoOrders}
	}
	order, ok := ds.FindOrder(orderID)
	if !ok {
		return nil, KPISummary{}, &NoDataError{OrderID: orderID, Reason: reasonOrderNotFound}
	}
	if len(ds.Traces) == 0 {
		return nil, KPISummary{}, &NoDataError{OrderID: orderID, Reason: reasonNoTraces}
	}
	rows := BuildStageTable(order, ds.Traces)
	return rows, Summarize(rows, order.Quantity, shiftMinutes), nil
}

// BuildStageTable walks the order's stage sequence and derives one row per
// stage from the most recent matching trace. Stages without a trace get an
// all-null row. The declared stage order is kept.
func BuildStageTable(order Order, traces []TraceRecord) []StageAggregate {
	var own []TraceRecord
	for _, t := range traces {
		if sameKey(t.OrderID, order.OrderNumber) {
			own = append(own, t)
		}
	}

	rows := make([]StageAggregate, 0, len(order.StageSequence))
	for _, stage := range order.StageSequence {
		var metrics MetricValues
		chosen, ok := latestForStage(own, stage)
		if ok {
			metrics = chosen.Metrics
		}
		row := rowFromMetrics(stage, metrics)
		row.Matched = ok
		rows = append(rows, row)
	}
	accumulate(rows)
	return rows
}

// latestForStage returns the trace with the latest timestamp whose stage
// matches. Records without a timestamp lose against any dated record; equal
// timestamps keep the first occurrence.
func latestForStage(traces []TraceRecord, stage string) (TraceRecord, bool) {
	var best TraceRecord
	found := false
	for _, t := range traces {
		if !sameKey(t.StageName, stage) {
			continue
		}
		if !found || t.Timestamp.After(best.Timestamp) {
			best = t
			found = true
		}
	}
	return best, found
}

func rowFromMetrics(stage string, m MetricValues) StageAggregate {
	ct := m.Value(MetricCycleTime)
	idle := m.Value(MetricIdleTime)
	setup := m.Value(MetricSetupTime)
	total := ct + idle + setup
	if m.TotalTime != nil {
		total = *m.TotalTime
	}
	return StageAggregate{
		StageName:     stage,
		CycleTime:     ct,
		IdleTime:      idle,
		SetupTime:     setup,
		WasteQty:      m.Value(MetricWasteQty),
		FinalQuantity: m.Value(MetricFinalQuantity),
		TotalTime:     total,
		Headcount:     m.Value(MetricHeadcount),
		ErrorCount:    count(m.Value(MetricErrorCount)),
		RejectCount:   count(m.Value(MetricRejectCount)),
		Raw:           m,
	}
}

// count truncates v to an int, saturating at the int32 range so that stage
// sums cannot overflow.
func count(v float64) int {
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Trunc(v))
}

// Derive returns a copy of rows with total time filled in where it is zero,
// and efficiency and cumulative lead time recomputed. It is used for stage
// tables that come from outside the aggregator.
func Derive(rows []StageAggregate) []StageAggregate {
	out := make([]StageAggregate, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].TotalTime == 0 {
			out[i].TotalTime = out[i].CycleTime + out[i].IdleTime + out[i].SetupTime
		}
	}
	accumulate(out)
	return out
}

// accumulate sets efficiency and cumulative lead time in place.
func accumulate(rows []StageAggregate) {
	lead := 0.0
	for i := range rows {
		rows[i].EfficiencyPct = efficiency(rows[i].CycleTime, rows[i].TotalTime)
		lead += rows[i].TotalTime
		rows[i].CumulativeLeadTime = lead
	}
}

func efficiency(cycle, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(cycle / total * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
