package vsm

import "math"

// DefaultShiftMinutes is the available production time per shift.
const DefaultShiftMinutes = 480.0

// Bottleneck is the stage with the largest total time.
type Bottleneck struct {
	StageName string  `json:"stage_name"`
	TotalTime float64 `json:"total_time"`
}

// KPISummary condenses a stage table. Values that cannot be determined are
// nil rather than zero.
type KPISummary struct {
	ShiftMinutes      float64     `json:"shift_minutes"`
	Quantity          int         `json:"quantity"`
	TaktTime          *float64    `json:"takt_time"`
	GlobalEfficiency  *float64    `json:"global_efficiency"`
	AvgCycleTime      *float64    `json:"avg_cycle_time"`
	TotalIdleTime     float64     `json:"total_idle_time"`
	TotalSetupTime    float64     `json:"total_setup_time"`
	TotalTimeSum      float64     `json:"total_time_sum"`
	LeadTimeFinal     float64     `json:"lead_time_final"`
	ValueAddedTime    float64     `json:"value_added_time"`
	NonValueAddedTime float64     `json:"non_value_added_time"`
	TotalErrors       int         `json:"total_errors"`
	TotalRejects      int         `json:"total_rejects"`
	Bottleneck        *Bottleneck `json:"bottleneck"`
}

// Summarize computes the KPI summary of rows for an order of quantity units.
// A non-positive shiftMinutes falls back to DefaultShiftMinutes.
func Summarize(rows []StageAggregate, quantity int, shiftMinutes float64) KPISummary {
	if shiftMinutes <= 0 {
		shiftMinutes = DefaultShiftMinutes
	}
	k := KPISummary{ShiftMinutes: shiftMinutes, Quantity: quantity}
	if quantity > 0 {
		takt := round2(shiftMinutes / float64(quantity))
		k.TaktTime = &takt
	}

	var effSum, cycleSum float64
	for i, r := range rows {
		effSum += r.EfficiencyPct
		cycleSum += r.CycleTime
		k.TotalIdleTime += r.IdleTime
		k.TotalSetupTime += r.SetupTime
		k.TotalTimeSum += r.TotalTime
		k.TotalErrors += r.ErrorCount
		k.TotalRejects += r.RejectCount
		if k.Bottleneck == nil || r.TotalTime > k.Bottleneck.TotalTime {
			k.Bottleneck = &Bottleneck{StageName: rows[i].StageName, TotalTime: r.TotalTime}
		}
	}

	k.LeadTimeFinal = k.TotalTimeSum
	if n := len(rows); n > 0 {
		eff := round2(effSum / float64(n))
		avg := round2(cycleSum / float64(n))
		k.GlobalEfficiency = &eff
		k.AvgCycleTime = &avg
		k.LeadTimeFinal = rows[n-1].CumulativeLeadTime
	}
	k.ValueAddedTime = cycleSum
	k.NonValueAddedTime = math.Max(k.TotalTimeSum-cycleSum, 0)
	return k
}
