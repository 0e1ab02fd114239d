package vsm

import (
	"fmt"
	"sort"
	"strconv"
)

// Severity ranks how urgently a recommendation should be acted on.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Rule codes identify which check produced a recommendation.
const (
	RuleLowEfficiency = "low_efficiency"
	RuleHighIdle      = "high_idle"
	RuleBottleneck    = "bottleneck"
	RuleTaktExceeded  = "takt_exceeded"
	RuleHighSetup     = "high_setup"
	RuleRejects       = "rejects"
	RuleErrors        = "errors"
)

// NoUrgentImprovements is reported when no rule fires.
const NoUrgentImprovements = "no urgent improvements detected"

// Recommendation is a Lean tool suggested for a stage table.
type Recommendation struct {
	Rule          string   `json:"rule"`
	ToolName      string   `json:"tool_name"`
	Justification string   `json:"justification"`
	Severity      Severity `json:"severity"`
}

// Recommendations are ordered from most to least severe.
type Recommendations []Recommendation

// Message summarizes the list for display.
func (rs Recommendations) Message() string {
	switch len(rs) {
	case 0:
		return NoUrgentImprovements
	case 1:
		return "1 improvement suggested"
	}
	return fmt.Sprintf("%d improvements suggested", len(rs))
}

// Thresholds are the trigger levels of the recommendation rules.
type Thresholds struct {
	MinEfficiency float64 `yaml:"min_efficiency" json:"min_efficiency"`
	MaxIdleTime   float64 `yaml:"max_idle_time" json:"max_idle_time"`
	MaxSetupTime  float64 `yaml:"max_setup_time" json:"max_setup_time"`
	MaxRejects    int     `yaml:"max_rejects" json:"max_rejects"`
	MaxErrors     int     `yaml:"max_errors" json:"max_errors"`
}

// DefaultThresholds returns the standard plant thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinEfficiency: 70,
		MaxIdleTime:   100,
		MaxSetupTime:  60,
		MaxRejects:    10,
		MaxErrors:     5,
	}
}

// Recommend evaluates rows and kpi against the default thresholds.
func Recommend(rows []StageAggregate, kpi KPISummary) Recommendations {
	return DefaultThresholds().Recommend(rows, kpi)
}

// Recommend evaluates every rule independently. Reject and error totals are
// summed from rows; with no rows the KPI totals are used.
func (t Thresholds) Recommend(rows []StageAggregate, kpi KPISummary) Recommendations {
	rejects, errs := kpi.TotalRejects, kpi.TotalErrors
	if len(rows) > 0 {
		rejects, errs = 0, 0
		for _, r := range rows {
			rejects += r.RejectCount
			errs += r.ErrorCount
		}
	}

	var out Recommendations
	add := func(rule, tool string, sev Severity, format string, args ...any) {
		out = append(out, Recommendation{
			Rule:          rule,
			ToolName:      tool,
			Justification: fmt.Sprintf(format, args...),
			Severity:      sev,
		})
	}

	if kpi.GlobalEfficiency != nil && *kpi.GlobalEfficiency < t.MinEfficiency {
		add(RuleLowEfficiency, "Total Productive Maintenance (TPM)", SeverityHigh,
			"global efficiency is low (%s%%); TPM improves equipment availability", num(*kpi.GlobalEfficiency))
	}
	if kpi.TotalIdleTime > t.MaxIdleTime {
		add(RuleHighIdle, "Jidoka / Andon", SeverityMedium,
			"high total idle time detected (%s min); visual stop signaling exposes waiting", num(kpi.TotalIdleTime))
	}
	if kpi.Bottleneck != nil {
		add(RuleBottleneck, "Line balancing", SeverityMedium,
			"bottleneck at stage '%s' with %s min", kpi.Bottleneck.StageName, num(kpi.Bottleneck.TotalTime))
	}
	if kpi.TaktTime != nil && kpi.AvgCycleTime != nil && *kpi.TaktTime < *kpi.AvgCycleTime {
		add(RuleTaktExceeded, "SMED (quick setup reduction)", SeverityHigh,
			"average cycle time (%s min) exceeds takt time (%s min/unit)", num(*kpi.AvgCycleTime), num(*kpi.TaktTime))
	}
	if kpi.TotalSetupTime > t.MaxSetupTime {
		add(RuleHighSetup, "SMED (high setup times)", SeverityMedium,
			"total setup time is high (%s min)", num(kpi.TotalSetupTime))
	}
	if rejects > t.MaxRejects {
		add(RuleRejects, "Poka-Yoke (error-proofing)", SeverityMedium,
			"%d rejects recorded, indicating quality errors", rejects)
	}
	if errs > t.MaxErrors {
		add(RuleErrors, "5S + standardized work", SeverityLow,
			"%d errors detected", errs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.rank() > out[j].Severity.rank()
	})
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
