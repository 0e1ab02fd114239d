package vsm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Metric is the canonical name of a numeric field extracted from a trace.
type Metric string

const (
	MetricCycleTime       Metric = "cycle_time"
	MetricIdleTime        Metric = "idle_time"
	MetricSetupTime       Metric = "setup_time"
	MetricTotalTime       Metric = "total_time"
	MetricWasteQty        Metric = "waste_qty"
	MetricFinalQuantity   Metric = "final_quantity"
	MetricHeadcount       Metric = "headcount"
	MetricErrorCount      Metric = "error_count"
	MetricRejectCount     Metric = "reject_count"
	MetricRawMaterialUsed Metric = "raw_material_used"
)

// Metrics lists every canonical metric in resolution order.
var Metrics = []Metric{
	MetricCycleTime, MetricIdleTime, MetricSetupTime, MetricTotalTime,
	MetricWasteQty, MetricFinalQuantity, MetricHeadcount,
	MetricErrorCount, MetricRejectCount, MetricRawMaterialUsed,
}

// AliasTable maps a canonical metric to the source field names it may be
// read from, highest priority first.
type AliasTable map[Metric][]string

// DefaultAliases returns the alias table used when no configuration
// overrides it. total_time has no fallback names: its absence means
// the aggregator derives it.
func DefaultAliases() AliasTable {
	return AliasTable{
		MetricCycleTime:       {"cycle_time", "stage_cycle_time", "stage_cycle_time_seconds", "stage_cycle_time_minutes"},
		MetricIdleTime:        {"idle_time", "stage_idle_time", "idle_time_minutes"},
		MetricSetupTime:       {"setup_time", "stage_setup_time", "setup_time_minutes"},
		MetricTotalTime:       {"total_time"},
		MetricWasteQty:        {"merma", "mermas"},
		MetricFinalQuantity:   {"final_quantity", "delivered_quantity"},
		MetricHeadcount:       {"people"},
		MetricErrorCount:      {"errors"},
		MetricRejectCount:     {"rejects"},
		MetricRawMaterialUsed: {"raw_material_used", "material_used"},
	}
}

// Lookup returns the field names consulted for m. The canonical name itself
// is always consulted first so an already-normalized record resolves to the
// same values.
func (t AliasTable) Lookup(m Metric) []string {
	aliases := t[m]
	out := make([]string, 0, len(aliases)+1)
	out = append(out, string(m))
	for _, a := range aliases {
		if a != string(m) {
			out = append(out, a)
		}
	}
	return out
}

// Merge returns a copy of t where every metric present in override replaces
// the default list. Empty override lists are ignored.
func (t AliasTable) Merge(override AliasTable) AliasTable {
	out := make(AliasTable, len(t))
	for m, a := range t {
		out[m] = append([]string(nil), a...)
	}
	for m, a := range override {
		if len(a) == 0 {
			continue
		}
		out[m] = append([]string(nil), a...)
	}
	return out
}

// Resolve returns the first alias in fields holding a value coercible to a
// float, or nil when none does. It never fails.
func Resolve(fields map[string]any, aliases []string) *float64 {
	v, _ := resolve(fields, aliases)
	return v
}

// resolve also reports the first alias that was present but not numeric.
func resolve(fields map[string]any, aliases []string) (*float64, string) {
	bad := ""
	for _, alias := range aliases {
		raw, ok := fields[alias]
		if !ok || raw == nil {
			continue
		}
		if f, ok := toFloat(raw); ok {
			return &f, ""
		}
		if bad == "" {
			bad = alias
		}
	}
	return nil, bad
}

// toFloat coerces JSON-decoded and database values. NaN and infinities are
// rejected so they cannot leak into the arithmetic.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
