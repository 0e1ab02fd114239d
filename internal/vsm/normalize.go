package vsm

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Normalizer turns raw trace records of either producer format into
// TraceRecords. All key lists are configuration data; see DefaultNormalizer.
type Normalizer struct {
	Aliases       AliasTable
	StageDataKeys []string
	StageKeys     []string
	OrderKeys     []string
	TimestampKeys []string
}

// DefaultNormalizer returns the normalizer for the trace formats produced by
// the capture stations.
func DefaultNormalizer() *Normalizer {
	return &Normalizer{
		Aliases:       DefaultAliases(),
		StageDataKeys: []string{"stage_data", "datos_etapa"},
		StageKeys:     []string{"stage_new", "stage", "previous_stage"},
		OrderKeys:     []string{"order_id", "order", "op"},
		TimestampKeys: []string{"timestamp", "date", "start_timestamp"},
	}
}

var defaultNormalizer = DefaultNormalizer()

// Normalize applies the default normalizer to raw.
func Normalize(raw map[string]any) TraceRecord {
	return defaultNormalizer.Normalize(raw)
}

// Normalize extracts identity, timestamp and canonical metrics from raw. It
// never fails: unusable values become nulls and are listed as warnings.
func (n *Normalizer) Normalize(raw map[string]any) TraceRecord {
	if raw == nil {
		raw = map[string]any{}
	}
	shape := ShapeOf(raw, n.StageDataKeys)
	rec := TraceRecord{Shape: shape}

	rec.OrderID = firstString(raw, n.OrderKeys)
	rec.StageName = firstString(raw, n.StageKeys)
	if rec.StageName == "" && shape.Kind == ShapeNested {
		rec.StageName = firstString(shape.Fields, n.StageKeys)
	}
	if rec.StageName == "" {
		rec.Warnings = append(rec.Warnings, Warning{Field: "stage", Reason: "missing stage name"})
	}

	if key, s := firstRaw(raw, n.TimestampKeys); s != "" {
		if ts, ok := ParseTimestamp(s); ok {
			rec.Timestamp = ts
		} else {
			rec.Warnings = append(rec.Warnings, Warning{Field: key, Reason: "unparseable timestamp " + strconv.Quote(s)})
		}
	}

	for _, metric := range Metrics {
		v, bad := resolve(shape.Fields, n.Aliases.Lookup(metric))
		rec.Metrics.Set(metric, v)
		if v == nil && bad != "" {
			rec.Warnings = append(rec.Warnings, Warning{Field: bad, Reason: "not a number"})
		}
	}
	return rec
}

// NormalizeAll normalizes raws preserving their order.
func (n *Normalizer) NormalizeAll(raws []map[string]any) []TraceRecord {
	out := make([]TraceRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or datetime. Values without a zone
// are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func firstString(fields map[string]any, keys []string) string {
	_, s := firstRaw(fields, keys)
	return s
}

// firstRaw returns the first key with a non-blank scalar value.
func firstRaw(fields map[string]any, keys []string) (string, string) {
	for _, k := range keys {
		if s := strings.TrimSpace(scalarString(fields[k])); s != "" {
			return k, s
		}
	}
	return "", ""
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}
