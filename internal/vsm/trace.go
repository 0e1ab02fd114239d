package vsm

import (
	"strings"
	"time"
)

// MetricValues is the canonical, nullable view of a trace's numbers. A nil
// field means the producer did not record a usable value.
type MetricValues struct {
	CycleTime       *float64 `json:"cycle_time"`
	IdleTime        *float64 `json:"idle_time"`
	SetupTime       *float64 `json:"setup_time"`
	TotalTime       *float64 `json:"total_time"`
	WasteQty        *float64 `json:"waste_qty"`
	FinalQuantity   *float64 `json:"final_quantity"`
	Headcount       *float64 `json:"headcount"`
	ErrorCount      *float64 `json:"error_count"`
	RejectCount     *float64 `json:"reject_count"`
	RawMaterialUsed *float64 `json:"raw_material_used"`
}

func (m *MetricValues) slot(metric Metric) **float64 {
	switch metric {
	case MetricCycleTime:
		return &m.CycleTime
	case MetricIdleTime:
		return &m.IdleTime
	case MetricSetupTime:
		return &m.SetupTime
	case MetricTotalTime:
		return &m.TotalTime
	case MetricWasteQty:
		return &m.WasteQty
	case MetricFinalQuantity:
		return &m.FinalQuantity
	case MetricHeadcount:
		return &m.Headcount
	case MetricErrorCount:
		return &m.ErrorCount
	case MetricRejectCount:
		return &m.RejectCount
	case MetricRawMaterialUsed:
		return &m.RawMaterialUsed
	}
	return nil
}

// Get returns the nullable value of metric.
func (m MetricValues) Get(metric Metric) *float64 {
	if p := m.slot(metric); p != nil {
		return *p
	}
	return nil
}

// Set stores v under metric. Unknown metrics are ignored.
func (m *MetricValues) Set(metric Metric, v *float64) {
	if p := m.slot(metric); p != nil {
		*p = v
	}
}

// Value returns metric coerced for arithmetic: null counts as zero.
func (m MetricValues) Value(metric Metric) float64 {
	if v := m.Get(metric); v != nil {
		return *v
	}
	return 0
}

// Fields renders the values back into a flat record keyed by canonical
// metric name, omitting nulls.
func (m MetricValues) Fields() map[string]any {
	out := make(map[string]any, len(Metrics))
	for _, metric := range Metrics {
		if v := m.Get(metric); v != nil {
			out[string(metric)] = *v
		}
	}
	return out
}

// ShapeKind tells which producer format a trace was written in.
type ShapeKind int

const (
	// ShapeFlat records carry their metrics as top-level fields.
	ShapeFlat ShapeKind = iota
	// ShapeNested records wrap their metrics in a stage data object.
	ShapeNested
)

func (k ShapeKind) String() string {
	if k == ShapeNested {
		return "nested"
	}
	return "flat"
}

// Shape is the metric source of a raw trace, resolved once when the record
// is normalized.
type Shape struct {
	Kind       ShapeKind
	WrapperKey string
	Fields     map[string]any
}

// ShapeOf picks the first stage data key holding an object; without one the
// record is read flat.
func ShapeOf(raw map[string]any, stageDataKeys []string) Shape {
	for _, key := range stageDataKeys {
		if nested, ok := raw[key].(map[string]any); ok {
			return Shape{Kind: ShapeNested, WrapperKey: key, Fields: nested}
		}
	}
	return Shape{Kind: ShapeFlat, Fields: raw}
}

// Warning describes a field that was present but could not be used. Records
// with warnings are still processed with the field treated as null.
type Warning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// TraceRecord is one observed event for an order at a stage.
type TraceRecord struct {
	OrderID   string       `json:"order_id"`
	StageName string       `json:"stage_name"`
	Timestamp time.Time    `json:"timestamp"`
	Metrics   MetricValues `json:"metrics"`
	Shape     Shape        `json:"-"`
	Warnings  []Warning    `json:"warnings,omitempty"`
}

// HasTimestamp reports whether the record carried a parseable timestamp.
func (t TraceRecord) HasTimestamp() bool {
	return !t.Timestamp.IsZero()
}

// Order is one production order and the stages it goes through.
type Order struct {
	OrderNumber   string   `json:"order_number"`
	StageSequence []string `json:"stage_sequence"`
	Quantity      int      `json:"quantity"`
	Status        string   `json:"status"`
	Customer      string   `json:"customer,omitempty"`
	Product       string   `json:"product,omitempty"`
	DeliveryDate  string   `json:"delivery_date,omitempty"`
}

// Dataset is everything the loader read in one pass.
type Dataset struct {
	Traces []TraceRecord
	Orders []Order
}

// FindOrder looks up an order by number, ignoring case and surrounding
// whitespace.
func (d Dataset) FindOrder(orderNumber string) (Order, bool) {
	for _, o := range d.Orders {
		if sameKey(o.OrderNumber, orderNumber) {
			return o, true
		}
	}
	return Order{}, false
}

// InProgress drops orders whose status equals finishedStatus.
func InProgress(orders []Order, finishedStatus string) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if sameKey(o.Status, finishedStatus) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func sameKey(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
