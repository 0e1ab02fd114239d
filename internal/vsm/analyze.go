package vsm

import (
	"errors"
	"fmt"
)

// Options configure Analyze.
type Options struct {
	ShiftMinutes float64
	Thresholds   Thresholds
	// DefaultStages are simulated when falling back for an order without
	// declared stages.
	DefaultStages []string
	// SimulatedQuantity replaces a missing order quantity on fallback.
	SimulatedQuantity int
	// Fallback switches to the simulator when the source has no data.
	Fallback bool
	Seed     *int64
}

// Analysis is the full dashboard payload for one order.
type Analysis struct {
	OrderNumber     string           `json:"order_number,omitempty"`
	Source          string           `json:"source"`
	Notice          string           `json:"notice,omitempty"`
	Stages          []StageAggregate `json:"stages"`
	KPI             KPISummary       `json:"kpi"`
	Recommendations Recommendations  `json:"recommendations"`
	Message         string           `json:"message"`
	Charts          Charts           `json:"charts"`
}

// Analyze runs the pipeline for order using src. With opts.Fallback set, a
// no-data result from src is replaced by a simulated stage table.
func Analyze(order Order, src Source, opts Options) (Analysis, error) {
	rows, err := src.StageTable(order)
	if err != nil {
		if !opts.Fallback || !errors.Is(err, ErrNoData) {
			return Analysis{}, err
		}
		return fallback(order, err, opts), nil
	}
	a := Analysis{OrderNumber: order.OrderNumber, Source: src.Name()}
	return Report(a, rows, order.Quantity, opts), nil
}

// AnalyzeOrder looks orderID up in ds and analyzes it from the recorded
// traces. It fails with a *NoDataError when there are no orders or the order
// is unknown, unless opts.Fallback is set.
func AnalyzeOrder(orderID string, ds Dataset, opts Options) (Analysis, error) {
	order, ok := ds.FindOrder(orderID)
	if !ok {
		reason := reasonOrderNotFound
		if len(ds.Orders) == 0 {
			reason = reasonNoOrders
		}
		err := &NoDataError{OrderID: orderID, Reason: reason}
		if !opts.Fallback {
			return Analysis{}, err
		}
		return fallback(Order{OrderNumber: orderID}, err, opts), nil
	}
	return Analyze(order, Real{Traces: ds.Traces}, opts)
}

func fallback(order Order, cause error, opts Options) Analysis {
	if len(order.StageSequence) == 0 {
		order.StageSequence = opts.DefaultStages
	}
	if order.Quantity <= 0 && opts.SimulatedQuantity > 0 {
		order.Quantity = opts.SimulatedQuantity
	}
	sim := Simulated{Seed: opts.Seed}
	rows, _ := sim.StageTable(order)
	a := Analysis{
		OrderNumber: order.OrderNumber,
		Source:      sim.Name(),
		Notice:      fmt.Sprintf("%v; showing simulated data", cause),
	}
	return Report(a, rows, order.Quantity, opts)
}

// Report fills a with the KPI summary, recommendations and charts of rows.
func Report(a Analysis, rows []StageAggregate, quantity int, opts Options) Analysis {
	th := opts.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	if rows == nil {
		rows = []StageAggregate{}
	}
	a.Stages = rows
	a.KPI = Summarize(rows, quantity, opts.ShiftMinutes)
	a.Recommendations = th.Recommend(rows, a.KPI)
	if a.Recommendations == nil {
		a.Recommendations = Recommendations{}
	}
	a.Message = a.Recommendations.Message()
	a.Charts = BuildCharts(rows, a.KPI)
	return a
}

// Charts holds per-stage series for the dashboard graphs.
type Charts struct {
	Categories    []string  `json:"categories"`
	CycleTime     []float64 `json:"cycle_time"`
	IdleTime      []float64 `json:"idle_time"`
	SetupTime     []float64 `json:"setup_time"`
	TotalTime     []float64 `json:"total_time"`
	LeadTime      []float64 `json:"lead_time"`
	WasteQty      []float64 `json:"waste_qty"`
	Errors        []int     `json:"errors"`
	Bottleneck    []bool    `json:"bottleneck"`
	TaktReference *float64  `json:"takt_reference"`
	MeanTotalTime float64   `json:"mean_total_time"`
	ValueAdded    float64   `json:"value_added"`
	NonValueAdded float64   `json:"non_value_added"`
}

// BuildCharts projects rows into chart series. Every stage sharing the
// bottleneck's total time is flagged.
func BuildCharts(rows []StageAggregate, kpi KPISummary) Charts {
	c := Charts{
		Categories:    make([]string, len(rows)),
		CycleTime:     make([]float64, len(rows)),
		IdleTime:      make([]float64, len(rows)),
		SetupTime:     make([]float64, len(rows)),
		TotalTime:     make([]float64, len(rows)),
		LeadTime:      make([]float64, len(rows)),
		WasteQty:      make([]float64, len(rows)),
		Errors:        make([]int, len(rows)),
		Bottleneck:    make([]bool, len(rows)),
		TaktReference: kpi.TaktTime,
		ValueAdded:    kpi.ValueAddedTime,
		NonValueAdded: kpi.NonValueAddedTime,
	}
	for i, r := range rows {
		c.Categories[i] = r.StageName
		c.CycleTime[i] = r.CycleTime
		c.IdleTime[i] = r.IdleTime
		c.SetupTime[i] = r.SetupTime
		c.TotalTime[i] = r.TotalTime
		c.LeadTime[i] = r.CumulativeLeadTime
		c.WasteQty[i] = r.WasteQty
		c.Errors[i] = r.ErrorCount
		c.Bottleneck[i] = kpi.Bottleneck != nil && r.TotalTime == kpi.Bottleneck.TotalTime
	}
	if len(rows) > 0 {
		c.MeanTotalTime = round2(kpi.TotalTimeSum / float64(len(rows)))
	}
	return c
}
