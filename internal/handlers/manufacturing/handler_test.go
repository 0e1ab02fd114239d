package manufacturing_test

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"troquel/internal/config"
	"troquel/internal/handlers/manufacturing"
	"troquel/internal/models"
	"troquel/internal/store"
	"troquel/internal/testutil"
	"troquel/internal/vsm"
)

func newTestHandler(t *testing.T) (*manufacturing.Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	return &manufacturing.Handler{
		DB:     db,
		Store:  &store.SQLStore{DB: db, Normalizer: cfg.Normalizer()},
		Config: cfg,
	}, db
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCreateOrder(t *testing.T) {
	h, db := newTestHandler(t)

	body := map[string]any{"order_number": " OP-100 ", "stage_sequence": []string{"Cut", "Glue"}, "quantity": 200, "customer": "ACME"}
	w := httptest.NewRecorder()
	h.CreateOrder(w, testutil.JSONRequest("POST", "/api/v1/orders", body))
	testutil.AssertStatus(t, w, 201)

	var created vsm.Order
	testutil.DecodeEnvelope(t, w, &created)
	if created.OrderNumber != "OP-100" || len(created.StageSequence) != 2 {
		t.Errorf("created = %+v", created)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM audit_log WHERE module='order' AND action='CREATE'"); n != 1 {
		t.Errorf("audit rows = %d", n)
	}

	w = httptest.NewRecorder()
	h.CreateOrder(w, testutil.JSONRequest("POST", "/api/v1/orders", body))
	testutil.AssertStatus(t, w, 409)
}

func TestCreateOrderRepeatedStage(t *testing.T) {
	h, db := newTestHandler(t)

	body := map[string]any{"order_number": "OP-7", "stage_sequence": []string{"Cut", "Inspect", "Cut"}, "quantity": 50}
	w := httptest.NewRecorder()
	h.CreateOrder(w, testutil.JSONRequest("POST", "/api/v1/orders", body))
	testutil.AssertStatus(t, w, 201)

	if n := countRows(t, db, "SELECT COUNT(*) FROM order_stages WHERE order_number='OP-7'"); n != 3 {
		t.Errorf("stored stages = %d, want 3", n)
	}
	orders, err := h.Store.Orders()
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || !reflect.DeepEqual(orders[0].StageSequence, []string{"Cut", "Inspect", "Cut"}) {
		t.Errorf("orders = %+v", orders)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	tests := []struct {
		name string
		body any
	}{
		{"missing number", map[string]any{"quantity": 5}},
		{"negative quantity", map[string]any{"order_number": "OP-1", "quantity": -5}},
		{"blank stage", map[string]any{"order_number": "OP-1", "stage_sequence": []string{"Cut", "  "}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CreateOrder(w, testutil.JSONRequest("POST", "/api/v1/orders", tc.body))
			testutil.AssertStatus(t, w, 400)
		})
	}

	w := httptest.NewRecorder()
	h.CreateOrder(w, httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader("{")))
	testutil.AssertStatus(t, w, 400)
}

func TestListOrdersActiveFilter(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.SeedOrder(t, db, "OP-1", 10, "in progress", "Cut")
	testutil.SeedOrder(t, db, "OP-2", 10, "Finished", "Cut")

	w := httptest.NewRecorder()
	h.ListOrders(w, httptest.NewRequest("GET", "/api/v1/orders", nil))
	testutil.AssertStatus(t, w, 200)
	var all []vsm.Order
	testutil.DecodeEnvelope(t, w, &all)
	if len(all) != 2 {
		t.Errorf("all orders = %d", len(all))
	}

	w = httptest.NewRecorder()
	h.ListOrders(w, httptest.NewRequest("GET", "/api/v1/orders?active=true", nil))
	var active []vsm.Order
	testutil.DecodeEnvelope(t, w, &active)
	if len(active) != 1 || active[0].OrderNumber != "OP-1" {
		t.Errorf("active orders = %+v", active)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.SeedOrder(t, db, "OP-1", 10, "open", "Cut")

	w := httptest.NewRecorder()
	h.UpdateOrderStatus(w, testutil.JSONRequest("PUT", "/api/v1/orders/OP-1/status", map[string]string{"status": "finished"}), "OP-1")
	testutil.AssertStatus(t, w, 200)

	var status string
	db.QueryRow("SELECT status FROM production_orders WHERE order_number='OP-1'").Scan(&status)
	if status != "finished" {
		t.Errorf("status = %q", status)
	}

	w = httptest.NewRecorder()
	h.UpdateOrderStatus(w, testutil.JSONRequest("PUT", "/api/v1/orders/OP-9/status", map[string]string{"status": "finished"}), "OP-9")
	testutil.AssertStatus(t, w, 404)

	w = httptest.NewRecorder()
	h.UpdateOrderStatus(w, testutil.JSONRequest("PUT", "/api/v1/orders/OP-1/status", map[string]string{"status": " "}), "OP-1")
	testutil.AssertStatus(t, w, 400)
}

func TestOrderHistory(t *testing.T) {
	h, _ := newTestHandler(t)

	req := testutil.JSONRequest("POST", "/api/v1/orders", map[string]any{"order_number": "OP-3", "stage_sequence": []string{"Cut"}, "quantity": 5})
	req.Header.Set("X-Operator", "ana")
	w := httptest.NewRecorder()
	h.CreateOrder(w, req)
	testutil.AssertStatus(t, w, 201)
	w = httptest.NewRecorder()
	h.UpdateOrderStatus(w, testutil.JSONRequest("PUT", "/api/v1/orders/OP-3/status", map[string]string{"status": "finished"}), "OP-3")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.OrderHistory(w, httptest.NewRequest("GET", "/api/v1/orders/op-3/audit", nil), "op-3")
	testutil.AssertStatus(t, w, 200)
	var entries []models.AuditEntry
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Action != "UPDATE" || entries[1].Action != "CREATE" || entries[1].Username != "ana" {
		t.Errorf("entries = %+v", entries)
	}

	w = httptest.NewRecorder()
	h.OrderHistory(w, httptest.NewRequest("GET", "/api/v1/orders/OP-3/audit?limit=1", nil), "OP-3")
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 1 {
		t.Errorf("limited entries = %d", len(entries))
	}

	w = httptest.NewRecorder()
	h.OrderHistory(w, httptest.NewRequest("GET", "/api/v1/orders/OP-3/audit?limit=x", nil), "OP-3")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.OrderHistory(w, httptest.NewRequest("GET", "/api/v1/orders/OP-404/audit", nil), "OP-404")
	testutil.AssertStatus(t, w, 404)
}

func importTraces(t *testing.T, h *manufacturing.Handler, body string) store.ImportResult {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/traces", strings.NewReader(body))
	req.Header.Set("X-Operator", "station-3")
	h.ImportTraces(w, req)
	testutil.AssertStatus(t, w, 201)
	var res store.ImportResult
	testutil.DecodeEnvelope(t, w, &res)
	return res
}

func TestImportTraces(t *testing.T) {
	h, db := newTestHandler(t)

	res := importTraces(t, h, `[
		{"order_id": "OP-1", "stage": "Cut", "timestamp": "2025-03-01T08:00:00", "cycle_time": 40},
		{"order": "OP-1", "datos_etapa": {"stage": "Pack", "cycle_time": "x"}}
	]`)
	if res.Inserted != 2 || res.Degraded != 1 {
		t.Errorf("result = %+v", res)
	}

	res = importTraces(t, h, `{"order_id": "OP-1", "stage": "Cut", "timestamp": "2025-03-01T08:00:00", "cycle_time": 40}`)
	if res.Inserted != 0 || res.Duplicates != 1 {
		t.Errorf("re-import = %+v", res)
	}

	var user string
	db.QueryRow("SELECT username FROM audit_log WHERE module='trace' ORDER BY id LIMIT 1").Scan(&user)
	if user != "station-3" {
		t.Errorf("audit user = %q", user)
	}

	w := httptest.NewRecorder()
	h.ListTraces(w, httptest.NewRequest("GET", "/api/v1/traces?order=op-1", nil))
	var traces []vsm.TraceRecord
	testutil.DecodeEnvelope(t, w, &traces)
	if len(traces) != 2 || traces[1].StageName != "Pack" || len(traces[1].Warnings) != 1 {
		t.Errorf("traces = %+v", traces)
	}
}

func TestImportTracesRejectsBadBody(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, body := range []string{"", "42", `["a"]`, `{"stage":`} {
		w := httptest.NewRecorder()
		h.ImportTraces(w, httptest.NewRequest("POST", "/api/v1/traces", strings.NewReader(body)))
		testutil.AssertStatus(t, w, 400)
	}
}

func TestOrderAnalysisFromTraces(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.SeedOrder(t, db, "OP-7", 200, "open", "Cut", "Pack")
	importTraces(t, h, `[
		{"order_id": "OP-7", "stage": "Cut", "cycle_time": 40, "idle_time": 10, "setup_time": 5},
		{"order_id": "OP-7", "stage": "Pack", "cycle_time": 20, "idle_time": 0, "setup_time": 0}
	]`)

	w := httptest.NewRecorder()
	h.OrderAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-7", nil), "OP-7")
	testutil.AssertStatus(t, w, 200)

	var a vsm.Analysis
	testutil.DecodeEnvelope(t, w, &a)
	if a.Source != "real" || len(a.Stages) != 2 {
		t.Fatalf("analysis = %+v", a)
	}
	if a.Stages[1].CumulativeLeadTime != 75 {
		t.Errorf("lead time = %v", a.Stages[1].CumulativeLeadTime)
	}
	if a.KPI.TaktTime == nil || *a.KPI.TaktTime != 2.4 {
		t.Errorf("takt = %v", a.KPI.TaktTime)
	}
	if a.KPI.Bottleneck == nil || a.KPI.Bottleneck.StageName != "Cut" {
		t.Errorf("bottleneck = %+v", a.KPI.Bottleneck)
	}
}

func TestOrderAnalysisFromJSONLoader(t *testing.T) {
	h, _ := newTestHandler(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "orders.json"), []byte(`[{"order_number":"OP-8","stage_sequence":["Cut"],"quantity":"100"}]`), 0644)
	os.WriteFile(filepath.Join(dir, "traces.json"), []byte(`[{"op":"OP-8","stage":"Cut","cycle_time":6,"idle_time":2}]`), 0644)
	h.Loader = &store.JSONFiles{Dir: dir, TracesFile: "traces.json", OrdersFile: "orders.json", Normalizer: h.Config.Normalizer()}

	w := httptest.NewRecorder()
	h.OrderAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-8", nil), "OP-8")
	testutil.AssertStatus(t, w, 200)

	var a vsm.Analysis
	testutil.DecodeEnvelope(t, w, &a)
	if a.Source != "real" || len(a.Stages) != 1 || a.Stages[0].TotalTime != 8 {
		t.Fatalf("analysis = %+v", a)
	}
	if a.KPI.TaktTime == nil || *a.KPI.TaktTime != 4.8 {
		t.Errorf("takt = %v", a.KPI.TaktTime)
	}
}

func TestOrderAnalysisNoData(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.OrderAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-1", nil), "OP-1")
	testutil.AssertStatus(t, w, 404)
	if body := testutil.DecodeError(t, w); body["code"] != "NO_DATA" {
		t.Errorf("error body = %v", body)
	}

	w = httptest.NewRecorder()
	h.OrderAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-1?fallback=simulate&seed=7", nil), "OP-1")
	testutil.AssertStatus(t, w, 200)
	var a vsm.Analysis
	testutil.DecodeEnvelope(t, w, &a)
	if a.Source != "simulated" || a.Notice == "" || len(a.Stages) != len(h.Config.DefaultStages) {
		t.Errorf("fallback analysis = %+v", a)
	}

	w = httptest.NewRecorder()
	h.OrderAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-1?fallback=maybe&seed=x", nil), "OP-1")
	testutil.AssertStatus(t, w, 400)
}

func TestSimulate(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.Simulate(w, testutil.JSONRequest("POST", "/api/v1/vsm/simulate", map[string]any{"count": 9, "seed": 42}))
	testutil.AssertStatus(t, w, 200)

	var a vsm.Analysis
	testutil.DecodeEnvelope(t, w, &a)
	var seed int64 = 42
	want := vsm.Simulate(vsm.SimulatedStageNames(h.Config.DefaultStages, 9), &seed)
	if !reflect.DeepEqual(a.Stages, want) {
		t.Errorf("stages = %+v\nwant %+v", a.Stages, want)
	}
	if a.Stages[8].StageName != "Stage 9" {
		t.Errorf("extra stage name = %q", a.Stages[8].StageName)
	}
	if a.KPI.Quantity != 120 {
		t.Errorf("quantity = %d, want configured default", a.KPI.Quantity)
	}

	w = httptest.NewRecorder()
	h.Simulate(w, testutil.JSONRequest("POST", "/api/v1/vsm/simulate", map[string]any{"count": 25}))
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.Simulate(w, httptest.NewRequest("POST", "/api/v1/vsm/simulate", nil))
	testutil.AssertStatus(t, w, 200)
}

func TestRecommend(t *testing.T) {
	h, _ := newTestHandler(t)
	body := map[string]any{
		"quantity": 10,
		"stages": []map[string]any{
			{"stage_name": "Cut", "cycle_time": 10, "idle_time": 90, "setup_time": 70, "reject_count": 12},
			{"stage_name": "Pack", "cycle_time": 5, "idle_time": 20},
		},
	}
	w := httptest.NewRecorder()
	h.Recommend(w, testutil.JSONRequest("POST", "/api/v1/vsm/recommend", body))
	testutil.AssertStatus(t, w, 200)

	var a vsm.Analysis
	testutil.DecodeEnvelope(t, w, &a)
	if a.Stages[0].TotalTime != 170 || a.Stages[1].CumulativeLeadTime != 195 {
		t.Errorf("derived stages = %+v", a.Stages)
	}
	rules := map[string]bool{}
	for _, r := range a.Recommendations {
		rules[r.Rule] = true
	}
	for _, want := range []string{vsm.RuleLowEfficiency, vsm.RuleHighIdle, vsm.RuleHighSetup, vsm.RuleRejects, vsm.RuleBottleneck} {
		if !rules[want] {
			t.Errorf("rule %s missing from %+v", want, a.Recommendations)
		}
	}
	if a.Recommendations[0].Severity != vsm.SeverityHigh {
		t.Errorf("first severity = %s", a.Recommendations[0].Severity)
	}

	w = httptest.NewRecorder()
	h.Recommend(w, testutil.JSONRequest("POST", "/api/v1/vsm/recommend", map[string]any{"stages": []any{}}))
	testutil.AssertStatus(t, w, 400)
}

func TestExportAnalysis(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.SeedOrder(t, db, "OP-7", 200, "open", "Cut", "Pack")
	importTraces(t, h, `[{"order_id": "OP-7", "stage": "Cut", "cycle_time": 40, "idle_time": 10}]`)

	w := httptest.NewRecorder()
	h.ExportAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-7/export", nil), "OP-7")
	testutil.AssertStatus(t, w, 200)
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[0][0] != "Stage" || records[1][0] != "Cut" || records[1][4] != "50" {
		t.Errorf("csv = %v", records)
	}

	w = httptest.NewRecorder()
	h.ExportAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-7/export?format=xlsx", nil), "OP-7")
	testutil.AssertStatus(t, w, 200)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"Stages", "KPIs", "Recommendations"}) {
		t.Errorf("sheets = %v", got)
	}
	if v, _ := f.GetCellValue("Stages", "A3"); v != "Pack" {
		t.Errorf("Stages!A3 = %q", v)
	}

	if n := countRows(t, db, "SELECT COUNT(*) FROM data_exports WHERE entity_type='vsm'"); n != 2 {
		t.Errorf("export log rows = %d", n)
	}

	w = httptest.NewRecorder()
	h.ExportAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-7/export?format=pdf", nil), "OP-7")
	testutil.AssertStatus(t, w, 400)
}

func TestExportAnalysisNoData(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.ExportAnalysis(w, httptest.NewRequest("GET", "/api/v1/vsm/orders/OP-1/export", nil), "OP-1")
	testutil.AssertStatus(t, w, http.StatusNotFound)
}
