package manufacturing

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"

	"troquel/internal/audit"
	"troquel/internal/response"
	"troquel/internal/validation"
	"troquel/internal/vsm"
)

// ExportAnalysis handles GET /api/v1/vsm/orders/{id}/export?format=csv|xlsx.
// The workbook has one sheet each for stages, KPIs and recommendations; CSV
// carries the stage table only.
func (h *Handler) ExportAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "format", format, validation.ValidExportFormats)
	if ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return
	}

	a, ok := h.analyzeOrder(w, r, id)
	if !ok {
		return
	}
	audit.LogDataExport(h.DB, r, "vsm", format, len(a.Stages))

	name := "vsm-" + sanitize(id)
	if format == "xlsx" {
		ExportWorkbook(w, name, analysisSheets(a))
		return
	}
	stages := stageSheet(a.Stages)
	ExportCSV(w, name+".csv", stages.Headers, stages.Rows)
}

// Sheet is one worksheet of an exported workbook.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

var stageHeaders = []string{
	"Stage", "Cycle Time", "Idle Time", "Setup Time", "Total Time", "Efficiency %",
	"Lead Time", "Waste", "Final Qty", "Headcount", "Errors", "Rejects", "Has Trace",
}

func stageSheet(rows []vsm.StageAggregate) Sheet {
	s := Sheet{Name: "Stages", Headers: stageHeaders}
	for _, r := range rows {
		s.Rows = append(s.Rows, []any{
			r.StageName, r.CycleTime, r.IdleTime, r.SetupTime, r.TotalTime, r.EfficiencyPct,
			r.CumulativeLeadTime, r.WasteQty, r.FinalQuantity, r.Headcount, r.ErrorCount, r.RejectCount, r.Matched,
		})
	}
	return s
}

func analysisSheets(a vsm.Analysis) []Sheet {
	k := a.KPI
	kpis := Sheet{Name: "KPIs", Headers: []string{"Indicator", "Value"}}
	add := func(name string, v any) { kpis.Rows = append(kpis.Rows, []any{name, v}) }
	add("Order", a.OrderNumber)
	add("Source", a.Source)
	add("Shift Minutes", k.ShiftMinutes)
	add("Quantity", k.Quantity)
	add("Takt Time", optional(k.TaktTime))
	add("Global Efficiency %", optional(k.GlobalEfficiency))
	add("Avg Cycle Time", optional(k.AvgCycleTime))
	add("Total Idle Time", k.TotalIdleTime)
	add("Total Setup Time", k.TotalSetupTime)
	add("Lead Time", k.LeadTimeFinal)
	add("Value Added Time", k.ValueAddedTime)
	add("Non Value Added Time", k.NonValueAddedTime)
	add("Total Errors", k.TotalErrors)
	add("Total Rejects", k.TotalRejects)
	if k.Bottleneck != nil {
		add("Bottleneck", fmt.Sprintf("%s (%s min)", k.Bottleneck.StageName, strconv.FormatFloat(k.Bottleneck.TotalTime, 'f', -1, 64)))
	} else {
		add("Bottleneck", "")
	}

	recs := Sheet{Name: "Recommendations", Headers: []string{"Severity", "Rule", "Tool", "Justification"}}
	for _, rec := range a.Recommendations {
		recs.Rows = append(recs.Rows, []any{string(rec.Severity), rec.Rule, rec.ToolName, rec.Justification})
	}
	if len(a.Recommendations) == 0 {
		recs.Rows = append(recs.Rows, []any{"", "", "", a.Message})
	}
	return []Sheet{stageSheet(a.Stages), kpis, recs}
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

// ExportWorkbook writes sheets as an .xlsx attachment.
func ExportWorkbook(w http.ResponseWriter, name string, sheets []Sheet) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for i, sh := range sheets {
		index, err := f.NewSheet(sh.Name)
		if err != nil {
			http.Error(w, "Failed to create Excel sheet", 500)
			return
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		for col, header := range sh.Headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sh.Name, cell, header)
			f.SetCellStyle(sh.Name, cell, cell, headerStyle)
		}
		for rowIdx, row := range sh.Rows {
			for colIdx, value := range row {
				cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
				f.SetCellValue(sh.Name, cell, value)
			}
		}
		if len(sh.Headers) > 0 {
			last, _ := excelize.ColumnNumberToName(len(sh.Headers))
			f.SetColWidth(sh.Name, "A", last, 16)
		}
	}
	f.DeleteSheet("Sheet1")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", name))

	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
		return
	}
}

// ExportCSV writes a CSV attachment.
func ExportCSV(w http.ResponseWriter, filename string, headers []string, data [][]any) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	cw := csv.NewWriter(w)
	cw.Write(headers)
	for _, row := range data {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = cell(v)
		}
		cw.Write(record)
	}
	cw.Flush()
}

func cell(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
