package manufacturing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"troquel/internal/audit"
	"troquel/internal/response"
	"troquel/internal/vsm"
)

// maxTraceBody caps one ingest request.
const maxTraceBody = 8 << 20

// ImportTraces handles POST /api/v1/traces. The body is one trace document
// or an array of them, in any of the shapes the capture stations emit.
// Records are stored as sent; unusable fields only degrade the record.
func (h *Handler) ImportTraces(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTraceBody+1))
	if err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if len(data) > maxTraceBody {
		response.Err(w, "body too large", 413)
		return
	}
	raws, err := decodeTraces(data)
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	res, err := h.Store.AppendTraces(raws)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	order := batchOrder(h.Store.Normalizer, raws)
	audit.LogAudit(h.DB, r, audit.ActionImport, "trace", order,
		fmt.Sprintf("Imported %d traces (%d duplicates, %d degraded)", res.Inserted, res.Duplicates, res.Degraded))
	if res.Inserted > 0 {
		h.Hub.TracesImported(order, res.IDs)
	}
	w.WriteHeader(201)
	response.JSON(w, res)
}

// ListTraces handles GET /api/v1/traces?order=. Traces come back normalized,
// with the warnings raised for degraded records.
func (h *Handler) ListTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := h.Store.Traces()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	order := strings.TrimSpace(r.URL.Query().Get("order"))
	out := make([]vsm.TraceRecord, 0, len(traces))
	for _, t := range traces {
		if order == "" || strings.EqualFold(strings.TrimSpace(t.OrderID), order) {
			out = append(out, t)
		}
	}
	response.JSONMeta(w, out, len(out), 1, len(out))
}

func decodeTraces(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if data[0] == '{' {
		var one map[string]any
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("invalid trace: %w", err)
		}
		return []map[string]any{one}, nil
	}
	var many []map[string]any
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("expected a trace object or an array of objects: %w", err)
	}
	return many, nil
}

// batchOrder returns the order shared by every record, or "" for a batch
// spanning several orders.
func batchOrder(n *vsm.Normalizer, raws []map[string]any) string {
	if n == nil {
		n = vsm.DefaultNormalizer()
	}
	order := ""
	for i, raw := range raws {
		id := strings.TrimSpace(n.Normalize(raw).OrderID)
		if i == 0 {
			order = id
			continue
		}
		if !strings.EqualFold(id, order) {
			return ""
		}
	}
	return order
}
