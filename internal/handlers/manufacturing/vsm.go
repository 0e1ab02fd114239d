package manufacturing

import (
	"errors"
	"net/http"

	"troquel/internal/models"
	"troquel/internal/response"
	"troquel/internal/validation"
	"troquel/internal/vsm"
)

// OrderAnalysis handles GET /api/v1/vsm/orders/{id}. With ?fallback=simulate
// an order without data is answered with a simulated table and a notice.
func (h *Handler) OrderAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := h.analyzeOrder(w, r, id)
	if !ok {
		return
	}
	response.JSON(w, a)
}

// analyzeOrder writes the error response itself and reports false on failure.
func (h *Handler) analyzeOrder(w http.ResponseWriter, r *http.Request, id string) (vsm.Analysis, bool) {
	q := r.URL.Query()
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "fallback", q.Get("fallback"), validation.ValidFallbacks)
	seed, err := seedParam(r)
	if err != nil {
		ve.Add("seed", "must be an integer")
	}
	if ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return vsm.Analysis{}, false
	}

	ds, err := h.loader().Load()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return vsm.Analysis{}, false
	}
	opts := h.Config.Options()
	opts.Fallback = q.Get("fallback") == "simulate"
	opts.Seed = seed

	a, err := vsm.AnalyzeOrder(id, ds, opts)
	if errors.Is(err, vsm.ErrNoData) {
		response.NoData(w, err.Error())
		return vsm.Analysis{}, false
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return vsm.Analysis{}, false
	}
	return a, true
}

// Simulate handles POST /api/v1/vsm/simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req models.SimulateRequest
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &req); err != nil {
			response.Err(w, "invalid body", 400)
			return
		}
	}

	ve := &validation.ValidationErrors{}
	if req.Count != 0 {
		validation.ValidateIntRange(ve, "count", req.Count, vsm.MinSimulatedStages, vsm.MaxSimulatedStages)
	}
	if len(req.Stages) > vsm.MaxSimulatedStages {
		ve.Add("stages", "too many stages")
	}
	for _, s := range req.Stages {
		if s == "" {
			ve.Add("stages", "stage names must not be empty")
			break
		}
	}
	quantity := h.Config.SimulatedQuantity
	if req.Quantity != nil {
		validation.ValidateNonNegativeInt(ve, "quantity", *req.Quantity)
		quantity = *req.Quantity
	}
	if ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return
	}

	stages := req.Stages
	if len(stages) == 0 {
		n := req.Count
		if n == 0 {
			n = len(h.Config.DefaultStages)
		}
		stages = vsm.SimulatedStageNames(h.Config.DefaultStages, n)
	}

	opts := h.Config.Options()
	rows := vsm.Simulate(stages, req.Seed)
	a := vsm.Report(vsm.Analysis{Source: vsm.Simulated{}.Name()}, rows, quantity, opts)
	response.JSON(w, a)
}

// Recommend handles POST /api/v1/vsm/recommend. It scores a stage table
// built elsewhere; missing totals are derived from the stage times.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := validation.ValidateStageTable(req.Stages)
	validation.ValidateNonNegativeInt(ve, "quantity", req.Quantity)
	validation.ValidateNonNegativeFloat(ve, "shift_minutes", req.ShiftMinutes)
	if ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return
	}

	opts := h.Config.Options()
	if req.ShiftMinutes > 0 {
		opts.ShiftMinutes = req.ShiftMinutes
	}
	a := vsm.Report(vsm.Analysis{Source: "external"}, vsm.Derive(req.Stages), req.Quantity, opts)
	response.JSON(w, a)
}
