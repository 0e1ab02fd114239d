package manufacturing

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"troquel/internal/audit"
	"troquel/internal/models"
	"troquel/internal/response"
	"troquel/internal/store"
	"troquel/internal/validation"
	"troquel/internal/vsm"
	"troquel/internal/websocket"
)

// ListOrders handles GET /api/v1/orders. With ?active=true orders in the
// configured finished status are left out.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.Orders()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if r.URL.Query().Get("active") == "true" {
		orders = vsm.InProgress(orders, h.Config.FinishedStatus)
	}
	if orders == nil {
		orders = []vsm.Order{}
	}
	response.JSONMeta(w, orders, len(orders), 1, len(orders))
}

// CreateOrder handles POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var o vsm.Order
	if err := response.DecodeBody(r, &o); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	o.OrderNumber = strings.TrimSpace(o.OrderNumber)
	for i, s := range o.StageSequence {
		o.StageSequence[i] = strings.TrimSpace(s)
	}
	if ve := validation.ValidateOrder(o); ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return
	}
	if o.StageSequence == nil {
		o.StageSequence = []string{}
	}

	err := h.Store.CreateOrder(o)
	if errors.Is(err, store.ErrDuplicateOrder) {
		response.Err(w, fmt.Sprintf("order %s already exists", o.OrderNumber), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogAudit(h.DB, r, audit.ActionCreate, "order", o.OrderNumber,
		fmt.Sprintf("Created order %s with %d stages", o.OrderNumber, len(o.StageSequence)))
	h.Hub.OrderChanged(websocket.EventOrderCreated, o.OrderNumber)
	w.WriteHeader(201)
	response.JSON(w, o)
}

// UpdateOrderStatus handles PUT /api/v1/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body models.StatusUpdate
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "status", body.Status)
	validation.ValidateMaxLength(ve, "status", body.Status, validation.MaxStringLength)
	if ve.HasErrors() {
		response.Invalid(w, ve.Errors)
		return
	}

	err := h.Store.SetStatus(id, strings.TrimSpace(body.Status))
	if errors.Is(err, store.ErrOrderNotFound) {
		response.Err(w, "not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogAudit(h.DB, r, audit.ActionUpdate, "order", id, "Status set to "+body.Status)
	h.Hub.OrderChanged(websocket.EventOrderUpdated, id)
	response.JSON(w, map[string]string{"order_number": id, "status": strings.TrimSpace(body.Status)})
}

// OrderHistory handles GET /api/v1/orders/{id}/audit. ?limit= caps the
// number of entries (default 50).
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request, id string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		ve := &validation.ValidationErrors{}
		if err != nil {
			ve.Add("limit", "must be an integer")
		} else {
			validation.ValidateIntRange(ve, "limit", n, 1, 500)
		}
		if ve.HasErrors() {
			response.Invalid(w, ve.Errors)
			return
		}
		limit = n
	}

	orders, err := h.Store.Orders()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, ok := (vsm.Dataset{Orders: orders}).FindOrder(id); !ok {
		response.Err(w, "not found", 404)
		return
	}
	entries, err := audit.ForRecord(h.DB, "order", strings.TrimSpace(id), limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONMeta(w, entries, len(entries), 1, limit)
}
