package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"restaurant-pos/internal/models"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "pos-api",
	}
	status := http.StatusOK
	if err := h.svc.Store.Ping(ctx); err != nil {
		h.logger.Error("health_check_failed", "Storage is unreachable", requestIDFrom(r.Context()), err, nil)
		response["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, status, response, requestIDFrom(r.Context()))
}

// withTimeout derives the context a handler passes to the services
func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// Shifts

func (h *Handler) startShift(w http.ResponseWriter, r *http.Request) {
	var req models.StartShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = employeeFrom(r.Context())
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	sh, err := h.svc.Shifts.StartShift(ctx, &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "shift_start_failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sh, requestIDFrom(r.Context()))
}

func (h *Handler) endShift(w http.ResponseWriter, r *http.Request) {
	var req models.EndShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	report, err := h.svc.Shifts.EndShift(ctx, chi.URLParam(r, "shiftID"), &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "shift_end_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, report, requestIDFrom(r.Context()))
}

func (h *Handler) getShift(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	sh, err := h.svc.Shifts.GetShift(ctx, chi.URLParam(r, "shiftID"))
	if err != nil {
		h.respondError(w, r, "shift_lookup_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, sh, requestIDFrom(r.Context()))
}

func (h *Handler) activeShift(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		employeeID = employeeFrom(r.Context())
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	sh, err := h.svc.Shifts.ActiveShift(ctx, employeeID)
	if err != nil {
		h.respondError(w, r, "shift_lookup_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, sh, requestIDFrom(r.Context()))
}

// Tables

type addTableRequest struct {
	Number   int    `json:"number"`
	Capacity int    `json:"capacity"`
	Section  string `json:"section,omitempty"`
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	tables, err := h.svc.Tables.ListTables(ctx)
	if err != nil {
		h.respondError(w, r, "table_list_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, tables, requestIDFrom(r.Context()))
}

func (h *Handler) addTable(w http.ResponseWriter, r *http.Request) {
	var req addTableRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	t, err := h.svc.Tables.AddTable(ctx, req.Number, req.Capacity, req.Section)
	if err != nil {
		h.respondError(w, r, "table_add_failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, t, requestIDFrom(r.Context()))
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	t, err := h.svc.Tables.GetTable(ctx, chi.URLParam(r, "tableID"))
	if err != nil {
		h.respondError(w, r, "table_lookup_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, t, requestIDFrom(r.Context()))
}

func (h *Handler) updateTableStatus(w http.ResponseWriter, r *http.Request) {
	var req models.TableStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	t, err := h.svc.Tables.UpdateStatus(ctx, chi.URLParam(r, "tableID"), req.Status, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "table_status_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, t, requestIDFrom(r.Context()))
}

func (h *Handler) removeTable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := h.svc.Tables.RemoveTable(ctx, chi.URLParam(r, "tableID"), requestIDFrom(r.Context())); err != nil {
		h.respondError(w, r, "table_remove_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checks

func (h *Handler) openCheck(w http.ResponseWriter, r *http.Request) {
	var req models.OpenCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Checks.OpenCheck(ctx, &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "check_open_failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, c, requestIDFrom(r.Context()))
}

func (h *Handler) getCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Checks.GetCheck(ctx, chi.URLParam(r, "checkID"))
	if err != nil {
		h.respondError(w, r, "check_lookup_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, c, requestIDFrom(r.Context()))
}

func (h *Handler) addItems(w http.ResponseWriter, r *http.Request) {
	var req models.AddItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Checks.AddItems(ctx, chi.URLParam(r, "checkID"), &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "items_add_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, c, requestIDFrom(r.Context()))
}

func (h *Handler) adjustItem(w http.ResponseWriter, r *http.Request) {
	var req models.AdjustItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}
	if req.Actor == "" {
		req.Actor = employeeFrom(r.Context())
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Checks.AdjustItem(ctx, chi.URLParam(r, "checkID"), chi.URLParam(r, "lineItemID"), &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "item_adjust_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, c, requestIDFrom(r.Context()))
}

func (h *Handler) splitCheck(w http.ResponseWriter, r *http.Request) {
	var req models.SplitCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	result, err := h.svc.Checks.SplitCheck(ctx, chi.URLParam(r, "checkID"), &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "check_split_failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, result, requestIDFrom(r.Context()))
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req models.SettleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}
	h.billOut(w, r, &models.BillOutRequest{Single: &req})
}

func (h *Handler) settleSplit(w http.ResponseWriter, r *http.Request) {
	var req models.SettleSplitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}
	h.billOut(w, r, &models.BillOutRequest{Split: &req})
}

func (h *Handler) billOut(w http.ResponseWriter, r *http.Request, req *models.BillOutRequest) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	result, err := h.svc.Checks.BillOut(ctx, chi.URLParam(r, "checkID"), req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "settlement_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, result, requestIDFrom(r.Context()))
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req models.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, "validation_failed", err)
		return
	}
	if req.Actor == "" {
		req.Actor = employeeFrom(r.Context())
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Checks.Refund(ctx, chi.URLParam(r, "checkID"), &req, requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "refund_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, c, requestIDFrom(r.Context()))
}

// Kitchen

func (h *Handler) bump(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := h.svc.Kitchen.Bump(ctx, chi.URLParam(r, "checkID"), requestIDFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, "bump_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, c, requestIDFrom(r.Context()))
}

func (h *Handler) kitchenTickets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	tickets, err := h.svc.Kitchen.Tickets(ctx)
	if err != nil {
		h.respondError(w, r, "tickets_failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, tickets, requestIDFrom(r.Context()))
}

func (h *Handler) kitchenStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.svc.Kitchen.Stats(), requestIDFrom(r.Context()))
}
