// Package api exposes the POS core to terminals as JSON over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/services/check"
	"restaurant-pos/internal/services/kitchen"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage"
)

// requestTimeout bounds the work of one request
const requestTimeout = 30 * time.Second

// Services bundles what the handlers call into
type Services struct {
	Store   storage.Store
	Shifts  *shift.Service
	Tables  *table.Service
	Checks  *check.Service
	Kitchen *kitchen.Scheduler
}

// Handler serves the terminal API
type Handler struct {
	svc           Services
	logger        *logger.Logger
	secret        []byte
	maxConcurrent int
}

// NewHandler creates a new API handler. An empty secret disables bearer
// token checks.
func NewHandler(svc Services, log *logger.Logger, secret string, maxConcurrent int) *Handler {
	if maxConcurrent < 1 {
		maxConcurrent = 50
	}
	return &Handler{
		svc:           svc,
		logger:        log,
		secret:        []byte(secret),
		maxConcurrent: maxConcurrent,
	}
}

// Router wires up the HTTP API
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.withRequestID)
	r.Use(h.withLogging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(h.maxConcurrent))

	r.Get("/health", h.health)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.startShift)
			r.Get("/active", h.activeShift)
			r.Get("/{shiftID}", h.getShift)
			r.Post("/{shiftID}/end", h.endShift)
		})

		pr.Route("/tables", func(r chi.Router) {
			r.Get("/", h.listTables)
			r.Post("/", h.addTable)
			r.Get("/{tableID}", h.getTable)
			r.Put("/{tableID}/status", h.updateTableStatus)
			r.Delete("/{tableID}", h.removeTable)
		})

		pr.Route("/checks", func(r chi.Router) {
			r.Post("/", h.openCheck)
			r.Get("/{checkID}", h.getCheck)
			r.Post("/{checkID}/items", h.addItems)
			r.Post("/{checkID}/items/{lineItemID}/adjust", h.adjustItem)
			r.Post("/{checkID}/split", h.splitCheck)
			r.Post("/{checkID}/settle", h.settle)
			r.Post("/{checkID}/settle-split", h.settleSplit)
			r.Post("/{checkID}/refund", h.refund)
			r.Post("/{checkID}/bump", h.bump)
		})

		pr.Route("/kitchen", func(r chi.Router) {
			r.Get("/tickets", h.kitchenTickets)
			r.Get("/stats", h.kitchenStats)
		})
	})

	return r
}
