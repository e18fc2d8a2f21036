package alerts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartinventory/smartinventory/internal/platform/httpx"
	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
)

// Handler wires HTTP endpoints for the alerts module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleListOpen)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/acknowledge", h.handleAcknowledge)
	r.Post("/{id}/progress", h.handleMarkInProgress)
	r.Post("/{id}/resolve", h.handleResolve)
	r.Post("/{id}/ignore", h.handleIgnore)
}

type lifecyclePayload struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

func (h *Handler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	productID := uuid.Nil
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "product_id must be a UUID")
			return
		}
		productID = parsed
	}
	warehouseID := uuid.Nil
	if raw := r.URL.Query().Get("warehouse_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "warehouse_id must be a UUID")
			return
		}
		warehouseID = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	alerts, err := h.service.OpenAlerts(r.Context(), productID, warehouseID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "alert id must be a UUID")
		return
	}
	alert, err := h.service.Alert(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id uuid.UUID, p lifecyclePayload) (StockAlert, error) {
		return h.service.Acknowledge(ctx, id, p.Actor)
	})
}

func (h *Handler) handleMarkInProgress(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id uuid.UUID, p lifecyclePayload) (StockAlert, error) {
		return h.service.MarkInProgress(ctx, id, p.Actor)
	})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id uuid.UUID, p lifecyclePayload) (StockAlert, error) {
		return h.service.Resolve(ctx, id, p.Actor, p.Notes)
	})
}

func (h *Handler) handleIgnore(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, id uuid.UUID, p lifecyclePayload) (StockAlert, error) {
		return h.service.Ignore(ctx, id, p.Actor, p.Notes)
	})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, lifecyclePayload) (StockAlert, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "alert id must be a UUID")
		return
	}
	var payload lifecyclePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := op(r.Context(), id, payload)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *stock.InvalidOperationError
	switch {
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid operation", invalid.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("alerts: request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
