package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/platform/httpx"
	"github.com/smartinventory/smartinventory/internal/stock"
)

// Handler wires HTTP endpoints for the procurement module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders", h.handleList)
	r.Get("/orders/{id}", h.handleGet)
	r.Post("/orders/{id}/submit", h.handleSubmit)
	r.Post("/orders/{id}/confirm", h.handleConfirm)
	r.Post("/orders/{id}/cancel", h.handleCancel)
	r.Post("/orders/{id}/close", h.handleClose)
	r.Post("/orders/{id}/receive", h.handleReceive)
}

type createOrderPayload struct {
	SupplierID           uuid.UUID          `json:"supplier_id"`
	WarehouseID          uuid.UUID          `json:"warehouse_id"`
	ExpectedDeliveryDate time.Time          `json:"expected_delivery_date"`
	TaxAmount            decimal.Decimal    `json:"tax_amount"`
	ShippingCost         decimal.Decimal    `json:"shipping_cost"`
	Notes                string             `json:"notes"`
	Actor                string             `json:"actor"`
	Items                []orderLinePayload `json:"items"`
}

type orderLinePayload struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Notes     string          `json:"notes"`
}

type receivePayload struct {
	Actor string        `json:"actor"`
	Lines []LineReceipt `json:"lines"`
}

type actorPayload struct {
	Actor string `json:"actor"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createOrderPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateOrderInput{
		SupplierID:           payload.SupplierID,
		WarehouseID:          payload.WarehouseID,
		ExpectedDeliveryDate: payload.ExpectedDeliveryDate,
		TaxAmount:            payload.TaxAmount,
		ShippingCost:         payload.ShippingCost,
		Notes:                payload.Notes,
		Actor:                payload.Actor,
	}
	for _, line := range payload.Items {
		input.Items = append(input.Items, OrderLineInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			Notes:     line.Notes,
		})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := PurchaseOrderStatus(r.URL.Query().Get("status"))
	orders, err := h.service.Orders(r.Context(), status, 100)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Order(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Submit)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Confirm)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Cancel)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.workflow(w, r, h.service.Close)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var payload receivePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Receive(r.Context(), id, payload.Lines, payload.Actor, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) workflow(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, string) (PurchaseOrder, error)) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var payload actorPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := op(r.Context(), id, payload.Actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "order id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *stock.InsufficientStockError
		invalid      *stock.InvalidOperationError
	)
	switch {
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid operation", invalid.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient stock", insufficient.Error())
	default:
		h.logger.Error("procurement: request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
