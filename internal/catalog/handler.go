package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Put("/products/{id}/thresholds", h.handleUpdateThresholds)
	r.Post("/products/{id}/deactivate", h.handleDeactivateProduct)
	r.Post("/warehouses", h.handleCreateWarehouse)
	r.Get("/warehouses/{id}", h.handleGetWarehouse)
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Get("/suppliers/{id}", h.handleGetSupplier)
}

type createProductPayload struct {
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Category          ProductCategory `json:"category"`
	UnitOfMeasure     UnitOfMeasure   `json:"unit_of_measure"`
	MinimumStockLevel decimal.Decimal `json:"minimum_stock_level"`
	ReorderPoint      decimal.Decimal `json:"reorder_point"`
	ReorderQuantity   decimal.Decimal `json:"reorder_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	Actor             string          `json:"actor"`
}

type thresholdsPayload struct {
	MinimumStockLevel decimal.Decimal `json:"minimum_stock_level"`
	ReorderPoint      decimal.Decimal `json:"reorder_point"`
	ReorderQuantity   decimal.Decimal `json:"reorder_quantity"`
	Actor             string          `json:"actor"`
}

type createWarehousePayload struct {
	Code    string        `json:"code"`
	Name    string        `json:"name"`
	Type    WarehouseType `json:"type"`
	Address Address       `json:"address"`
	Actor   string        `json:"actor"`
}

type createSupplierPayload struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	ContactPerson string  `json:"contact_person"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	PaymentTerms  string  `json:"payment_terms"`
	LeadTimeDays  int     `json:"lead_time_days"`
	Address       Address `json:"address"`
	Actor         string  `json:"actor"`
}

type actorPayload struct {
	Actor string `json:"actor"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var payload createProductPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		SKU:               payload.SKU,
		Name:              payload.Name,
		Description:       payload.Description,
		Category:          payload.Category,
		UnitOfMeasure:     payload.UnitOfMeasure,
		MinimumStockLevel: payload.MinimumStockLevel,
		ReorderPoint:      payload.ReorderPoint,
		ReorderQuantity:   payload.ReorderQuantity,
		UnitCost:          payload.UnitCost,
		Actor:             payload.Actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Product(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload thresholdsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProductThresholds(r.Context(), id,
		payload.MinimumStockLevel, payload.ReorderPoint, payload.ReorderQuantity, payload.Actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload actorPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeactivateProduct(r.Context(), id, payload.Actor); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var payload createWarehousePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), CreateWarehouseInput{
		Code:    payload.Code,
		Name:    payload.Name,
		Type:    payload.Type,
		Address: payload.Address,
		Actor:   payload.Actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) handleGetWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.Warehouse(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var payload createSupplierPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), CreateSupplierInput{
		Code:          payload.Code,
		Name:          payload.Name,
		ContactPerson: payload.ContactPerson,
		Email:         payload.Email,
		Phone:         payload.Phone,
		PaymentTerms:  payload.PaymentTerms,
		LeadTimeDays:  payload.LeadTimeDays,
		Address:       payload.Address,
		Actor:         payload.Actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	supplier, err := h.service.Supplier(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("catalog: request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
