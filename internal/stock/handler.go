package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.handleCreateTransaction)
	r.Post("/transactions/batch", h.handleCreateBatch)
	r.Post("/transfers", h.handleTransfer)
	r.Get("/transactions/{id}", h.handleGetTransaction)
	r.Post("/transactions/{id}/reverse", h.handleReverse)
	r.Get("/levels", h.handleGetLevel)
	r.Get("/ledger", h.handleListTransactions)
	r.Post("/reservations", h.handleReserve)
	r.Get("/reservations/{id}", h.handleGetReservation)
	r.Get("/reservations", h.handleListReservations)
	r.Post("/reservations/{id}/release", h.handleRelease)
	r.Post("/reservations/{id}/consume", h.handleConsume)
}

type transactionPayload struct {
	ProductID       uuid.UUID        `json:"product_id"`
	WarehouseID     uuid.UUID        `json:"warehouse_id"`
	Type            TransactionType  `json:"type"`
	Quantity        decimal.Decimal  `json:"quantity"`
	CountedQuantity *decimal.Decimal `json:"counted_quantity"`
	UnitCost        decimal.Decimal  `json:"unit_cost"`
	Reference       string           `json:"reference"`
	Reason          string           `json:"reason"`
	Notes           string           `json:"notes"`
	Actor           string           `json:"actor"`
}

func (p transactionPayload) toRequest() TransactionRequest {
	return TransactionRequest{
		ProductID:       p.ProductID,
		WarehouseID:     p.WarehouseID,
		Type:            p.Type,
		Quantity:        p.Quantity,
		CountedQuantity: p.CountedQuantity,
		UnitCost:        p.UnitCost,
		Reference:       p.Reference,
		Reason:          p.Reason,
		Notes:           p.Notes,
		Actor:           p.Actor,
	}
}

type transferPayload struct {
	ProductID              uuid.UUID       `json:"product_id"`
	SourceWarehouseID      uuid.UUID       `json:"source_warehouse_id"`
	DestinationWarehouseID uuid.UUID       `json:"destination_warehouse_id"`
	Quantity               decimal.Decimal `json:"quantity"`
	UnitCost               decimal.Decimal `json:"unit_cost"`
	Reference              string          `json:"reference"`
	Notes                  string          `json:"notes"`
	Actor                  string          `json:"actor"`
}

type reservationPayload struct {
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reference   string          `json:"reference"`
	Actor       string          `json:"actor"`
}

type actorPayload struct {
	Actor string `json:"actor"`
}

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txn, err := h.service.Process(r.Context(), payload.toRequest())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Transactions []transactionPayload `json:"transactions"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reqs := make([]TransactionRequest, len(payload.Transactions))
	for i, p := range payload.Transactions {
		reqs[i] = p.toRequest()
	}
	txns, err := h.service.ProcessBatch(r.Context(), reqs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transactions": txns})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var payload transferPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferRequest{
		ProductID:              payload.ProductID,
		SourceWarehouseID:      payload.SourceWarehouseID,
		DestinationWarehouseID: payload.DestinationWarehouseID,
		Quantity:               payload.Quantity,
		UnitCost:               payload.UnitCost,
		Reference:              payload.Reference,
		Notes:                  payload.Notes,
		Actor:                  payload.Actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"outbound": out, "inbound": in})
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "transaction id must be a UUID")
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "transaction id must be a UUID")
		return
	}
	var payload actorPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reversal, err := h.service.Reverse(r.Context(), id, payload.Actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	productID, warehouseID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	level, err := h.service.GetStockLevel(r.Context(), productID, warehouseID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	productID, warehouseID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}
	txns, err := h.service.ListTransactions(r.Context(), productID, warehouseID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var payload reservationPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reservation, err := h.service.Reserve(r.Context(), ReserveRequest{
		ProductID:   payload.ProductID,
		WarehouseID: payload.WarehouseID,
		Quantity:    payload.Quantity,
		Reference:   payload.Reference,
		Actor:       payload.Actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reservation)
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "reservation id must be a UUID")
		return
	}
	reservation, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	productID, warehouseID, ok := h.pairParams(w, r)
	if !ok {
		return
	}
	reservations, err := h.service.ListActiveReservations(r.Context(), productID, warehouseID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, payload, ok := h.settleParams(w, r)
	if !ok {
		return
	}
	reservation, err := h.service.Release(r.Context(), id, payload.Actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, payload, ok := h.settleParams(w, r)
	if !ok {
		return
	}
	reservation, txn, err := h.service.Consume(r.Context(), id, payload.Actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservation": reservation, "transaction": txn})
}

func (h *Handler) settleParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, actorPayload, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "reservation id must be a UUID")
		return uuid.Nil, actorPayload{}, false
	}
	var payload actorPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, actorPayload{}, false
	}
	return id, payload, true
}

func (h *Handler) pairParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	productID, err := uuid.Parse(r.URL.Query().Get("product_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "product_id must be a UUID")
		return uuid.Nil, uuid.Nil, false
	}
	warehouseID, err := uuid.Parse(r.URL.Query().Get("warehouse_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "warehouse_id must be a UUID")
		return uuid.Nil, uuid.Nil, false
	}
	return productID, warehouseID, true
}

// respondError maps module errors to problem responses before deferring to
// the shared mapping.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *InsufficientStockError
		invalid      *InvalidOperationError
		negative     *NegativeStockError
	)
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient stock", insufficient.Error())
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid operation", invalid.Error())
	case errors.As(err, &negative):
		h.logger.Error("stock: integrity guard tripped", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Integrity violation", "stock level integrity guard rejected the operation")
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrReservationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	default:
		h.logger.Error("stock: request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
