package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionReceipt records incoming stock (purchase, production).
	TransactionReceipt TransactionType = "RECEIPT"
	// TransactionIssue records stock leaving for an order or internal use.
	TransactionIssue TransactionType = "ISSUE"
	// TransactionAdjustment records a manual signed correction.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	// TransactionTransfer marks the two linked legs of a warehouse transfer.
	TransactionTransfer TransactionType = "TRANSFER"
	// TransactionReturn records a return to supplier (decreases stock).
	TransactionReturn TransactionType = "RETURN"
	// TransactionDamage records a damaged-goods write-off.
	TransactionDamage TransactionType = "DAMAGE"
	// TransactionStockTake records a physical count correction.
	TransactionStockTake TransactionType = "STOCK_TAKE"
)

// StockLevel is the authoritative quantity record for one
// (product, warehouse) pair. The ledger is its only writer.
type StockLevel struct {
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	QuantityOnHand    decimal.Decimal `json:"quantity_on_hand"`
	QuantityReserved  decimal.Decimal `json:"quantity_reserved"`
	LastTransactionID uuid.UUID       `json:"last_transaction_id"`
	LastStockTakeAt   time.Time       `json:"last_stock_take_at"`
	LastUpdatedAt     time.Time       `json:"last_updated_at"`
}

// QuantityAvailable is on-hand minus reserved; derived, never stored.
func (s StockLevel) QuantityAvailable() decimal.Decimal {
	return s.QuantityOnHand.Sub(s.QuantityReserved)
}

// StockTransaction is an immutable ledger entry. Quantity is the signed
// delta applied to on-hand. Reversal creates a new entry with the inverted
// delta and links the pair; history is never edited.
type StockTransaction struct {
	ID                     uuid.UUID       `json:"id"`
	Number                 string          `json:"number"`
	ProductID              uuid.UUID       `json:"product_id"`
	WarehouseID            uuid.UUID       `json:"warehouse_id"`
	Type                   TransactionType `json:"type"`
	Quantity               decimal.Decimal `json:"quantity"`
	UnitCost               decimal.Decimal `json:"unit_cost"`
	Reference              string          `json:"reference"`
	SourceWarehouseID      uuid.UUID       `json:"source_warehouse_id,omitzero"`
	DestinationWarehouseID uuid.UUID       `json:"destination_warehouse_id,omitzero"`
	PairedTransactionID    uuid.UUID       `json:"paired_transaction_id,omitzero"`
	Reason                 string          `json:"reason"`
	Notes                  string          `json:"notes"`
	OccurredAt             time.Time       `json:"occurred_at"`
	CreatedAt              time.Time       `json:"created_at"`
	CreatedBy              string          `json:"created_by"`
	IsReversed             bool            `json:"is_reversed"`
	ReversedByID           uuid.UUID       `json:"reversed_by_id,omitzero"`
	ReversesID             uuid.UUID       `json:"reverses_id,omitzero"`
}

// TotalCost is quantity times unit cost, derived on read.
func (t StockTransaction) TotalCost() decimal.Decimal {
	return t.Quantity.Mul(t.UnitCost)
}

// ReservationStatus tracks the reservation lifecycle.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// Reservation holds available quantity against a pending commitment. It is
// pure availability accounting; on-hand stock does not move until the
// reservation is consumed.
type Reservation struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"product_id"`
	WarehouseID uuid.UUID         `json:"warehouse_id"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Reference   string            `json:"reference"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by"`
	ReleasedAt  time.Time         `json:"released_at,omitzero"`
}

// TransactionRequest describes a single-warehouse movement. Quantity is a
// positive magnitude for directional types (Receipt, Issue, Return, Damage)
// and a signed delta for Adjustment. StockTake requests carry the counted
// quantity instead; the delta is computed against on-hand inside the unit
// of work.
type TransactionRequest struct {
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	Type            TransactionType
	Quantity        decimal.Decimal
	CountedQuantity *decimal.Decimal
	UnitCost        decimal.Decimal
	Reference       string
	Reason          string
	Notes           string
	Actor           string
}

// TransferRequest moves quantity between two warehouses as one unit of work.
type TransferRequest struct {
	ProductID              uuid.UUID
	SourceWarehouseID      uuid.UUID
	DestinationWarehouseID uuid.UUID
	Quantity               decimal.Decimal
	UnitCost               decimal.Decimal
	Reference              string
	Notes                  string
	Actor                  string
}

// ReserveRequest places a hold against available quantity.
type ReserveRequest struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	Reference   string
	Actor       string
}

// LevelSnapshot is handed to the threshold monitor after every successful
// ledger mutation. Thresholds come from the product record current at the
// time of the mutation.
type LevelSnapshot struct {
	ProductID         uuid.UUID
	WarehouseID       uuid.UUID
	QuantityOnHand    decimal.Decimal
	QuantityReserved  decimal.Decimal
	QuantityAvailable decimal.Decimal
	MinimumStockLevel decimal.Decimal
	ReorderPoint      decimal.Decimal
	ReorderQuantity   decimal.Decimal
	At                time.Time
}

// InsufficientStockError reports that a decreasing movement or hold would
// exceed what is available. The caller must re-decide; no retry helps.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at warehouse %s: requested %s, available %s",
		e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

// InvalidOperationError reports a semantically invalid request.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return "invalid stock operation: " + e.Reason
}

// NegativeStockError is the ledger's last-resort integrity guard. The
// processor validates before applying, so seeing this is a defect.
type NegativeStockError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	OnHand      decimal.Decimal
	Reserved    decimal.Decimal
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("negative stock for product %s at warehouse %s: on-hand %s, reserved %s",
		e.ProductID, e.WarehouseID, e.OnHand, e.Reserved)
}

var (
	// ErrTransactionNotFound indicates a missing ledger entry.
	ErrTransactionNotFound = errors.New("stock: transaction not found")
	// ErrReservationNotFound indicates a missing reservation.
	ErrReservationNotFound = errors.New("stock: reservation not found")
)
