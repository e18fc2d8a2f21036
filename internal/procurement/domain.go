package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderStatus tracks the procurement workflow.
type PurchaseOrderStatus string

const (
	StatusDraft             PurchaseOrderStatus = "DRAFT"
	StatusSubmitted         PurchaseOrderStatus = "SUBMITTED"
	StatusConfirmed         PurchaseOrderStatus = "CONFIRMED"
	StatusPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	StatusReceived          PurchaseOrderStatus = "RECEIVED"
	StatusCancelled         PurchaseOrderStatus = "CANCELLED"
	StatusClosed            PurchaseOrderStatus = "CLOSED"
)

// receivable reports whether stock may still arrive against the order.
func (s PurchaseOrderStatus) receivable() bool {
	return s == StatusConfirmed || s == StatusPartiallyReceived
}

// PurchaseOrder is an order placed with a supplier for delivery to one
// warehouse.
type PurchaseOrder struct {
	ID                   uuid.UUID           `json:"id"`
	OrderNumber          string              `json:"order_number"`
	SupplierID           uuid.UUID           `json:"supplier_id"`
	WarehouseID          uuid.UUID           `json:"warehouse_id"`
	OrderDate            time.Time           `json:"order_date"`
	ExpectedDeliveryDate time.Time           `json:"expected_delivery_date"`
	ActualDeliveryDate   time.Time           `json:"actual_delivery_date,omitzero"`
	Status               PurchaseOrderStatus `json:"status"`
	SubTotal             decimal.Decimal     `json:"sub_total"`
	TaxAmount            decimal.Decimal     `json:"tax_amount"`
	ShippingCost         decimal.Decimal     `json:"shipping_cost"`
	Notes                string              `json:"notes,omitempty"`
	ApprovedBy           string              `json:"approved_by,omitempty"`
	ApprovedAt           time.Time           `json:"approved_at,omitzero"`
	CreatedAt            time.Time           `json:"created_at"`
	CreatedBy            string              `json:"created_by"`
	UpdatedAt            time.Time           `json:"updated_at"`
	UpdatedBy            string              `json:"updated_by"`
	Items                []PurchaseOrderItem `json:"items"`
}

// TotalAmount is the order total including tax and shipping.
func (o PurchaseOrder) TotalAmount() decimal.Decimal {
	return o.SubTotal.Add(o.TaxAmount).Add(o.ShippingCost)
}

// FullyReceived reports whether every line has received at least its
// ordered quantity.
func (o PurchaseOrder) FullyReceived() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if item.ReceivedQuantity.LessThan(item.Quantity) {
			return false
		}
	}
	return true
}

// AnyReceived reports whether any quantity has arrived.
func (o PurchaseOrder) AnyReceived() bool {
	for _, item := range o.Items {
		if item.ReceivedQuantity.IsPositive() {
			return true
		}
	}
	return false
}

// PurchaseOrderItem is one product line on an order.
type PurchaseOrderItem struct {
	ID               uuid.UUID       `json:"id"`
	PurchaseOrderID  uuid.UUID       `json:"purchase_order_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	Notes            string          `json:"notes,omitempty"`
}

// TotalCost is the line total.
func (i PurchaseOrderItem) TotalCost() decimal.Decimal {
	return i.Quantity.Mul(i.UnitCost)
}

// CreateOrderInput describes a new draft order.
type CreateOrderInput struct {
	SupplierID           uuid.UUID
	WarehouseID          uuid.UUID
	ExpectedDeliveryDate time.Time
	TaxAmount            decimal.Decimal
	ShippingCost         decimal.Decimal
	Notes                string `validate:"max=1000"`
	Actor                string `validate:"required"`
	Items                []OrderLineInput
}

// OrderLineInput describes one line of a new order.
type OrderLineInput struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	Notes     string `validate:"max=500"`
}

// LineReceipt is one received line in a delivery.
type LineReceipt struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReceivedLine reports the outcome of one line in a receiving operation.
type ReceivedLine struct {
	ItemID        uuid.UUID       `json:"item_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	OverReceipt   bool            `json:"over_receipt"`
}

// ReceivingResult summarises a completed receiving operation.
type ReceivingResult struct {
	OrderID     uuid.UUID           `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	Status      PurchaseOrderStatus `json:"status"`
	Lines       []ReceivedLine      `json:"lines"`
	ReceivedAt  time.Time           `json:"received_at"`
}
