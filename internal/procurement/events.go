package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PurchaseOrderReceivedEvent is published after a receiving operation
// commits.
type PurchaseOrderReceivedEvent struct {
	OrderID     uuid.UUID           `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	WarehouseID uuid.UUID           `json:"warehouse_id"`
	Status      PurchaseOrderStatus `json:"status"`
	Lines       []ReceivedLine      `json:"lines"`
	ReceivedAt  time.Time           `json:"received_at"`
	ReceivedBy  string              `json:"received_by"`
}

// PublisherPort delivers procurement notifications after commit.
type PublisherPort interface {
	PurchaseOrderReceived(ctx context.Context, evt PurchaseOrderReceivedEvent) error
}
