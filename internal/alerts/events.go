package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductReorderPointReachedEvent is published when available quantity
// drops to or below the product's reorder point. ReorderQuantity is the
// suggested replenishment amount from the product record.
type ProductReorderPointReachedEvent struct {
	AlertID           uuid.UUID       `json:"alert_id"`
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	ReorderPoint      decimal.Decimal `json:"reorder_point"`
	ReorderQuantity   decimal.Decimal `json:"reorder_quantity"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// PublisherPort delivers alert notifications after commit.
type PublisherPort interface {
	ProductReorderPointReached(ctx context.Context, evt ProductReorderPointReachedEvent) error
}
