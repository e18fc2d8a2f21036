package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockTransactionCreatedEvent is published after a ledger entry commits.
type StockTransactionCreatedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Number        string          `json:"number"`
	Type          TransactionType `json:"type"`
	ProductID     uuid.UUID       `json:"product_id"`
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StockLevelChangedEvent is published when on-hand quantity changes.
type StockLevelChangedEvent struct {
	ProductID    uuid.UUID       `json:"product_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	OldQuantity  decimal.Decimal `json:"old_quantity"`
	NewQuantity  decimal.Decimal `json:"new_quantity"`
	ChangeReason string          `json:"change_reason"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// PublisherPort delivers outbound notifications after the triggering
// mutation has committed. Delivery is at-least-once; publishing failures
// are logged, never rolled back into the committed operation.
type PublisherPort interface {
	StockTransactionCreated(ctx context.Context, evt StockTransactionCreatedEvent) error
	StockLevelChanged(ctx context.Context, evt StockLevelChangedEvent) error
}

// MonitorPort receives a level snapshot after every successful ledger
// mutation, including reservation changes.
type MonitorPort interface {
	LevelChanged(ctx context.Context, snapshot LevelSnapshot) error
}
