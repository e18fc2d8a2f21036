package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns stock_levels rows. It runs inside the caller's unit of work;
// every apply writes both quantities in a single upsert so a partially
// updated pair is never observable.
//
// The negative-quantity check here is a last-resort integrity guard. The
// transaction processor validates availability before applying; if this
// guard trips, that validation has a defect.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Level returns the current row for the pair, materialising a zeroed row on
// first access.
func (l *Ledger) Level(ctx context.Context, tx TxRepository, productID, warehouseID uuid.UUID) (StockLevel, error) {
	level, err := tx.GetLevelForUpdate(ctx, productID, warehouseID)
	if err != nil {
		if errors.Is(err, ErrLevelNotFound) {
			return StockLevel{ProductID: productID, WarehouseID: warehouseID}, nil
		}
		return StockLevel{}, err
	}
	return level, nil
}

// ApplyDelta atomically adjusts on-hand and reserved quantities for the
// pair, stamping the last transaction and update time. transactionID may be
// uuid.Nil for reservation-only changes, which keep the previous stamp.
func (l *Ledger) ApplyDelta(ctx context.Context, tx TxRepository, level StockLevel, onHandDelta, reservedDelta decimal.Decimal, transactionID uuid.UUID) (StockLevel, error) {
	newOnHand := level.QuantityOnHand.Add(onHandDelta)
	newReserved := level.QuantityReserved.Add(reservedDelta)
	if newOnHand.IsNegative() || newReserved.IsNegative() {
		return StockLevel{}, &NegativeStockError{
			ProductID:   level.ProductID,
			WarehouseID: level.WarehouseID,
			OnHand:      newOnHand,
			Reserved:    newReserved,
		}
	}

	level.QuantityOnHand = newOnHand
	level.QuantityReserved = newReserved
	if transactionID != uuid.Nil {
		level.LastTransactionID = transactionID
	}
	level.LastUpdatedAt = l.now().UTC()

	if err := tx.UpsertLevel(ctx, level); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}
