package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/shared"
)

// Reserve places a hold against available quantity. On-hand does not move;
// the hold only narrows what later decreasing movements may take.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if !req.Quantity.IsPositive() {
		return Reservation{}, &InvalidOperationError{Reason: "reservation quantity must be > 0"}
	}
	product, err := s.resolveProduct(ctx, req.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	if _, err := s.resolveWarehouse(ctx, req.WarehouseID); err != nil {
		return Reservation{}, err
	}

	release, err := s.locks.Acquire(ctx, shared.StockPairKey(req.WarehouseID, req.ProductID))
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	var (
		reservation Reservation
		level       StockLevel
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.ledger.Level(ctx, tx, req.ProductID, req.WarehouseID)
		if err != nil {
			return err
		}
		if req.Quantity.GreaterThan(current.QuantityAvailable()) {
			return &InsufficientStockError{
				ProductID:   req.ProductID,
				WarehouseID: req.WarehouseID,
				Requested:   req.Quantity,
				Available:   current.QuantityAvailable(),
			}
		}

		reservation = Reservation{
			ID:          uuid.New(),
			ProductID:   req.ProductID,
			WarehouseID: req.WarehouseID,
			Quantity:    req.Quantity,
			Reference:   req.Reference,
			Status:      ReservationActive,
			CreatedAt:   s.now().UTC(),
			CreatedBy:   req.Actor,
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		level, err = s.ledger.ApplyDelta(ctx, tx, current, decimal.Zero, req.Quantity, uuid.Nil)
		return err
	})
	if err != nil {
		return Reservation{}, err
	}

	s.bumpCache(ctx)
	s.metrics.ReservationEvent("reserve")
	s.recordReservationAudit(ctx, "stock:reserve", reservation)
	s.notifyMonitor(ctx, product, level)
	return reservation, nil
}

// Release returns a hold to the available pool. Releasing a reservation
// that is not active fails; each hold settles exactly once.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID, actor string) (Reservation, error) {
	return s.settleReservation(ctx, reservationID, actor, "release", ReservationReleased,
		func(ctx context.Context, tx TxRepository, level StockLevel, r Reservation) (StockLevel, error) {
			return s.ledger.ApplyDelta(ctx, tx, level, decimal.Zero, r.Quantity.Neg(), uuid.Nil)
		})
}

// Consume fulfils a hold: the reserved quantity leaves both the hold and
// on-hand in a single ledger apply, recorded as an issue transaction
// referencing the reservation. The created transaction is returned so the
// caller can follow the ledger entry.
func (s *Service) Consume(ctx context.Context, reservationID uuid.UUID, actor string) (Reservation, StockTransaction, error) {
	var txn StockTransaction
	settled, err := s.settleReservation(ctx, reservationID, actor, "consume", ReservationConsumed,
		func(ctx context.Context, tx TxRepository, level StockLevel, r Reservation) (StockLevel, error) {
			now := s.now().UTC()
			txn = StockTransaction{
				ID:          uuid.New(),
				ProductID:   r.ProductID,
				WarehouseID: r.WarehouseID,
				Type:        TransactionIssue,
				Quantity:    r.Quantity.Neg(),
				Reference:   r.Reference,
				Reason:      fmt.Sprintf("consume reservation %s", r.ID),
				OccurredAt:  now,
				CreatedAt:   now,
				CreatedBy:   actor,
			}
			if err := s.insertNumbered(ctx, tx, &txn); err != nil {
				return StockLevel{}, err
			}
			return s.ledger.ApplyDelta(ctx, tx, level, r.Quantity.Neg(), r.Quantity.Neg(), txn.ID)
		})
	if err != nil {
		return Reservation{}, StockTransaction{}, err
	}
	return settled, txn, nil
}

func (s *Service) settleReservation(
	ctx context.Context,
	reservationID uuid.UUID,
	actor, op string,
	terminal ReservationStatus,
	apply func(context.Context, TxRepository, StockLevel, Reservation) (StockLevel, error),
) (Reservation, error) {
	existing, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	product, err := s.resolveProduct(ctx, existing.ProductID)
	if err != nil {
		return Reservation{}, err
	}

	release, err := s.locks.Acquire(ctx, shared.StockPairKey(existing.WarehouseID, existing.ProductID))
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	var (
		settled Reservation
		level   StockLevel
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReservationForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if current.Status != ReservationActive {
			return &InvalidOperationError{Reason: fmt.Sprintf("reservation %s is %s, not active", current.ID, current.Status)}
		}

		levelRow, err := s.ledger.Level(ctx, tx, current.ProductID, current.WarehouseID)
		if err != nil {
			return err
		}
		level, err = apply(ctx, tx, levelRow, current)
		if err != nil {
			return err
		}

		current.Status = terminal
		current.ReleasedAt = s.now().UTC()
		if err := tx.UpdateReservation(ctx, current); err != nil {
			return err
		}
		settled = current
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	s.bumpCache(ctx)
	s.metrics.ReservationEvent(op)
	s.recordReservationAudit(ctx, "stock:"+op, settled)
	s.notifyMonitor(ctx, product, level)
	return settled, nil
}

// GetReservation returns a reservation by id.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ListActiveReservations returns the open holds for a pair.
func (s *Service) ListActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error) {
	return s.repo.ListActiveReservations(ctx, productID, warehouseID)
}

// VerifyReservationInvariant checks that the reserved quantity on the level
// row equals the sum of active reservations for the pair. A mismatch means
// a write path bypassed the unit of work.
func (s *Service) VerifyReservationInvariant(ctx context.Context, productID, warehouseID uuid.UUID) error {
	release, err := s.locks.Acquire(ctx, shared.StockPairKey(warehouseID, productID))
	if err != nil {
		return err
	}
	defer release()

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := s.ledger.Level(ctx, tx, productID, warehouseID)
		if err != nil {
			return err
		}
		sum, err := tx.SumActiveReservations(ctx, productID, warehouseID)
		if err != nil {
			return err
		}
		if !level.QuantityReserved.Equal(sum) {
			return &shared.IntegrityError{Detail: fmt.Sprintf(
				"reserved quantity %s does not match active reservation sum %s for product %s warehouse %s",
				level.QuantityReserved, sum, productID, warehouseID)}
		}
		return nil
	})
}

func (s *Service) recordReservationAudit(ctx context.Context, action string, r Reservation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    r.CreatedBy,
		Action:   action,
		Entity:   "reservation",
		EntityID: r.ID.String(),
		Meta: map[string]any{
			"product_id":   r.ProductID.String(),
			"warehouse_id": r.WarehouseID.String(),
			"quantity":     r.Quantity.String(),
			"reference":    r.Reference,
		},
	})
}
