package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/catalog"
	"github.com/smartinventory/smartinventory/internal/observability"
	"github.com/smartinventory/smartinventory/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (StockTransaction, error)
	ListTransactions(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockTransaction, error)
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	ListActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error)
}

// CatalogPort resolves product and warehouse reference data.
type CatalogPort interface {
	Product(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	Warehouse(ctx context.Context, id uuid.UUID) (catalog.Warehouse, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceDeps groups the collaborators of Service. Repo, Catalog, Locks and
// Numbers are required; the rest degrade to no-ops when nil.
type ServiceDeps struct {
	Repo      RepositoryPort
	Catalog   CatalogPort
	Locks     *shared.KeyedLock
	Numbers   *shared.NumberGenerator
	Audit     AuditPort
	Monitor   MonitorPort
	Publisher PublisherPort
	Cache     *LevelCache
	Metrics   *observability.Domain
	Logger    *slog.Logger
}

// Service is the transaction processor and reservation manager: the only
// writer of the quantity ledger.
type Service struct {
	repo      RepositoryPort
	ledger    *Ledger
	catalog   CatalogPort
	locks     *shared.KeyedLock
	numbers   *shared.NumberGenerator
	audit     AuditPort
	monitor   MonitorPort
	publisher PublisherPort
	cache     *LevelCache
	metrics   *observability.Domain
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		ledger:    NewLedger(),
		catalog:   deps.Catalog,
		locks:     deps.Locks,
		numbers:   deps.Numbers,
		audit:     deps.Audit,
		monitor:   deps.Monitor,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// movementPlan is a validated request ready to apply.
type movementPlan struct {
	req     TransactionRequest
	product catalog.Product
	delta   decimal.Decimal
	recount bool
}

// Process validates and applies a single stock transaction atomically.
func (s *Service) Process(ctx context.Context, req TransactionRequest) (StockTransaction, error) {
	plan, err := s.validateRequest(ctx, req)
	if err != nil {
		return StockTransaction{}, err
	}

	release, err := s.locks.Acquire(ctx, shared.StockPairKey(req.WarehouseID, req.ProductID))
	if err != nil {
		return StockTransaction{}, err
	}
	defer release()

	var result appliedMovement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.applyMovement(ctx, tx, plan)
		return err
	})
	if err != nil {
		return StockTransaction{}, err
	}

	s.afterCommit(ctx, []appliedMovement{result})
	return result.txn, nil
}

// ProcessBatch applies several transactions as one unit of work: either all
// are recorded or none. Pair locks are taken in sorted order so concurrent
// batches cannot deadlock.
func (s *Service) ProcessBatch(ctx context.Context, reqs []TransactionRequest) ([]StockTransaction, error) {
	if len(reqs) == 0 {
		return nil, &InvalidOperationError{Reason: "batch requires at least one transaction"}
	}
	plans := make([]movementPlan, 0, len(reqs))
	keys := make([]string, 0, len(reqs))
	for _, req := range reqs {
		plan, err := s.validateRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
		keys = append(keys, shared.StockPairKey(req.WarehouseID, req.ProductID))
	}

	release, err := s.locks.AcquireAll(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]appliedMovement, 0, len(plans))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, plan := range plans {
			result, err := s.applyMovement(ctx, tx, plan)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, results)
	txns := make([]StockTransaction, len(results))
	for i, result := range results {
		txns[i] = result.txn
	}
	return txns, nil
}

// Transfer moves quantity between warehouses as two linked ledger entries
// applied in one unit of work.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (StockTransaction, StockTransaction, error) {
	if req.SourceWarehouseID == req.DestinationWarehouseID {
		return StockTransaction{}, StockTransaction{}, &InvalidOperationError{Reason: "source and destination warehouse must differ"}
	}
	if !req.Quantity.IsPositive() {
		return StockTransaction{}, StockTransaction{}, &InvalidOperationError{Reason: "transfer quantity must be > 0"}
	}
	if req.UnitCost.IsNegative() {
		return StockTransaction{}, StockTransaction{}, &InvalidOperationError{Reason: "unit cost must be >= 0"}
	}
	product, err := s.resolveProduct(ctx, req.ProductID)
	if err != nil {
		return StockTransaction{}, StockTransaction{}, err
	}
	if _, err := s.resolveWarehouse(ctx, req.SourceWarehouseID); err != nil {
		return StockTransaction{}, StockTransaction{}, err
	}
	if _, err := s.resolveWarehouse(ctx, req.DestinationWarehouseID); err != nil {
		return StockTransaction{}, StockTransaction{}, err
	}

	release, err := s.locks.AcquireAll(ctx,
		shared.StockPairKey(req.SourceWarehouseID, req.ProductID),
		shared.StockPairKey(req.DestinationWarehouseID, req.ProductID))
	if err != nil {
		return StockTransaction{}, StockTransaction{}, err
	}
	defer release()

	outID, inID := uuid.New(), uuid.New()
	now := s.now().UTC()
	var outMove, inMove appliedMovement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		srcLevel, err := s.ledger.Level(ctx, tx, req.ProductID, req.SourceWarehouseID)
		if err != nil {
			return err
		}
		if req.Quantity.GreaterThan(srcLevel.QuantityAvailable()) {
			return &InsufficientStockError{
				ProductID:   req.ProductID,
				WarehouseID: req.SourceWarehouseID,
				Requested:   req.Quantity,
				Available:   srcLevel.QuantityAvailable(),
			}
		}

		out := StockTransaction{
			ID:                     outID,
			ProductID:              req.ProductID,
			WarehouseID:            req.SourceWarehouseID,
			Type:                   TransactionTransfer,
			Quantity:               req.Quantity.Neg(),
			UnitCost:               req.UnitCost,
			Reference:              req.Reference,
			SourceWarehouseID:      req.SourceWarehouseID,
			DestinationWarehouseID: req.DestinationWarehouseID,
			PairedTransactionID:    inID,
			Notes:                  req.Notes,
			OccurredAt:             now,
			CreatedAt:              now,
			CreatedBy:              req.Actor,
		}
		in := out
		in.ID = inID
		in.WarehouseID = req.DestinationWarehouseID
		in.Quantity = req.Quantity
		in.PairedTransactionID = outID

		if err := s.insertNumbered(ctx, tx, &out); err != nil {
			return err
		}
		if err := s.insertNumbered(ctx, tx, &in); err != nil {
			return err
		}

		newSrc, err := s.ledger.ApplyDelta(ctx, tx, srcLevel, out.Quantity, decimal.Zero, out.ID)
		if err != nil {
			return err
		}
		dstLevel, err := s.ledger.Level(ctx, tx, req.ProductID, req.DestinationWarehouseID)
		if err != nil {
			return err
		}
		newDst, err := s.ledger.ApplyDelta(ctx, tx, dstLevel, in.Quantity, decimal.Zero, in.ID)
		if err != nil {
			return err
		}
		outMove = appliedMovement{txn: out, product: product, oldOnHand: srcLevel.QuantityOnHand, level: newSrc}
		inMove = appliedMovement{txn: in, product: product, oldOnHand: dstLevel.QuantityOnHand, level: newDst}
		return nil
	})
	if err != nil {
		return StockTransaction{}, StockTransaction{}, err
	}

	s.afterCommit(ctx, []appliedMovement{outMove, inMove})
	return outMove.txn, inMove.txn, nil
}

// Reverse creates the inverse of a committed transaction and links the pair.
// A second reversal attempt fails; history is never edited in place.
func (s *Service) Reverse(ctx context.Context, transactionID uuid.UUID, actor string) (StockTransaction, error) {
	original, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return StockTransaction{}, err
	}
	if original.IsReversed {
		return StockTransaction{}, &InvalidOperationError{Reason: fmt.Sprintf("transaction %s already reversed", original.Number)}
	}
	product, err := s.resolveProduct(ctx, original.ProductID)
	if err != nil {
		return StockTransaction{}, err
	}

	release, err := s.locks.Acquire(ctx, shared.StockPairKey(original.WarehouseID, original.ProductID))
	if err != nil {
		return StockTransaction{}, err
	}
	defer release()

	var result appliedMovement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if current.IsReversed {
			return &InvalidOperationError{Reason: fmt.Sprintf("transaction %s already reversed", current.Number)}
		}

		level, err := s.ledger.Level(ctx, tx, current.ProductID, current.WarehouseID)
		if err != nil {
			return err
		}
		inverse := current.Quantity.Neg()
		if inverse.IsNegative() && inverse.Neg().GreaterThan(level.QuantityAvailable()) {
			return &InsufficientStockError{
				ProductID:   current.ProductID,
				WarehouseID: current.WarehouseID,
				Requested:   inverse.Neg(),
				Available:   level.QuantityAvailable(),
			}
		}

		now := s.now().UTC()
		reversal := StockTransaction{
			ID:          uuid.New(),
			ProductID:   current.ProductID,
			WarehouseID: current.WarehouseID,
			Type:        current.Type,
			Quantity:    inverse,
			UnitCost:    current.UnitCost,
			Reference:   current.Number,
			Reason:      fmt.Sprintf("reversal of %s", current.Number),
			OccurredAt:  now,
			CreatedAt:   now,
			CreatedBy:   actor,
			ReversesID:  current.ID,
		}
		if err := s.insertNumbered(ctx, tx, &reversal); err != nil {
			return err
		}
		ok, err := tx.MarkReversed(ctx, current.ID, reversal.ID)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidOperationError{Reason: fmt.Sprintf("transaction %s already reversed", current.Number)}
		}

		newLevel, err := s.ledger.ApplyDelta(ctx, tx, level, inverse, decimal.Zero, reversal.ID)
		if err != nil {
			return err
		}
		result = appliedMovement{txn: reversal, product: product, oldOnHand: level.QuantityOnHand, level: newLevel}
		return nil
	})
	if err != nil {
		return StockTransaction{}, err
	}

	s.afterCommit(ctx, []appliedMovement{result})
	return result.txn, nil
}

// GetStockLevel returns the current level for a pair, reading through the
// cache when one is configured.
func (s *Service) GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error) {
	if s.cache != nil {
		return s.cache.FetchLevel(ctx, productID, warehouseID, func(ctx context.Context) (StockLevel, error) {
			return s.repo.GetLevel(ctx, productID, warehouseID)
		})
	}
	return s.repo.GetLevel(ctx, productID, warehouseID)
}

// GetTransaction returns a ledger entry by id.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (StockTransaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions returns the ledger history for a pair.
func (s *Service) ListTransactions(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockTransaction, error) {
	return s.repo.ListTransactions(ctx, productID, warehouseID, limit)
}

func (s *Service) validateRequest(ctx context.Context, req TransactionRequest) (movementPlan, error) {
	if req.UnitCost.IsNegative() {
		return movementPlan{}, &InvalidOperationError{Reason: "unit cost must be >= 0"}
	}
	product, err := s.resolveProduct(ctx, req.ProductID)
	if err != nil {
		return movementPlan{}, err
	}
	if _, err := s.resolveWarehouse(ctx, req.WarehouseID); err != nil {
		return movementPlan{}, err
	}

	plan := movementPlan{req: req, product: product}
	switch req.Type {
	case TransactionReceipt:
		if !req.Quantity.IsPositive() {
			return movementPlan{}, &InvalidOperationError{Reason: "receipt quantity must be > 0"}
		}
		plan.delta = req.Quantity
	case TransactionIssue, TransactionReturn, TransactionDamage:
		if !req.Quantity.IsPositive() {
			return movementPlan{}, &InvalidOperationError{Reason: fmt.Sprintf("%s quantity must be > 0", req.Type)}
		}
		plan.delta = req.Quantity.Neg()
	case TransactionAdjustment:
		if req.Quantity.IsZero() {
			return movementPlan{}, &InvalidOperationError{Reason: "adjustment quantity must be non-zero"}
		}
		plan.delta = req.Quantity
	case TransactionStockTake:
		if req.CountedQuantity == nil {
			return movementPlan{}, &InvalidOperationError{Reason: "stock take requires a counted quantity"}
		}
		if req.CountedQuantity.IsNegative() {
			return movementPlan{}, &InvalidOperationError{Reason: "counted quantity must be >= 0"}
		}
		plan.recount = true
	case TransactionTransfer:
		return movementPlan{}, &InvalidOperationError{Reason: "transfers go through the transfer operation"}
	default:
		return movementPlan{}, &InvalidOperationError{Reason: fmt.Sprintf("unknown transaction type %q", req.Type)}
	}
	return plan, nil
}

// appliedMovement carries a committed movement to the post-commit hooks.
type appliedMovement struct {
	txn       StockTransaction
	product   catalog.Product
	oldOnHand decimal.Decimal
	level     StockLevel
}

func (s *Service) applyMovement(ctx context.Context, tx TxRepository, plan movementPlan) (appliedMovement, error) {
	level, err := s.ledger.Level(ctx, tx, plan.req.ProductID, plan.req.WarehouseID)
	if err != nil {
		return appliedMovement{}, err
	}

	now := s.now().UTC()
	delta := plan.delta
	if plan.recount {
		delta = plan.req.CountedQuantity.Sub(level.QuantityOnHand)
		level.LastStockTakeAt = now
	}
	if delta.IsNegative() && delta.Neg().GreaterThan(level.QuantityAvailable()) {
		return appliedMovement{}, &InsufficientStockError{
			ProductID:   plan.req.ProductID,
			WarehouseID: plan.req.WarehouseID,
			Requested:   delta.Neg(),
			Available:   level.QuantityAvailable(),
		}
	}

	txn := StockTransaction{
		ID:          uuid.New(),
		ProductID:   plan.req.ProductID,
		WarehouseID: plan.req.WarehouseID,
		Type:        plan.req.Type,
		Quantity:    delta,
		UnitCost:    plan.req.UnitCost,
		Reference:   plan.req.Reference,
		Reason:      plan.req.Reason,
		Notes:       plan.req.Notes,
		OccurredAt:  now,
		CreatedAt:   now,
		CreatedBy:   plan.req.Actor,
	}
	if err := s.insertNumbered(ctx, tx, &txn); err != nil {
		return appliedMovement{}, err
	}

	newLevel, err := s.ledger.ApplyDelta(ctx, tx, level, delta, decimal.Zero, txn.ID)
	if err != nil {
		return appliedMovement{}, err
	}
	return appliedMovement{txn: txn, product: plan.product, oldOnHand: level.QuantityOnHand, level: newLevel}, nil
}

// insertNumbered assigns a transaction number and inserts the record,
// retrying with a fresh candidate when the number collides.
func (s *Service) insertNumbered(ctx context.Context, tx TxRepository, txn *StockTransaction) error {
	var dup *shared.DuplicateError
	for attempt := 0; attempt < 3; attempt++ {
		txn.Number = s.numbers.Next("TXN")
		err := tx.InsertTransaction(ctx, *txn)
		if err == nil {
			return nil
		}
		if !errors.As(err, &dup) {
			return err
		}
	}
	return dup
}

func (s *Service) resolveProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	if id == uuid.Nil {
		return catalog.Product{}, &InvalidOperationError{Reason: "product id required"}
	}
	product, err := s.catalog.Product(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return catalog.Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
		}
		return catalog.Product{}, err
	}
	if !product.IsActive {
		return catalog.Product{}, &InvalidOperationError{Reason: fmt.Sprintf("product %s is inactive", product.SKU)}
	}
	return product, nil
}

func (s *Service) resolveWarehouse(ctx context.Context, id uuid.UUID) (catalog.Warehouse, error) {
	if id == uuid.Nil {
		return catalog.Warehouse{}, &InvalidOperationError{Reason: "warehouse id required"}
	}
	warehouse, err := s.catalog.Warehouse(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return catalog.Warehouse{}, fmt.Errorf("warehouse %s: %w", id, shared.ErrNotFound)
		}
		return catalog.Warehouse{}, err
	}
	if !warehouse.IsActive {
		return catalog.Warehouse{}, &InvalidOperationError{Reason: fmt.Sprintf("warehouse %s is inactive", warehouse.Code)}
	}
	return warehouse, nil
}

// afterCommit runs the post-commit hooks for committed movements: audit,
// outbound events, threshold evaluation, cache invalidation, metrics.
// Failures here are logged, never surfaced; the mutation is already
// durable.
func (s *Service) afterCommit(ctx context.Context, moves []appliedMovement) {
	if len(moves) > 0 {
		s.bumpCache(ctx)
	}
	for _, move := range moves {
		s.metrics.TransactionPosted(string(move.txn.Type))
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Actor:    move.txn.CreatedBy,
				Action:   fmt.Sprintf("stock:%s", move.txn.Type),
				Entity:   "stock_transaction",
				EntityID: move.txn.ID.String(),
				Meta: map[string]any{
					"number":       move.txn.Number,
					"product_id":   move.txn.ProductID.String(),
					"warehouse_id": move.txn.WarehouseID.String(),
					"quantity":     move.txn.Quantity.String(),
				},
			})
		}
		if s.publisher != nil {
			created := StockTransactionCreatedEvent{
				TransactionID: move.txn.ID,
				Number:        move.txn.Number,
				Type:          move.txn.Type,
				ProductID:     move.txn.ProductID,
				WarehouseID:   move.txn.WarehouseID,
				Quantity:      move.txn.Quantity,
				UnitCost:      move.txn.UnitCost,
				CreatedAt:     move.txn.CreatedAt,
			}
			if err := s.publisher.StockTransactionCreated(ctx, created); err != nil {
				s.logger.Error("stock: publish transaction created", slog.Any("error", err))
			}
			if !move.oldOnHand.Equal(move.level.QuantityOnHand) {
				changed := StockLevelChangedEvent{
					ProductID:    move.txn.ProductID,
					WarehouseID:  move.txn.WarehouseID,
					OldQuantity:  move.oldOnHand,
					NewQuantity:  move.level.QuantityOnHand,
					ChangeReason: string(move.txn.Type),
					OccurredAt:   move.txn.OccurredAt,
				}
				if err := s.publisher.StockLevelChanged(ctx, changed); err != nil {
					s.logger.Error("stock: publish level changed", slog.Any("error", err))
				}
			}
		}
		s.notifyMonitor(ctx, move.product, move.level)
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock: cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) notifyMonitor(ctx context.Context, product catalog.Product, level StockLevel) {
	if s.monitor == nil {
		return
	}
	snapshot := LevelSnapshot{
		ProductID:         level.ProductID,
		WarehouseID:       level.WarehouseID,
		QuantityOnHand:    level.QuantityOnHand,
		QuantityReserved:  level.QuantityReserved,
		QuantityAvailable: level.QuantityAvailable(),
		MinimumStockLevel: product.MinimumStockLevel,
		ReorderPoint:      product.ReorderPoint,
		ReorderQuantity:   product.ReorderQuantity,
		At:                level.LastUpdatedAt,
	}
	if err := s.monitor.LevelChanged(ctx, snapshot); err != nil {
		s.logger.Error("stock: threshold evaluation failed",
			slog.String("product_id", level.ProductID.String()),
			slog.String("warehouse_id", level.WarehouseID.String()),
			slog.Any("error", err))
	}
}
