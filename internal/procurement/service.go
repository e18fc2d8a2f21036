package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/catalog"
	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
)

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	GetOrderByNumber(ctx context.Context, number string) (PurchaseOrder, error)
	ListOrders(ctx context.Context, status PurchaseOrderStatus, limit int) ([]PurchaseOrder, error)
}

// CatalogPort resolves reference data.
type CatalogPort interface {
	Product(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	Warehouse(ctx context.Context, id uuid.UUID) (catalog.Warehouse, error)
	Supplier(ctx context.Context, id uuid.UUID) (catalog.Supplier, error)
}

// StockPort posts receipt transactions to the ledger.
type StockPort interface {
	ProcessBatch(ctx context.Context, reqs []stock.TransactionRequest) ([]stock.StockTransaction, error)
}

// IdempotencyPort guards receiving operations against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceDeps groups the collaborators of Service.
type ServiceDeps struct {
	Repo        RepositoryPort
	Catalog     CatalogPort
	Stock       StockPort
	Locks       *shared.KeyedLock
	Numbers     *shared.NumberGenerator
	Idempotency IdempotencyPort
	Audit       AuditPort
	Publisher   PublisherPort
	Logger      *slog.Logger
}

// Service manages the purchase order workflow and coordinates receiving
// against the stock ledger.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	stock       StockPort
	locks       *shared.KeyedLock
	numbers     *shared.NumberGenerator
	idempotency IdempotencyPort
	audit       AuditPort
	publisher   PublisherPort
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		catalog:     deps.Catalog,
		stock:       deps.Stock,
		locks:       deps.Locks,
		numbers:     deps.Numbers,
		idempotency: deps.Idempotency,
		audit:       deps.Audit,
		publisher:   deps.Publisher,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// CreateOrder creates a draft purchase order with its lines. The subtotal
// is computed from the lines, never accepted from the caller.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if err := s.validate.Struct(input); err != nil {
		return PurchaseOrder{}, err
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, &stock.InvalidOperationError{Reason: "order requires at least one line"}
	}
	if _, err := s.catalog.Supplier(ctx, input.SupplierID); err != nil {
		return PurchaseOrder{}, fmt.Errorf("supplier %s: %w", input.SupplierID, err)
	}
	if _, err := s.catalog.Warehouse(ctx, input.WarehouseID); err != nil {
		return PurchaseOrder{}, fmt.Errorf("warehouse %s: %w", input.WarehouseID, err)
	}
	if input.TaxAmount.IsNegative() || input.ShippingCost.IsNegative() {
		return PurchaseOrder{}, &stock.InvalidOperationError{Reason: "tax and shipping must be >= 0"}
	}

	now := s.now().UTC()
	order := PurchaseOrder{
		ID:                   uuid.New(),
		SupplierID:           input.SupplierID,
		WarehouseID:          input.WarehouseID,
		OrderDate:            now,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Status:               StatusDraft,
		TaxAmount:            input.TaxAmount,
		ShippingCost:         input.ShippingCost,
		Notes:                input.Notes,
		CreatedAt:            now,
		CreatedBy:            input.Actor,
		UpdatedAt:            now,
		UpdatedBy:            input.Actor,
	}
	subTotal := decimal.Zero
	for _, line := range input.Items {
		if !line.Quantity.IsPositive() {
			return PurchaseOrder{}, &stock.InvalidOperationError{Reason: "line quantity must be > 0"}
		}
		if line.UnitCost.IsNegative() {
			return PurchaseOrder{}, &stock.InvalidOperationError{Reason: "line unit cost must be >= 0"}
		}
		product, err := s.catalog.Product(ctx, line.ProductID)
		if err != nil {
			return PurchaseOrder{}, fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		if !product.IsActive {
			return PurchaseOrder{}, &stock.InvalidOperationError{Reason: fmt.Sprintf("product %s is inactive", product.SKU)}
		}
		item := PurchaseOrderItem{
			ID:              uuid.New(),
			PurchaseOrderID: order.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitCost:        line.UnitCost,
			Notes:           line.Notes,
		}
		order.Items = append(order.Items, item)
		subTotal = subTotal.Add(item.TotalCost())
	}
	order.SubTotal = subTotal

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var dup *shared.DuplicateError
		for attempt := 0; attempt < 3; attempt++ {
			order.OrderNumber = s.numbers.Next("PO")
			err := tx.InsertOrder(ctx, order)
			if err == nil {
				return nil
			}
			if !errors.As(err, &dup) {
				return err
			}
		}
		return dup
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.Actor, "po:create", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount().String(),
	})
	return order, nil
}

// Submit moves a draft order to the supplier.
func (s *Service) Submit(ctx context.Context, orderID uuid.UUID, actor string) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, actor, StatusSubmitted, nil, StatusDraft)
}

// Confirm records the supplier confirmation and the approver.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID, actor string) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, actor, StatusConfirmed, func(order *PurchaseOrder, now time.Time) {
		order.ApprovedBy = actor
		order.ApprovedAt = now
	}, StatusSubmitted)
}

// Cancel voids an order before any stock has been received against it.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor string) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, actor, StatusCancelled, nil, StatusDraft, StatusSubmitted, StatusConfirmed)
}

// Close administratively finishes an order.
func (s *Service) Close(ctx context.Context, orderID uuid.UUID, actor string) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, actor, StatusClosed, nil, StatusReceived, StatusPartiallyReceived)
}

// orderKey is the serialization key for workflow mutations on a single
// order. It shares the KeyedLock with stock but lives in its own
// namespace so order locks never collide with stock pair locks.
func orderKey(orderID uuid.UUID) string {
	return "po:" + orderID.String()
}

func (s *Service) transition(ctx context.Context, orderID uuid.UUID, actor string, to PurchaseOrderStatus, mutate func(*PurchaseOrder, time.Time), from ...PurchaseOrderStatus) (PurchaseOrder, error) {
	release, err := s.locks.Acquire(ctx, orderKey(orderID))
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		allowed := false
		for _, status := range from {
			if order.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return &stock.InvalidOperationError{
				Reason: fmt.Sprintf("order %s is %s, cannot move to %s", order.OrderNumber, order.Status, to),
			}
		}
		if to == StatusCancelled && order.AnyReceived() {
			return &stock.InvalidOperationError{
				Reason: fmt.Sprintf("order %s has received stock, cancel is not allowed", order.OrderNumber),
			}
		}

		now := s.now().UTC()
		order.Status = to
		order.UpdatedAt = now
		order.UpdatedBy = actor
		if mutate != nil {
			mutate(&order, now)
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actor, fmt.Sprintf("po:%s", to), updated.ID, map[string]any{
		"order_number": updated.OrderNumber,
	})
	return updated, nil
}

// Receive records a delivery against a confirmed order. The ledger effects
// are all-or-nothing: every line posts as a receipt transaction or none
// do. Over-receipt is permitted but flagged on the result. An optional
// idempotency key makes retries of the same delivery safe.
func (s *Service) Receive(ctx context.Context, orderID uuid.UUID, lines []LineReceipt, actor, idempotencyKey string) (ReceivingResult, error) {
	if len(lines) == 0 {
		return ReceivingResult{}, &stock.InvalidOperationError{Reason: "receiving requires at least one line"}
	}

	// Hold the order lock across the ledger posting and the order update
	// so a concurrent Cancel cannot slip in between them.
	release, err := s.locks.Acquire(ctx, orderKey(orderID))
	if err != nil {
		return ReceivingResult{}, err
	}
	defer release()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ReceivingResult{}, err
	}
	if !order.Status.receivable() {
		return ReceivingResult{}, &stock.InvalidOperationError{
			Reason: fmt.Sprintf("order %s is %s, receiving requires a confirmed order", order.OrderNumber, order.Status),
		}
	}

	// Validate every line before any side effect.
	itemsByID := make(map[uuid.UUID]PurchaseOrderItem, len(order.Items))
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}
	reqs := make([]stock.TransactionRequest, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		item, ok := itemsByID[line.ItemID]
		if !ok {
			return ReceivingResult{}, &stock.InvalidOperationError{
				Reason: fmt.Sprintf("item %s does not belong to order %s", line.ItemID, order.OrderNumber),
			}
		}
		if seen[line.ItemID] {
			return ReceivingResult{}, &stock.InvalidOperationError{
				Reason: fmt.Sprintf("item %s appears twice in the delivery", line.ItemID),
			}
		}
		seen[line.ItemID] = true
		if !line.Quantity.IsPositive() {
			return ReceivingResult{}, &stock.InvalidOperationError{Reason: "received quantity must be > 0"}
		}
		reqs = append(reqs, stock.TransactionRequest{
			ProductID:   item.ProductID,
			WarehouseID: order.WarehouseID,
			Type:        stock.TransactionReceipt,
			Quantity:    line.Quantity,
			UnitCost:    item.UnitCost,
			Reference:   order.OrderNumber,
			Actor:       actor,
		})
	}

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "procurement.receive"); err != nil {
			return ReceivingResult{}, err
		}
	}
	compensate := func() {
		if idempotencyKey != "" && s.idempotency != nil {
			if err := s.idempotency.Delete(ctx, idempotencyKey); err != nil {
				s.logger.Error("procurement: idempotency compensation failed",
					slog.String("key", idempotencyKey), slog.Any("error", err))
			}
		}
	}

	txns, err := s.stock.ProcessBatch(ctx, reqs)
	if err != nil {
		compensate()
		return ReceivingResult{}, err
	}

	now := s.now().UTC()
	result := ReceivingResult{OrderID: order.ID, OrderNumber: order.OrderNumber, ReceivedAt: now}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		// Re-verify under the row lock. The earlier check ran before the
		// ledger posting; if the order was cancelled or closed since, the
		// receipt must not resurrect it.
		if !current.Status.receivable() {
			return &stock.InvalidOperationError{
				Reason: fmt.Sprintf("order %s became %s while receiving", current.OrderNumber, current.Status),
			}
		}
		currentByID := make(map[uuid.UUID]PurchaseOrderItem, len(current.Items))
		for _, item := range current.Items {
			currentByID[item.ID] = item
		}
		result.Lines = result.Lines[:0]
		for i, line := range lines {
			item := currentByID[line.ItemID]
			newReceived := item.ReceivedQuantity.Add(line.Quantity)
			if err := tx.UpdateItemReceived(ctx, item.ID, newReceived); err != nil {
				return err
			}
			item.ReceivedQuantity = newReceived
			currentByID[item.ID] = item
			result.Lines = append(result.Lines, ReceivedLine{
				ItemID:        item.ID,
				ProductID:     item.ProductID,
				Quantity:      line.Quantity,
				TransactionID: txns[i].ID,
				OverReceipt:   newReceived.GreaterThan(item.Quantity),
			})
		}
		for i := range current.Items {
			current.Items[i] = currentByID[current.Items[i].ID]
		}

		if current.FullyReceived() {
			current.Status = StatusReceived
			current.ActualDeliveryDate = now
		} else {
			current.Status = StatusPartiallyReceived
		}
		current.UpdatedAt = now
		current.UpdatedBy = actor
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		result.Status = current.Status
		return nil
	})
	if err != nil {
		// The ledger entries are committed; reversing them here could
		// itself fail. Surface the inconsistency loudly instead.
		compensate()
		s.logger.Error("procurement: order update failed after ledger commit",
			slog.String("order", order.OrderNumber), slog.Any("error", err))
		return ReceivingResult{}, fmt.Errorf("order %s: receipt posted but order update failed: %w", order.OrderNumber, err)
	}

	s.recordAudit(ctx, actor, "po:receive", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"lines":        len(result.Lines),
		"status":       string(result.Status),
	})
	if s.publisher != nil {
		evt := PurchaseOrderReceivedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			WarehouseID: order.WarehouseID,
			Status:      result.Status,
			Lines:       result.Lines,
			ReceivedAt:  now,
			ReceivedBy:  actor,
		}
		if err := s.publisher.PurchaseOrderReceived(ctx, evt); err != nil {
			s.logger.Error("procurement: publish order received", slog.Any("error", err))
		}
	}
	return result, nil
}

// Order returns an order by id.
func (s *Service) Order(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// OrderByNumber returns an order by its number.
func (s *Service) OrderByNumber(ctx context.Context, number string) (PurchaseOrder, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

// Orders lists orders, optionally filtered by status.
func (s *Service) Orders(ctx context.Context, status PurchaseOrderStatus, limit int) ([]PurchaseOrder, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, status, limit)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: entityID.String(),
		Meta:     meta,
	})
}
