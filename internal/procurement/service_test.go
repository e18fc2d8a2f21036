package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/smartinventory/smartinventory/internal/catalog"
	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
)

type memoryRepo struct {
	orders  map[uuid.UUID]PurchaseOrder
	numbers map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[uuid.UUID]PurchaseOrder), numbers: make(map[string]bool)}
}

func cloneOrder(order PurchaseOrder) PurchaseOrder {
	order.Items = append([]PurchaseOrderItem(nil), order.Items...)
	return order
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := make(map[uuid.UUID]PurchaseOrder, len(r.orders))
	for id, order := range r.orders {
		staged[id] = cloneOrder(order)
	}
	numbers := make(map[string]bool, len(r.numbers))
	for k := range r.numbers {
		numbers[k] = true
	}
	tx := &memoryTx{orders: staged, numbers: numbers}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.orders = tx.orders
	r.numbers = tx.numbers
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	if order, ok := r.orders[id]; ok {
		return cloneOrder(order), nil
	}
	return PurchaseOrder{}, shared.ErrNotFound
}

func (r *memoryRepo) GetOrderByNumber(ctx context.Context, number string) (PurchaseOrder, error) {
	for _, order := range r.orders {
		if order.OrderNumber == number {
			return cloneOrder(order), nil
		}
	}
	return PurchaseOrder{}, shared.ErrNotFound
}

func (r *memoryRepo) ListOrders(ctx context.Context, status PurchaseOrderStatus, limit int) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, order := range r.orders {
		if status != "" && order.Status != status {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	return out, nil
}

type memoryTx struct {
	orders  map[uuid.UUID]PurchaseOrder
	numbers map[string]bool
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	if order, ok := tx.orders[id]; ok {
		return cloneOrder(order), nil
	}
	return PurchaseOrder{}, shared.ErrNotFound
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order PurchaseOrder) error {
	if tx.numbers[order.OrderNumber] {
		return &shared.DuplicateError{Entity: "purchase order", Key: order.OrderNumber}
	}
	tx.numbers[order.OrderNumber] = true
	tx.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, order PurchaseOrder) error {
	existing, ok := tx.orders[order.ID]
	if !ok {
		return shared.ErrNotFound
	}
	order.Items = existing.Items
	tx.orders[order.ID] = order
	return nil
}

func (tx *memoryTx) UpdateItemReceived(ctx context.Context, itemID uuid.UUID, received decimal.Decimal) error {
	for id, order := range tx.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				order.Items[i].ReceivedQuantity = received
				tx.orders[id] = order
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

type memoryCatalog struct {
	products   map[uuid.UUID]catalog.Product
	warehouses map[uuid.UUID]catalog.Warehouse
	suppliers  map[uuid.UUID]catalog.Supplier
}

func (c *memoryCatalog) Product(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return catalog.Product{}, shared.ErrNotFound
}

func (c *memoryCatalog) Warehouse(ctx context.Context, id uuid.UUID) (catalog.Warehouse, error) {
	if w, ok := c.warehouses[id]; ok {
		return w, nil
	}
	return catalog.Warehouse{}, shared.ErrNotFound
}

func (c *memoryCatalog) Supplier(ctx context.Context, id uuid.UUID) (catalog.Supplier, error) {
	if s, ok := c.suppliers[id]; ok {
		return s, nil
	}
	return catalog.Supplier{}, shared.ErrNotFound
}

// fakeStock records batches and can be told to fail. onProcess, when
// set, runs after a batch is accepted, before control returns to the
// caller.
type fakeStock struct {
	batches   [][]stock.TransactionRequest
	fail      error
	onProcess func()
}

func (f *fakeStock) ProcessBatch(ctx context.Context, reqs []stock.TransactionRequest) ([]stock.StockTransaction, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.batches = append(f.batches, reqs)
	if f.onProcess != nil {
		f.onProcess()
	}
	txns := make([]stock.StockTransaction, len(reqs))
	for i, req := range reqs {
		txns[i] = stock.StockTransaction{
			ID:          uuid.New(),
			ProductID:   req.ProductID,
			WarehouseID: req.WarehouseID,
			Type:        req.Type,
			Quantity:    req.Quantity,
			UnitCost:    req.UnitCost,
			Reference:   req.Reference,
		}
	}
	return txns, nil
}

type fixture struct {
	svc         *Service
	repo        *memoryRepo
	stock       *fakeStock
	supplierID  uuid.UUID
	warehouseID uuid.UUID
	productA    uuid.UUID
	productB    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	supplierID, warehouseID := uuid.New(), uuid.New()
	productA, productB := uuid.New(), uuid.New()
	cat := &memoryCatalog{
		products: map[uuid.UUID]catalog.Product{
			productA: {ID: productA, SKU: "SKU-A", IsActive: true},
			productB: {ID: productB, SKU: "SKU-B", IsActive: true},
		},
		warehouses: map[uuid.UUID]catalog.Warehouse{
			warehouseID: {ID: warehouseID, Code: "WH-A", IsActive: true},
		},
		suppliers: map[uuid.UUID]catalog.Supplier{
			supplierID: {ID: supplierID, Code: "SUP-1", IsActive: true},
		},
	}
	repo := newMemoryRepo()
	st := &fakeStock{}
	svc := NewService(ServiceDeps{
		Repo:    repo,
		Catalog: cat,
		Stock:   st,
		Locks:   shared.NewKeyedLock(2 * time.Second),
		Numbers: shared.NewNumberGenerator(),
	})
	return &fixture{svc: svc, repo: repo, stock: st, supplierID: supplierID, warehouseID: warehouseID, productA: productA, productB: productB}
}

func (f *fixture) confirmedOrder(t *testing.T) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		SupplierID:           f.supplierID,
		WarehouseID:          f.warehouseID,
		ExpectedDeliveryDate: time.Now().UTC().Add(7 * 24 * time.Hour),
		Actor:                "buyer",
		Items: []OrderLineInput{
			{ProductID: f.productA, Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(4)},
			{ProductID: f.productB, Quantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(12)},
		},
	})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, order.ID, "buyer")
	require.NoError(t, err)
	confirmed, err := f.svc.Confirm(ctx, order.ID, "manager")
	require.NoError(t, err)
	confirmed.Items = order.Items
	return confirmed
}

func TestCreateOrderComputesSubtotal(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID:           f.supplierID,
		WarehouseID:          f.warehouseID,
		ExpectedDeliveryDate: time.Now().UTC().Add(48 * time.Hour),
		TaxAmount:            decimal.NewFromInt(7),
		ShippingCost:         decimal.NewFromInt(3),
		Actor:                "buyer",
		Items: []OrderLineInput{
			{ProductID: f.productA, Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(4)},
			{ProductID: f.productB, Quantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(12)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.Regexp(t, `^PO-\d{4}-\d{6}$`, order.OrderNumber)
	require.True(t, order.SubTotal.Equal(decimal.NewFromInt(100)))
	require.True(t, order.TotalAmount().Equal(decimal.NewFromInt(110)))
}

func TestWorkflowTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)
	require.Equal(t, StatusConfirmed, order.Status)
	require.Equal(t, "manager", order.ApprovedBy)
	require.False(t, order.ApprovedAt.IsZero())

	// Receiving from draft is rejected.
	draft, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		SupplierID:           f.supplierID,
		WarehouseID:          f.warehouseID,
		ExpectedDeliveryDate: time.Now().UTC().Add(time.Hour),
		Actor:                "buyer",
		Items:                []OrderLineInput{{ProductID: f.productA, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)
	_, err = f.svc.Receive(ctx, draft.ID, []LineReceipt{{ItemID: draft.Items[0].ID, Quantity: decimal.NewFromInt(1)}}, "clerk", "")
	var invalid *stock.InvalidOperationError
	require.ErrorAs(t, err, &invalid)

	// Submit out of order is rejected.
	_, err = f.svc.Submit(ctx, order.ID, "buyer")
	require.ErrorAs(t, err, &invalid)

	// Cancel before receipt works.
	cancelled, err := f.svc.Cancel(ctx, draft.ID, "buyer")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestReceivePartialThenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	result, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(6)},
	}, "clerk", "")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, result.Status)
	require.Len(t, result.Lines, 1)
	require.False(t, result.Lines[0].OverReceipt)
	require.NotEqual(t, uuid.Nil, result.Lines[0].TransactionID)

	// Receipt transactions reference the order number.
	require.Len(t, f.stock.batches, 1)
	require.Equal(t, order.OrderNumber, f.stock.batches[0][0].Reference)
	require.Equal(t, stock.TransactionReceipt, f.stock.batches[0][0].Type)

	result, err = f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(4)},
		{ItemID: order.Items[1].ID, Quantity: decimal.NewFromInt(5)},
	}, "clerk", "")
	require.NoError(t, err)
	require.Equal(t, StatusReceived, result.Status)

	final, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, final.Status)
	require.False(t, final.ActualDeliveryDate.IsZero())

	// A fully received order cannot be cancelled.
	_, err = f.svc.Cancel(ctx, order.ID, "buyer")
	var invalid *stock.InvalidOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestReceiveUnknownItemAppliesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	_, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(2)},
		{ItemID: uuid.New(), Quantity: decimal.NewFromInt(3)},
	}, "clerk", "")
	var invalid *stock.InvalidOperationError
	require.ErrorAs(t, err, &invalid)

	// No ledger postings and no item updates happened.
	require.Empty(t, f.stock.batches)
	current, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, current.Status)
	for _, item := range current.Items {
		require.True(t, item.ReceivedQuantity.IsZero())
	}
}

func TestReceiveOverReceiptIsFlaggedNotCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	result, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(12)},
		{ItemID: order.Items[1].ID, Quantity: decimal.NewFromInt(5)},
	}, "clerk", "")
	require.NoError(t, err)
	require.Equal(t, StatusReceived, result.Status)
	require.True(t, result.Lines[0].OverReceipt)
	require.False(t, result.Lines[1].OverReceipt)

	current, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, current.Items[0].ReceivedQuantity.Equal(decimal.NewFromInt(12)))
}

func TestReceiveStockFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	f.stock.fail = &stock.InsufficientStockError{ProductID: f.productA, WarehouseID: f.warehouseID}
	_, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(1)},
	}, "clerk", "")
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	current, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, current.Status)
}

func TestReceiveRejectsOrderCancelledMidFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	// A cancel committing elsewhere while the ledger posting is in
	// flight must not be overwritten by the receipt.
	f.stock.onProcess = func() {
		cancelled := f.repo.orders[order.ID]
		cancelled.Status = StatusCancelled
		f.repo.orders[order.ID] = cancelled
	}

	_, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(10)},
	}, "clerk", "")
	var invalid *stock.InvalidOperationError
	require.ErrorAs(t, err, &invalid)

	current, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, current.Status)
	for _, item := range current.Items {
		require.True(t, item.ReceivedQuantity.IsZero())
	}
}

type fakeIdempotency struct {
	keys    map[string]bool
	deleted []string
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func TestReceiveIdempotencyKeyBlocksReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)
	idem := &fakeIdempotency{keys: make(map[string]bool)}
	f.svc.idempotency = idem

	lines := []LineReceipt{{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(2)}}
	_, err := f.svc.Receive(ctx, order.ID, lines, "clerk", "delivery-123")
	require.NoError(t, err)

	_, err = f.svc.Receive(ctx, order.ID, lines, "clerk", "delivery-123")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.stock.batches, 1)
}

func TestReceiveCompensatesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)
	idem := &fakeIdempotency{keys: make(map[string]bool)}
	f.svc.idempotency = idem
	f.stock.fail = errors.New("ledger unavailable")

	_, err := f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(2)},
	}, "clerk", "delivery-456")
	require.Error(t, err)
	require.Contains(t, idem.deleted, "delivery-456")

	// The key is free again for a retry.
	f.stock.fail = nil
	_, err = f.svc.Receive(ctx, order.ID, []LineReceipt{
		{ItemID: order.Items[0].ID, Quantity: decimal.NewFromInt(2)},
	}, "clerk", "delivery-456")
	require.NoError(t, err)
}
