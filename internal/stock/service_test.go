package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/smartinventory/smartinventory/internal/catalog"
	"github.com/smartinventory/smartinventory/internal/shared"
)

// memoryRepo is a transactional in-memory stand-in for the Postgres
// repository. WithTx snapshots state and commits only on success, so
// rollback semantics match the real store.
type memoryRepo struct {
	mu           sync.Mutex
	levels       map[string]StockLevel
	transactions map[uuid.UUID]StockTransaction
	order        []uuid.UUID
	reservations map[uuid.UUID]Reservation
	numbers      map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		levels:       make(map[string]StockLevel),
		transactions: make(map[uuid.UUID]StockTransaction),
		reservations: make(map[uuid.UUID]Reservation),
		numbers:      make(map[string]bool),
	}
}

func levelKey(productID, warehouseID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", productID, warehouseID)
}

type memoryTx struct {
	levels       map[string]StockLevel
	transactions map[uuid.UUID]StockTransaction
	order        []uuid.UUID
	reservations map[uuid.UUID]Reservation
	numbers      map[string]bool
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		levels:       make(map[string]StockLevel, len(r.levels)),
		transactions: make(map[uuid.UUID]StockTransaction, len(r.transactions)),
		order:        append([]uuid.UUID(nil), r.order...),
		reservations: make(map[uuid.UUID]Reservation, len(r.reservations)),
		numbers:      make(map[string]bool, len(r.numbers)),
	}
	for k, v := range r.levels {
		tx.levels[k] = v
	}
	for k, v := range r.transactions {
		tx.transactions[k] = v
	}
	for k, v := range r.reservations {
		tx.reservations[k] = v
	}
	for k := range r.numbers {
		tx.numbers[k] = true
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.levels = tx.levels
	r.transactions = tx.transactions
	r.order = tx.order
	r.reservations = tx.reservations
	r.numbers = tx.numbers
	return nil
}

func (r *memoryRepo) GetLevel(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level, ok := r.levels[levelKey(productID, warehouseID)]; ok {
		return level, nil
	}
	return StockLevel{ProductID: productID, WarehouseID: warehouseID}, nil
}

func (r *memoryRepo) GetTransaction(ctx context.Context, id uuid.UUID) (StockTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn, ok := r.transactions[id]; ok {
		return txn, nil
	}
	return StockTransaction{}, ErrTransactionNotFound
}

func (r *memoryRepo) ListTransactions(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockTransaction
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		txn := r.transactions[r.order[i]]
		if txn.ProductID == productID && txn.WarehouseID == warehouseID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.reservations[id]; ok {
		return res, nil
	}
	return Reservation{}, ErrReservationNotFound
}

func (r *memoryRepo) ListActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reservation
	for _, res := range r.reservations {
		if res.ProductID == productID && res.WarehouseID == warehouseID && res.Status == ReservationActive {
			out = append(out, res)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetLevelForUpdate(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error) {
	if level, ok := tx.levels[levelKey(productID, warehouseID)]; ok {
		return level, nil
	}
	return StockLevel{}, ErrLevelNotFound
}

func (tx *memoryTx) UpsertLevel(ctx context.Context, level StockLevel) error {
	tx.levels[levelKey(level.ProductID, level.WarehouseID)] = level
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn StockTransaction) error {
	if tx.numbers[txn.Number] {
		return &shared.DuplicateError{Entity: "stock transaction", Key: txn.Number}
	}
	tx.numbers[txn.Number] = true
	tx.transactions[txn.ID] = txn
	tx.order = append(tx.order, txn.ID)
	return nil
}

func (tx *memoryTx) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (StockTransaction, error) {
	if txn, ok := tx.transactions[id]; ok {
		return txn, nil
	}
	return StockTransaction{}, ErrTransactionNotFound
}

func (tx *memoryTx) MarkReversed(ctx context.Context, originalID, reversalID uuid.UUID) (bool, error) {
	txn, ok := tx.transactions[originalID]
	if !ok || txn.IsReversed {
		return false, nil
	}
	txn.IsReversed = true
	txn.ReversedByID = reversalID
	tx.transactions[originalID] = txn
	return true, nil
}

func (tx *memoryTx) InsertReservation(ctx context.Context, res Reservation) error {
	tx.reservations[res.ID] = res
	return nil
}

func (tx *memoryTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	if res, ok := tx.reservations[id]; ok {
		return res, nil
	}
	return Reservation{}, ErrReservationNotFound
}

func (tx *memoryTx) UpdateReservation(ctx context.Context, res Reservation) error {
	if _, ok := tx.reservations[res.ID]; !ok {
		return ErrReservationNotFound
	}
	tx.reservations[res.ID] = res
	return nil
}

func (tx *memoryTx) SumActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, res := range tx.reservations {
		if res.ProductID == productID && res.WarehouseID == warehouseID && res.Status == ReservationActive {
			sum = sum.Add(res.Quantity)
		}
	}
	return sum, nil
}

// memoryCatalog resolves a fixed set of products and warehouses.
type memoryCatalog struct {
	products   map[uuid.UUID]catalog.Product
	warehouses map[uuid.UUID]catalog.Warehouse
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

type fixture struct {
	svc         *Service
	repo        *memoryRepo
	productID   uuid.UUID
	warehouseID uuid.UUID
	warehouse2  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	productID := uuid.New()
	warehouseID := uuid.New()
	warehouse2 := uuid.New()
	cat := &memoryCatalog{
		products: map[uuid.UUID]catalog.Product{
			productID: {
				ID:                productID,
				SKU:               "SKU-001",
				Name:              "Widget",
				MinimumStockLevel: decimal.NewFromInt(10),
				ReorderPoint:      decimal.NewFromInt(20),
				ReorderQuantity:   decimal.NewFromInt(50),
				IsActive:          true,
			},
		},
		warehouses: map[uuid.UUID]catalog.Warehouse{
			warehouseID: {ID: warehouseID, Code: "WH-A", IsActive: true},
			warehouse2:  {ID: warehouse2, Code: "WH-B", IsActive: true},
		},
	}
	repo := newMemoryRepo()
	svc := NewService(ServiceDeps{
		Repo:    repo,
		Catalog: cat,
		Locks:   shared.NewKeyedLock(2 * time.Second),
		Numbers: shared.NewNumberGenerator(),
	})
	return &fixture{svc: svc, repo: repo, productID: productID, warehouseID: warehouseID, warehouse2: warehouse2}
}

func (f *fixture) receive(t *testing.T, qty int64) StockTransaction {
	t.Helper()
	txn, err := f.svc.Process(context.Background(), TransactionRequest{
		ProductID:   f.productID,
		WarehouseID: f.warehouseID,
		Type:        TransactionReceipt,
		Quantity:    decimal.NewFromInt(qty),
		UnitCost:    decimal.NewFromInt(5),
		Actor:       "tester",
	})
	require.NoError(t, err)
	return txn
}

func TestProcessReceiptAndIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt := f.receive(t, 100)
	require.True(t, receipt.Quantity.Equal(decimal.NewFromInt(100)))
	require.NotEmpty(t, receipt.Number)
	require.True(t, receipt.TotalCost().Equal(decimal.NewFromInt(500)))

	issue, err := f.svc.Process(ctx, TransactionRequest{
		ProductID:   f.productID,
		WarehouseID: f.warehouseID,
		Type:        TransactionIssue,
		Quantity:    decimal.NewFromInt(30),
		Actor:       "tester",
	})
	require.NoError(t, err)
	require.True(t, issue.Quantity.Equal(decimal.NewFromInt(-30)))

	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(decimal.NewFromInt(70)))
	require.Equal(t, issue.ID, level.LastTransactionID)
}

func TestOnHandEqualsSumOfDeltas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.receive(t, 50)
	f.receive(t, 25)
	_, err := f.svc.Process(ctx, TransactionRequest{
		ProductID: f.productID, WarehouseID: f.warehouseID,
		Type: TransactionDamage, Quantity: decimal.NewFromInt(5), Actor: "tester",
	})
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, TransactionRequest{
		ProductID: f.productID, WarehouseID: f.warehouseID,
		Type: TransactionAdjustment, Quantity: decimal.NewFromInt(-3), Reason: "shrinkage", Actor: "tester",
	})
	require.NoError(t, err)

	txns, err := f.svc.ListTransactions(ctx, f.productID, f.warehouseID, 100)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Quantity)
	}
	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(sum))
	require.True(t, level.QuantityOnHand.Equal(decimal.NewFromInt(67)))
}

func TestProcessInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10)

	_, err := f.svc.Process(context.Background(), TransactionRequest{
		ProductID:   f.productID,
		WarehouseID: f.warehouseID,
		Type:        TransactionIssue,
		Quantity:    decimal.NewFromInt(11),
		Actor:       "tester",
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(decimal.NewFromInt(10)))

	level, err := f.svc.GetStockLevel(context.Background(), f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(decimal.NewFromInt(10)))
}

func TestProcessAdjustmentRejectsZero(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Process(context.Background(), TransactionRequest{
		ProductID:   f.productID,
		WarehouseID: f.warehouseID,
		Type:        TransactionAdjustment,
		Quantity:    decimal.Zero,
		Actor:       "tester",
	})
	var invalid *InvalidOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestStockTakeRecordsDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 40)

	counted := decimal.NewFromInt(37)
	txn, err := f.svc.Process(ctx, TransactionRequest{
		ProductID:       f.productID,
		WarehouseID:     f.warehouseID,
		Type:            TransactionStockTake,
		CountedQuantity: &counted,
		Actor:           "tester",
	})
	require.NoError(t, err)
	require.True(t, txn.Quantity.Equal(decimal.NewFromInt(-3)))

	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(counted))
	require.False(t, level.LastStockTakeAt.IsZero())
}

func TestTransferMovesLinkedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 30)

	out, in, err := f.svc.Transfer(ctx, TransferRequest{
		ProductID:              f.productID,
		SourceWarehouseID:      f.warehouseID,
		DestinationWarehouseID: f.warehouse2,
		Quantity:               decimal.NewFromInt(20),
		UnitCost:               decimal.NewFromInt(5),
		Actor:                  "tester",
	})
	require.NoError(t, err)
	require.True(t, out.Quantity.Equal(decimal.NewFromInt(-20)))
	require.True(t, in.Quantity.Equal(decimal.NewFromInt(20)))
	require.Equal(t, in.ID, out.PairedTransactionID)
	require.Equal(t, out.ID, in.PairedTransactionID)
	require.Equal(t, TransactionTransfer, out.Type)

	src, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	dst, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouse2)
	require.NoError(t, err)
	require.True(t, src.QuantityOnHand.Equal(decimal.NewFromInt(10)))
	require.True(t, dst.QuantityOnHand.Equal(decimal.NewFromInt(20)))
}

func TestTransferInsufficientLeavesBothSidesUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 5)

	_, _, err := f.svc.Transfer(ctx, TransferRequest{
		ProductID:              f.productID,
		SourceWarehouseID:      f.warehouseID,
		DestinationWarehouseID: f.warehouse2,
		Quantity:               decimal.NewFromInt(6),
		Actor:                  "tester",
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	src, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	dst, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouse2)
	require.NoError(t, err)
	require.True(t, src.QuantityOnHand.Equal(decimal.NewFromInt(5)))
	require.True(t, dst.QuantityOnHand.IsZero())
}

func TestReverseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.receive(t, 40)

	reversal, err := f.svc.Reverse(ctx, receipt.ID, "auditor")
	require.NoError(t, err)
	require.True(t, reversal.Quantity.Equal(decimal.NewFromInt(-40)))
	require.Equal(t, receipt.ID, reversal.ReversesID)

	original, err := f.svc.GetTransaction(ctx, receipt.ID)
	require.NoError(t, err)
	require.True(t, original.IsReversed)
	require.Equal(t, reversal.ID, original.ReversedByID)
	// History is append only.
	require.True(t, original.Quantity.Equal(decimal.NewFromInt(40)))

	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.IsZero())
}

func TestReverseTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 100)
	receipt := f.receive(t, 40)

	_, err := f.svc.Reverse(ctx, receipt.ID, "auditor")
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, receipt.ID, "auditor")
	var invalid *InvalidOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestProcessBatchAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10)

	_, err := f.svc.ProcessBatch(ctx, []TransactionRequest{
		{ProductID: f.productID, WarehouseID: f.warehouseID, Type: TransactionIssue, Quantity: decimal.NewFromInt(4), Actor: "tester"},
		{ProductID: f.productID, WarehouseID: f.warehouseID, Type: TransactionIssue, Quantity: decimal.NewFromInt(7), Actor: "tester"},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(decimal.NewFromInt(10)))

	txns, err := f.svc.ListTransactions(ctx, f.productID, f.warehouseID, 100)
	require.NoError(t, err)
	require.Len(t, txns, 1)
}

func TestConcurrentIssuesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Process(ctx, TransactionRequest{
				ProductID:   f.productID,
				WarehouseID: f.warehouseID,
				Type:        TransactionIssue,
				Quantity:    decimal.NewFromInt(3),
				Actor:       fmt.Sprintf("worker-%d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
	}
	require.Equal(t, 3, succeeded)

	level, err := f.svc.GetStockLevel(ctx, f.productID, f.warehouseID)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(decimal.NewFromInt(1)))
	require.False(t, level.QuantityOnHand.IsNegative())
}

func TestProcessRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	inactive := uuid.New()
	cat := f.svc.catalog.(*memoryCatalog)
	cat.products[inactive] = catalog.Product{ID: inactive, SKU: "SKU-OFF", IsActive: false}

	_, err := f.svc.Process(context.Background(), TransactionRequest{
		ProductID:   inactive,
		WarehouseID: f.warehouseID,
		Type:        TransactionReceipt,
		Quantity:    decimal.NewFromInt(1),
		Actor:       "tester",
	})
	var invalid *InvalidOperationError
	require.ErrorAs(t, err, &invalid)
}
