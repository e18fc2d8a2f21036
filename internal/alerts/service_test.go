package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
)

type memoryRepo struct {
	alerts map[uuid.UUID]StockAlert
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{alerts: make(map[uuid.UUID]StockAlert)}
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (StockAlert, error) {
	if alert, ok := r.alerts[id]; ok {
		return alert, nil
	}
	return StockAlert{}, shared.ErrNotFound
}

func (r *memoryRepo) GetOpen(ctx context.Context, productID, warehouseID uuid.UUID, alertType StockAlertType) (StockAlert, error) {
	for _, alert := range r.alerts {
		if alert.ProductID == productID && alert.WarehouseID == warehouseID &&
			alert.AlertType == alertType && alert.Status.Open() {
			return alert, nil
		}
	}
	return StockAlert{}, shared.ErrNotFound
}

func (r *memoryRepo) ListOpenForPair(ctx context.Context, productID, warehouseID uuid.UUID) ([]StockAlert, error) {
	var out []StockAlert
	for _, alert := range r.alerts {
		if alert.ProductID == productID && alert.WarehouseID == warehouseID && alert.Status.Open() {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListOpen(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockAlert, error) {
	var out []StockAlert
	for _, alert := range r.alerts {
		if !alert.Status.Open() {
			continue
		}
		if productID != uuid.Nil && alert.ProductID != productID {
			continue
		}
		if warehouseID != uuid.Nil && alert.WarehouseID != warehouseID {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

func (r *memoryRepo) Insert(ctx context.Context, alert StockAlert) error {
	r.alerts[alert.ID] = alert
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, alert StockAlert) error {
	if _, ok := r.alerts[alert.ID]; !ok {
		return shared.ErrNotFound
	}
	r.alerts[alert.ID] = alert
	return nil
}

type capturedEvents struct {
	reorder []ProductReorderPointReachedEvent
}

func (c *capturedEvents) ProductReorderPointReached(ctx context.Context, evt ProductReorderPointReachedEvent) error {
	c.reorder = append(c.reorder, evt)
	return nil
}

func snapshot(productID, warehouseID uuid.UUID, onHand, reserved int64) stock.LevelSnapshot {
	h := decimal.NewFromInt(onHand)
	r := decimal.NewFromInt(reserved)
	return stock.LevelSnapshot{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		QuantityOnHand:    h,
		QuantityReserved:  r,
		QuantityAvailable: h.Sub(r),
		MinimumStockLevel: decimal.NewFromInt(10),
		ReorderPoint:      decimal.NewFromInt(20),
		ReorderQuantity:   decimal.NewFromInt(50),
		At:                time.Now().UTC(),
	}
}

func TestMonitorRaisesBelowReorderPoint(t *testing.T) {
	repo := newMemoryRepo()
	events := &capturedEvents{}
	svc := NewService(repo, nil, events, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	// 50 on hand, well above thresholds: nothing fires.
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 50, 0)))
	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Empty(t, open)

	// Drop to 15: available 15 <= reorder point 20, on hand still >= min 10.
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 15, 0)))
	open, err = svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, AlertBelowReorderPoint, open[0].AlertType)
	require.Equal(t, SeverityMedium, open[0].Severity)
	require.Equal(t, StatusNew, open[0].Status)
	require.Len(t, events.reorder, 1)
	require.True(t, events.reorder[0].ReorderQuantity.Equal(decimal.NewFromInt(50)))
}

func TestMonitorEscalatesToLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 15, 0)))
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 5, 0)))

	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, AlertLowStock, open[0].AlertType)
	require.Equal(t, SeverityHigh, open[0].Severity)

	// The superseded reorder point alert was auto resolved.
	var resolved []StockAlert
	for _, alert := range repo.alerts {
		if alert.Status == StatusResolved {
			resolved = append(resolved, alert)
		}
	}
	require.Len(t, resolved, 1)
	require.Equal(t, AlertBelowReorderPoint, resolved[0].AlertType)
	require.Equal(t, "system", resolved[0].ResolvedBy)
}

func TestMonitorRefreshesExistingAlertInsteadOfStacking(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 15, 0)))
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 12, 0)))

	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.True(t, open[0].CurrentQuantity.Equal(decimal.NewFromInt(12)))
}

func TestMonitorAutoResolvesOnRecovery(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 5, 0)))
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 80, 0)))

	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Empty(t, open)
	for _, alert := range repo.alerts {
		require.Equal(t, StatusResolved, alert.Status)
		require.Equal(t, "system", alert.ResolvedBy)
		require.NotEmpty(t, alert.ResolutionNotes)
	}
}

func TestMonitorNegativeStockIsCritical(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, -2, 0)))

	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, AlertNegativeStock, open[0].AlertType)
	require.Equal(t, SeverityCritical, open[0].Severity)
}

func TestAlertLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	productID, warehouseID := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productID, warehouseID, 5, 0)))
	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	id := open[0].ID

	alert, err := svc.Acknowledge(ctx, id, "ops")
	require.NoError(t, err)
	require.Equal(t, StatusAcknowledged, alert.Status)
	require.Equal(t, "ops", alert.AcknowledgedBy)

	// Acknowledging twice is rejected.
	_, err = svc.Acknowledge(ctx, id, "ops")
	var invalid *stock.InvalidOperationError
	require.ErrorAs(t, err, &invalid)

	alert, err = svc.MarkInProgress(ctx, id, "ops")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, alert.Status)

	alert, err = svc.Resolve(ctx, id, "ops", "restocked from PO-2026-000042")
	require.NoError(t, err)
	require.Equal(t, StatusResolved, alert.Status)
	require.Equal(t, "restocked from PO-2026-000042", alert.ResolutionNotes)

	// A resolved alert cannot be ignored.
	_, err = svc.Ignore(ctx, id, "ops", "")
	require.ErrorAs(t, err, &invalid)
}

func TestOpenAlertsFiltersByProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	warehouseID := uuid.New()
	productA, productB := uuid.New(), uuid.New()

	require.NoError(t, svc.LevelChanged(ctx, snapshot(productA, warehouseID, 5, 0)))
	require.NoError(t, svc.LevelChanged(ctx, snapshot(productB, warehouseID, 5, 0)))

	open, err := svc.OpenAlerts(ctx, uuid.Nil, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 2)

	open, err = svc.OpenAlerts(ctx, productA, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, productA, open[0].ProductID)

	open, err = svc.OpenAlerts(ctx, productA, warehouseID, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	open, err = svc.OpenAlerts(ctx, productA, uuid.New(), 10)
	require.NoError(t, err)
	require.Empty(t, open)
}
