package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/observability"
	"github.com/smartinventory/smartinventory/internal/shared"
	"github.com/smartinventory/smartinventory/internal/stock"
)

// RepositoryPort abstracts alert persistence for the service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (StockAlert, error)
	GetOpen(ctx context.Context, productID, warehouseID uuid.UUID, alertType StockAlertType) (StockAlert, error)
	ListOpenForPair(ctx context.Context, productID, warehouseID uuid.UUID) ([]StockAlert, error)
	ListOpen(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockAlert, error)
	Insert(ctx context.Context, alert StockAlert) error
	Update(ctx context.Context, alert StockAlert) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the threshold monitor and alert lifecycle manager. It
// implements the stock module's MonitorPort and is called after every
// committed ledger mutation.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	publisher PublisherPort
	metrics   *observability.Domain
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. Audit, publisher and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, publisher PublisherPort, metrics *observability.Domain, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
}

// condition is a threshold breach detected from a level snapshot.
type condition struct {
	alertType StockAlertType
	current   decimal.Decimal
	threshold decimal.Decimal
	message   string
}

// LevelChanged evaluates threshold conditions for the pair. The highest
// priority breach wins: an existing open alert of the same type is
// refreshed in place, any other open alert for the pair is superseded, and
// when no condition holds anymore every open alert is auto-resolved.
func (s *Service) LevelChanged(ctx context.Context, snapshot stock.LevelSnapshot) error {
	active := evaluate(snapshot)
	open, err := s.repo.ListOpenForPair(ctx, snapshot.ProductID, snapshot.WarehouseID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for _, alert := range open {
		if active != nil && alert.AlertType == active.alertType {
			continue
		}
		alert.Status = StatusResolved
		alert.ResolvedAt = now
		alert.ResolvedBy = "system"
		if active != nil {
			alert.ResolutionNotes = fmt.Sprintf("superseded by %s alert", active.alertType)
		} else {
			alert.ResolutionNotes = fmt.Sprintf("condition cleared, %s on hand", snapshot.QuantityOnHand)
		}
		alert.UpdatedAt = now
		if err := s.repo.Update(ctx, alert); err != nil {
			return err
		}
	}
	if active == nil {
		return nil
	}

	existing, err := s.repo.GetOpen(ctx, snapshot.ProductID, snapshot.WarehouseID, active.alertType)
	switch {
	case err == nil:
		existing.CurrentQuantity = active.current
		existing.ThresholdQuantity = active.threshold
		existing.Message = active.message
		existing.UpdatedAt = now
		return s.repo.Update(ctx, existing)
	case errors.Is(err, shared.ErrNotFound):
		// New breach, fall through to create.
	default:
		return err
	}

	alert := StockAlert{
		ID:                uuid.New(),
		ProductID:         snapshot.ProductID,
		WarehouseID:       snapshot.WarehouseID,
		AlertType:         active.alertType,
		CurrentQuantity:   active.current,
		ThresholdQuantity: active.threshold,
		Message:           active.message,
		Severity:          severityFor(active.alertType),
		Status:            StatusNew,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, alert); err != nil {
		return err
	}
	s.metrics.AlertRaised(string(alert.AlertType))

	if s.publisher != nil && (active.alertType == AlertBelowReorderPoint || active.alertType == AlertLowStock) {
		evt := ProductReorderPointReachedEvent{
			AlertID:           alert.ID,
			ProductID:         snapshot.ProductID,
			WarehouseID:       snapshot.WarehouseID,
			QuantityAvailable: snapshot.QuantityAvailable,
			ReorderPoint:      snapshot.ReorderPoint,
			ReorderQuantity:   snapshot.ReorderQuantity,
			OccurredAt:        now,
		}
		if err := s.publisher.ProductReorderPointReached(ctx, evt); err != nil {
			s.logger.Error("alerts: publish reorder point reached", slog.Any("error", err))
		}
	}
	return nil
}

// evaluate returns the highest priority breached condition, or nil.
func evaluate(snapshot stock.LevelSnapshot) *condition {
	if snapshot.QuantityOnHand.IsNegative() {
		return &condition{
			alertType: AlertNegativeStock,
			current:   snapshot.QuantityOnHand,
			threshold: decimal.Zero,
			message: fmt.Sprintf("negative stock: %s on hand at warehouse %s",
				snapshot.QuantityOnHand, snapshot.WarehouseID),
		}
	}
	if snapshot.MinimumStockLevel.IsPositive() && snapshot.QuantityOnHand.LessThan(snapshot.MinimumStockLevel) {
		return &condition{
			alertType: AlertLowStock,
			current:   snapshot.QuantityOnHand,
			threshold: snapshot.MinimumStockLevel,
			message: fmt.Sprintf("stock below minimum: %s on hand, minimum %s",
				snapshot.QuantityOnHand, snapshot.MinimumStockLevel),
		}
	}
	if snapshot.ReorderPoint.IsPositive() && snapshot.QuantityAvailable.LessThanOrEqual(snapshot.ReorderPoint) {
		return &condition{
			alertType: AlertBelowReorderPoint,
			current:   snapshot.QuantityAvailable,
			threshold: snapshot.ReorderPoint,
			message: fmt.Sprintf("available quantity %s at or below reorder point %s",
				snapshot.QuantityAvailable, snapshot.ReorderPoint),
		}
	}
	return nil
}

// Acknowledge marks a new alert as seen.
func (s *Service) Acknowledge(ctx context.Context, alertID uuid.UUID, actor string) (StockAlert, error) {
	return s.transition(ctx, alertID, actor, "", StatusAcknowledged, StatusNew)
}

// MarkInProgress marks an alert as being addressed.
func (s *Service) MarkInProgress(ctx context.Context, alertID uuid.UUID, actor string) (StockAlert, error) {
	return s.transition(ctx, alertID, actor, "", StatusInProgress, StatusNew, StatusAcknowledged)
}

// Resolve closes an alert with notes.
func (s *Service) Resolve(ctx context.Context, alertID uuid.UUID, actor, notes string) (StockAlert, error) {
	return s.transition(ctx, alertID, actor, notes, StatusResolved, StatusNew, StatusAcknowledged, StatusInProgress)
}

// Ignore closes an alert as a non-issue.
func (s *Service) Ignore(ctx context.Context, alertID uuid.UUID, actor, notes string) (StockAlert, error) {
	return s.transition(ctx, alertID, actor, notes, StatusIgnored, StatusNew, StatusAcknowledged, StatusInProgress)
}

func (s *Service) transition(ctx context.Context, alertID uuid.UUID, actor, notes string, to AlertStatus, from ...AlertStatus) (StockAlert, error) {
	alert, err := s.repo.Get(ctx, alertID)
	if err != nil {
		return StockAlert{}, err
	}
	allowed := false
	for _, status := range from {
		if alert.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return StockAlert{}, &stock.InvalidOperationError{
			Reason: fmt.Sprintf("alert %s is %s, cannot move to %s", alert.ID, alert.Status, to),
		}
	}

	now := s.now().UTC()
	alert.Status = to
	alert.UpdatedAt = now
	switch to {
	case StatusAcknowledged:
		alert.AcknowledgedAt = now
		alert.AcknowledgedBy = actor
	case StatusResolved, StatusIgnored:
		alert.ResolvedAt = now
		alert.ResolvedBy = actor
		alert.ResolutionNotes = notes
	}
	if err := s.repo.Update(ctx, alert); err != nil {
		return StockAlert{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   fmt.Sprintf("alert:%s", to),
			Entity:   "stock_alert",
			EntityID: alert.ID.String(),
			Meta: map[string]any{
				"alert_type": string(alert.AlertType),
				"notes":      notes,
			},
		})
	}
	return alert, nil
}

// Alert returns an alert by id.
func (s *Service) Alert(ctx context.Context, id uuid.UUID) (StockAlert, error) {
	return s.repo.Get(ctx, id)
}

// OpenAlerts returns open alerts, optionally scoped to one product, one
// warehouse, or both.
func (s *Service) OpenAlerts(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockAlert, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListOpen(ctx, productID, warehouseID, limit)
}
