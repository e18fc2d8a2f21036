package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinventory/smartinventory/internal/shared"
)

const alertColumns = `id, product_id, warehouse_id, alert_type, current_quantity, threshold_quantity,
	message, severity, status, created_at, updated_at, acknowledged_at, acknowledged_by,
	resolved_at, resolved_by, resolution_notes`

// Repository persists stock alerts in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the alerts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns an alert by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (StockAlert, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM stock_alerts WHERE id = $1`, alertColumns), id)
	return scanAlert(row)
}

// GetOpen returns the open alert for the pair and type, if any.
func (r *Repository) GetOpen(ctx context.Context, productID, warehouseID uuid.UUID, alertType StockAlertType) (StockAlert, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM stock_alerts
		WHERE product_id = $1 AND warehouse_id = $2 AND alert_type = $3
		  AND status IN ('NEW', 'ACKNOWLEDGED', 'IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1`, alertColumns), productID, warehouseID, alertType)
	return scanAlert(row)
}

// ListOpenForPair returns every open alert for a pair.
func (r *Repository) ListOpenForPair(ctx context.Context, productID, warehouseID uuid.UUID) ([]StockAlert, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM stock_alerts
		WHERE product_id = $1 AND warehouse_id = $2
		  AND status IN ('NEW', 'ACKNOWLEDGED', 'IN_PROGRESS')
		ORDER BY created_at`, alertColumns), productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListOpen returns open alerts, optionally filtered by product and
// warehouse, newest first.
func (r *Repository) ListOpen(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockAlert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_alerts
		WHERE status IN ('NEW', 'ACKNOWLEDGED', 'IN_PROGRESS')`, alertColumns)
	args := []any{}
	if productID != uuid.Nil {
		args = append(args, productID)
		query += fmt.Sprintf(` AND product_id = $%d`, len(args))
	}
	if warehouseID != uuid.Nil {
		args = append(args, warehouseID)
		query += fmt.Sprintf(` AND warehouse_id = $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// Insert stores a new alert.
func (r *Repository) Insert(ctx context.Context, alert StockAlert) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stock_alerts (id, product_id, warehouse_id, alert_type, current_quantity,
			threshold_quantity, message, severity, status, created_at, updated_at,
			acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		alert.ID, alert.ProductID, alert.WarehouseID, alert.AlertType, alert.CurrentQuantity,
		alert.ThresholdQuantity, alert.Message, alert.Severity, alert.Status, alert.CreatedAt,
		alert.UpdatedAt, nullTime(alert.AcknowledgedAt), alert.AcknowledgedBy,
		nullTime(alert.ResolvedAt), alert.ResolvedBy, alert.ResolutionNotes)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Update rewrites the mutable alert fields.
func (r *Repository) Update(ctx context.Context, alert StockAlert) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_alerts
		SET current_quantity = $2, threshold_quantity = $3, message = $4, severity = $5,
			status = $6, updated_at = $7, acknowledged_at = $8, acknowledged_by = $9,
			resolved_at = $10, resolved_by = $11, resolution_notes = $12
		WHERE id = $1`,
		alert.ID, alert.CurrentQuantity, alert.ThresholdQuantity, alert.Message, alert.Severity,
		alert.Status, alert.UpdatedAt, nullTime(alert.AcknowledgedAt), alert.AcknowledgedBy,
		nullTime(alert.ResolvedAt), alert.ResolvedBy, alert.ResolutionNotes)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]StockAlert, error) {
	var alerts []StockAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (StockAlert, error) {
	var (
		alert        StockAlert
		ackAt, resAt *time.Time
	)
	err := row.Scan(&alert.ID, &alert.ProductID, &alert.WarehouseID, &alert.AlertType,
		&alert.CurrentQuantity, &alert.ThresholdQuantity, &alert.Message, &alert.Severity,
		&alert.Status, &alert.CreatedAt, &alert.UpdatedAt, &ackAt, &alert.AcknowledgedBy,
		&resAt, &alert.ResolvedBy, &alert.ResolutionNotes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockAlert{}, shared.ErrNotFound
		}
		return StockAlert{}, fmt.Errorf("scan alert: %w", err)
	}
	if ackAt != nil {
		alert.AcknowledgedAt = *ackAt
	}
	if resAt != nil {
		alert.ResolvedAt = *resAt
	}
	return alert, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
