package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/platform/db"
	"github.com/smartinventory/smartinventory/internal/shared"
)

const orderColumns = `id, order_number, supplier_id, warehouse_id, order_date, expected_delivery_date,
	actual_delivery_date, status, sub_total, tax_amount, shipping_cost, notes,
	approved_by, approved_at, created_at, created_by, updated_at, updated_by`

const itemColumns = `id, purchase_order_id, product_id, quantity, unit_cost, received_quantity, notes`

// TxRepository exposes the order operations available inside a unit of
// work. Rows fetched ForUpdate stay locked until the transaction ends.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	InsertOrder(ctx context.Context, order PurchaseOrder) error
	UpdateOrder(ctx context.Context, order PurchaseOrder) error
	UpdateItemReceived(ctx context.Context, itemID uuid.UUID, received decimal.Decimal) error
}

// Repository persists purchase orders in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the procurement repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetOrder returns an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE id = $1`, orderColumns), id)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Items, err = r.itemsFor(ctx, r.pool, id)
	return order, err
}

// GetOrderByNumber returns an order with its items by order number.
func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE order_number = $1`, orderColumns), number)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Items, err = r.itemsFor(ctx, r.pool, order.ID)
	return order, err
}

// ListOrders returns orders filtered by status, newest first. A zero
// status returns every order.
func (r *Repository) ListOrders(ctx context.Context, status PurchaseOrderStatus, limit int) ([]PurchaseOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders`, orderColumns)
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY order_date DESC LIMIT %d`, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items, err = r.itemsFor(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) itemsFor(ctx context.Context, q querier, orderID uuid.UUID) ([]PurchaseOrderItem, error) {
	return loadItems(ctx, q, orderID, "")
}

func loadItems(ctx context.Context, q querier, orderID uuid.UUID, suffix string) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id%s`,
		itemColumns, suffix), orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity,
			&item.UnitCost, &item.ReceivedQuantity, &item.Notes); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	row := r.tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM purchase_orders WHERE id = $1 FOR UPDATE`, orderColumns), id)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Items, err = loadItems(ctx, r.tx, id, " FOR UPDATE")
	return order, err
}

func (r *txRepository) InsertOrder(ctx context.Context, order PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO purchase_orders (id, order_number, supplier_id, warehouse_id, order_date,
			expected_delivery_date, actual_delivery_date, status, sub_total, tax_amount,
			shipping_cost, notes, approved_by, approved_at, created_at, created_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		order.ID, order.OrderNumber, order.SupplierID, order.WarehouseID, order.OrderDate,
		order.ExpectedDeliveryDate, nullTime(order.ActualDeliveryDate), order.Status,
		order.SubTotal, order.TaxAmount, order.ShippingCost, order.Notes,
		order.ApprovedBy, nullTime(order.ApprovedAt), order.CreatedAt, order.CreatedBy,
		order.UpdatedAt, order.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return &shared.DuplicateError{Entity: "purchase order", Key: order.OrderNumber}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	for _, item := range order.Items {
		_, err := r.tx.Exec(ctx, `
			INSERT INTO purchase_order_items (id, purchase_order_id, product_id, quantity,
				unit_cost, received_quantity, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.PurchaseOrderID, item.ProductID, item.Quantity,
			item.UnitCost, item.ReceivedQuantity, item.Notes)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, order PurchaseOrder) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET status = $2, actual_delivery_date = $3, approved_by = $4, approved_at = $5,
			notes = $6, updated_at = $7, updated_by = $8
		WHERE id = $1`,
		order.ID, order.Status, nullTime(order.ActualDeliveryDate), order.ApprovedBy,
		nullTime(order.ApprovedAt), order.Notes, order.UpdatedAt, order.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateItemReceived(ctx context.Context, itemID uuid.UUID, received decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1`, itemID, received)
	if err != nil {
		return fmt.Errorf("update item received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var (
		order         PurchaseOrder
		actual, appAt *time.Time
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.SupplierID, &order.WarehouseID,
		&order.OrderDate, &order.ExpectedDeliveryDate, &actual, &order.Status,
		&order.SubTotal, &order.TaxAmount, &order.ShippingCost, &order.Notes,
		&order.ApprovedBy, &appAt, &order.CreatedAt, &order.CreatedBy,
		&order.UpdatedAt, &order.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, fmt.Errorf("scan order: %w", err)
	}
	if actual != nil {
		order.ActualDeliveryDate = *actual
	}
	if appAt != nil {
		order.ApprovedAt = *appAt
	}
	return order, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
