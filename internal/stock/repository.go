package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/platform/db"
	"github.com/smartinventory/smartinventory/internal/shared"
)

// ErrLevelNotFound indicates a missing stock_levels row. The ledger treats
// it as an implicit zeroed row.
var ErrLevelNotFound = errors.New("stock level not found")

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetLevelForUpdate(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error
	InsertTransaction(ctx context.Context, tx StockTransaction) error
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (StockTransaction, error)
	MarkReversed(ctx context.Context, originalID, reversalID uuid.UUID) (bool, error)
	InsertReservation(ctx context.Context, res Reservation) error
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	UpdateReservation(ctx context.Context, res Reservation) error
	SumActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) (decimal.Decimal, error)
}

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const levelColumns = `product_id, warehouse_id, quantity_on_hand, quantity_reserved, last_transaction_id, last_stock_take_at, last_updated_at`

// GetLevel reads the current level outside any unit of work. A missing row
// reads as a zeroed level, matching the ledger's first-access semantics.
func (r *Repository) GetLevel(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error) {
	level, err := scanLevel(r.pool.QueryRow(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID))
	if errors.Is(err, ErrLevelNotFound) {
		return StockLevel{ProductID: productID, WarehouseID: warehouseID}, nil
	}
	return level, err
}

const transactionColumns = `id, number, product_id, warehouse_id, tx_type, quantity, unit_cost, reference,
source_warehouse_id, destination_warehouse_id, paired_transaction_id, reason, notes,
occurred_at, created_at, created_by, is_reversed, reversed_by_id, reverses_id`

// GetTransaction loads a ledger entry by id.
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (StockTransaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE id=$1`, id))
}

// ListTransactions returns ledger entries for a pair, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, productID, warehouseID uuid.UUID, limit int) ([]StockTransaction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM stock_transactions
WHERE product_id=$1 AND warehouse_id=$2 ORDER BY created_at ASC, number ASC LIMIT $3`, productID, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []StockTransaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const reservationColumns = `id, product_id, warehouse_id, quantity, reference, status, created_at, created_by, released_at`

// GetReservation loads a reservation by id.
func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1`, id))
}

// ListActiveReservations returns the active holds for a pair.
func (r *Repository) ListActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM stock_reservations
WHERE product_id=$1 AND warehouse_id=$2 AND status=$3 ORDER BY created_at ASC`, productID, warehouseID, string(ReservationActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, productID, warehouseID uuid.UUID) (StockLevel, error) {
	return scanLevel(r.tx.QueryRow(ctx, `SELECT `+levelColumns+` FROM stock_levels WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID))
}

func (r *txRepository) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, quantity_on_hand, quantity_reserved, last_transaction_id, last_stock_take_at, last_updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET
quantity_on_hand=EXCLUDED.quantity_on_hand,
quantity_reserved=EXCLUDED.quantity_reserved,
last_transaction_id=EXCLUDED.last_transaction_id,
last_stock_take_at=EXCLUDED.last_stock_take_at,
last_updated_at=EXCLUDED.last_updated_at`,
		level.ProductID, level.WarehouseID, level.QuantityOnHand, level.QuantityReserved,
		nullUUID(level.LastTransactionID), nullTime(level.LastStockTakeAt), level.LastUpdatedAt)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn StockTransaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_transactions
(id, number, product_id, warehouse_id, tx_type, quantity, unit_cost, reference,
source_warehouse_id, destination_warehouse_id, paired_transaction_id, reason, notes,
occurred_at, created_at, created_by, is_reversed, reversed_by_id, reverses_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		txn.ID, txn.Number, txn.ProductID, txn.WarehouseID, string(txn.Type), txn.Quantity, txn.UnitCost, txn.Reference,
		nullUUID(txn.SourceWarehouseID), nullUUID(txn.DestinationWarehouseID), nullUUID(txn.PairedTransactionID),
		txn.Reason, txn.Notes, txn.OccurredAt, txn.CreatedAt, txn.CreatedBy,
		txn.IsReversed, nullUUID(txn.ReversedByID), nullUUID(txn.ReversesID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &shared.DuplicateError{Entity: "stock transaction", Key: txn.Number}
		}
		return err
	}
	return nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (StockTransaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) MarkReversed(ctx context.Context, originalID, reversalID uuid.UUID) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transactions SET is_reversed=TRUE, reversed_by_id=$2
WHERE id=$1 AND is_reversed=FALSE`, originalID, reversalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations
(id, product_id, warehouse_id, quantity, reference, status, created_at, created_by, released_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		res.ID, res.ProductID, res.WarehouseID, res.Quantity, res.Reference,
		string(res.Status), res.CreatedAt, res.CreatedBy, nullTime(res.ReleasedAt))
	return err
}

func (r *txRepository) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return scanReservation(r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2, released_at=$3 WHERE id=$1`,
		res.ID, string(res.Status), nullTime(res.ReleasedAt))
	return err
}

func (r *txRepository) SumActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
WHERE product_id=$1 AND warehouse_id=$2 AND status=$3`, productID, warehouseID, string(ReservationActive)).Scan(&sum)
	return sum, err
}

func scanLevel(row pgx.Row) (StockLevel, error) {
	var level StockLevel
	var lastTx, lastTake any
	err := row.Scan(&level.ProductID, &level.WarehouseID, &level.QuantityOnHand, &level.QuantityReserved,
		&lastTx, &lastTake, &level.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrLevelNotFound
		}
		return StockLevel{}, err
	}
	level.LastTransactionID = uuidValue(lastTx)
	level.LastStockTakeAt = timeValue(lastTake)
	return level, nil
}

func scanTransaction(row pgx.Row) (StockTransaction, error) {
	var txn StockTransaction
	var txType string
	var src, dst, paired, reversedBy, reverses any
	err := row.Scan(&txn.ID, &txn.Number, &txn.ProductID, &txn.WarehouseID, &txType,
		&txn.Quantity, &txn.UnitCost, &txn.Reference, &src, &dst, &paired,
		&txn.Reason, &txn.Notes, &txn.OccurredAt, &txn.CreatedAt, &txn.CreatedBy,
		&txn.IsReversed, &reversedBy, &reverses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockTransaction{}, ErrTransactionNotFound
		}
		return StockTransaction{}, err
	}
	txn.Type = TransactionType(txType)
	txn.SourceWarehouseID = uuidValue(src)
	txn.DestinationWarehouseID = uuidValue(dst)
	txn.PairedTransactionID = uuidValue(paired)
	txn.ReversedByID = uuidValue(reversedBy)
	txn.ReversesID = uuidValue(reverses)
	return txn, nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var status string
	var released any
	err := row.Scan(&res.ID, &res.ProductID, &res.WarehouseID, &res.Quantity, &res.Reference,
		&status, &res.CreatedAt, &res.CreatedBy, &released)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	res.Status = ReservationStatus(status)
	res.ReleasedAt = timeValue(released)
	return res, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func uuidValue(v any) uuid.UUID {
	switch value := v.(type) {
	case uuid.UUID:
		return value
	case [16]byte:
		return uuid.UUID(value)
	case string:
		id, err := uuid.Parse(value)
		if err != nil {
			return uuid.Nil
		}
		return id
	default:
		return uuid.Nil
	}
}

func timeValue(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
