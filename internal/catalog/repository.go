package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartinventory/smartinventory/internal/shared"
)

// Repository persists catalog reference data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, description, category, unit_of_measure,
minimum_stock_level, reorder_point, reorder_quantity, unit_cost, is_active,
created_at, created_by, updated_at, updated_by`

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku)
	return scanProduct(row)
}

func (r *Repository) InsertProduct(ctx context.Context, p Product) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO products
(id, sku, name, description, category, unit_of_measure, minimum_stock_level, reorder_point, reorder_quantity, unit_cost, is_active, created_at, created_by, updated_at, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.SKU, p.Name, p.Description, string(p.Category), string(p.UnitOfMeasure),
		p.MinimumStockLevel, p.ReorderPoint, p.ReorderQuantity, p.UnitCost, p.IsActive,
		p.CreatedAt, p.CreatedBy, p.UpdatedAt, p.UpdatedBy)
	return translateUnique(err, "product", p.SKU)
}

func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET
name=$2, description=$3, category=$4, unit_of_measure=$5, minimum_stock_level=$6,
reorder_point=$7, reorder_quantity=$8, unit_cost=$9, is_active=$10, updated_at=$11, updated_by=$12
WHERE id=$1`,
		p.ID, p.Name, p.Description, string(p.Category), string(p.UnitOfMeasure),
		p.MinimumStockLevel, p.ReorderPoint, p.ReorderQuantity, p.UnitCost, p.IsActive,
		p.UpdatedAt, p.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) GetWarehouse(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	var w Warehouse
	var whType string
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, street, city, state, postal_code, country, warehouse_type, is_active, created_at, updated_at
FROM warehouses WHERE id=$1`, id).Scan(
		&w.ID, &w.Code, &w.Name, &w.Address.Street, &w.Address.City, &w.Address.State,
		&w.Address.PostalCode, &w.Address.Country, &whType, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	w.Type = WarehouseType(whType)
	return w, nil
}

func (r *Repository) InsertWarehouse(ctx context.Context, w Warehouse) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO warehouses
(id, code, name, street, city, state, postal_code, country, warehouse_type, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		w.ID, w.Code, w.Name, w.Address.Street, w.Address.City, w.Address.State,
		w.Address.PostalCode, w.Address.Country, string(w.Type), w.IsActive, w.CreatedAt, w.UpdatedAt)
	return translateUnique(err, "warehouse", w.Code)
}

func (r *Repository) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, contact_person, email, phone, street, city, state, postal_code, country, payment_terms, lead_time_days, rating, is_active, created_at, updated_at
FROM suppliers WHERE id=$1`, id).Scan(
		&s.ID, &s.Code, &s.Name, &s.ContactPerson, &s.Email, &s.Phone,
		&s.Address.Street, &s.Address.City, &s.Address.State, &s.Address.PostalCode, &s.Address.Country,
		&s.PaymentTerms, &s.LeadTimeDays, &s.Rating, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, shared.ErrNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

func (r *Repository) InsertSupplier(ctx context.Context, s Supplier) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO suppliers
(id, code, name, contact_person, email, phone, street, city, state, postal_code, country, payment_terms, lead_time_days, rating, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		s.ID, s.Code, s.Name, s.ContactPerson, s.Email, s.Phone,
		s.Address.Street, s.Address.City, s.Address.State, s.Address.PostalCode, s.Address.Country,
		s.PaymentTerms, s.LeadTimeDays, s.Rating, s.IsActive, s.CreatedAt, s.UpdatedAt)
	return translateUnique(err, "supplier", s.Code)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var category, unit string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &category, &unit,
		&p.MinimumStockLevel, &p.ReorderPoint, &p.ReorderQuantity, &p.UnitCost, &p.IsActive,
		&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	p.Category = ProductCategory(category)
	p.UnitOfMeasure = UnitOfMeasure(unit)
	return p, nil
}

func translateUnique(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &shared.DuplicateError{Entity: entity, Key: key}
	}
	return err
}
