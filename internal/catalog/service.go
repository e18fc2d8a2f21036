package catalog

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartinventory/smartinventory/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	GetWarehouse(ctx context.Context, id uuid.UUID) (Warehouse, error)
	InsertWarehouse(ctx context.Context, w Warehouse) error
	GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error)
	InsertSupplier(ctx context.Context, s Supplier) error
}

// AuditPort records catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains catalog reference data and resolves entity existence
// for the stock and procurement modules.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		audit:    audit,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// CreateProductInput describes a new product. Threshold fields follow the
// stock rules: minimum and reorder point are non-negative, reorder quantity
// is strictly positive.
type CreateProductInput struct {
	SKU               string          `validate:"required,max=50"`
	Name              string          `validate:"required,max=200"`
	Description       string          `validate:"max=1000"`
	Category          ProductCategory `validate:"required"`
	UnitOfMeasure     UnitOfMeasure   `validate:"required"`
	MinimumStockLevel decimal.Decimal
	ReorderPoint      decimal.Decimal
	ReorderQuantity   decimal.Decimal
	UnitCost          decimal.Decimal
	Actor             string
}

// CreateProduct registers a product. SKU uniqueness is enforced by the
// store and surfaced as a DuplicateError.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	if err := s.validate.Struct(input); err != nil {
		return Product{}, err
	}
	if input.MinimumStockLevel.IsNegative() {
		return Product{}, &shared.ValidationError{Detail: "minimum stock level must be >= 0"}
	}
	if input.ReorderPoint.IsNegative() {
		return Product{}, &shared.ValidationError{Detail: "reorder point must be >= 0"}
	}
	if !input.ReorderQuantity.IsPositive() {
		return Product{}, &shared.ValidationError{Detail: "reorder quantity must be > 0"}
	}
	now := s.now().UTC()
	product := Product{
		ID:                uuid.New(),
		SKU:               input.SKU,
		Name:              input.Name,
		Description:       input.Description,
		Category:          input.Category,
		UnitOfMeasure:     input.UnitOfMeasure,
		MinimumStockLevel: input.MinimumStockLevel,
		ReorderPoint:      input.ReorderPoint,
		ReorderQuantity:   input.ReorderQuantity,
		UnitCost:          input.UnitCost,
		IsActive:          true,
		CreatedAt:         now,
		CreatedBy:         input.Actor,
		UpdatedAt:         now,
		UpdatedBy:         input.Actor,
	}
	if err := s.repo.InsertProduct(ctx, product); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.Actor, "PRODUCT_CREATE", product.ID, map[string]any{"sku": product.SKU})
	return product, nil
}

// UpdateProductThresholds changes the replenishment thresholds of a product.
func (s *Service) UpdateProductThresholds(ctx context.Context, productID uuid.UUID, minimum, reorderPoint, reorderQty decimal.Decimal, actor string) (Product, error) {
	if minimum.IsNegative() || reorderPoint.IsNegative() {
		return Product{}, &shared.ValidationError{Detail: "thresholds must be >= 0"}
	}
	if !reorderQty.IsPositive() {
		return Product{}, &shared.ValidationError{Detail: "reorder quantity must be > 0"}
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	product.MinimumStockLevel = minimum
	product.ReorderPoint = reorderPoint
	product.ReorderQuantity = reorderQty
	product.UpdatedAt = s.now().UTC()
	product.UpdatedBy = actor
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actor, "PRODUCT_THRESHOLDS", product.ID, map[string]any{
		"minimum_stock_level": minimum.String(),
		"reorder_point":       reorderPoint.String(),
		"reorder_quantity":    reorderQty.String(),
	})
	return product, nil
}

// DeactivateProduct flags a product inactive; historical stock rows remain.
func (s *Service) DeactivateProduct(ctx context.Context, productID uuid.UUID, actor string) error {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return nil
	}
	product.IsActive = false
	product.UpdatedAt = s.now().UTC()
	product.UpdatedBy = actor
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "PRODUCT_DEACTIVATE", product.ID, nil)
	return nil
}

// CreateWarehouseInput describes a new warehouse.
type CreateWarehouseInput struct {
	Code    string        `validate:"required,max=20"`
	Name    string        `validate:"required,max=200"`
	Type    WarehouseType `validate:"required"`
	Address Address
	Actor   string
}

// CreateWarehouse registers a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, input CreateWarehouseInput) (Warehouse, error) {
	if err := s.validate.Struct(input); err != nil {
		return Warehouse{}, err
	}
	now := s.now().UTC()
	warehouse := Warehouse{
		ID:        uuid.New(),
		Code:      input.Code,
		Name:      input.Name,
		Address:   input.Address,
		Type:      input.Type,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertWarehouse(ctx, warehouse); err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, input.Actor, "WAREHOUSE_CREATE", warehouse.ID, map[string]any{"code": warehouse.Code})
	return warehouse, nil
}

// CreateSupplierInput describes a new supplier.
type CreateSupplierInput struct {
	Code          string `validate:"required,max=20"`
	Name          string `validate:"required,max=200"`
	ContactPerson string `validate:"max=100"`
	Email         string `validate:"omitempty,email,max=100"`
	Phone         string `validate:"max=20"`
	PaymentTerms  string `validate:"max=200"`
	LeadTimeDays  int    `validate:"gte=0"`
	Address       Address
	Actor         string
}

// CreateSupplier registers a supplier with the default rating.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	if err := s.validate.Struct(input); err != nil {
		return Supplier{}, err
	}
	now := s.now().UTC()
	supplier := Supplier{
		ID:            uuid.New(),
		Code:          input.Code,
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
		PaymentTerms:  input.PaymentTerms,
		LeadTimeDays:  input.LeadTimeDays,
		Rating:        decimal.NewFromInt(3),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertSupplier(ctx, supplier); err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, input.Actor, "SUPPLIER_CREATE", supplier.ID, map[string]any{"code": supplier.Code})
	return supplier, nil
}

// Product resolves a product by id.
func (s *Service) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Warehouse resolves a warehouse by id.
func (s *Service) Warehouse(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	return s.repo.GetWarehouse(ctx, id)
}

// Supplier resolves a supplier by id.
func (s *Service) Supplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "catalog", EntityID: entityID.String(), Meta: meta})
}
