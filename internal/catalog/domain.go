package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductCategory classifies products for reporting and filtering.
type ProductCategory string

const (
	CategoryElectronics  ProductCategory = "ELECTRONICS"
	CategoryConsumables  ProductCategory = "CONSUMABLES"
	CategoryEquipment    ProductCategory = "EQUIPMENT"
	CategoryTools        ProductCategory = "TOOLS"
	CategorySafety       ProductCategory = "SAFETY"
	CategoryRawMaterials ProductCategory = "RAW_MATERIALS"
	CategoryFinished     ProductCategory = "FINISHED_GOODS"
	CategoryPackaging    ProductCategory = "PACKAGING"
	CategoryOther        ProductCategory = "OTHER"
)

// UnitOfMeasure enumerates supported stocking units.
type UnitOfMeasure string

const (
	UnitPiece       UnitOfMeasure = "PIECE"
	UnitBox         UnitOfMeasure = "BOX"
	UnitPallet      UnitOfMeasure = "PALLET"
	UnitKilogram    UnitOfMeasure = "KILOGRAM"
	UnitGram        UnitOfMeasure = "GRAM"
	UnitPound       UnitOfMeasure = "POUND"
	UnitLiter       UnitOfMeasure = "LITER"
	UnitMilliliter  UnitOfMeasure = "MILLILITER"
	UnitGallon      UnitOfMeasure = "GALLON"
	UnitMeter       UnitOfMeasure = "METER"
	UnitCentimeter  UnitOfMeasure = "CENTIMETER"
	UnitFoot        UnitOfMeasure = "FOOT"
	UnitSquareMeter UnitOfMeasure = "SQUARE_METER"
	UnitCubicMeter  UnitOfMeasure = "CUBIC_METER"
)

// WarehouseType enumerates warehouse roles.
type WarehouseType string

const (
	WarehouseMain         WarehouseType = "MAIN"
	WarehouseRegional     WarehouseType = "REGIONAL"
	WarehouseTransit      WarehouseType = "TRANSIT"
	WarehouseReturnCenter WarehouseType = "RETURN_CENTER"
	WarehouseVirtual      WarehouseType = "VIRTUAL"
)

// Product is reference data for a stocked item. Identity is immutable;
// attributes change only through explicit update operations.
type Product struct {
	ID                uuid.UUID       `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Category          ProductCategory `json:"category"`
	UnitOfMeasure     UnitOfMeasure   `json:"unit_of_measure"`
	MinimumStockLevel decimal.Decimal `json:"minimum_stock_level"`
	ReorderPoint      decimal.Decimal `json:"reorder_point"`
	ReorderQuantity   decimal.Decimal `json:"reorder_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	CreatedBy         string          `json:"created_by"`
	UpdatedAt         time.Time       `json:"updated_at"`
	UpdatedBy         string          `json:"updated_by"`
}

// Address is the postal address value object shared by warehouses and
// suppliers.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Warehouse is reference data for a stock location.
type Warehouse struct {
	ID        uuid.UUID     `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Address   Address       `json:"address"`
	Type      WarehouseType `json:"type"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Supplier is reference data for a vendor.
type Supplier struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	ContactPerson string          `json:"contact_person"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Address       Address         `json:"address"`
	PaymentTerms  string          `json:"payment_terms"`
	LeadTimeDays  int             `json:"lead_time_days"`
	Rating        decimal.Decimal `json:"rating"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
