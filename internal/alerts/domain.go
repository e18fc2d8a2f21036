package alerts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockAlertType identifies the condition that raised an alert.
type StockAlertType string

const (
	AlertLowStock          StockAlertType = "LOW_STOCK"
	AlertBelowReorderPoint StockAlertType = "BELOW_REORDER_POINT"
	AlertOverstock         StockAlertType = "OVERSTOCK"
	AlertNoMovement        StockAlertType = "NO_MOVEMENT"
	AlertNegativeStock     StockAlertType = "NEGATIVE_STOCK"
)

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus tracks the lifecycle of an alert.
type AlertStatus string

const (
	StatusNew          AlertStatus = "NEW"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusInProgress   AlertStatus = "IN_PROGRESS"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusIgnored      AlertStatus = "IGNORED"
)

// Open reports whether the status still demands attention.
func (s AlertStatus) Open() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusInProgress:
		return true
	}
	return false
}

// StockAlert records a threshold breach for a product at a warehouse. At
// most one open alert exists per (product, warehouse, type); repeated
// triggers refresh the existing row instead of stacking duplicates.
type StockAlert struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	AlertType         StockAlertType  `json:"alert_type"`
	CurrentQuantity   decimal.Decimal `json:"current_quantity"`
	ThresholdQuantity decimal.Decimal `json:"threshold_quantity"`
	Message           string          `json:"message"`
	Severity          AlertSeverity   `json:"severity"`
	Status            AlertStatus     `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	AcknowledgedAt    time.Time       `json:"acknowledged_at,omitzero"`
	AcknowledgedBy    string          `json:"acknowledged_by,omitempty"`
	ResolvedAt        time.Time       `json:"resolved_at,omitzero"`
	ResolvedBy        string          `json:"resolved_by,omitempty"`
	ResolutionNotes   string          `json:"resolution_notes,omitempty"`
}

// severityFor maps alert types to their fixed severity.
func severityFor(t StockAlertType) AlertSeverity {
	switch t {
	case AlertNegativeStock:
		return SeverityCritical
	case AlertLowStock:
		return SeverityHigh
	case AlertBelowReorderPoint:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
