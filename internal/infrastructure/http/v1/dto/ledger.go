package dto

import (
	"time"

	"stockops/internal/core/types"
	"stockops/internal/domain/ledger"
)

// LedgerRowResponse contains one inventory ledger row.
type LedgerRowResponse struct {
	ProductID   string `json:"productId"`
	StockUnitID string `json:"stockUnitId,omitempty"`
	WarehouseID string `json:"warehouseId"`
	LocationID  string `json:"locationId,omitempty"`

	OnHand    types.Quantity `json:"onHand"`
	Reserved  types.Quantity `json:"reserved"`
	Incoming  types.Quantity `json:"incoming"`
	Total     types.Quantity `json:"total"`
	Available types.Quantity `json:"available"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// FromLedgerRow creates LedgerRowResponse from a ledger row.
func FromLedgerRow(r ledger.Row) LedgerRowResponse {
	return LedgerRowResponse{
		ProductID:   r.ProductID.String(),
		StockUnitID: idString(r.StockUnitID),
		WarehouseID: r.WarehouseID.String(),
		LocationID:  idString(r.LocationID),
		OnHand:      r.OnHand,
		Reserved:    r.Reserved,
		Incoming:    r.Incoming,
		Total:       r.Total(),
		Available:   r.Available(),
		UpdatedAt:   r.UpdatedAt,
	}
}

// LedgerRowListResponse wraps ledger rows.
type LedgerRowListResponse struct {
	Items []LedgerRowResponse `json:"items"`
}

// AvailabilityResponse reports total available quantity for a product.
type AvailabilityResponse struct {
	ProductID string         `json:"productId"`
	Available types.Quantity `json:"available"`
}
