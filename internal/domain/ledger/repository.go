package ledger

import (
	"context"

	"stockops/internal/core/id"
)

// Repository defines storage operations for the ledger.
type Repository interface {
	// ApplyDelta atomically applies a signed delta to the row matching key,
	// inserting the row if absent. Fields are floored at zero; the returned
	// Clamp carries the per-field remainder lost to the floor.
	//
	// Must serialize against concurrent writers of the same key
	// (row lock or single-statement increment).
	ApplyDelta(ctx context.Context, key Key, delta Delta) (Clamp, error)

	// Get returns the row for a key, or a zero-quantity row if absent.
	Get(ctx context.Context, key Key) (Row, error)

	// GetByProduct returns all rows for a product across warehouses.
	GetByProduct(ctx context.Context, productID id.ID) ([]Row, error)

	// GetByWarehouse returns non-empty rows for a warehouse.
	GetByWarehouse(ctx context.Context, warehouseID id.ID, filter RowFilter) ([]Row, error)
}

// RowFilter narrows warehouse row queries.
type RowFilter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
}
