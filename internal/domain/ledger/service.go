package ledger

import (
	"context"
	"fmt"

	"stockops/internal/core/apperror"
	"stockops/internal/core/appctx"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
	"stockops/pkg/logger"
)

// Service provides delta application and availability reads over the ledger.
// Transactions are managed by the caller (the transition engine runs whole
// status changes inside one transaction).
type Service struct {
	repo Repository
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ApplyDelta applies one signed delta to the row identified by key.
//
// Contract (in order):
//   - product and warehouse are required; a missing one is a validation error
//   - an all-zero delta is an explicit no-op, it never creates a row
//   - otherwise the delta is applied atomically with fields floored at zero;
//     any clamping is logged as a warning, not raised
func (s *Service) ApplyDelta(ctx context.Context, key Key, delta Delta) error {
	if id.IsNil(key.ProductID) {
		return apperror.NewValidation("ledger delta requires a product").
			WithDetail("field", "productId")
	}
	if id.IsNil(key.WarehouseID) {
		return apperror.NewValidation("ledger delta requires a warehouse").
			WithDetail("field", "warehouseId")
	}

	if delta.IsZero() {
		return nil
	}

	clamp, err := s.repo.ApplyDelta(ctx, key, delta)
	if err != nil {
		return fmt.Errorf("apply ledger delta: %w", err)
	}

	if clamp.Occurred() {
		logger.Warn(ctx, "ledger delta clamped at zero",
			"product_id", key.ProductID,
			"stock_unit_id", key.StockUnitID,
			"warehouse_id", key.WarehouseID,
			"location_id", key.LocationID,
			"lost_on_hand", clamp.OnHand,
			"lost_reserved", clamp.Reserved,
			"lost_incoming", clamp.Incoming,
			"actor", appctx.GetActorID(ctx),
		)
	}

	return nil
}

// ApplyChanges applies a computed change set in order.
// Callers are expected to hold a transaction so a failure rolls back
// the already-applied part.
func (s *Service) ApplyChanges(ctx context.Context, changes []Change) error {
	for i, ch := range changes {
		if err := s.ApplyDelta(ctx, ch.Key, ch.Delta); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

// GetRow returns the ledger row for a key (zero-quantity row if absent).
func (s *Service) GetRow(ctx context.Context, key Key) (Row, error) {
	if id.IsNil(key.ProductID) || id.IsNil(key.WarehouseID) {
		return Row{}, apperror.NewValidation("product and warehouse are required")
	}
	return s.repo.Get(ctx, key)
}

// ProductAvailability returns total on-hand quantity for a product
// across all warehouses. Used by other modules to decide whether a
// sale can be fulfilled.
func (s *Service) ProductAvailability(ctx context.Context, productID id.ID) (types.Quantity, error) {
	if id.IsNil(productID) {
		return 0, apperror.NewValidation("product is required")
	}

	rows, err := s.repo.GetByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("get product rows: %w", err)
	}

	var total types.Quantity
	for _, r := range rows {
		total += r.Available()
	}
	return total, nil
}

// ProductRows returns all ledger rows for a product.
func (s *Service) ProductRows(ctx context.Context, productID id.ID) ([]Row, error) {
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product is required")
	}
	return s.repo.GetByProduct(ctx, productID)
}

// WarehouseRows returns non-empty ledger rows for a warehouse.
func (s *Service) WarehouseRows(ctx context.Context, warehouseID id.ID, filter RowFilter) ([]Row, error) {
	if id.IsNil(warehouseID) {
		return nil, apperror.NewValidation("warehouse is required")
	}
	return s.repo.GetByWarehouse(ctx, warehouseID, filter)
}
