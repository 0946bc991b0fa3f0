package operation

import (
	"context"
	"time"

	"stockops/internal/core/id"
	"stockops/internal/domain/optype"
)

// Repository defines storage operations for stock operations.
// Get/GetForUpdate return the full aggregate (header, lines, items).
type Repository interface {
	Create(ctx context.Context, op *StockOperation) error

	// Get returns the operation or a NotFound error.
	Get(ctx context.Context, operationID id.ID) (*StockOperation, error)

	// GetForUpdate locks the header row for the rest of the transaction.
	GetForUpdate(ctx context.Context, operationID id.ID) (*StockOperation, error)

	// Update persists header fields with an optimistic version check.
	// Returns a ConcurrentModification error when the stored version differs.
	Update(ctx context.Context, op *StockOperation) error

	InsertLine(ctx context.Context, line *Line) error
	UpdateLine(ctx context.Context, line *Line) error

	// InsertItems bulk-inserts line items.
	InsertItems(ctx context.Context, items []LineItem) error
	UpdateItem(ctx context.Context, item *LineItem) error

	List(ctx context.Context, filter Filter) ([]StockOperation, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Filter narrows operation listings.
type Filter struct {
	Types       []optype.Kind
	Statuses    []Status
	WarehouseID id.ID // matches either endpoint
	Reference   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	Limit  int
	Offset int
}

// Transitioner applies line and item status changes together with their
// ledger effects. Implemented by the transition engine; the interface
// lives here so the service does not import the engine package.
type Transitioner interface {
	// TransitionLine moves a line (and its items, when present) to the
	// target status, applying ledger deltas per the operation's policy.
	// Mutates line/item statuses and processed quantities in place.
	TransitionLine(ctx context.Context, op *StockOperation, line *Line, to LineStatus) error

	// TransitionItem moves a single item to the target status and
	// re-derives the parent line's status and processed quantity.
	TransitionItem(ctx context.Context, op *StockOperation, line *Line, item *LineItem, to LineStatus) error
}

// WarehouseDirectory resolves warehouse codes for reference generation.
// Warehouses are owned by an external catalog; only id and code are read.
type WarehouseDirectory interface {
	Code(ctx context.Context, warehouseID id.ID) (string, error)
}

// Sequencer issues gapless-enough per-warehouse, per-type reference codes.
type Sequencer interface {
	NextReference(ctx context.Context, warehouseID id.ID, warehouseCode, typeCode string) (string, error)
}
