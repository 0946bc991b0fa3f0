// Package operation provides the stock operation document:
// one typed movement transaction with per-product lines and
// optional per-unit line items.
package operation

import (
	"context"
	"time"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
	"stockops/internal/domain/optype"
)

// Status is the operation header status.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusCreated    Status = "created"
	StatusAssigned   Status = "assigned"
	StatusReserved   Status = "reserved"
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusDelayed    Status = "delayed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusDone       Status = "done"
)

// headerTransitions is the closed set of recognized header transitions.
// Processing is reachable only from Reserved or Approved; Done only from
// Completed; Cancelled from any non-terminal status.
var headerTransitions = map[Status][]Status{
	StatusDraft:      {StatusCreated, StatusCancelled},
	StatusCreated:    {StatusAssigned, StatusPending, StatusApproved, StatusReserved, StatusCancelled},
	StatusAssigned:   {StatusPending, StatusApproved, StatusReserved, StatusCancelled},
	StatusPending:    {StatusAssigned, StatusApproved, StatusReserved, StatusCancelled},
	StatusApproved:   {StatusReserved, StatusProcessing, StatusCancelled},
	StatusReserved:   {StatusProcessing, StatusDelayed, StatusBlocked, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusDelayed, StatusBlocked, StatusCancelled},
	StatusDelayed:    {StatusReserved, StatusBlocked, StatusCancelled},
	StatusBlocked:    {StatusReserved, StatusDelayed, StatusCancelled},
	StatusCompleted:  {StatusDone, StatusCancelled},
	StatusCancelled:  {},
	StatusDone:       {},
}

// Valid reports whether s is a known header status.
func (s Status) Valid() bool {
	_, ok := headerTransitions[s]
	return ok
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return len(headerTransitions[s]) == 0
}

// CanTransition reports whether from -> to is a recognized header transition.
func CanTransition(from, to Status) bool {
	for _, next := range headerTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineStatus is the status vocabulary shared by lines and line items.
type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LineReserved  LineStatus = "reserved"
	LineCompleted LineStatus = "completed"
	LineCancelled LineStatus = "cancelled"
)

// lineTransitions is the closed line/item state machine.
var lineTransitions = map[LineStatus][]LineStatus{
	LinePending:   {LineReserved, LineCompleted, LineCancelled},
	LineReserved:  {LineCompleted, LineCancelled},
	LineCompleted: {},
	LineCancelled: {},
}

// Valid reports whether s is a known line status.
func (s LineStatus) Valid() bool {
	_, ok := lineTransitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s LineStatus) Terminal() bool {
	return len(lineTransitions[s]) == 0
}

// LineCanTransition reports whether from -> to is recognized for lines/items.
func LineCanTransition(from, to LineStatus) bool {
	for _, next := range lineTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Endpoint is one side (warehouse + optional location) of an operation.
// Zero-value ids mean the side is absent.
type Endpoint struct {
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	LocationID  id.ID `db:"location_id" json:"locationId"`
}

// IsSet reports whether the endpoint names a warehouse.
func (e Endpoint) IsSet() bool {
	return !id.IsNil(e.WarehouseID)
}

// StockOperation is one movement transaction.
type StockOperation struct {
	ID        id.ID       `db:"id" json:"id"`
	Type      optype.Kind `db:"type" json:"type"`
	Status    Status      `db:"status" json:"status"`
	Reference string      `db:"reference" json:"reference"`

	SourceWarehouseID      id.ID `db:"source_warehouse_id" json:"sourceWarehouseId"`
	SourceLocationID       id.ID `db:"source_location_id" json:"sourceLocationId"`
	DestinationWarehouseID id.ID `db:"destination_warehouse_id" json:"destinationWarehouseId"`
	DestinationLocationID  id.ID `db:"destination_location_id" json:"destinationLocationId"`

	ReservedAt           *time.Time `db:"reserved_at" json:"reservedAt,omitempty"`
	StartedAt            *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt          *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	ExpectedCompletionAt *time.Time `db:"expected_completion_at" json:"expectedCompletionAt,omitempty"`
	Deadline             *time.Time `db:"deadline" json:"deadline,omitempty"`

	DeliveryRequired bool        `db:"delivery_required" json:"deliveryRequired"`
	CostPrice        types.Money `db:"cost_price" json:"costPrice"`

	// Version for optimistic locking (incremented on each update)
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// New creates a stock operation in Draft.
func New(kind optype.Kind, source, destination Endpoint) *StockOperation {
	now := time.Now().UTC()
	return &StockOperation{
		ID:                     id.New(),
		Type:                   kind,
		Status:                 StatusDraft,
		SourceWarehouseID:      source.WarehouseID,
		SourceLocationID:       source.LocationID,
		DestinationWarehouseID: destination.WarehouseID,
		DestinationLocationID:  destination.LocationID,
		CostPrice:              types.ZeroMoney(),
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
		Lines:                  make([]Line, 0),
	}
}

// Source returns the source endpoint.
func (o *StockOperation) Source() Endpoint {
	return Endpoint{WarehouseID: o.SourceWarehouseID, LocationID: o.SourceLocationID}
}

// Destination returns the destination endpoint.
func (o *StockOperation) Destination() Endpoint {
	return Endpoint{WarehouseID: o.DestinationWarehouseID, LocationID: o.DestinationLocationID}
}

// Touch updates the UpdatedAt timestamp and increments version.
func (o *StockOperation) Touch() {
	o.UpdatedAt = time.Now().UTC()
	o.Version++
}

// Validate checks operation invariants.
func (o *StockOperation) Validate(ctx context.Context) error {
	if !o.Type.Valid() {
		return apperror.NewValidation("unknown operation type").
			WithDetail("field", "type").
			WithDetail("value", string(o.Type))
	}
	if !o.Status.Valid() {
		return apperror.NewValidation("unknown operation status").
			WithDetail("field", "status").
			WithDetail("value", string(o.Status))
	}

	pol := optype.MustPolicy(o.Type)
	if pol.RequiresSource && !o.Source().IsSet() {
		return apperror.NewEndpointRequired(string(o.Type), string(optype.EndpointSource))
	}
	if pol.RequiresDestination && !o.Destination().IsSet() {
		return apperror.NewEndpointRequired(string(o.Type), string(optype.EndpointDestination))
	}
	if !o.Source().IsSet() && !o.Destination().IsSet() {
		return apperror.NewValidation("at least one of source or destination warehouse must be set")
	}

	// A location without its warehouse is meaningless.
	if id.IsNil(o.SourceWarehouseID) && !id.IsNil(o.SourceLocationID) {
		return apperror.NewValidation("source location requires a source warehouse")
	}
	if id.IsNil(o.DestinationWarehouseID) && !id.IsNil(o.DestinationLocationID) {
		return apperror.NewValidation("destination location requires a destination warehouse")
	}

	for i := range o.Lines {
		if err := o.Lines[i].Validate(ctx); err != nil {
			return err
		}
	}

	return nil
}

// ReferenceWarehouseID returns the warehouse that names the reference code:
// the destination for inbound kinds, the source for outbound kinds, with a
// fallback to the populated endpoint for Repair.
func (o *StockOperation) ReferenceWarehouseID() id.ID {
	pol := optype.MustPolicy(o.Type)
	primary, fallback := o.Destination(), o.Source()
	if pol.ReferenceEndpoint == optype.EndpointSource {
		primary, fallback = o.Source(), o.Destination()
	}
	if primary.IsSet() {
		return primary.WarehouseID
	}
	return fallback.WarehouseID
}

// CanModify reports whether lines/items may still be added or edited.
func (o *StockOperation) CanModify() error {
	switch o.Status {
	case StatusDraft, StatusCreated, StatusAssigned, StatusPending, StatusApproved:
		return nil
	}
	return apperror.NewBusinessRule(apperror.CodeBusinessRule,
		"operation can no longer be modified").
		WithDetail("operation_id", o.ID.String()).
		WithDetail("status", string(o.Status))
}

// AddLine appends a line for one product and returns it.
func (o *StockOperation) AddLine(productID id.ID, planned types.Quantity) (*Line, error) {
	if err := o.CanModify(); err != nil {
		return nil, err
	}
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if !planned.IsPositive() {
		return nil, apperror.NewValidation("planned quantity must be positive").
			WithDetail("field", "plannedQuantity").
			WithDetail("value", planned.String())
	}

	line := Line{
		ID:          id.New(),
		OperationID: o.ID,
		LineNo:      len(o.Lines) + 1,
		ProductID:   productID,
		Planned:     planned,
		Status:      LinePending,
		Items:       make([]LineItem, 0),
	}
	o.Lines = append(o.Lines, line)
	return &o.Lines[len(o.Lines)-1], nil
}

// Line returns the line with the given id, or nil.
func (o *StockOperation) Line(lineID id.ID) *Line {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i]
		}
	}
	return nil
}

// Line is the aggregate planned/processed quantity of one product.
type Line struct {
	ID          id.ID `db:"id" json:"id"`
	OperationID id.ID `db:"operation_id" json:"operationId"`
	LineNo      int   `db:"line_no" json:"lineNo"`
	ProductID   id.ID `db:"product_id" json:"productId"`

	// Planned is the immutable target quantity.
	Planned types.Quantity `db:"planned_quantity" json:"plannedQuantity"`
	// Processed moves monotonically toward Planned as items complete.
	Processed types.Quantity `db:"processed_quantity" json:"processedQuantity"`

	Status LineStatus `db:"status" json:"status"`

	Items []LineItem `db:"-" json:"items"`
}

// Validate checks line invariants.
func (l *Line) Validate(ctx context.Context) error {
	if id.IsNil(l.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("line_no", l.LineNo)
	}
	if !l.Planned.IsPositive() {
		return apperror.NewValidation("planned quantity must be positive").
			WithDetail("line_no", l.LineNo)
	}
	if l.Processed.IsNegative() {
		return apperror.NewValidation("processed quantity must not be negative").
			WithDetail("line_no", l.LineNo)
	}
	if l.Processed > l.Planned {
		return apperror.NewOverCompletion(l.ID.String(), l.Planned.Float64(), l.Processed.Float64())
	}
	for i := range l.Items {
		if err := l.Items[i].Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HasItems reports whether the line is tracked at item granularity.
// When items exist they are the authoritative source of completion and
// the ledger is updated per item (scoped to product + stock unit).
func (l *Line) HasItems() bool {
	return len(l.Items) > 0
}

// EffectiveQuantity is the quantity used for ledger deltas:
// processed when recorded, else planned.
func (l *Line) EffectiveQuantity() types.Quantity {
	if l.Processed.IsPositive() {
		return l.Processed
	}
	return l.Planned
}

// AddItem appends a line item for one stock unit and returns it.
// Planned defaults to 1 for the serialized case when zero is given.
func (l *Line) AddItem(stockUnitID id.ID, planned types.Quantity) (*LineItem, error) {
	if id.IsNil(stockUnitID) {
		return nil, apperror.NewValidation("stock unit is required").
			WithDetail("field", "stockUnitId")
	}
	if planned.IsZero() {
		planned = types.NewQuantityFromInt64Scaled(types.QuantityScale)
	}
	if !planned.IsPositive() {
		return nil, apperror.NewValidation("item planned quantity must be positive").
			WithDetail("field", "plannedQuantity")
	}

	item := LineItem{
		ID:          id.New(),
		LineID:      l.ID,
		StockUnitID: stockUnitID,
		Planned:     planned,
		Status:      LinePending,
	}
	l.Items = append(l.Items, item)
	return &l.Items[len(l.Items)-1], nil
}

// Item returns the item with the given id, or nil.
func (l *Line) Item(itemID id.ID) *LineItem {
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			return &l.Items[i]
		}
	}
	return nil
}

// LineItem is a per-unit breakdown of a line: one trackable stock unit
// (serialized or batch) with its own status and quantity.
type LineItem struct {
	ID          id.ID `db:"id" json:"id"`
	LineID      id.ID `db:"line_id" json:"lineId"`
	StockUnitID id.ID `db:"stock_unit_id" json:"stockUnitId"`

	Planned   types.Quantity `db:"planned_quantity" json:"plannedQuantity"`
	Processed types.Quantity `db:"processed_quantity" json:"processedQuantity"`

	Status LineStatus `db:"status" json:"status"`
}

// Validate checks item invariants.
func (i *LineItem) Validate(ctx context.Context) error {
	if id.IsNil(i.StockUnitID) {
		return apperror.NewValidation("stock unit is required").
			WithDetail("item_id", i.ID.String())
	}
	if !i.Planned.IsPositive() {
		return apperror.NewValidation("item planned quantity must be positive").
			WithDetail("item_id", i.ID.String())
	}
	return nil
}

// EffectiveQuantity is the quantity used for ledger deltas.
func (i *LineItem) EffectiveQuantity() types.Quantity {
	if i.Processed.IsPositive() {
		return i.Processed
	}
	return i.Planned
}
