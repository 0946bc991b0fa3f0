package dto

import (
	"time"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
	"stockops/internal/domain/operation"
	"stockops/internal/domain/optype"
)

// --- Requests ---

// CreateOperationRequest for creating stock operations.
type CreateOperationRequest struct {
	Type string `json:"type" binding:"required"`

	SourceWarehouseID      string `json:"sourceWarehouseId"`
	SourceLocationID       string `json:"sourceLocationId"`
	DestinationWarehouseID string `json:"destinationWarehouseId"`
	DestinationLocationID  string `json:"destinationLocationId"`

	ExpectedCompletionAt *time.Time `json:"expectedCompletionAt"`
	Deadline             *time.Time `json:"deadline"`
	DeliveryRequired     bool       `json:"deliveryRequired"`
	CostPrice            string     `json:"costPrice"`

	Lines []CreateLineRequest `json:"lines" binding:"dive"`
}

// CreateLineRequest for one operation line.
type CreateLineRequest struct {
	ProductID       string              `json:"productId" binding:"required"`
	PlannedQuantity types.Quantity      `json:"plannedQuantity" binding:"required"`
	Items           []CreateItemRequest `json:"items" binding:"dive"`
}

// CreateItemRequest for one line item.
type CreateItemRequest struct {
	StockUnitID     string         `json:"stockUnitId" binding:"required"`
	PlannedQuantity types.Quantity `json:"plannedQuantity"`
}

// ToInput converts the request to a service input.
func (r *CreateOperationRequest) ToInput() (operation.CreateInput, error) {
	input := operation.CreateInput{
		Type:                 optype.Kind(r.Type),
		ExpectedCompletionAt: r.ExpectedCompletionAt,
		Deadline:             r.Deadline,
		DeliveryRequired:     r.DeliveryRequired,
	}

	var err error
	if input.Source.WarehouseID, err = parseOptionalID("sourceWarehouseId", r.SourceWarehouseID); err != nil {
		return input, err
	}
	if input.Source.LocationID, err = parseOptionalID("sourceLocationId", r.SourceLocationID); err != nil {
		return input, err
	}
	if input.Destination.WarehouseID, err = parseOptionalID("destinationWarehouseId", r.DestinationWarehouseID); err != nil {
		return input, err
	}
	if input.Destination.LocationID, err = parseOptionalID("destinationLocationId", r.DestinationLocationID); err != nil {
		return input, err
	}

	if r.CostPrice != "" {
		price, err := types.NewMoneyFromString(r.CostPrice)
		if err != nil {
			return input, apperror.NewValidation("invalid costPrice format").
				WithDetail("value", r.CostPrice)
		}
		input.CostPrice = price
	}

	for _, lineReq := range r.Lines {
		productID, err := parseRequiredID("productId", lineReq.ProductID)
		if err != nil {
			return input, err
		}
		line := operation.CreateLineInput{
			ProductID: productID,
			Planned:   lineReq.PlannedQuantity,
		}
		for _, itemReq := range lineReq.Items {
			stockUnitID, err := parseRequiredID("stockUnitId", itemReq.StockUnitID)
			if err != nil {
				return input, err
			}
			line.Items = append(line.Items, operation.CreateItemInput{
				StockUnitID: stockUnitID,
				Planned:     itemReq.PlannedQuantity,
			})
		}
		input.Lines = append(input.Lines, line)
	}

	return input, nil
}

// AddLineRequest for appending a line to an operation.
type AddLineRequest struct {
	ProductID       string         `json:"productId" binding:"required"`
	PlannedQuantity types.Quantity `json:"plannedQuantity" binding:"required"`
}

// AddItemsRequest for appending items to a line.
type AddItemsRequest struct {
	Items []CreateItemRequest `json:"items" binding:"required,dive"`
}

// SetStatusRequest for operation header status changes.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TransitionRequest for line/item status changes.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// ProgressRequest for recording processed quantity on a line.
type ProgressRequest struct {
	ProcessedQuantity types.Quantity `json:"processedQuantity" binding:"required"`
}

// ListOperationsQuery filters operation listings.
type ListOperationsQuery struct {
	Types       []string   `form:"type"`
	Statuses    []string   `form:"status"`
	WarehouseID string     `form:"warehouseId"`
	Reference   string     `form:"reference"`
	CreatedFrom *time.Time `form:"createdFrom" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo   *time.Time `form:"createdTo" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int        `form:"limit"`
	Offset      int        `form:"offset"`
}

// ToFilter converts the query to a repository filter.
func (q *ListOperationsQuery) ToFilter() (operation.Filter, error) {
	filter := operation.Filter{
		Reference:   q.Reference,
		CreatedFrom: q.CreatedFrom,
		CreatedTo:   q.CreatedTo,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}

	for _, t := range q.Types {
		filter.Types = append(filter.Types, optype.Kind(t))
	}
	for _, s := range q.Statuses {
		filter.Statuses = append(filter.Statuses, operation.Status(s))
	}

	if q.WarehouseID != "" {
		warehouseID, err := parseRequiredID("warehouseId", q.WarehouseID)
		if err != nil {
			return filter, err
		}
		filter.WarehouseID = warehouseID
	}

	return filter, nil
}

// --- Responses ---

// OperationResponse contains stock operation fields.
type OperationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Reference string `json:"reference"`

	SourceWarehouseID      string `json:"sourceWarehouseId,omitempty"`
	SourceLocationID       string `json:"sourceLocationId,omitempty"`
	DestinationWarehouseID string `json:"destinationWarehouseId,omitempty"`
	DestinationLocationID  string `json:"destinationLocationId,omitempty"`

	ReservedAt           *time.Time `json:"reservedAt,omitempty"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	ExpectedCompletionAt *time.Time `json:"expectedCompletionAt,omitempty"`
	Deadline             *time.Time `json:"deadline,omitempty"`

	DeliveryRequired bool   `json:"deliveryRequired"`
	CostPrice        string `json:"costPrice"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`

	Lines []LineResponse `json:"lines,omitempty"`
}

// LineResponse contains operation line fields.
type LineResponse struct {
	ID                string         `json:"id"`
	LineNo            int            `json:"lineNo"`
	ProductID         string         `json:"productId"`
	PlannedQuantity   types.Quantity `json:"plannedQuantity"`
	ProcessedQuantity types.Quantity `json:"processedQuantity"`
	Status            string         `json:"status"`
	Items             []ItemResponse `json:"items,omitempty"`
}

// ItemResponse contains line item fields.
type ItemResponse struct {
	ID                string         `json:"id"`
	StockUnitID       string         `json:"stockUnitId"`
	PlannedQuantity   types.Quantity `json:"plannedQuantity"`
	ProcessedQuantity types.Quantity `json:"processedQuantity"`
	Status            string         `json:"status"`
}

// FromOperation creates OperationResponse from the aggregate.
func FromOperation(op *operation.StockOperation) OperationResponse {
	resp := OperationResponse{
		ID:                     op.ID.String(),
		Type:                   string(op.Type),
		Status:                 string(op.Status),
		Reference:              op.Reference,
		SourceWarehouseID:      idString(op.SourceWarehouseID),
		SourceLocationID:       idString(op.SourceLocationID),
		DestinationWarehouseID: idString(op.DestinationWarehouseID),
		DestinationLocationID:  idString(op.DestinationLocationID),
		ReservedAt:             op.ReservedAt,
		StartedAt:              op.StartedAt,
		CompletedAt:            op.CompletedAt,
		ExpectedCompletionAt:   op.ExpectedCompletionAt,
		Deadline:               op.Deadline,
		DeliveryRequired:       op.DeliveryRequired,
		CostPrice:              op.CostPrice.String(),
		Version:                op.Version,
		CreatedAt:              op.CreatedAt,
		UpdatedAt:              op.UpdatedAt,
		CreatedBy:              op.CreatedBy,
		UpdatedBy:              op.UpdatedBy,
	}
	for i := range op.Lines {
		resp.Lines = append(resp.Lines, FromLine(&op.Lines[i]))
	}
	return resp
}

// FromLine creates LineResponse from a line.
func FromLine(line *operation.Line) LineResponse {
	resp := LineResponse{
		ID:                line.ID.String(),
		LineNo:            line.LineNo,
		ProductID:         line.ProductID.String(),
		PlannedQuantity:   line.Planned,
		ProcessedQuantity: line.Processed,
		Status:            string(line.Status),
	}
	for i := range line.Items {
		resp.Items = append(resp.Items, FromItem(&line.Items[i]))
	}
	return resp
}

// FromItem creates ItemResponse from an item.
func FromItem(item *operation.LineItem) ItemResponse {
	return ItemResponse{
		ID:                item.ID.String(),
		StockUnitID:       item.StockUnitID.String(),
		PlannedQuantity:   item.Planned,
		ProcessedQuantity: item.Processed,
		Status:            string(item.Status),
	}
}

// --- helpers ---

func idString(v id.ID) string {
	if id.IsNil(v) {
		return ""
	}
	return v.String()
}

func parseRequiredID(field, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), apperror.NewValidation(field + " is required")
	}
	parsed, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid " + field + " format")
	}
	return parsed, nil
}

func parseOptionalID(field, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), nil
	}
	parsed, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid " + field + " format")
	}
	return parsed, nil
}
