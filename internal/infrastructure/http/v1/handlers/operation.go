package handlers

import (
	"github.com/gin-gonic/gin"

	"stockops/internal/domain/operation"
	"stockops/internal/infrastructure/http/v1/dto"
)

// OperationHandler handles HTTP requests for stock operations.
type OperationHandler struct {
	*BaseHandler
	service *operation.Service
}

// NewOperationHandler creates a new operation handler.
func NewOperationHandler(base *BaseHandler, service *operation.Service) *OperationHandler {
	return &OperationHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /operations
func (h *OperationHandler) Create(c *gin.Context) {
	var req dto.CreateOperationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	op, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, op.ID.String())
}

// Get handles GET /operations/:id
func (h *OperationHandler) Get(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	op, err := h.service.Get(c.Request.Context(), operationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromOperation(op))
}

// List handles GET /operations
func (h *OperationHandler) List(c *gin.Context) {
	var query dto.ListOperationsQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := query.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	ops, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.OperationResponse, len(ops))
	for i := range ops {
		items[i] = dto.FromOperation(&ops[i])
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// SetStatus handles POST /operations/:id/status
func (h *OperationHandler) SetStatus(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SetStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	op, err := h.service.SetStatus(c.Request.Context(), operationID, operation.Status(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromOperation(op))
}

// AddLine handles POST /operations/:id/lines
func (h *OperationHandler) AddLine(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.AddLineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := parseID(c, "productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}

	line, err := h.service.AddLine(c.Request.Context(), operationID, productID, req.PlannedQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, line.ID.String())
}

// AddItems handles POST /operations/:id/lines/:lineId/items
func (h *OperationHandler) AddItems(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseIDParam(c, "lineId")
	if !ok {
		return
	}

	var req dto.AddItemsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inputs := make([]operation.CreateItemInput, 0, len(req.Items))
	for _, itemReq := range req.Items {
		stockUnitID, err := parseID(c, "stockUnitId", itemReq.StockUnitID)
		if err != nil {
			h.Error(c, err)
			return
		}
		inputs = append(inputs, operation.CreateItemInput{
			StockUnitID: stockUnitID,
			Planned:     itemReq.PlannedQuantity,
		})
	}

	items, err := h.service.AddItems(c.Request.Context(), operationID, lineID, inputs)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]dto.ItemResponse, len(items))
	for i := range items {
		resp[i] = dto.FromItem(&items[i])
	}
	h.OK(c, resp)
}

// TransitionLine handles POST /operations/:id/lines/:lineId/status
func (h *OperationHandler) TransitionLine(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseIDParam(c, "lineId")
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	line, err := h.service.TransitionLine(c.Request.Context(), operationID, lineID, operation.LineStatus(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromLine(line))
}

// TransitionItem handles POST /operations/:id/lines/:lineId/items/:itemId/status
func (h *OperationHandler) TransitionItem(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseIDParam(c, "lineId")
	if !ok {
		return
	}
	itemID, ok := h.ParseIDParam(c, "itemId")
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.service.TransitionItem(c.Request.Context(), operationID, lineID, itemID, operation.LineStatus(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromItem(item))
}

// RecordProgress handles POST /operations/:id/lines/:lineId/progress
func (h *OperationHandler) RecordProgress(c *gin.Context) {
	operationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseIDParam(c, "lineId")
	if !ok {
		return
	}

	var req dto.ProgressRequest
	if !h.BindJSON(c, &req) {
		return
	}

	line, err := h.service.RecordLineProgress(c.Request.Context(), operationID, lineID, req.ProcessedQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromLine(line))
}

// RegisterRoutes registers operation routes.
func (h *OperationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/status", h.SetStatus)
	rg.POST("/:id/lines", h.AddLine)
	rg.POST("/:id/lines/:lineId/items", h.AddItems)
	rg.POST("/:id/lines/:lineId/status", h.TransitionLine)
	rg.POST("/:id/lines/:lineId/progress", h.RecordProgress)
	rg.POST("/:id/lines/:lineId/items/:itemId/status", h.TransitionItem)
}
