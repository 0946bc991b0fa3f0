package handlers

import (
	"github.com/gin-gonic/gin"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/domain/ledger"
	"stockops/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles HTTP requests for the inventory ledger.
// The ledger is read-only over HTTP: mutations happen only through
// operation status transitions.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetRows handles GET /ledger/rows
func (h *LedgerHandler) GetRows(c *gin.Context) {
	ctx := c.Request.Context()

	var warehouseID, productID id.ID
	if whStr := c.Query("warehouseId"); whStr != "" {
		parsed, err := id.Parse(whStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouseId format"))
			return
		}
		warehouseID = parsed
	}
	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return
		}
		productID = parsed
	}

	var rows []ledger.Row
	var err error

	switch {
	case !id.IsNil(warehouseID):
		filter := ledger.RowFilter{
			ExcludeZero: c.Query("excludeZero") != "false",
		}
		if !id.IsNil(productID) {
			filter.ProductIDs = []id.ID{productID}
		}
		rows, err = h.service.WarehouseRows(ctx, warehouseID, filter)
	case !id.IsNil(productID):
		rows, err = h.service.ProductRows(ctx, productID)
	default:
		h.Error(c, apperror.NewValidation("warehouseId or productId is required"))
		return
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.LedgerRowResponse, len(rows))
	for i, r := range rows {
		items[i] = dto.FromLedgerRow(r)
	}

	h.OK(c, dto.LedgerRowListResponse{Items: items})
}

// GetAvailability handles GET /ledger/availability/:productId
func (h *LedgerHandler) GetAvailability(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	available, err := h.service.ProductAvailability(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AvailabilityResponse{
		ProductID: productID.String(),
		Available: available,
	})
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rows", h.GetRows)
	rg.GET("/availability/:productId", h.GetAvailability)
}
