package operation_repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/domain/operation"
	"stockops/internal/infrastructure/storage/postgres"
)

// WarehouseDirectory resolves warehouse codes from the warehouses table.
// The table is owned by the catalog service; only id and code are read
// here, for reference generation.
//
// Codes are immutable once assigned, so they are cached for the process
// lifetime.
type WarehouseDirectory struct {
	txManager *postgres.TxManager

	mu    sync.RWMutex
	codes map[id.ID]string
}

// NewWarehouseDirectory creates a warehouse code directory.
func NewWarehouseDirectory(txManager *postgres.TxManager) *WarehouseDirectory {
	return &WarehouseDirectory{
		txManager: txManager,
		codes:     make(map[id.ID]string),
	}
}

// Code returns the short code for a warehouse.
func (d *WarehouseDirectory) Code(ctx context.Context, warehouseID id.ID) (string, error) {
	d.mu.RLock()
	code, ok := d.codes[warehouseID]
	d.mu.RUnlock()
	if ok {
		return code, nil
	}

	var row struct {
		Code string `db:"code"`
	}
	querier := d.txManager.GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &row,
		"SELECT code FROM warehouses WHERE id = $1", warehouseID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return "", apperror.NewNotFound("warehouse", warehouseID)
		}
		return "", fmt.Errorf("get warehouse code: %w", err)
	}

	d.mu.Lock()
	d.codes[warehouseID] = row.Code
	d.mu.Unlock()

	return row.Code, nil
}

// Ensure interface compliance.
var _ operation.WarehouseDirectory = (*WarehouseDirectory)(nil)
