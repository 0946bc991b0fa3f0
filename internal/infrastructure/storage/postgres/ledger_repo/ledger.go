// Package ledger_repo provides the PostgreSQL implementation of the
// inventory ledger repository.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockops/internal/core/id"
	"stockops/internal/domain/ledger"
	"stockops/internal/infrastructure/storage/postgres"
)

const ledgerTable = "inventory_ledger"

var ledgerColumns = []string{
	"product_id", "stock_unit_id", "warehouse_id", "location_id",
	"on_hand", "reserved", "incoming", "updated_at",
}

// LedgerRepo implements ledger.Repository.
// Quantities are stored as BIGINT scaled integers, matching types.Quantity.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ApplyDelta locks the row, applies the delta with each field floored at
// zero, and reports the clamped remainder exactly.
//
// When the row does not exist yet an upsert covers the creation race:
// two transactions can both miss the SELECT, and ON CONFLICT turns the
// loser's INSERT into an increment under the winner's row lock.
func (r *LedgerRepo) ApplyDelta(ctx context.Context, key ledger.Key, delta ledger.Delta) (ledger.Clamp, error) {
	querier := r.txManager.GetQuerier(ctx)

	var row ledger.Row
	err := pgxscan.Get(ctx, querier, &row, `
		SELECT product_id, stock_unit_id, warehouse_id, location_id,
		       on_hand, reserved, incoming, updated_at
		FROM inventory_ledger
		WHERE product_id = $1 AND stock_unit_id = $2
		  AND warehouse_id = $3 AND location_id = $4
		FOR UPDATE
	`, key.ProductID, key.StockUnitID, key.WarehouseID, key.LocationID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return r.insertRow(ctx, key, delta)
		}
		return ledger.Clamp{}, fmt.Errorf("lock ledger row: %w", err)
	}

	onHand := row.OnHand + delta.OnHand
	reserved := row.Reserved + delta.Reserved
	incoming := row.Incoming + delta.Incoming

	clamp := ledger.Clamp{
		OnHand:   onHand.ClampZero() - onHand,
		Reserved: reserved.ClampZero() - reserved,
		Incoming: incoming.ClampZero() - incoming,
	}

	_, err = querier.Exec(ctx, `
		UPDATE inventory_ledger
		SET on_hand = $5, reserved = $6, incoming = $7, updated_at = now()
		WHERE product_id = $1 AND stock_unit_id = $2
		  AND warehouse_id = $3 AND location_id = $4
	`, key.ProductID, key.StockUnitID, key.WarehouseID, key.LocationID,
		onHand.ClampZero(), reserved.ClampZero(), incoming.ClampZero())
	if err != nil {
		return ledger.Clamp{}, fmt.Errorf("update ledger row: %w", err)
	}

	return clamp, nil
}

func (r *LedgerRepo) insertRow(ctx context.Context, key ledger.Key, delta ledger.Delta) (ledger.Clamp, error) {
	querier := r.txManager.GetQuerier(ctx)

	// GREATEST keeps the floor in-statement so the conflict branch of a
	// creation race stays atomic. The reported clamp assumes a fresh row,
	// which is exact except in that race.
	_, err := querier.Exec(ctx, `
		INSERT INTO inventory_ledger (
			product_id, stock_unit_id, warehouse_id, location_id,
			on_hand, reserved, incoming, updated_at
		) VALUES ($1, $2, $3, $4, GREATEST($5, 0), GREATEST($6, 0), GREATEST($7, 0), now())
		ON CONFLICT (product_id, stock_unit_id, warehouse_id, location_id)
		DO UPDATE SET
			on_hand = GREATEST(inventory_ledger.on_hand + $5, 0),
			reserved = GREATEST(inventory_ledger.reserved + $6, 0),
			incoming = GREATEST(inventory_ledger.incoming + $7, 0),
			updated_at = now()
	`, key.ProductID, key.StockUnitID, key.WarehouseID, key.LocationID,
		delta.OnHand, delta.Reserved, delta.Incoming)
	if err != nil {
		return ledger.Clamp{}, fmt.Errorf("insert ledger row: %w", err)
	}

	return ledger.Clamp{
		OnHand:   delta.OnHand.ClampZero() - delta.OnHand,
		Reserved: delta.Reserved.ClampZero() - delta.Reserved,
		Incoming: delta.Incoming.ClampZero() - delta.Incoming,
	}, nil
}

// Get returns the row for a key, or a zero-quantity row if absent.
func (r *LedgerRepo) Get(ctx context.Context, key ledger.Key) (ledger.Row, error) {
	q := r.builder.Select(ledgerColumns...).From(ledgerTable).
		Where(squirrel.Eq{
			"product_id":    key.ProductID,
			"stock_unit_id": key.StockUnitID,
			"warehouse_id":  key.WarehouseID,
			"location_id":   key.LocationID,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.Row{}, fmt.Errorf("build query: %w", err)
	}

	var row ledger.Row
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.Row{Key: key}, nil
		}
		return ledger.Row{}, fmt.Errorf("get ledger row: %w", err)
	}

	return row, nil
}

// GetByProduct returns all rows for a product across warehouses.
func (r *LedgerRepo) GetByProduct(ctx context.Context, productID id.ID) ([]ledger.Row, error) {
	q := r.builder.Select(ledgerColumns...).From(ledgerTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("warehouse_id", "location_id", "stock_unit_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ledger.Row
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select product rows: %w", err)
	}

	return rows, nil
}

// GetByWarehouse returns rows for a warehouse.
func (r *LedgerRepo) GetByWarehouse(ctx context.Context, warehouseID id.ID, filter ledger.RowFilter) ([]ledger.Row, error) {
	q := r.builder.Select(ledgerColumns...).From(ledgerTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID})

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}

	if filter.ExcludeZero {
		q = q.Where("(on_hand <> 0 OR reserved <> 0 OR incoming <> 0)")
	}

	q = q.OrderBy("product_id", "location_id", "stock_unit_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ledger.Row
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select warehouse rows: %w", err)
	}

	return rows, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
