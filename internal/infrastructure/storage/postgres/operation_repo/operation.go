// Package operation_repo provides the PostgreSQL implementation of the
// stock operation repository.
package operation_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/domain/operation"
	"stockops/internal/infrastructure/storage/postgres"
)

const (
	operationsTable = "stock_operations"
	linesTable      = "stock_operation_lines"
	itemsTable      = "stock_operation_line_items"
)

var operationColumns = []string{
	"id", "type", "status", "reference",
	"source_warehouse_id", "source_location_id",
	"destination_warehouse_id", "destination_location_id",
	"reserved_at", "started_at", "completed_at",
	"expected_completion_at", "deadline",
	"delivery_required", "cost_price",
	"version", "created_at", "updated_at", "created_by", "updated_by",
}

var lineColumns = []string{
	"id", "operation_id", "line_no", "product_id",
	"planned_quantity", "processed_quantity", "status",
}

var itemColumns = []string{
	"id", "line_id", "stock_unit_id",
	"planned_quantity", "processed_quantity", "status",
}

// OperationRepo implements operation.Repository.
type OperationRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewOperationRepo creates a new operation repository.
func NewOperationRepo(txManager *postgres.TxManager) *OperationRepo {
	return &OperationRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create persists the full aggregate: header, lines and items.
func (r *OperationRepo) Create(ctx context.Context, op *operation.StockOperation) error {
	q := r.builder.Insert(operationsTable).
		Columns(operationColumns...).
		Values(
			op.ID, op.Type, op.Status, op.Reference,
			op.SourceWarehouseID, op.SourceLocationID,
			op.DestinationWarehouseID, op.DestinationLocationID,
			op.ReservedAt, op.StartedAt, op.CompletedAt,
			op.ExpectedCompletionAt, op.Deadline,
			op.DeliveryRequired, op.CostPrice,
			op.Version, op.CreatedAt, op.UpdatedAt, op.CreatedBy, op.UpdatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}

	for i := range op.Lines {
		line := &op.Lines[i]
		if err := r.InsertLine(ctx, line); err != nil {
			return err
		}
		if err := r.InsertItems(ctx, line.Items); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the full aggregate or a NotFound error.
func (r *OperationRepo) Get(ctx context.Context, operationID id.ID) (*operation.StockOperation, error) {
	return r.get(ctx, operationID, false)
}

// GetForUpdate locks the header row for the rest of the transaction.
// Lines and items are serialized through the header lock.
func (r *OperationRepo) GetForUpdate(ctx context.Context, operationID id.ID) (*operation.StockOperation, error) {
	return r.get(ctx, operationID, true)
}

func (r *OperationRepo) get(ctx context.Context, operationID id.ID, forUpdate bool) (*operation.StockOperation, error) {
	q := r.builder.Select(operationColumns...).From(operationsTable).
		Where(squirrel.Eq{"id": operationID}).Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var op operation.StockOperation
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &op, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock operation", operationID)
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}

	if err := r.loadChildren(ctx, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *OperationRepo) loadChildren(ctx context.Context, op *operation.StockOperation) error {
	querier := r.txManager.GetQuerier(ctx)

	q := r.builder.Select(lineColumns...).From(linesTable).
		Where(squirrel.Eq{"operation_id": op.ID}).
		OrderBy("line_no")
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	op.Lines = op.Lines[:0]
	if err := pgxscan.Select(ctx, querier, &op.Lines, sql, args...); err != nil {
		return fmt.Errorf("select lines: %w", err)
	}
	if len(op.Lines) == 0 {
		return nil
	}

	var items []operation.LineItem
	itemsSQL := `
		SELECT id, line_id, stock_unit_id,
		       planned_quantity, processed_quantity, status
		FROM stock_operation_line_items
		WHERE line_id IN (SELECT id FROM stock_operation_lines WHERE operation_id = $1)
		ORDER BY id
	`
	if err := pgxscan.Select(ctx, querier, &items, itemsSQL, op.ID); err != nil {
		return fmt.Errorf("select items: %w", err)
	}

	byLine := make(map[id.ID][]operation.LineItem, len(op.Lines))
	for _, item := range items {
		byLine[item.LineID] = append(byLine[item.LineID], item)
	}
	for i := range op.Lines {
		line := &op.Lines[i]
		line.Items = byLine[line.ID]
		if line.Items == nil {
			line.Items = make([]operation.LineItem, 0)
		}
	}
	return nil
}

// Update persists header fields with an optimistic version check.
// Callers bump Version via Touch before calling; the previous version
// is the expected stored one.
func (r *OperationRepo) Update(ctx context.Context, op *operation.StockOperation) error {
	q := r.builder.Update(operationsTable).
		Set("status", op.Status).
		Set("reference", op.Reference).
		Set("reserved_at", op.ReservedAt).
		Set("started_at", op.StartedAt).
		Set("completed_at", op.CompletedAt).
		Set("expected_completion_at", op.ExpectedCompletionAt).
		Set("deadline", op.Deadline).
		Set("delivery_required", op.DeliveryRequired).
		Set("cost_price", op.CostPrice).
		Set("version", op.Version).
		Set("updated_at", op.UpdatedAt).
		Set("updated_by", op.UpdatedBy).
		Where(squirrel.Eq{
			"id":      op.ID,
			"version": op.Version - 1,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock operation", op.ID)
	}

	return nil
}

// InsertLine persists one line.
func (r *OperationRepo) InsertLine(ctx context.Context, line *operation.Line) error {
	q := r.builder.Insert(linesTable).
		Columns(lineColumns...).
		Values(
			line.ID, line.OperationID, line.LineNo, line.ProductID,
			line.Planned, line.Processed, line.Status,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert line: %w", err)
	}
	return nil
}

// UpdateLine persists a line's status and processed quantity.
func (r *OperationRepo) UpdateLine(ctx context.Context, line *operation.Line) error {
	q := r.builder.Update(linesTable).
		Set("processed_quantity", line.Processed).
		Set("status", line.Status).
		Where(squirrel.Eq{"id": line.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	return nil
}

// InsertItems bulk-inserts line items.
// Fast path: COPY when inside a transaction.
func (r *OperationRepo) InsertItems(ctx context.Context, items []operation.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(items))
		for _, item := range items {
			rows = append(rows, []any{
				item.ID, item.LineID, item.StockUnitID,
				item.Planned, item.Processed, item.Status,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, itemsTable, itemColumns, rows); err != nil {
			return fmt.Errorf("copy items: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(itemsTable).Columns(itemColumns...)
	for _, item := range items {
		q = q.Values(
			item.ID, item.LineID, item.StockUnitID,
			item.Planned, item.Processed, item.Status,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}

// UpdateItem persists an item's status and processed quantity.
func (r *OperationRepo) UpdateItem(ctx context.Context, item *operation.LineItem) error {
	q := r.builder.Update(itemsTable).
		Set("processed_quantity", item.Processed).
		Set("status", item.Status).
		Where(squirrel.Eq{"id": item.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns operation headers matching the filter (without children).
func (r *OperationRepo) List(ctx context.Context, filter operation.Filter) ([]operation.StockOperation, error) {
	q := r.applyFilter(r.builder.Select(operationColumns...).From(operationsTable), filter).
		OrderBy("created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ops []operation.StockOperation
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &ops, sql, args...); err != nil {
		return nil, fmt.Errorf("select operations: %w", err)
	}

	return ops, nil
}

// Count returns the number of operations matching the filter.
func (r *OperationRepo) Count(ctx context.Context, filter operation.Filter) (int64, error) {
	q := r.applyFilter(r.builder.Select("COUNT(*)").From(operationsTable), filter)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}

	return count, nil
}

func (r *OperationRepo) applyFilter(q squirrel.SelectBuilder, filter operation.Filter) squirrel.SelectBuilder {
	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"type": filter.Types})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": filter.Statuses})
	}
	if !id.IsNil(filter.WarehouseID) {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"source_warehouse_id": filter.WarehouseID},
			squirrel.Eq{"destination_warehouse_id": filter.WarehouseID},
		})
	}
	if filter.Reference != "" {
		q = q.Where(squirrel.Eq{"reference": filter.Reference})
	}
	if filter.CreatedFrom != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.CreatedTo})
	}
	return q
}

// Ensure interface compliance.
var _ operation.Repository = (*OperationRepo)(nil)
