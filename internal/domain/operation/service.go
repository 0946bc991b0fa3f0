package operation

import (
	"context"
	"fmt"
	"time"

	"stockops/internal/core/apperror"
	"stockops/internal/core/appctx"
	"stockops/internal/core/id"
	"stockops/internal/core/tx"
	"stockops/internal/core/types"
	"stockops/internal/domain/optype"
	"stockops/pkg/logger"
)

// Service orchestrates the stock operation lifecycle: creation with
// reference generation, line/item management, and status transitions
// with their ledger effects (delegated to the Transitioner).
type Service struct {
	repo       Repository
	txManager  tx.Manager
	warehouses WarehouseDirectory
	sequencer  Sequencer
	transition Transitioner
}

// NewService creates a new operation service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	warehouses WarehouseDirectory,
	sequencer Sequencer,
	transition Transitioner,
) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		warehouses: warehouses,
		sequencer:  sequencer,
		transition: transition,
	}
}

// CreateInput carries the fields of a new operation.
type CreateInput struct {
	Type        optype.Kind
	Source      Endpoint
	Destination Endpoint

	ExpectedCompletionAt *time.Time
	Deadline             *time.Time
	DeliveryRequired     bool
	CostPrice            types.Money

	Lines []CreateLineInput
}

// CreateLineInput carries one line of a new operation.
type CreateLineInput struct {
	ProductID id.ID
	Planned   types.Quantity
	Items     []CreateItemInput
}

// CreateItemInput carries one line item of a new operation.
type CreateItemInput struct {
	StockUnitID id.ID
	Planned     types.Quantity
}

// Create validates, assigns a reference and persists a new operation in Draft.
func (s *Service) Create(ctx context.Context, input CreateInput) (*StockOperation, error) {
	op := New(input.Type, input.Source, input.Destination)
	op.ExpectedCompletionAt = input.ExpectedCompletionAt
	op.Deadline = input.Deadline
	op.DeliveryRequired = input.DeliveryRequired
	if !input.CostPrice.IsZero() {
		op.CostPrice = input.CostPrice
	}
	op.CreatedBy = appctx.GetActorID(ctx)
	op.UpdatedBy = op.CreatedBy

	for _, lineInput := range input.Lines {
		line, err := op.AddLine(lineInput.ProductID, lineInput.Planned)
		if err != nil {
			return nil, err
		}
		for _, itemInput := range lineInput.Items {
			if _, err := line.AddItem(itemInput.StockUnitID, itemInput.Planned); err != nil {
				return nil, err
			}
		}
	}

	if err := op.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		reference, err := s.generateReference(ctx, op)
		if err != nil {
			return err
		}
		op.Reference = reference

		return s.repo.Create(ctx, op)
	})
	if err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	logger.Info(ctx, "stock operation created",
		"operation_id", op.ID,
		"type", op.Type,
		"reference", op.Reference,
		"lines", len(op.Lines),
	)
	return op, nil
}

func (s *Service) generateReference(ctx context.Context, op *StockOperation) (string, error) {
	warehouseID := op.ReferenceWarehouseID()
	code, err := s.warehouses.Code(ctx, warehouseID)
	if err != nil {
		return "", fmt.Errorf("resolve warehouse code: %w", err)
	}
	return s.sequencer.NextReference(ctx, warehouseID, code, op.Type.Code())
}

// Get returns the full operation aggregate.
func (s *Service) Get(ctx context.Context, operationID id.ID) (*StockOperation, error) {
	if id.IsNil(operationID) {
		return nil, apperror.NewValidation("operation id is required")
	}
	return s.repo.Get(ctx, operationID)
}

// List returns operations matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]StockOperation, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	ops, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list operations: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count operations: %w", err)
	}
	return ops, total, nil
}

// AddLine appends a line to an existing operation.
func (s *Service) AddLine(ctx context.Context, operationID, productID id.ID, planned types.Quantity) (*Line, error) {
	var created *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}

		line, err := op.AddLine(productID, planned)
		if err != nil {
			return err
		}
		if err := s.repo.InsertLine(ctx, line); err != nil {
			return err
		}

		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		created = line
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add line: %w", err)
	}
	return created, nil
}

// AddItems appends line items to an existing line in bulk.
func (s *Service) AddItems(ctx context.Context, operationID, lineID id.ID, inputs []CreateItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, apperror.NewValidation("at least one item is required")
	}

	var created []LineItem
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}
		if err := op.CanModify(); err != nil {
			return err
		}

		line := op.Line(lineID)
		if line == nil {
			return apperror.NewNotFound("operation line", lineID)
		}
		if line.Status != LinePending {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"items can only be added to a pending line").
				WithDetail("line_id", lineID.String()).
				WithDetail("status", string(line.Status))
		}

		start := len(line.Items)
		for _, input := range inputs {
			if _, err := line.AddItem(input.StockUnitID, input.Planned); err != nil {
				return err
			}
		}
		if err := s.repo.InsertItems(ctx, line.Items[start:]); err != nil {
			return err
		}

		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		created = line.Items[start:]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add items: %w", err)
	}
	return created, nil
}

// SetStatus moves the operation header to a new status.
//
// Side effects by target status, all in one transaction:
//   - Reserved: every pending line is reserved (ledger deltas applied)
//   - Completed: every pending or reserved line is completed
//   - Cancelled: every non-completed, non-cancelled line is cancelled,
//     releasing reservations; completed lines stay untouched
func (s *Service) SetStatus(ctx context.Context, operationID id.ID, target Status) (*StockOperation, error) {
	if !target.Valid() {
		return nil, apperror.NewValidation("unknown operation status").
			WithDetail("value", string(target))
	}

	var result *StockOperation
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}

		if op.Status == target {
			result = op
			return nil
		}
		if !CanTransition(op.Status, target) {
			return apperror.NewTransitionNotAllowed("operation", string(op.Status), string(target))
		}

		switch target {
		case StatusReserved:
			if err := s.transitionLines(ctx, op, LineReserved, func(l *Line) bool {
				return l.Status == LinePending
			}); err != nil {
				return err
			}
			now := time.Now().UTC()
			op.ReservedAt = &now

		case StatusProcessing:
			now := time.Now().UTC()
			op.StartedAt = &now

		case StatusCompleted:
			if err := s.transitionLines(ctx, op, LineCompleted, func(l *Line) bool {
				return l.Status == LinePending || l.Status == LineReserved
			}); err != nil {
				return err
			}
			now := time.Now().UTC()
			op.CompletedAt = &now

		case StatusCancelled:
			if err := s.transitionLines(ctx, op, LineCancelled, func(l *Line) bool {
				return l.Status == LinePending || l.Status == LineReserved
			}); err != nil {
				return err
			}
		}

		op.Status = target
		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		result = op
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	logger.Info(ctx, "stock operation status changed",
		"operation_id", operationID,
		"status", target,
		"actor", appctx.GetActorID(ctx),
	)
	return result, nil
}

func (s *Service) transitionLines(ctx context.Context, op *StockOperation, target LineStatus, match func(*Line) bool) error {
	for i := range op.Lines {
		line := &op.Lines[i]
		if !match(line) {
			continue
		}
		if err := s.transition.TransitionLine(ctx, op, line, target); err != nil {
			return err
		}
		if err := s.persistLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) persistLine(ctx context.Context, line *Line) error {
	if err := s.repo.UpdateLine(ctx, line); err != nil {
		return err
	}
	for i := range line.Items {
		if err := s.repo.UpdateItem(ctx, &line.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

// TransitionLine moves one line to a new status, applying ledger effects.
func (s *Service) TransitionLine(ctx context.Context, operationID, lineID id.ID, target LineStatus) (*Line, error) {
	if !target.Valid() {
		return nil, apperror.NewValidation("unknown line status").
			WithDetail("value", string(target))
	}

	var result *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}
		line := op.Line(lineID)
		if line == nil {
			return apperror.NewNotFound("operation line", lineID)
		}

		if err := s.transition.TransitionLine(ctx, op, line, target); err != nil {
			return err
		}
		if err := s.persistLine(ctx, line); err != nil {
			return err
		}

		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition line: %w", err)
	}
	return result, nil
}

// TransitionItem moves one line item to a new status, applying ledger
// effects and re-deriving the parent line's status.
func (s *Service) TransitionItem(ctx context.Context, operationID, lineID, itemID id.ID, target LineStatus) (*LineItem, error) {
	if !target.Valid() {
		return nil, apperror.NewValidation("unknown item status").
			WithDetail("value", string(target))
	}

	var result *LineItem
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}
		line := op.Line(lineID)
		if line == nil {
			return apperror.NewNotFound("operation line", lineID)
		}
		item := line.Item(itemID)
		if item == nil {
			return apperror.NewNotFound("line item", itemID)
		}

		if err := s.transition.TransitionItem(ctx, op, line, item, target); err != nil {
			return err
		}
		if err := s.persistLine(ctx, line); err != nil {
			return err
		}

		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition item: %w", err)
	}
	return result, nil
}

// RecordLineProgress sets the processed quantity on a quantity-tracked
// pending line. Rejected on item-tracked lines (items drive progress
// there) and when processed would exceed planned.
func (s *Service) RecordLineProgress(ctx context.Context, operationID, lineID id.ID, processed types.Quantity) (*Line, error) {
	if processed.IsNegative() {
		return nil, apperror.NewValidation("processed quantity must not be negative")
	}

	var result *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		op, err := s.repo.GetForUpdate(ctx, operationID)
		if err != nil {
			return err
		}
		line := op.Line(lineID)
		if line == nil {
			return apperror.NewNotFound("operation line", lineID)
		}
		if line.HasItems() {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"progress on an item-tracked line is derived from its items").
				WithDetail("line_id", lineID.String())
		}
		// Progress is fixed before reservation: the reserved quantity
		// and its reversal on cancel must match.
		if line.Status != LinePending {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"progress can only be recorded on a pending line").
				WithDetail("line_id", lineID.String()).
				WithDetail("status", string(line.Status))
		}
		if processed > line.Planned {
			return apperror.NewOverCompletion(lineID.String(), line.Planned.Float64(), processed.Float64())
		}

		line.Processed = processed
		if err := s.repo.UpdateLine(ctx, line); err != nil {
			return err
		}

		op.Touch()
		op.UpdatedBy = appctx.GetActorID(ctx)
		if err := s.repo.Update(ctx, op); err != nil {
			return err
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record line progress: %w", err)
	}
	return result, nil
}
