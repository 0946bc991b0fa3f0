// Package transition computes and applies the ledger effects of line
// and line-item status changes.
//
// The recognized transition set is closed:
//
//	pending  -> reserved   reserve effects
//	reserved -> completed  complete effects
//	pending  -> completed  reserve + complete effects combined
//	pending  -> cancelled  no ledger effect
//	reserved -> cancelled  inverse reserve effects
//	X        -> X          no-op
//
// Anything else is rejected and never touches the ledger.
package transition

import (
	"context"
	"time"

	"stockops/internal/core/apperror"
	"stockops/internal/core/appctx"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
	"stockops/internal/domain/ledger"
	"stockops/internal/domain/operation"
	"stockops/internal/domain/optype"
	"stockops/pkg/logger"
)

// Event describes one applied transition for the audit trail.
type Event struct {
	OperationID id.ID
	Reference   string
	EntityType  string
	EntityID    id.ID
	Kind        optype.Kind
	From        operation.LineStatus
	To          operation.LineStatus
	Quantity    types.Quantity
	Changes     []ledger.Change
	Actor       string
	At          time.Time
}

// Auditor records applied transitions. Implementations must not fail the
// transaction for purely informational entries; returning an error aborts
// the whole transition.
type Auditor interface {
	Record(ctx context.Context, event Event) error
}

// NopAuditor discards events.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, Event) error { return nil }

// Engine applies status transitions together with their ledger deltas.
// It implements operation.Transitioner. Callers hold the transaction.
type Engine struct {
	ledger *ledger.Service
	audit  Auditor
}

// NewEngine creates a transition engine.
func NewEngine(ledgerService *ledger.Service, audit Auditor) *Engine {
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Engine{ledger: ledgerService, audit: audit}
}

// TransitionLine moves a line to the target status.
//
// Item-tracked lines fan out to their items: every non-final item is moved
// to the target and the line's processed quantity is recomputed from
// completed items. Completion is rejected up front when the combined item
// quantity would push processed past planned. Quantity-tracked lines apply
// one delta set scoped to the product alone.
func (e *Engine) TransitionLine(ctx context.Context, op *operation.StockOperation, line *operation.Line, to operation.LineStatus) error {
	from := line.Status
	if from == to {
		logger.Debug(ctx, "line transition no-op",
			"line_id", line.ID, "status", to)
		return nil
	}
	if !operation.LineCanTransition(from, to) {
		return apperror.NewTransitionNotAllowed("line", string(from), string(to))
	}

	if line.HasItems() {
		if to == operation.LineCompleted {
			next := completedQuantity(line)
			for i := range line.Items {
				item := &line.Items[i]
				if item.Status.Terminal() {
					continue
				}
				next += item.EffectiveQuantity()
			}
			if next > line.Planned {
				return apperror.NewOverCompletion(line.ID.String(), line.Planned.Float64(), next.Float64())
			}
		}
		for i := range line.Items {
			item := &line.Items[i]
			if item.Status.Terminal() || item.Status == to {
				continue
			}
			if err := e.applyItem(ctx, op, line, item, to); err != nil {
				return err
			}
		}
		line.Status = to
		line.Processed = completedQuantity(line)
	} else {
		qty := line.EffectiveQuantity()
		changes, err := computeChanges(op, line.ProductID, id.Nil(), qty, from, to)
		if err != nil {
			return err
		}
		if err := e.ledger.ApplyChanges(ctx, changes); err != nil {
			return err
		}
		line.Status = to
		if to == operation.LineCompleted {
			line.Processed = qty
		}
		if err := e.record(ctx, op, "line", line.ID, from, to, qty, changes); err != nil {
			return err
		}
	}

	logger.Info(ctx, "line transitioned",
		"operation_id", op.ID,
		"line_id", line.ID,
		"from", from,
		"to", to,
	)
	return nil
}

// TransitionItem moves one item to the target status and re-derives the
// parent line's status and processed quantity from the item aggregate.
func (e *Engine) TransitionItem(ctx context.Context, op *operation.StockOperation, line *operation.Line, item *operation.LineItem, to operation.LineStatus) error {
	if line.Status.Terminal() {
		return apperror.NewTransitionNotAllowed("line", string(line.Status), string(to)).
			WithDetail("reason", "parent line is final")
	}
	if item.Status == to {
		logger.Debug(ctx, "item transition no-op",
			"item_id", item.ID, "status", to)
		return nil
	}

	if to == operation.LineCompleted {
		next := line.Processed + item.EffectiveQuantity()
		if next > line.Planned {
			return apperror.NewOverCompletion(line.ID.String(), line.Planned.Float64(), next.Float64())
		}
	}

	if err := e.applyItem(ctx, op, line, item, to); err != nil {
		return err
	}
	deriveLine(line)
	return nil
}

func (e *Engine) applyItem(ctx context.Context, op *operation.StockOperation, line *operation.Line, item *operation.LineItem, to operation.LineStatus) error {
	from := item.Status
	if !operation.LineCanTransition(from, to) {
		return apperror.NewTransitionNotAllowed("line item", string(from), string(to))
	}

	qty := item.EffectiveQuantity()
	changes, err := computeChanges(op, line.ProductID, item.StockUnitID, qty, from, to)
	if err != nil {
		return err
	}
	if err := e.ledger.ApplyChanges(ctx, changes); err != nil {
		return err
	}

	item.Status = to
	if to == operation.LineCompleted {
		item.Processed = qty
	}
	return e.record(ctx, op, "line_item", item.ID, from, to, qty, changes)
}

func (e *Engine) record(ctx context.Context, op *operation.StockOperation, entityType string, entityID id.ID, from, to operation.LineStatus, qty types.Quantity, changes []ledger.Change) error {
	return e.audit.Record(ctx, Event{
		OperationID: op.ID,
		Reference:   op.Reference,
		EntityType:  entityType,
		EntityID:    entityID,
		Kind:        op.Type,
		From:        from,
		To:          to,
		Quantity:    qty,
		Changes:     changes,
		Actor:       appctx.GetActorID(ctx),
		At:          time.Now().UTC(),
	})
}

// deriveLine recomputes a line's status and processed quantity from its
// items. A line with every item final becomes completed when anything
// completed, cancelled when everything was cancelled.
func deriveLine(line *operation.Line) {
	line.Processed = completedQuantity(line)

	var anyCompleted, anyActive, anyPending bool
	for i := range line.Items {
		switch line.Items[i].Status {
		case operation.LineCompleted:
			anyCompleted = true
		case operation.LineReserved:
			anyActive = true
		case operation.LinePending:
			anyPending = true
		}
	}

	switch {
	case !anyActive && !anyPending && anyCompleted:
		line.Status = operation.LineCompleted
	case !anyActive && !anyPending && !anyCompleted:
		line.Status = operation.LineCancelled
	case anyActive || anyCompleted:
		line.Status = operation.LineReserved
	default:
		line.Status = operation.LinePending
	}
}

func completedQuantity(line *operation.Line) types.Quantity {
	var total types.Quantity
	for i := range line.Items {
		if line.Items[i].Status == operation.LineCompleted {
			total += line.Items[i].EffectiveQuantity()
		}
	}
	return total
}

// computeChanges maps one recognized transition to its ledger change set
// using the operation type's directional policy.
func computeChanges(op *operation.StockOperation, productID, stockUnitID id.ID, qty types.Quantity, from, to operation.LineStatus) ([]ledger.Change, error) {
	pol := optype.MustPolicy(op.Type)

	var effects []optype.Effect
	switch {
	case from == operation.LinePending && to == operation.LineReserved:
		effects = pol.Reserve
	case from == operation.LineReserved && to == operation.LineCompleted:
		effects = pol.Complete
	case from == operation.LinePending && to == operation.LineCompleted:
		// Combined so the net effect matches the two-step path.
		effects = append(append([]optype.Effect{}, pol.Reserve...), pol.Complete...)
	case from == operation.LinePending && to == operation.LineCancelled:
		return nil, nil
	case from == operation.LineReserved && to == operation.LineCancelled:
		effects = inverted(pol.Reserve)
	default:
		return nil, apperror.NewTransitionNotAllowed("line", string(from), string(to))
	}

	changes := make([]ledger.Change, 0, len(effects))
	for _, eff := range effects {
		endpoint := op.Destination()
		if eff.Endpoint == optype.EndpointSource {
			endpoint = op.Source()
		}
		if !endpoint.IsSet() {
			if eff.Optional {
				continue
			}
			return nil, apperror.NewEndpointRequired(string(op.Type), string(eff.Endpoint))
		}

		changes = append(changes, ledger.Change{
			Key: ledger.Key{
				ProductID:   productID,
				StockUnitID: stockUnitID,
				WarehouseID: endpoint.WarehouseID,
				LocationID:  endpoint.LocationID,
			},
			Delta: ledger.Delta{
				OnHand:   qty * types.Quantity(eff.OnHand),
				Reserved: qty * types.Quantity(eff.Reserved),
				Incoming: qty * types.Quantity(eff.Incoming),
			},
		})
	}
	return changes, nil
}

func inverted(effects []optype.Effect) []optype.Effect {
	out := make([]optype.Effect, len(effects))
	for i, e := range effects {
		out[i] = e.Inverse()
	}
	return out
}
