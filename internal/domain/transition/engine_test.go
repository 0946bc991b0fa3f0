package transition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
	"stockops/internal/domain/ledger"
	"stockops/internal/domain/operation"
	"stockops/internal/domain/optype"
)

// memLedger is an in-memory ledger.Repository with the same zero-floor
// semantics as the Postgres implementation.
type memLedger struct {
	rows       map[ledger.Key]ledger.Row
	applyCalls int
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[ledger.Key]ledger.Row)}
}

func (m *memLedger) ApplyDelta(_ context.Context, key ledger.Key, delta ledger.Delta) (ledger.Clamp, error) {
	m.applyCalls++

	row, ok := m.rows[key]
	if !ok {
		row = ledger.Row{Key: key}
	}

	onHand := row.OnHand + delta.OnHand
	reserved := row.Reserved + delta.Reserved
	incoming := row.Incoming + delta.Incoming

	clamp := ledger.Clamp{
		OnHand:   onHand.ClampZero() - onHand,
		Reserved: reserved.ClampZero() - reserved,
		Incoming: incoming.ClampZero() - incoming,
	}

	row.OnHand = onHand.ClampZero()
	row.Reserved = reserved.ClampZero()
	row.Incoming = incoming.ClampZero()
	row.UpdatedAt = time.Now()
	m.rows[key] = row

	return clamp, nil
}

func (m *memLedger) Get(_ context.Context, key ledger.Key) (ledger.Row, error) {
	if row, ok := m.rows[key]; ok {
		return row, nil
	}
	return ledger.Row{Key: key}, nil
}

func (m *memLedger) GetByProduct(_ context.Context, productID id.ID) ([]ledger.Row, error) {
	var out []ledger.Row
	for _, row := range m.rows {
		if row.ProductID == productID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memLedger) GetByWarehouse(_ context.Context, warehouseID id.ID, filter ledger.RowFilter) ([]ledger.Row, error) {
	var out []ledger.Row
	for _, row := range m.rows {
		if row.WarehouseID == warehouseID {
			out = append(out, row)
		}
	}
	return out, nil
}

// seed puts quantities on a key directly, bypassing the engine.
func (m *memLedger) seed(key ledger.Key, onHand, reserved, incoming types.Quantity) {
	m.rows[key] = ledger.Row{Key: key, OnHand: onHand, Reserved: reserved, Incoming: incoming}
}

func (m *memLedger) row(key ledger.Key) ledger.Row {
	return m.rows[key]
}

// recordingAuditor collects events for assertions.
type recordingAuditor struct {
	events []Event
}

func (a *recordingAuditor) Record(_ context.Context, event Event) error {
	a.events = append(a.events, event)
	return nil
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func productKey(productID, warehouseID id.ID) ledger.Key {
	return ledger.Key{
		ProductID:   productID,
		StockUnitID: id.Nil(),
		WarehouseID: warehouseID,
		LocationID:  id.Nil(),
	}
}

func newTestEngine(t *testing.T) (*Engine, *memLedger, *recordingAuditor) {
	t.Helper()
	repo := newMemLedger()
	audit := &recordingAuditor{}
	return NewEngine(ledger.NewService(repo), audit), repo, audit
}

func TestImportReserveThenComplete(t *testing.T) {
	ctx := context.Background()
	engine, repo, audit := newTestEngine(t)

	warehouseID := id.New()
	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: warehouseID})
	line, err := op.AddLine(id.New(), qty(5))
	require.NoError(t, err)

	key := productKey(line.ProductID, warehouseID)

	// Reservation announces the arrival as incoming.
	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
	assert.Equal(t, qty(5), repo.row(key).Incoming)
	assert.True(t, repo.row(key).OnHand.IsZero())

	// Completion converts incoming into on-hand.
	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
	row := repo.row(key)
	assert.Equal(t, qty(5), row.OnHand)
	assert.True(t, row.Incoming.IsZero())
	assert.True(t, row.Reserved.IsZero())

	assert.Equal(t, operation.LineCompleted, line.Status)
	assert.Equal(t, qty(5), line.Processed)

	require.Len(t, audit.events, 2)
	assert.Equal(t, operation.LinePending, audit.events[0].From)
	assert.Equal(t, operation.LineReserved, audit.events[0].To)
	assert.Equal(t, operation.LineReserved, audit.events[1].From)
	assert.Equal(t, operation.LineCompleted, audit.events[1].To)
	assert.Equal(t, op.Reference, audit.events[0].Reference)
}

func TestSaleReserveThenCancelNetsToZero(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	warehouseID := id.New()
	op := operation.New(optype.Sale, operation.Endpoint{WarehouseID: warehouseID}, operation.Endpoint{})
	line, err := op.AddLine(id.New(), qty(3))
	require.NoError(t, err)

	key := productKey(line.ProductID, warehouseID)
	repo.seed(key, qty(10), 0, 0)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
	assert.Equal(t, qty(7), repo.row(key).OnHand)
	assert.Equal(t, qty(3), repo.row(key).Reserved)

	// Cancellation reverses the reservation exactly.
	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCancelled))
	row := repo.row(key)
	assert.Equal(t, qty(10), row.OnHand)
	assert.True(t, row.Reserved.IsZero())
	assert.Equal(t, operation.LineCancelled, line.Status)
}

func TestSaleDirectCompletionMatchesTwoStep(t *testing.T) {
	ctx := context.Background()
	productID := id.New()
	warehouseID := id.New()

	run := func(viaReserved bool) ledger.Row {
		engine, repo, _ := newTestEngine(t)
		op := operation.New(optype.Sale, operation.Endpoint{WarehouseID: warehouseID}, operation.Endpoint{})
		line, err := op.AddLine(productID, qty(4))
		require.NoError(t, err)

		key := productKey(productID, warehouseID)
		repo.seed(key, qty(10), 0, 0)

		if viaReserved {
			require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
		}
		require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
		return repo.row(key)
	}

	twoStep := run(true)
	direct := run(false)

	assert.Equal(t, twoStep.OnHand, direct.OnHand)
	assert.Equal(t, twoStep.Reserved, direct.Reserved)
	assert.Equal(t, twoStep.Incoming, direct.Incoming)
	assert.Equal(t, qty(6), direct.OnHand)
	assert.True(t, direct.Reserved.IsZero())
}

func TestPendingCancellationLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	op := operation.New(optype.Export, operation.Endpoint{WarehouseID: id.New()}, operation.Endpoint{})
	line, err := op.AddLine(id.New(), qty(2))
	require.NoError(t, err)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCancelled))
	assert.Equal(t, operation.LineCancelled, line.Status)
	assert.Equal(t, 0, repo.applyCalls)
}

func TestUnrecognizedTransitionRejected(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
	callsAfterCompletion := repo.applyCalls

	// A final line admits nothing further, not even back to reserved.
	err = engine.TransitionLine(ctx, op, line, operation.LineReserved)
	require.Error(t, err)
	assert.True(t, apperror.IsTransitionNotAllowed(err))
	assert.Equal(t, callsAfterCompletion, repo.applyCalls)

	err = engine.TransitionLine(ctx, op, line, operation.LineCancelled)
	require.Error(t, err)
	assert.True(t, apperror.IsTransitionNotAllowed(err))
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	ctx := context.Background()
	engine, repo, audit := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LinePending))
	assert.Equal(t, 0, repo.applyCalls)
	assert.Empty(t, audit.events)
}

func TestMissingEndpointRejectedBeforeLedger(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	// Import with no destination set.
	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)

	err = engine.TransitionLine(ctx, op, line, operation.LineReserved)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeEndpointRequired, appErr.Code)
	assert.Equal(t, 0, repo.applyCalls)
	assert.Equal(t, operation.LinePending, line.Status)
}

func TestTransferMovesBothEndpoints(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	srcWh, dstWh := id.New(), id.New()
	op := operation.New(optype.Transfer,
		operation.Endpoint{WarehouseID: srcWh},
		operation.Endpoint{WarehouseID: dstWh})
	line, err := op.AddLine(id.New(), qty(6))
	require.NoError(t, err)

	srcKey := productKey(line.ProductID, srcWh)
	dstKey := productKey(line.ProductID, dstWh)
	repo.seed(srcKey, qty(20), 0, 0)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
	assert.Equal(t, qty(14), repo.row(srcKey).OnHand)
	assert.Equal(t, qty(6), repo.row(srcKey).Reserved)
	assert.Equal(t, qty(6), repo.row(dstKey).Incoming)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
	src, dst := repo.row(srcKey), repo.row(dstKey)
	assert.Equal(t, qty(14), src.OnHand)
	assert.True(t, src.Reserved.IsZero())
	assert.Equal(t, qty(6), dst.OnHand)
	assert.True(t, dst.Incoming.IsZero())
}

func TestRepairSkipsAbsentOptionalEndpoint(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	// Repair intake: destination only, the source effect is skipped.
	workshopWh := id.New()
	op := operation.New(optype.Repair, operation.Endpoint{}, operation.Endpoint{WarehouseID: workshopWh})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)

	key := productKey(line.ProductID, workshopWh)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
	assert.Equal(t, qty(1), repo.row(key).Incoming)
	assert.Equal(t, 1, repo.applyCalls)

	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
	assert.Equal(t, qty(1), repo.row(key).OnHand)
	assert.Equal(t, 2, repo.applyCalls)
}

func TestItemTrackedLineFansOut(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	srcWh, dstWh := id.New(), id.New()
	op := operation.New(optype.Transfer,
		operation.Endpoint{WarehouseID: srcWh},
		operation.Endpoint{WarehouseID: dstWh})
	line, err := op.AddLine(id.New(), qty(2))
	require.NoError(t, err)

	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	itemA, itemB := &line.Items[0], &line.Items[1]

	keyA := ledger.Key{ProductID: line.ProductID, StockUnitID: itemA.StockUnitID, WarehouseID: srcWh, LocationID: id.Nil()}
	keyB := ledger.Key{ProductID: line.ProductID, StockUnitID: itemB.StockUnitID, WarehouseID: srcWh, LocationID: id.Nil()}
	repo.seed(keyA, qty(1), 0, 0)
	repo.seed(keyB, qty(1), 0, 0)

	// Reserving the line reserves every item, each scoped to its stock unit.
	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineReserved))
	assert.Equal(t, operation.LineReserved, itemA.Status)
	assert.Equal(t, operation.LineReserved, itemB.Status)
	assert.Equal(t, qty(1), repo.row(keyA).Reserved)
	assert.Equal(t, qty(1), repo.row(keyB).Reserved)

	// Completing the line completes the remaining items and sums processed.
	require.NoError(t, engine.TransitionLine(ctx, op, line, operation.LineCompleted))
	assert.Equal(t, operation.LineCompleted, line.Status)
	assert.Equal(t, qty(2), line.Processed)

	dstKeyA := ledger.Key{ProductID: line.ProductID, StockUnitID: itemA.StockUnitID, WarehouseID: dstWh, LocationID: id.Nil()}
	assert.Equal(t, qty(1), repo.row(dstKeyA).OnHand)
}

func TestItemCompletionDerivesLineStatus(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	warehouseID := id.New()
	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: warehouseID})
	line, err := op.AddLine(id.New(), qty(2))
	require.NoError(t, err)

	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	itemA, itemB := &line.Items[0], &line.Items[1]

	// Completing one of two items leaves the line partially done.
	require.NoError(t, engine.TransitionItem(ctx, op, line, itemA, operation.LineCompleted))
	assert.Equal(t, operation.LineCompleted, itemA.Status)
	assert.Equal(t, operation.LineReserved, line.Status)
	assert.Equal(t, qty(1), line.Processed)

	require.NoError(t, engine.TransitionItem(ctx, op, line, itemB, operation.LineCompleted))
	assert.Equal(t, operation.LineCompleted, line.Status)
	assert.Equal(t, qty(2), line.Processed)

	keyA := ledger.Key{ProductID: line.ProductID, StockUnitID: itemA.StockUnitID, WarehouseID: warehouseID, LocationID: id.Nil()}
	assert.Equal(t, qty(1), repo.row(keyA).OnHand)
}

func TestItemCancellationDerivesLine(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(2))
	require.NoError(t, err)

	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	itemA, itemB := &line.Items[0], &line.Items[1]

	// All items cancelled: the line is cancelled.
	require.NoError(t, engine.TransitionItem(ctx, op, line, itemA, operation.LineCancelled))
	assert.Equal(t, operation.LinePending, line.Status)
	require.NoError(t, engine.TransitionItem(ctx, op, line, itemB, operation.LineCancelled))
	assert.Equal(t, operation.LineCancelled, line.Status)
	assert.True(t, line.Processed.IsZero())
}

func TestItemOverCompletionRejected(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)

	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	_, err = line.AddItem(id.New(), qty(1))
	require.NoError(t, err)
	itemA, itemB := &line.Items[0], &line.Items[1]

	require.NoError(t, engine.TransitionItem(ctx, op, line, itemA, operation.LineCompleted))
	callsAfterFirst := repo.applyCalls

	// The second unit would push processed past planned.
	err = engine.TransitionItem(ctx, op, line, itemB, operation.LineCompleted)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeOverCompletion, appErr.Code)

	// Rejected before any ledger write.
	assert.Equal(t, callsAfterFirst, repo.applyCalls)
	assert.Equal(t, operation.LinePending, itemB.Status)
	assert.Equal(t, qty(1), line.Processed)
}

func TestLineFanOutOverCompletionRejected(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(10))
	require.NoError(t, err)

	_, err = line.AddItem(id.New(), qty(7))
	require.NoError(t, err)
	_, err = line.AddItem(id.New(), qty(7))
	require.NoError(t, err)

	// Items together exceed the line plan: completing the line must fail
	// before any ledger write, leaving every item untouched.
	err = engine.TransitionLine(ctx, op, line, operation.LineCompleted)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeOverCompletion, appErr.Code)

	assert.Equal(t, 0, repo.applyCalls)
	assert.Equal(t, operation.LinePending, line.Status)
	assert.True(t, line.Processed.IsZero())
	for i := range line.Items {
		assert.Equal(t, operation.LinePending, line.Items[i].Status)
	}

	// Partial completion within plan still goes through item by item.
	require.NoError(t, engine.TransitionItem(ctx, op, line, &line.Items[0], operation.LineCompleted))
	assert.Equal(t, qty(7), line.Processed)

	// The remaining item alone would overshoot, so the fan-out keeps
	// rejecting line-level completion.
	err = engine.TransitionLine(ctx, op, line, operation.LineCompleted)
	require.Error(t, err)
	assert.Equal(t, qty(7), line.Processed)
}

func TestItemTransitionOnFinalLineRejected(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	op := operation.New(optype.Import, operation.Endpoint{}, operation.Endpoint{WarehouseID: id.New()})
	line, err := op.AddLine(id.New(), qty(1))
	require.NoError(t, err)
	item, err := line.AddItem(id.New(), qty(1))
	require.NoError(t, err)

	require.NoError(t, engine.TransitionItem(ctx, op, line, item, operation.LineCancelled))
	require.Equal(t, operation.LineCancelled, line.Status)

	err = engine.TransitionItem(ctx, op, line, item, operation.LineCompleted)
	require.Error(t, err)
	assert.True(t, apperror.IsTransitionNotAllowed(err))
}
