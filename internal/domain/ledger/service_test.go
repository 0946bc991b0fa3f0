package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockops/internal/core/apperror"
	"stockops/internal/core/id"
	"stockops/internal/core/types"
)

// memRepo is an in-memory Repository with the same clamping semantics
// as the Postgres implementation.
type memRepo struct {
	rows       map[Key]Row
	applyCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[Key]Row)}
}

func (m *memRepo) ApplyDelta(_ context.Context, key Key, delta Delta) (Clamp, error) {
	m.applyCalls++

	row, ok := m.rows[key]
	if !ok {
		row = Row{Key: key}
	}

	onHand := row.OnHand + delta.OnHand
	reserved := row.Reserved + delta.Reserved
	incoming := row.Incoming + delta.Incoming

	clamp := Clamp{
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

func (m *memRepo) Get(_ context.Context, key Key) (Row, error) {
	if row, ok := m.rows[key]; ok {
		return row, nil
	}
	return Row{Key: key}, nil
}

func (m *memRepo) GetByProduct(_ context.Context, productID id.ID) ([]Row, error) {
	var out []Row
	for _, row := range m.rows {
		if row.ProductID == productID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memRepo) GetByWarehouse(_ context.Context, warehouseID id.ID, filter RowFilter) ([]Row, error) {
	var out []Row
	for _, row := range m.rows {
		if row.WarehouseID != warehouseID {
			continue
		}
		if filter.ExcludeZero && row.OnHand.IsZero() && row.Reserved.IsZero() && row.Incoming.IsZero() {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func testKey(productID, warehouseID id.ID) Key {
	return Key{
		ProductID:   productID,
		StockUnitID: id.Nil(),
		WarehouseID: warehouseID,
		LocationID:  id.Nil(),
	}
}

func TestApplyDeltaValidation(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)

	err := svc.ApplyDelta(ctx, testKey(id.Nil(), id.New()), Delta{OnHand: types.NewQuantityFromFloat64(1)})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	err = svc.ApplyDelta(ctx, testKey(id.New(), id.Nil()), Delta{OnHand: types.NewQuantityFromFloat64(1)})
	require.Error(t, err)

	assert.Equal(t, 0, repo.applyCalls)
}

func TestApplyDeltaZeroIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)

	err := svc.ApplyDelta(ctx, testKey(id.New(), id.New()), Delta{})
	require.NoError(t, err)

	// A zero delta never reaches storage and never creates a row.
	assert.Equal(t, 0, repo.applyCalls)
	assert.Empty(t, repo.rows)
}

func TestApplyDeltaAccumulates(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)
	key := testKey(id.New(), id.New())

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{OnHand: types.NewQuantityFromFloat64(10)}))
	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{OnHand: types.NewQuantityFromFloat64(-3), Reserved: types.NewQuantityFromFloat64(3)}))

	row, err := svc.GetRow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(7), row.OnHand)
	assert.Equal(t, types.NewQuantityFromFloat64(3), row.Reserved)
	assert.Equal(t, types.NewQuantityFromFloat64(10), row.Total())
}

func TestApplyDeltaClampDoesNotFail(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)
	key := testKey(id.New(), id.New())

	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{OnHand: types.NewQuantityFromFloat64(2)}))

	// Over-withdrawal clamps at zero and is reported as a warning, not an error.
	require.NoError(t, svc.ApplyDelta(ctx, key, Delta{OnHand: types.NewQuantityFromFloat64(-5)}))

	row, err := svc.GetRow(ctx, key)
	require.NoError(t, err)
	assert.True(t, row.OnHand.IsZero())
}

func TestApplyChangesOrdered(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)

	src := testKey(id.New(), id.New())
	dst := testKey(src.ProductID, id.New())

	err := svc.ApplyChanges(ctx, []Change{
		{Key: src, Delta: Delta{OnHand: types.NewQuantityFromFloat64(5)}},
		{Key: dst, Delta: Delta{Incoming: types.NewQuantityFromFloat64(5)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.applyCalls)

	err = svc.ApplyChanges(ctx, []Change{
		{Key: Key{}, Delta: Delta{OnHand: types.NewQuantityFromFloat64(1)}},
	})
	require.Error(t, err)
}

func TestProductAvailability(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)

	productID := id.New()
	whA := testKey(productID, id.New())
	whB := testKey(productID, id.New())

	require.NoError(t, svc.ApplyDelta(ctx, whA, Delta{OnHand: types.NewQuantityFromFloat64(4)}))
	require.NoError(t, svc.ApplyDelta(ctx, whB, Delta{OnHand: types.NewQuantityFromFloat64(6), Reserved: types.NewQuantityFromFloat64(2)}))

	// Only on-hand counts as available; reserved and incoming do not.
	total, err := svc.ProductAvailability(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), total)

	_, err = svc.ProductAvailability(ctx, id.Nil())
	require.Error(t, err)
}

func TestWarehouseRowsExcludeZero(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo)

	warehouseID := id.New()
	active := testKey(id.New(), warehouseID)
	drained := testKey(id.New(), warehouseID)

	require.NoError(t, svc.ApplyDelta(ctx, active, Delta{OnHand: types.NewQuantityFromFloat64(1)}))
	require.NoError(t, svc.ApplyDelta(ctx, drained, Delta{OnHand: types.NewQuantityFromFloat64(1)}))
	require.NoError(t, svc.ApplyDelta(ctx, drained, Delta{OnHand: types.NewQuantityFromFloat64(-1)}))

	rows, err := svc.WarehouseRows(ctx, warehouseID, RowFilter{ExcludeZero: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, active.ProductID, rows[0].ProductID)

	rows, err = svc.WarehouseRows(ctx, warehouseID, RowFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
