package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"stockops/internal/core/id"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the counter table: every call bumps the stored
// value by the increment argument (1 for strict calls).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 3 {
		if val, ok := args[2].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	m.calls++
	return &mockRow{val: m.currentValue}
}

func TestNextReference_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	whID := id.New()

	num, err := svc.NextReference(ctx, whID, "WH01", "IMP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "WH01/IMP/00001" {
		t.Errorf("expected WH01/IMP/00001, got %s", num)
	}

	num, err = svc.NextReference(ctx, whID, "WH01", "IMP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "WH01/IMP/00002" {
		t.Errorf("expected WH01/IMP/00002, got %s", num)
	}
}

func TestNextReference_RequiresCodes(t *testing.T) {
	svc := New(&mockQuerier{})

	if _, err := svc.NextReference(context.Background(), id.New(), "", "IMP"); err == nil {
		t.Error("expected error for empty warehouse code")
	}
	if _, err := svc.NextReference(context.Background(), id.New(), "WH01", ""); err == nil {
		t.Error("expected error for empty type code")
	}
}

func TestNextReference_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	whID := id.New()
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	// First call allocates 1..10 from the DB.
	num, err := svc.NextReferenceWith(ctx, whID, "WH01", "TRF", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "WH01/TRF/00001" {
		t.Errorf("expected WH01/TRF/00001, got %s", num)
	}
	if q.calls != 1 {
		t.Errorf("expected 1 DB call, got %d", q.calls)
	}

	// Next nine come from memory.
	for i := 2; i <= 10; i++ {
		num, err = svc.NextReferenceWith(ctx, whID, "WH01", "TRF", opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if num != "WH01/TRF/00010" {
		t.Errorf("expected WH01/TRF/00010, got %s", num)
	}
	if q.calls != 1 {
		t.Errorf("expected still 1 DB call, got %d", q.calls)
	}

	// Range exhausted: next call refills.
	num, err = svc.NextReferenceWith(ctx, whID, "WH01", "TRF", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "WH01/TRF/00011" {
		t.Errorf("expected WH01/TRF/00011, got %s", num)
	}
	if q.calls != 2 {
		t.Errorf("expected 2 DB calls, got %d", q.calls)
	}
}

func TestNextReference_CachedSeparateCounters(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	// Different warehouses get independent cached ranges even though the
	// mock shares one backing counter.
	a, _ := svc.NextReferenceWith(ctx, id.New(), "WH01", "SAL", opts)
	b, _ := svc.NextReferenceWith(ctx, id.New(), "WH02", "SAL", opts)

	if a != "WH01/SAL/00001" {
		t.Errorf("expected WH01/SAL/00001, got %s", a)
	}
	if b != "WH02/SAL/00011" {
		t.Errorf("expected WH02/SAL/00011, got %s", b)
	}
	if q.calls != 2 {
		t.Errorf("expected 2 DB calls, got %d", q.calls)
	}
}

func TestNextReference_SourceResolvedPerCall(t *testing.T) {
	q := &mockQuerier{}
	resolved := 0
	svc := NewWithSource(func(ctx context.Context) Querier {
		resolved++
		return q
	})
	ctx := context.Background()
	whID := id.New()

	// Each allocation asks the source for the querier active in ctx, so
	// strict numbering follows the caller's transaction.
	num, err := svc.NextReference(ctx, whID, "WH01", "IMP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "WH01/IMP/00001" {
		t.Errorf("expected WH01/IMP/00001, got %s", num)
	}

	if _, err := svc.NextReference(ctx, whID, "WH01", "IMP"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != 2 {
		t.Errorf("expected source resolved per call (2), got %d", resolved)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"WH01/IMP/00042", 42},
		{"WH01/TRF/00001", 1},
		{"garbage", -1},
		{"WH01/00042", -1},
		{"WH01/IMP/abc", -1},
		{"WH01/IMP/00042/extra", -1},
		{"", -1},
	}
	for _, tc := range cases {
		if got := ParseNumber(tc.in); got != tc.want {
			t.Errorf("ParseNumber(%q): expected %d, got %d", tc.in, tc.want, got)
		}
	}
}
