// Package sequence provides operation reference numbering.
// Counters are scoped per (warehouse, operation type) and stored in
// the stock_sequences table.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"stockops/internal/core/id"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number.
	// Guarantees sequential numbers without gaps. With a transactional
	// source (NewWithSource) the increment joins the caller's
	// transaction, so a rolled back operation rolls back its number too.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Faster, but may produce gaps after restarts. Suitable for
	// high-volume internal movements. Range refills must run outside
	// caller transactions (fixed pool querier): a refill reserved in a
	// rolled back transaction would leave the in-memory range unbacked.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values to allocate at once in
	// Cached strategy. Default is 50.
	RangeSize int64
}

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service issues reference numbers of the form WH01/IMP/00042.
type Service struct {
	source func(ctx context.Context) Querier

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// New creates a sequence service over a fixed querier (a pool or an
// open transaction). Strict allocations run on that querier directly.
func New(querier Querier) *Service {
	return NewWithSource(func(context.Context) Querier { return querier })
}

// NewWithSource creates a sequence service that resolves its querier per
// call. Wire it to a transaction manager's querier lookup so strict
// allocations join the transaction active in ctx: a rolled back
// operation then releases its number instead of burning it.
func NewWithSource(source func(ctx context.Context) Querier) *Service {
	return &Service{
		source: source,
		ranges: make(map[string]*cachedRange),
	}
}

const padWidth = 5

// NextReference returns the next reference for a warehouse and type code.
// Uses the strict strategy; see NextReferenceWith for cached allocation.
func (s *Service) NextReference(ctx context.Context, warehouseID id.ID, warehouseCode, typeCode string) (string, error) {
	return s.NextReferenceWith(ctx, warehouseID, warehouseCode, typeCode, nil)
}

// NextReferenceWith returns the next reference using explicit options.
func (s *Service) NextReferenceWith(ctx context.Context, warehouseID id.ID, warehouseCode, typeCode string, opts *Options) (string, error) {
	if s == nil {
		return "", fmt.Errorf("sequence service is not initialized")
	}
	if warehouseCode == "" || typeCode == "" {
		return "", fmt.Errorf("warehouse code and type code are required")
	}
	if opts == nil {
		opts = &Options{Strategy: StrategyStrict}
	}

	var num int64
	var err error
	switch opts.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, warehouseID, typeCode, opts)
	default:
		num, err = s.nextStrict(ctx, warehouseID, typeCode)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%0*d", warehouseCode, typeCode, padWidth, num), nil
}

// nextStrict fetches the next number from the DB using UPSERT + RETURNING.
// The ON CONFLICT update takes a row lock, serializing concurrent callers
// on the same counter.
func (s *Service) nextStrict(ctx context.Context, warehouseID id.ID, typeCode string) (int64, error) {
	var num int64
	err := s.source(ctx).QueryRow(ctx, `
        INSERT INTO stock_sequences (warehouse_id, op_type, current_val)
        VALUES ($1, $2, 1)
        ON CONFLICT (warehouse_id, op_type)
        DO UPDATE SET current_val = stock_sequences.current_val + 1
        RETURNING current_val
	`, warehouseID, typeCode).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached fetches the next number from memory, refilling from DB
// in blocks. current_val tracks the last value handed out, so a refill
// of size N claims the half-open range (old, old+N].
func (s *Service) nextCached(ctx context.Context, warehouseID id.ID, typeCode string, opts *Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	key := warehouseID.String() + ":" + typeCode
	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		var newMax int64
		err := s.source(ctx).QueryRow(ctx, `
            INSERT INTO stock_sequences (warehouse_id, op_type, current_val)
            VALUES ($1, $2, $3)
            ON CONFLICT (warehouse_id, op_type)
            DO UPDATE SET current_val = stock_sequences.current_val + $3
            RETURNING current_val
		`, warehouseID, typeCode, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNext sets the counter value directly (for migrations) and drops
// any cached range for the key.
func (s *Service) SetNext(ctx context.Context, warehouseID id.ID, typeCode string, value int64) error {
	var result int64
	err := s.source(ctx).QueryRow(ctx, `
        INSERT INTO stock_sequences (warehouse_id, op_type, current_val)
        VALUES ($1, $2, $3)
        ON CONFLICT (warehouse_id, op_type)
        DO UPDATE SET current_val = $3
        RETURNING current_val
	`, warehouseID, typeCode, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, warehouseID.String()+":"+typeCode)
	s.cacheMu.Unlock()

	return err
}

// ParseNumber extracts the numeric part from a formatted reference.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	parts := strings.Split(formatted, "/")
	if len(parts) != 3 {
		return -1
	}
	num, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
