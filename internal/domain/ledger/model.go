// Package ledger provides the inventory quantity ledger.
//
// One row per (product, stock unit, warehouse, location) key holds
// on-hand, reserved and incoming quantities. Rows are created lazily on
// first delta, never deleted, and mutated only through signed deltas.
package ledger

import (
	"time"

	"stockops/internal/core/id"
	"stockops/internal/core/types"
)

// Key uniquely identifies a ledger row.
// StockUnitID and LocationID are id.Nil() when the dimension is absent;
// Nil is a real matching value, not a wildcard.
type Key struct {
	ProductID   id.ID `db:"product_id" json:"productId"`
	StockUnitID id.ID `db:"stock_unit_id" json:"stockUnitId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	LocationID  id.ID `db:"location_id" json:"locationId"`
}

// Row is the quantity record for one key.
type Row struct {
	Key

	OnHand   types.Quantity `db:"on_hand" json:"onHand"`
	Reserved types.Quantity `db:"reserved" json:"reserved"`
	Incoming types.Quantity `db:"incoming" json:"incoming"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Total is the derived sum of all three fields.
func (r Row) Total() types.Quantity {
	return r.OnHand + r.Reserved + r.Incoming
}

// Available is the quantity free for new commitments.
func (r Row) Available() types.Quantity {
	return r.OnHand
}

// Delta is a signed change to one ledger row.
type Delta struct {
	OnHand   types.Quantity `json:"onHand"`
	Reserved types.Quantity `json:"reserved"`
	Incoming types.Quantity `json:"incoming"`
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.OnHand.IsZero() && d.Reserved.IsZero() && d.Incoming.IsZero()
}

// Add returns the field-wise sum of two deltas.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		OnHand:   d.OnHand + o.OnHand,
		Reserved: d.Reserved + o.Reserved,
		Incoming: d.Incoming + o.Incoming,
	}
}

// Neg returns the field-wise negation.
func (d Delta) Neg() Delta {
	return Delta{
		OnHand:   d.OnHand.Neg(),
		Reserved: d.Reserved.Neg(),
		Incoming: d.Incoming.Neg(),
	}
}

// Change pairs a key with the delta to apply to it.
// The transition engine emits a slice of these per status change.
type Change struct {
	Key   Key
	Delta Delta
}

// Clamp reports how much of a delta was lost to the zero floor,
// per field. A non-zero clamp usually indicates an upstream
// double-reversal bug and is logged by the service.
type Clamp struct {
	OnHand   types.Quantity
	Reserved types.Quantity
	Incoming types.Quantity
}

// Occurred reports whether any field was clamped.
func (c Clamp) Occurred() bool {
	return !c.OnHand.IsZero() || !c.Reserved.IsZero() || !c.Incoming.IsZero()
}
