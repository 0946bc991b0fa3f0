package optype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, k := range All() {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("teleport").Valid())
	assert.False(t, Kind("").Valid())
}

func TestKindCode(t *testing.T) {
	codes := map[Kind]string{
		Import:      "IMP",
		Manufacture: "MFG",
		Repair:      "RPR",
		Return:      "RET",
		Transfer:    "TRF",
		Export:      "EXP",
		Sale:        "SAL",
	}
	for k, want := range codes {
		assert.Equal(t, want, k.Code())
	}
	assert.Equal(t, "UNK", Kind("teleport").Code())
}

func TestPolicyDirections(t *testing.T) {
	// Inbound kinds only touch the destination.
	for _, k := range []Kind{Import, Manufacture, Return} {
		pol := MustPolicy(k)
		require.True(t, pol.RequiresDestination, string(k))
		require.False(t, pol.RequiresSource, string(k))
		for _, eff := range append(pol.Reserve, pol.Complete...) {
			assert.Equal(t, EndpointDestination, eff.Endpoint, string(k))
		}
	}

	// Outbound kinds only touch the source.
	for _, k := range []Kind{Export, Sale} {
		pol := MustPolicy(k)
		require.True(t, pol.RequiresSource, string(k))
		require.False(t, pol.RequiresDestination, string(k))
		for _, eff := range append(pol.Reserve, pol.Complete...) {
			assert.Equal(t, EndpointSource, eff.Endpoint, string(k))
		}
	}

	// Transfer requires both endpoints, repair requires neither.
	transfer := MustPolicy(Transfer)
	assert.True(t, transfer.RequiresSource)
	assert.True(t, transfer.RequiresDestination)

	repair := MustPolicy(Repair)
	assert.False(t, repair.RequiresSource)
	assert.False(t, repair.RequiresDestination)
	for _, eff := range append(repair.Reserve, repair.Complete...) {
		assert.True(t, eff.Optional)
	}
}

// The full reserve+complete cycle must leave reserved and incoming at zero
// and move only on-hand. Cancellation reverses the reserve effects exactly,
// so a reserve followed by its inverse must net to zero everywhere.
func TestPolicyNetEffects(t *testing.T) {
	type net struct{ onHand, reserved, incoming int8 }

	for _, k := range All() {
		pol := MustPolicy(k)

		totals := map[Endpoint]*net{}
		add := func(eff Effect) {
			n, ok := totals[eff.Endpoint]
			if !ok {
				n = &net{}
				totals[eff.Endpoint] = n
			}
			n.onHand += eff.OnHand
			n.reserved += eff.Reserved
			n.incoming += eff.Incoming
		}
		for _, eff := range pol.Reserve {
			add(eff)
		}
		for _, eff := range pol.Complete {
			add(eff)
		}

		for ep, n := range totals {
			assert.Zerof(t, n.reserved, "%s/%s reserved must net to zero", k, ep)
			assert.Zerof(t, n.incoming, "%s/%s incoming must net to zero", k, ep)
			switch ep {
			case EndpointSource:
				assert.Equalf(t, int8(-1), n.onHand, "%s source on-hand", k)
			case EndpointDestination:
				assert.Equalf(t, int8(+1), n.onHand, "%s destination on-hand", k)
			}
		}
	}
}

func TestEffectInverse(t *testing.T) {
	eff := Effect{Endpoint: EndpointSource, OnHand: -1, Reserved: +1, Optional: true}
	inv := eff.Inverse()

	assert.Equal(t, EndpointSource, inv.Endpoint)
	assert.Equal(t, int8(+1), inv.OnHand)
	assert.Equal(t, int8(-1), inv.Reserved)
	assert.Equal(t, int8(0), inv.Incoming)
	assert.True(t, inv.Optional)
	assert.Equal(t, eff, inv.Inverse())
}

func TestPolicyFor(t *testing.T) {
	pol, ok := PolicyFor(Sale)
	require.True(t, ok)
	assert.Equal(t, Sale, pol.Kind)

	_, ok = PolicyFor(Kind("teleport"))
	assert.False(t, ok)

	assert.Panics(t, func() { MustPolicy(Kind("teleport")) })
}
