// Package optype is the static catalog of stock movement kinds.
//
// Each kind carries a fixed directional policy: which endpoint is reserved
// during the Reserved phase, which endpoint accrues incoming quantity, and
// which endpoint's on-hand moves on completion. The transition engine
// consults this table instead of switching on the type name per call site.
package optype

// Kind identifies a stock operation type.
type Kind string

const (
	Import      Kind = "import"      // goods receiving from suppliers
	Manufacture Kind = "manufacture" // production output
	Repair      Kind = "repair"      // repair intake/release
	Return      Kind = "return"      // customer returns
	Transfer    Kind = "transfer"    // movement between warehouses
	Export      Kind = "export"      // shipments out
	Sale        Kind = "sale"        // point-of-sale issuance
)

// All returns every registered kind in a stable order.
func All() []Kind {
	return []Kind{Import, Manufacture, Repair, Return, Transfer, Export, Sale}
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	_, ok := policies[k]
	return ok
}

// Code returns the short code used in operation references.
func (k Kind) Code() string {
	switch k {
	case Import:
		return "IMP"
	case Manufacture:
		return "MFG"
	case Repair:
		return "RPR"
	case Return:
		return "RET"
	case Transfer:
		return "TRF"
	case Export:
		return "EXP"
	case Sale:
		return "SAL"
	default:
		return "UNK"
	}
}

// Endpoint names one side of an operation.
type Endpoint string

const (
	EndpointSource      Endpoint = "source"
	EndpointDestination Endpoint = "destination"
)

// Effect is a set of signed unit multipliers applied to one endpoint's
// ledger row, scaled by the line quantity at application time.
type Effect struct {
	Endpoint Endpoint

	OnHand   int8
	Reserved int8
	Incoming int8

	// Optional effects are skipped when the endpoint is not populated.
	// Only Repair uses this: it may run against either or both endpoints.
	Optional bool
}

// Inverse returns the effect with all multipliers negated.
// Used to reverse a reservation on cancellation.
func (e Effect) Inverse() Effect {
	return Effect{
		Endpoint: e.Endpoint,
		OnHand:   -e.OnHand,
		Reserved: -e.Reserved,
		Incoming: -e.Incoming,
		Optional: e.Optional,
	}
}

// Policy is the directional policy of one operation kind.
type Policy struct {
	Kind Kind

	// Reserve effects fire on Pending -> Reserved.
	Reserve []Effect

	// Complete effects fire on -> Completed.
	Complete []Effect

	// Endpoint requirements checked at operation validation.
	// Repair requires neither specifically, but an operation must
	// always have at least one endpoint (checked by the model).
	RequiresSource      bool
	RequiresDestination bool

	// ReferenceEndpoint is the warehouse that names the operation
	// reference code. For Repair the other endpoint is used as a
	// fallback when this one is absent.
	ReferenceEndpoint Endpoint
}

var inboundPolicy = Policy{
	Reserve:             []Effect{{Endpoint: EndpointDestination, Incoming: +1}},
	Complete:            []Effect{{Endpoint: EndpointDestination, Incoming: -1, OnHand: +1}},
	RequiresDestination: true,
	ReferenceEndpoint:   EndpointDestination,
}

var outboundPolicy = Policy{
	Reserve:           []Effect{{Endpoint: EndpointSource, OnHand: -1, Reserved: +1}},
	Complete:          []Effect{{Endpoint: EndpointSource, Reserved: -1}},
	RequiresSource:    true,
	ReferenceEndpoint: EndpointSource,
}

var transferPolicy = Policy{
	Reserve: []Effect{
		{Endpoint: EndpointSource, OnHand: -1, Reserved: +1},
		{Endpoint: EndpointDestination, Incoming: +1},
	},
	Complete: []Effect{
		{Endpoint: EndpointSource, Reserved: -1},
		{Endpoint: EndpointDestination, Incoming: -1, OnHand: +1},
	},
	RequiresSource:      true,
	RequiresDestination: true,
	ReferenceEndpoint:   EndpointSource,
}

// repairPolicy is transfer-shaped, but both sides are optional:
// intake uses only a destination, release only a source, and a
// workshop-to-workshop move uses both.
var repairPolicy = Policy{
	Reserve: []Effect{
		{Endpoint: EndpointSource, OnHand: -1, Reserved: +1, Optional: true},
		{Endpoint: EndpointDestination, Incoming: +1, Optional: true},
	},
	Complete: []Effect{
		{Endpoint: EndpointSource, Reserved: -1, Optional: true},
		{Endpoint: EndpointDestination, Incoming: -1, OnHand: +1, Optional: true},
	},
	ReferenceEndpoint: EndpointDestination,
}

var policies = map[Kind]Policy{
	Import:      withKind(Import, inboundPolicy),
	Manufacture: withKind(Manufacture, inboundPolicy),
	Return:      withKind(Return, inboundPolicy),
	Export:      withKind(Export, outboundPolicy),
	Sale:        withKind(Sale, outboundPolicy),
	Transfer:    withKind(Transfer, transferPolicy),
	Repair:      withKind(Repair, repairPolicy),
}

func withKind(k Kind, p Policy) Policy {
	p.Kind = k
	return p
}

// PolicyFor returns the directional policy for a kind.
func PolicyFor(k Kind) (Policy, bool) {
	p, ok := policies[k]
	return p, ok
}

// MustPolicy returns the policy for a kind, panicking on unknown kinds.
// Use only after the kind has been validated.
func MustPolicy(k Kind) Policy {
	p, ok := policies[k]
	if !ok {
		panic("optype: unknown kind " + string(k))
	}
	return p
}
