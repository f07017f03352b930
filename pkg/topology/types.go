package topology

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Tier is the voltage tier tag of a node. Nodes only merge, contract, and
// attach within the same tier.
type Tier string

const (
	// TierEHT is the sending side of the substation (power) transformer.
	TierEHT Tier = "EHT"
	// TierHT is the medium-voltage primary network.
	TierHT Tier = "HT"
	// TierLT is the low-voltage secondary network.
	TierLT Tier = "LT"
	// TierService is a customer service point created for an LT load.
	TierService Tier = "ST"
)

// NodeID is an opaque integer handle for a node. Handles are assigned in
// creation order and never reused, so identical input yields identical
// handles.
type NodeID int

// NoNode is the zero handle returned when a lookup fails.
const NoNode NodeID = -1

// Node is an electrical bus point.
type Node struct {
	ID    NodeID
	X, Y  float64
	Tier  Tier
	Loads []CustomerLoad
}

// Point returns the node location. It makes *Node an orb.Pointer so nodes can
// live directly in the spatial index.
func (n *Node) Point() orb.Point { return orb.Point{n.X, n.Y} }

// Name returns the bus name used by solver snapshots and the impact index,
// e.g. "ht_12".
func (n *Node) Name() string {
	return fmt.Sprintf("%s_%d", strings.ToLower(string(n.Tier)), n.ID)
}

// EdgeKind distinguishes the physical type of a branch.
type EdgeKind string

const (
	KindLine             EdgeKind = "line"
	KindCable            EdgeKind = "cable"
	KindService          EdgeKind = "service"
	KindTransformer      EdgeKind = "transformer"
	KindPowerTransformer EdgeKind = "power_transformer"
)

// IsTransformer reports whether the kind is a distribution or power transformer.
func (k EdgeKind) IsTransformer() bool {
	return k == KindTransformer || k == KindPowerTransformer
}

// Edge is a branch between two nodes. Edges are immutable after creation
// except for endpoint rewrites during island contraction.
type Edge struct {
	Name  string
	Kind  EdgeKind
	Class AssetClass
	From  NodeID
	To    NodeID

	Phase            string
	Conductor        string
	ConductorSize    string
	NeutralConductor string
	NeutralSize      string
	Length           float64
	Spacing          string
	NumConductors    int
	Units            string
	RatedAmps        float64
	RatedKVA         float64
}

// Other returns the endpoint opposite to id.
func (e *Edge) Other(id NodeID) NodeID {
	if e.From == id {
		return e.To
	}
	return e.From
}

// CustomerLoad is a metered customer attached to exactly one node.
type CustomerLoad struct {
	ID            string  `json:"id"`
	KW            float64 `json:"kw"`
	KVAR          float64 `json:"kvar"`
	Phase         string  `json:"phase"`
	VoltageClass  string  `json:"voltage_class,omitempty"`
	CustomerClass string  `json:"customer_class,omitempty"`
	AnnualKWh     float64 `json:"annual_kwh,omitempty"`
}

// LoadRef pairs a customer with the node it is attached to.
type LoadRef struct {
	Load CustomerLoad
	Node NodeID
}

// Cycle is one independent cycle of the cycle basis. Closing is the edge
// that is not part of the spanning forest; Nodes walks the cycle.
type Cycle struct {
	Closing string
	Nodes   []NodeID
}
