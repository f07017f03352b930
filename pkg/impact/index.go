// Package impact computes which customers lose supply when a network
// component fails.
//
// For a radial feeder every branch and bus roots a subtree when the graph is
// hung from its source; the customers in that subtree are exactly the ones
// whose only path to the source runs through the component. [Build] collects
// all of these sets in a single depth-first pass. The resulting [Index] is
// persisted per category so a metrics run can reuse it without the graph.
package impact

import (
	"slices"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// Category selects one of the three downstream maps.
type Category string

const (
	CategoryLine        Category = "line"
	CategoryTransformer Category = "transformer"
	CategoryNode        Category = "node"
)

// Categories lists every category in persistence order.
var Categories = []Category{CategoryLine, CategoryTransformer, CategoryNode}

// Index maps asset names to the sorted ids of their downstream customers.
// Lines covers lines, cables, and service drops; Transformers covers
// distribution and power transformers.
type Index struct {
	Source       string              `json:"source"`
	Customers    []string            `json:"customers"`
	Lines        map[string][]string `json:"lines"`
	Transformers map[string][]string `json:"transformers"`
	// Nodes is keyed by bus name. A bus's set includes the customers
	// connected at the bus itself.
	Nodes map[string][]string `json:"nodes"`
}

func newIndex() *Index {
	return &Index{
		Lines:        make(map[string][]string),
		Transformers: make(map[string][]string),
		Nodes:        make(map[string][]string),
	}
}

// Build walks g from its source once and records every subtree's customers.
// The graph must be radial and have a source.
func Build(g *topology.Graph) (*Index, error) {
	src, ok := g.Node(g.Source())
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidTopology, "graph has no source node")
	}
	if comps := g.Components(); len(comps) != 1 {
		return nil, errors.New(errors.ErrCodeInvalidTopology, "graph has %d components, want 1", len(comps))
	}
	if cycles := g.CycleBasis(); len(cycles) > 0 {
		return nil, errors.New(errors.ErrCodeCycleDetected, "graph is not radial; edge %s closes a loop", cycles[0].Closing)
	}

	// Preorder with the edge that reached each node.
	type visit struct {
		node topology.NodeID
		via  *topology.Edge
	}
	order := make([]visit, 0, g.NodeCount())
	seen := map[topology.NodeID]bool{src.ID: true}
	stack := []visit{{node: src.ID}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		for _, e := range g.Incident(v.node) {
			next := e.Other(v.node)
			if seen[next] {
				continue
			}
			seen[next] = true
			stack = append(stack, visit{node: next, via: e})
		}
	}

	idx := newIndex()
	idx.Source = src.Name()
	subtree := make(map[topology.NodeID][]string, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		n, _ := g.Node(v.node)
		ids := subtree[v.node]
		for _, l := range n.Loads {
			ids = append(ids, l.ID)
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)
		idx.Nodes[n.Name()] = ids

		if v.via == nil {
			idx.Customers = slices.Clone(ids)
			continue
		}
		idx.category(v.via)[v.via.Name] = ids
		parent := v.via.Other(v.node)
		subtree[parent] = append(subtree[parent], ids...)
		delete(subtree, v.node)
	}
	if idx.Customers == nil {
		idx.Customers = []string{}
	}
	return idx, nil
}

func (x *Index) category(e *topology.Edge) map[string][]string {
	if e.Kind.IsTransformer() {
		return x.Transformers
	}
	return x.Lines
}

func (x *Index) byCategory(c Category) (map[string][]string, error) {
	switch c {
	case CategoryLine:
		return x.Lines, nil
	case CategoryTransformer:
		return x.Transformers, nil
	case CategoryNode:
		return x.Nodes, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown impact category %q", c)
}

// Downstream returns the customers that lose supply when the named asset
// fails. An asset missing from the index is an error, never an empty set.
func (x *Index) Downstream(c Category, name string) ([]string, error) {
	m, err := x.byCategory(c)
	if err != nil {
		return nil, err
	}
	ids, ok := m[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeMissingImpactData, "no downstream customers recorded for %s %s", c, name)
	}
	return ids, nil
}

// Count returns the number of customers downstream of the named asset.
func (x *Index) Count(c Category, name string) (int, error) {
	ids, err := x.Downstream(c, name)
	return len(ids), err
}

// TotalCustomers returns the number of customers on the feeder.
func (x *Index) TotalCustomers() int { return len(x.Customers) }

// Names returns the sorted asset names of a category.
func (x *Index) Names(c Category) []string {
	m, err := x.byCategory(c)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Circuit is the asset inventory of a live solver circuit.
type Circuit struct {
	Lines        []string
	Transformers []string
	Buses        []string
}

// CheckCircuit fails when the circuit has an asset the index does not know,
// which means the index was built for a different topology.
func (x *Index) CheckCircuit(c Circuit) error {
	check := []struct {
		cat   Category
		names []string
	}{
		{CategoryLine, c.Lines},
		{CategoryTransformer, c.Transformers},
		{CategoryNode, c.Buses},
	}
	for _, chk := range check {
		m, _ := x.byCategory(chk.cat)
		for _, name := range chk.names {
			if _, ok := m[name]; !ok {
				return errors.New(errors.ErrCodeAssetNotIndexed, "circuit %s %s is missing from the impact index", chk.cat, name)
			}
		}
	}
	return nil
}
