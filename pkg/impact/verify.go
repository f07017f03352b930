package impact

import (
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// Verify checks the partition law for every branch of g by brute force: the
// branch is cut, the customers still reachable from the source are collected
// by breadth-first search, and the recorded downstream set must be exactly
// the complement. It costs O(edges x graph) and exists for tests and the
// --verify flag.
func (x *Index) Verify(g *topology.Graph) error {
	all := make(map[string]bool, len(x.Customers))
	for _, id := range x.Customers {
		all[id] = true
	}
	if len(all) != g.LoadCount() {
		return errors.New(errors.ErrCodeAssetNotIndexed, "index has %d customers, graph has %d", len(all), g.LoadCount())
	}

	for _, e := range g.Edges() {
		down, err := x.Downstream(categoryOf(e), e.Name)
		if err != nil {
			return err
		}
		reach := reachableCustomers(g, e.Name)
		for _, id := range down {
			if reach[id] {
				return errors.New(errors.ErrCodeInternal, "customer %s is downstream of %s but still reachable without it", id, e.Name)
			}
		}
		if len(reach)+len(down) != len(all) {
			return errors.New(errors.ErrCodeInternal,
				"branch %s: %d downstream and %d reachable customers do not cover %d", e.Name, len(down), len(reach), len(all))
		}
	}
	return nil
}

func categoryOf(e *topology.Edge) Category {
	if e.Kind.IsTransformer() {
		return CategoryTransformer
	}
	return CategoryLine
}

// reachableCustomers returns the customers reachable from the source when the
// named edge is removed.
func reachableCustomers(g *topology.Graph, cut string) map[string]bool {
	out := make(map[string]bool)
	seen := map[topology.NodeID]bool{g.Source(): true}
	queue := []topology.NodeID{g.Source()}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, _ := g.Node(id)
		for _, l := range n.Loads {
			out[l.ID] = true
		}
		for _, e := range g.Incident(id) {
			if e.Name == cut {
				continue
			}
			if next := e.Other(id); !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}
