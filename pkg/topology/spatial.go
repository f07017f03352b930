package topology

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// tieProbe bounds how many equidistant candidates are inspected when breaking
// nearest-node ties.
const tieProbe = 16

// spatialIndex answers nearest-node-by-tier queries over a quadtree of live
// nodes. The tree is rebuilt lazily when a node falls outside its bound.
type spatialIndex struct {
	tree  *quadtree.Quadtree
	bound orb.Bound
	dirty bool
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{dirty: true}
}

// insert adds n, or marks the index stale if n lies outside the tree bound.
func (s *spatialIndex) insert(n *Node) {
	if s.dirty || s.tree == nil || !s.bound.Contains(n.Point()) {
		s.dirty = true
		return
	}
	if err := s.tree.Add(n); err != nil {
		s.dirty = true
	}
}

// remove drops n from the tree. A stale index is rebuilt from the graph
// anyway, so removal is skipped there.
func (s *spatialIndex) remove(n *Node) {
	if s.dirty || s.tree == nil {
		return
	}
	s.tree.Remove(n, func(p orb.Pointer) bool { return p.(*Node).ID == n.ID })
}

func (s *spatialIndex) rebuild(g *Graph) {
	nodes := g.Nodes()
	s.tree = nil
	s.dirty = false
	if len(nodes) == 0 {
		return
	}
	pts := make(orb.MultiPoint, len(nodes))
	for i, n := range nodes {
		pts[i] = n.Point()
	}
	s.bound = pts.Bound().Pad(1)
	s.tree = quadtree.New(s.bound)
	for _, n := range nodes {
		_ = s.tree.Add(n)
	}
}

// nearest returns the node of the given tier closest to p. Equidistant
// candidates resolve to the lowest handle.
func (s *spatialIndex) nearest(g *Graph, p orb.Point, tier Tier) (*Node, float64, bool) {
	if s.dirty || s.tree == nil {
		s.rebuild(g)
	}
	if s.tree == nil {
		return nil, 0, false
	}

	onTier := func(ptr orb.Pointer) bool { return ptr.(*Node).Tier == tier }
	hit := s.tree.Matching(p, onTier)
	if hit == nil {
		return nil, 0, false
	}
	best := hit.(*Node)
	dist := planar.Distance(p, best.Point())

	// Matching returns whichever candidate the tree walk reached first.
	probe := dist*(1+1e-9) + 1e-12
	for _, c := range s.tree.KNearestMatching(nil, p, tieProbe, onTier, probe) {
		n := c.(*Node)
		if planar.Distance(p, n.Point()) == dist && n.ID < best.ID {
			best = n
		}
	}
	return best, dist, true
}
