package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var (
	// ErrUnknownNode is returned by [Graph.AddEdge], [Graph.Contract], and
	// [Graph.SetSource] when a handle does not refer to a live node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateEdge is returned by [Graph.AddEdge] when an edge with the
	// same name already exists. Edge names are unique across all kinds.
	ErrDuplicateEdge = errors.New("duplicate edge name")

	// ErrSelfLoop is returned when an edge would start and end on the same
	// node, either directly or as the result of a contraction.
	ErrSelfLoop = errors.New("edge would form a self-loop")
)

// Graph is an undirected attributed multigraph of buses and branches.
//
// Nodes are addressed by [NodeID] handles; edges by their unique name. Edge
// order is creation order, which keeps every traversal deterministic. Graph
// is not safe for concurrent mutation; a finished graph may be read from
// several goroutines.
type Graph struct {
	nodes  map[NodeID]*Node
	edges  []*Edge
	byName map[string]int
	adj    map[NodeID][]int // node -> indices into edges
	nextID NodeID
	source NodeID
}

// NewGraph creates an empty graph with no source.
func NewGraph() *Graph {
	return &Graph{
		nodes:  make(map[NodeID]*Node),
		byName: make(map[string]int),
		adj:    make(map[NodeID][]int),
		source: NoNode,
	}
}

// AddNode creates a node at (x, y) on the given tier and returns it.
func (g *Graph) AddNode(x, y float64, tier Tier) *Node {
	n := &Node{ID: g.nextID, X: x, Y: y, Tier: tier}
	g.nextID++
	g.nodes[n.ID] = n
	return n
}

// AddEdge appends an edge between two existing nodes. The edge is copied.
func (g *Graph) AddEdge(e Edge) (*Edge, error) {
	if _, ok := g.nodes[e.From]; !ok {
		return nil, ErrUnknownNode
	}
	if _, ok := g.nodes[e.To]; !ok {
		return nil, ErrUnknownNode
	}
	if e.From == e.To {
		return nil, ErrSelfLoop
	}
	if _, dup := g.byName[e.Name]; dup {
		return nil, ErrDuplicateEdge
	}
	edge := &e
	idx := len(g.edges)
	g.edges = append(g.edges, edge)
	g.byName[edge.Name] = idx
	g.adj[edge.From] = append(g.adj[edge.From], idx)
	g.adj[edge.To] = append(g.adj[edge.To], idx)
	return edge, nil
}

// Node returns the node with the given handle.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all live nodes ordered by handle.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node) int { return int(a.ID) - int(b.ID) })
	return out
}

// Edges returns all edges in creation order.
func (g *Graph) Edges() []*Edge { return slices.Clone(g.edges) }

// Edge returns the edge with the given name.
func (g *Graph) Edge(name string) (*Edge, bool) {
	idx, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.edges[idx], true
}

// Incident returns the edges touching id in creation order.
func (g *Graph) Incident(id NodeID) []*Edge {
	idxs := g.adj[id]
	out := make([]*Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.edges[idx]
	}
	return out
}

// Neighbors returns the nodes adjacent to id, one entry per incident edge.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	idxs := g.adj[id]
	out := make([]NodeID, len(idxs))
	for i, idx := range idxs {
		out[i] = g.edges[idx].Other(id)
	}
	return out
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Source returns the source node handle, or NoNode if none is set.
func (g *Graph) Source() NodeID { return g.source }

// SetSource marks id as the electrical source of the feeder.
func (g *Graph) SetSource(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return ErrUnknownNode
	}
	g.source = id
	return nil
}

// Loads returns every attached customer with its node, ordered by node
// handle and then attachment order.
func (g *Graph) Loads() []LoadRef {
	var out []LoadRef
	for _, n := range g.Nodes() {
		for _, l := range n.Loads {
			out = append(out, LoadRef{Load: l, Node: n.ID})
		}
	}
	return out
}

// LoadCount returns the number of attached customers.
func (g *Graph) LoadCount() int {
	count := 0
	for _, n := range g.nodes {
		count += len(n.Loads)
	}
	return count
}

// Contract merges drop into keep: every edge of drop is rewired to keep, its
// loads move over, and drop is deleted. If drop was the source, keep becomes
// the source.
func (g *Graph) Contract(keep, drop NodeID) error {
	k, ok := g.nodes[keep]
	if !ok {
		return ErrUnknownNode
	}
	d, ok := g.nodes[drop]
	if !ok {
		return ErrUnknownNode
	}
	if keep == drop {
		return ErrSelfLoop
	}
	for _, idx := range g.adj[drop] {
		if g.edges[idx].Other(drop) == keep {
			return ErrSelfLoop
		}
	}
	for _, idx := range g.adj[drop] {
		e := g.edges[idx]
		if e.From == drop {
			e.From = keep
		} else {
			e.To = keep
		}
		g.adj[keep] = append(g.adj[keep], idx)
	}
	slices.Sort(g.adj[keep])
	k.Loads = append(k.Loads, d.Loads...)
	delete(g.adj, drop)
	delete(g.nodes, drop)
	if g.source == drop {
		g.source = keep
	}
	return nil
}

// Components returns the connected components. Each component is sorted by
// handle and components are ordered by their smallest handle, so the first
// component is the one holding the oldest node.
func (g *Graph) Components() [][]NodeID {
	ug := simple.NewUndirectedGraph()
	for id := range g.nodes {
		ug.AddNode(simple.Node(int64(id)))
	}
	for _, e := range g.edges {
		if ug.HasEdgeBetween(int64(e.From), int64(e.To)) {
			continue
		}
		ug.SetEdge(ug.NewEdge(simple.Node(int64(e.From)), simple.Node(int64(e.To))))
	}

	var out [][]NodeID
	for _, comp := range topo.ConnectedComponents(ug) {
		ids := make([]NodeID, len(comp))
		for i, n := range comp {
			ids[i] = NodeID(n.ID())
		}
		slices.Sort(ids)
		out = append(out, ids)
	}
	slices.SortFunc(out, func(a, b []NodeID) int { return int(a[0]) - int(b[0]) })
	return out
}

// CycleBasis returns one cycle per edge outside a depth-first spanning
// forest. Parallel edges count as cycles. An empty result together with a
// single component means the graph is radial.
func (g *Graph) CycleBasis() []Cycle {
	visited := make(map[NodeID]bool, len(g.nodes))
	parent := make(map[NodeID]NodeID, len(g.nodes))
	depth := make(map[NodeID]int, len(g.nodes))
	seenEdge := make(map[int]bool, len(g.edges))
	var cycles []Cycle

	for _, root := range g.Nodes() {
		if visited[root.ID] {
			continue
		}
		visited[root.ID] = true
		parent[root.ID] = NoNode
		stack := []NodeID{root.ID}
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, idx := range g.adj[u] {
				if seenEdge[idx] {
					continue
				}
				seenEdge[idx] = true
				v := g.edges[idx].Other(u)
				if !visited[v] {
					visited[v] = true
					parent[v] = u
					depth[v] = depth[u] + 1
					stack = append(stack, v)
					continue
				}
				cycles = append(cycles, Cycle{
					Closing: g.edges[idx].Name,
					Nodes:   treePath(u, v, parent, depth),
				})
			}
		}
	}
	return cycles
}

// treePath walks parent pointers from u and v up to their common ancestor
// and returns u ... lca ... v.
func treePath(u, v NodeID, parent map[NodeID]NodeID, depth map[NodeID]int) []NodeID {
	var left, right []NodeID
	for depth[u] > depth[v] {
		left = append(left, u)
		u = parent[u]
	}
	for depth[v] > depth[u] {
		right = append(right, v)
		v = parent[v]
	}
	for u != v {
		left = append(left, u)
		right = append(right, v)
		u, v = parent[u], parent[v]
	}
	left = append(left, u)
	slices.Reverse(right)
	return append(left, right...)
}

// IsRadial reports whether the graph is one component with no cycles.
func (g *Graph) IsRadial() bool {
	return len(g.Components()) <= 1 && len(g.CycleBasis()) == 0
}

// Hash returns a stable SHA-256 digest of nodes, edges, loads, and source.
// Two graphs built from the same assets and options hash identically; the
// impact index cache is keyed on it.
func (g *Graph) Hash() string {
	type nodeDigest struct {
		ID    NodeID   `json:"id"`
		X     float64  `json:"x"`
		Y     float64  `json:"y"`
		Tier  Tier     `json:"tier"`
		Loads []string `json:"loads,omitempty"`
	}
	type edgeDigest struct {
		Name string   `json:"name"`
		Kind EdgeKind `json:"kind"`
		From NodeID   `json:"from"`
		To   NodeID   `json:"to"`
	}
	payload := struct {
		Source NodeID       `json:"source"`
		Nodes  []nodeDigest `json:"nodes"`
		Edges  []edgeDigest `json:"edges"`
	}{Source: g.source}

	for _, n := range g.Nodes() {
		d := nodeDigest{ID: n.ID, X: n.X, Y: n.Y, Tier: n.Tier}
		for _, l := range n.Loads {
			d.Loads = append(d.Loads, l.ID)
		}
		payload.Nodes = append(payload.Nodes, d)
	}
	for _, e := range g.edges {
		payload.Edges = append(payload.Edges, edgeDigest{Name: e.Name, Kind: e.Kind, From: e.From, To: e.To})
	}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
