package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/gridrisk/pkg/topology"
)

type graph struct {
	Source string `json:"source,omitempty"`
	Nodes  []node `json:"nodes"`
	Edges  []edge `json:"edges"`
}

type node struct {
	Name  string   `json:"name"`
	Tier  string   `json:"tier"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Loads []string `json:"loads,omitempty"`
}

type edge struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Phase     string  `json:"phase,omitempty"`
	Conductor string  `json:"conductor,omitempty"`
	Length    float64 `json:"length,omitempty"`
	RatedAmps float64 `json:"rated_amps,omitempty"`
	RatedKVA  float64 `json:"rated_kva,omitempty"`
}

// WriteGraph encodes g as indented JSON to w.
func WriteGraph(g *topology.Graph, w io.Writer) error {
	names := make(map[topology.NodeID]string, g.NodeCount())
	out := graph{Nodes: make([]node, 0, g.NodeCount()), Edges: make([]edge, 0, g.EdgeCount())}

	for _, n := range g.Nodes() {
		names[n.ID] = n.Name()
		nd := node{Name: n.Name(), Tier: string(n.Tier), X: n.X, Y: n.Y}
		for _, l := range n.Loads {
			nd.Loads = append(nd.Loads, l.ID)
		}
		out.Nodes = append(out.Nodes, nd)
	}
	if src, ok := g.Node(g.Source()); ok {
		out.Source = src.Name()
	}
	for _, e := range g.Edges() {
		out.Edges = append(out.Edges, edge{
			Name:      e.Name,
			Kind:      string(e.Kind),
			From:      names[e.From],
			To:        names[e.To],
			Phase:     e.Phase,
			Conductor: e.Conductor,
			Length:    e.Length,
			RatedAmps: e.RatedAmps,
			RatedKVA:  e.RatedKVA,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportGraph writes g to a JSON file at path.
func ExportGraph(g *topology.Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteGraph(g, f)
}
