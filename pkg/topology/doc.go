// Package topology assembles a radial distribution feeder from asset records.
//
// # Overview
//
// A feeder is an undirected multigraph of buses ([Node]) and branches
// ([Edge]). Lines and cables come from per-class attribute and coordinate
// records; segments that share a rounded endpoint on the same voltage tier
// merge into one node, which is the only way line segments connect.
// Transformers and customers are attached afterwards by nearest-node search.
//
// Nodes are addressed by integer [NodeID] handles assigned in creation order.
// Geometry is kept only for the spatial index and for endpoint merging, so
// identity never depends on how a coordinate prints.
//
// # Building
//
// [Build] runs the full assembly order:
//
//  1. HT lines and cables, then validation
//  2. LT lines and cables
//  3. distribution transformers (HT side to LT side), then validation
//  4. the power transformer, whose EHT node becomes the source
//  5. LT customers (with service drops), then HT customers
//  6. final validation
//
// Validation enforces the radial invariant: exactly one connected component
// and an empty cycle basis. Extra components are joined by
// [Builder.RepairIslands], which greedily contracts the nearest tier-matching
// node pair between the first island and the rest. Loops are never broken
// automatically; they fail with the closing edges named.
//
//	g, stats, err := topology.Build(ctx, assets, topology.Options{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(g.NodeCount(), stats.IslandsRepaired())
//
// # Determinism
//
// Handles, edge order, and random phase allocation depend only on the input
// and [Options.Seed]. [Graph.Hash] digests the finished graph and is used as
// the cache key of the customer impact index.
package topology
