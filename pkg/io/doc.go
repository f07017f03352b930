// Package io reads and writes the JSON files the command line exchanges with
// external tools.
//
// # Assets
//
// The asset readers that parse utility shapefiles and spreadsheets are
// external. They emit one normalized assets.json holding a
// [topology.Assets]:
//
//	{
//	  "lines": {
//	    "HT_line": {"attributes": [...], "coordinates": [...]},
//	    "LT_line": {"attributes": [...], "coordinates": [...]}
//	  },
//	  "distribution_transformers": [{"id": "dt_1", "x": 100, "y": 2, "kva": 100}],
//	  "power_transformer": {"id": "pt", "x": -10, "y": 0},
//	  "lt_loads": [{"id": "c1", "x": 150, "y": 8, "kw": 10, "phase": "R"}]
//	}
//
// Use [ImportAssets] to read one from a path or [ReadAssets] for any
// io.Reader. Unknown fields are rejected.
//
// # Topology
//
// [WriteGraph] and [ExportGraph] dump a built feeder graph as nodes and
// edges for inspection:
//
//	{
//	  "source": "eht_0",
//	  "nodes": [{"name": "ht_1", "tier": "HT", "x": 0, "y": 0, "loads": ["c1"]}],
//	  "edges": [{"name": "ht_sa", "kind": "line", "from": "ht_1", "to": "ht_2"}]
//	}
//
// Nodes are in handle order and edges in insertion order, so the same graph
// always produces the same file.
package io
