package topology

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"

	"github.com/matzehuels/gridrisk/pkg/errors"
)

func quietOptions() Options {
	return Options{Logger: log.New(io.Discard)}
}

func segment(shape string, x1, y1, x2, y2 float64) []CoordinateRecord {
	return []CoordinateRecord{
		{ShapeID: shape, X: x1, Y: y1},
		{ShapeID: shape, X: x2, Y: y2},
	}
}

// feederAssets is substation S, HT line to A, transformer to B, LT line to
// C, and one 10 kW customer near C.
func feederAssets() Assets {
	return Assets{
		Lines: map[AssetClass]LineSet{
			ClassHTLine: {
				Attributes:  []LineRecord{{ShapeID: "1", ID: "ht_sa", Length: 100, Phase: "RYB", Conductor: "ACSR", NumConductors: 3, RatedAmps: 100}},
				Coordinates: segment("1", 0, 0, 100, 0),
			},
			ClassLTLine: {
				Attributes:  []LineRecord{{ShapeID: "7", ID: "lt_bc", Length: 50, Phase: "RYB", Conductor: "AAAC", NumConductors: 4, RatedAmps: 200}},
				Coordinates: segment("7", 100, 5, 150, 5),
			},
		},
		DistributionTransformers: []TransformerRecord{{ID: "dt_1", X: 100, Y: 2, KVA: 100}},
		PowerTransformer:         &TransformerRecord{ID: "pt", X: -10, Y: 0, KVA: 5000},
		LTLoads:                  []LoadRecord{{ID: "c1", X: 150, Y: 8, KW: 10, PF: 0.9, Phase: "R"}},
	}
}

func TestBuildFeeder(t *testing.T) {
	g, stats, err := Build(context.Background(), feederAssets(), quietOptions())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if g.NodeCount() != 6 {
		t.Errorf("NodeCount() = %d, want 6", g.NodeCount())
	}
	if g.EdgeCount() != 5 {
		t.Errorf("EdgeCount() = %d, want 5", g.EdgeCount())
	}
	if !g.IsRadial() {
		t.Error("IsRadial() = false, want true")
	}
	if stats.Transformers != 2 || stats.Loads != 1 {
		t.Errorf("stats = %+v, want 2 transformers and 1 load", stats)
	}

	src, ok := g.Node(g.Source())
	if !ok || src.Tier != TierEHT {
		t.Fatalf("source = %v, want EHT node", src)
	}

	dt, ok := g.Edge("dt_1")
	if !ok {
		t.Fatal("Edge(dt_1) missing")
	}
	ht, _ := g.Node(dt.From)
	lt, _ := g.Node(dt.To)
	if ht.X != 100 || ht.Y != 0 || ht.Tier != TierHT {
		t.Errorf("dt_1 HT side = %+v, want A at (100,0)", ht)
	}
	if lt.X != 100 || lt.Y != 5 || lt.Tier != TierLT {
		t.Errorf("dt_1 LT side = %+v, want B at (100,5)", lt)
	}

	svc, ok := g.Edge("service_c1")
	if !ok {
		t.Fatal("Edge(service_c1) missing")
	}
	if svc.Length != 3 {
		t.Errorf("service_c1 length = %v, want 3", svc.Length)
	}
	if svc.NumConductors != serviceSinglePhaseConductors {
		t.Errorf("service_c1 conductors = %d, want %d", svc.NumConductors, serviceSinglePhaseConductors)
	}

	loads := g.Loads()
	if len(loads) != 1 {
		t.Fatalf("Loads() = %d, want 1", len(loads))
	}
	n, _ := g.Node(loads[0].Node)
	if n.Tier != TierService || n.X != 150 || n.Y != 8 {
		t.Errorf("c1 attached to %+v, want service node at (150,8)", n)
	}
	if loads[0].Load.KVAR <= 0 {
		t.Errorf("c1 KVAR = %v, want derived from pf", loads[0].Load.KVAR)
	}
}

func TestBuildDeterministic(t *testing.T) {
	assets := feederAssets()
	for i, x := range []float64{110, 120, 130, 140} {
		assets.LTLoads = append(assets.LTLoads, LoadRecord{
			ID: "extra" + string(rune('a'+i)), X: x, Y: 9, KW: 2, Phase: "R",
		})
	}
	opts := quietOptions()
	opts.RandomPhase = true

	g1, _, err := Build(context.Background(), assets, opts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	g2, _, err := Build(context.Background(), assets, opts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if g1.Hash() != g2.Hash() {
		t.Error("Hash() differs between identical builds")
	}
	l1, l2 := g1.Loads(), g2.Loads()
	if len(l1) != len(l2) {
		t.Fatalf("Loads() lengths = %d, %d", len(l1), len(l2))
	}
	for i := range l1 {
		if l1[i] != l2[i] {
			t.Errorf("Loads()[%d] = %+v, want %+v", i, l2[i], l1[i])
		}
		if !strings.Contains("RYB", l1[i].Load.Phase) || len(l1[i].Load.Phase) != 1 {
			t.Errorf("random phase = %q, want one of R, Y, B", l1[i].Load.Phase)
		}
	}
}

func TestBuildThreePhaseKeepsPhase(t *testing.T) {
	assets := feederAssets()
	assets.LTLoads[0].Phase = DefaultThreePhase
	opts := quietOptions()
	opts.RandomPhase = true

	g, _, err := Build(context.Background(), assets, opts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got := g.Loads()[0].Load.Phase; got != DefaultThreePhase {
		t.Errorf("phase = %q, want %q", got, DefaultThreePhase)
	}
	svc, _ := g.Edge("service_c1")
	if svc.NumConductors != serviceThreePhaseConductors {
		t.Errorf("NumConductors = %d, want %d", svc.NumConductors, serviceThreePhaseConductors)
	}
}

func TestBuildSourceWithoutPowerTransformer(t *testing.T) {
	assets := feederAssets()
	assets.PowerTransformer = nil

	if _, _, err := Build(context.Background(), assets, quietOptions()); !errors.Is(err, errors.ErrCodeInvalidTopology) {
		t.Errorf("Build() without source = %v, want INVALID_TOPOLOGY", err)
	}

	opts := quietOptions()
	opts.Source = &orb.Point{-1, 0}
	g, _, err := Build(context.Background(), assets, opts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	src, _ := g.Node(g.Source())
	if src.X != 0 || src.Y != 0 {
		t.Errorf("source = (%v,%v), want (0,0)", src.X, src.Y)
	}
}

func TestBuildWithoutHT(t *testing.T) {
	assets := feederAssets()
	delete(assets.Lines, ClassHTLine)
	assets.PowerTransformer = nil
	opts := quietOptions()
	opts.Source = &orb.Point{100, 5}

	g, _, err := Build(context.Background(), assets, opts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if _, ok := g.Edge("dt_1"); ok {
		t.Error("dt_1 attached without an HT network")
	}
	if !g.IsRadial() {
		t.Error("IsRadial() = false, want true")
	}
}

func TestBuildEmpty(t *testing.T) {
	_, _, err := Build(context.Background(), Assets{}, quietOptions())
	if !errors.Is(err, errors.ErrCodeInvalidTopology) {
		t.Errorf("Build(empty) = %v, want INVALID_TOPOLOGY", err)
	}
}

func TestRepairIslandsNearestPair(t *testing.T) {
	b := NewBuilder(quietOptions())
	set := LineSet{
		Attributes: []LineRecord{
			{ShapeID: "s1", ID: "l1"},
			{ShapeID: "s2", ID: "l2"},
			{ShapeID: "s3", ID: "l3"},
			{ShapeID: "s4", ID: "l4"},
		},
	}
	set.Coordinates = append(set.Coordinates, segment("s1", 0, 0, 10, 0)...)
	set.Coordinates = append(set.Coordinates, segment("s2", 10, 0, 20, 0)...)
	set.Coordinates = append(set.Coordinates, segment("s3", 23, 1, 40, 0)...)
	set.Coordinates = append(set.Coordinates, segment("s4", 40, 0, 50, 10)...)

	if _, err := b.AddEdges(ClassHTLine, TierHT, set); err != nil {
		t.Fatalf("AddEdges() error: %v", err)
	}
	if got := len(b.Graph().Components()); got != 2 {
		t.Fatalf("Components() = %d, want 2", got)
	}

	res, err := b.RepairIslands()
	if err != nil {
		t.Fatalf("RepairIslands() error: %v", err)
	}
	if res.IslandsBefore != 2 {
		t.Errorf("IslandsBefore = %d, want 2", res.IslandsBefore)
	}
	if len(res.Contractions) != 1 {
		t.Fatalf("Contractions = %d, want 1", len(res.Contractions))
	}

	c := res.Contractions[0]
	if c.Kept != 2 || c.Dropped != 3 {
		t.Errorf("contraction = kept %d dropped %d, want kept 2 dropped 3", c.Kept, c.Dropped)
	}
	g := b.Graph()
	if len(g.Components()) != 1 {
		t.Errorf("Components() after repair = %d, want 1", len(g.Components()))
	}
	if _, ok := g.Node(3); ok {
		t.Error("dropped node still present")
	}
	l3, _ := g.Edge("l3")
	if l3.From != 2 {
		t.Errorf("l3.From = %d, want 2", l3.From)
	}
	if !g.IsRadial() {
		t.Error("IsRadial() = false after repair")
	}
}

func TestRepairIslandsUnresolved(t *testing.T) {
	b := NewBuilder(quietOptions())
	if _, err := b.AddEdges(ClassHTLine, TierHT, LineSet{
		Attributes:  []LineRecord{{ShapeID: "h"}},
		Coordinates: segment("h", 0, 0, 10, 0),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddEdges(ClassLTLine, TierLT, LineSet{
		Attributes:  []LineRecord{{ShapeID: "l"}},
		Coordinates: segment("l", 0, 5, 10, 5),
	}); err != nil {
		t.Fatal(err)
	}

	err := b.ValidateTopology()
	if !errors.Is(err, errors.ErrCodeIslandUnresolved) {
		t.Fatalf("ValidateTopology() = %v, want ISLAND_UNRESOLVED", err)
	}
	if !strings.Contains(err.Error(), "lt_2") {
		t.Errorf("error %q does not name the stranded node", err)
	}
}

func TestValidateTopologyCycle(t *testing.T) {
	b := NewBuilder(quietOptions())
	set := LineSet{Attributes: []LineRecord{{ShapeID: "a", ID: "ab"}, {ShapeID: "b", ID: "bc"}, {ShapeID: "c", ID: "ca"}}}
	set.Coordinates = append(set.Coordinates, segment("a", 0, 0, 1, 0)...)
	set.Coordinates = append(set.Coordinates, segment("b", 1, 0, 1, 1)...)
	set.Coordinates = append(set.Coordinates, segment("c", 1, 1, 0, 0)...)
	if _, err := b.AddEdges(ClassHTLine, TierHT, set); err != nil {
		t.Fatal(err)
	}

	err := b.ValidateTopology()
	if !errors.Is(err, errors.ErrCodeCycleDetected) {
		t.Fatalf("ValidateTopology() = %v, want CYCLE_DETECTED", err)
	}
	if !strings.Contains(err.Error(), "closing edges: bc") {
		t.Errorf("error %q does not name the closing edge", err)
	}
}

func TestAddEdgesErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		set  LineSet
		want errors.Code
	}{
		{
			name: "missing coordinates",
			set:  LineSet{Attributes: []LineRecord{{ShapeID: "x"}}},
			want: errors.ErrCodeInvalidAsset,
		},
		{
			name: "missing conductor",
			opts: Options{Conductors: []string{"ACSR"}},
			set: LineSet{
				Attributes:  []LineRecord{{ShapeID: "x", Conductor: "AAAC"}},
				Coordinates: segment("x", 0, 0, 1, 0),
			},
			want: errors.ErrCodeMissingConductor,
		},
		{
			name: "missing neutral conductor",
			opts: Options{Conductors: []string{"ACSR"}},
			set: LineSet{
				Attributes:  []LineRecord{{ShapeID: "x", Conductor: "ACSR", NeutralConductor: "CU"}},
				Coordinates: segment("x", 0, 0, 1, 0),
			},
			want: errors.ErrCodeMissingConductor,
		},
		{
			name: "duplicate name",
			set: LineSet{
				Attributes:  []LineRecord{{ShapeID: "x", ID: "dup"}, {ShapeID: "y", ID: "dup"}},
				Coordinates: append(segment("x", 0, 0, 1, 0), segment("y", 1, 0, 2, 0)...),
			},
			want: errors.ErrCodeInvalidAsset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = log.New(io.Discard)
			b := NewBuilder(tt.opts)
			_, err := b.AddEdges(ClassHTLine, TierHT, tt.set)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddEdges() = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestAddEdgesMergesEndpoints(t *testing.T) {
	b := NewBuilder(quietOptions())
	set := LineSet{
		Attributes: []LineRecord{{ShapeID: "a"}, {ShapeID: "b"}},
		Coordinates: []CoordinateRecord{
			{ShapeID: "a", X: 0, Y: 0}, {ShapeID: "a", X: 5, Y: 5}, {ShapeID: "a", X: 10, Y: 0},
			{ShapeID: "b", X: 10.0000001, Y: 0}, {ShapeID: "b", X: 20, Y: 0},
		},
	}
	n, err := b.AddEdges(ClassLTCable, TierLT, set)
	if err != nil {
		t.Fatalf("AddEdges() error: %v", err)
	}
	if n != 2 {
		t.Errorf("AddEdges() = %d, want 2", n)
	}
	g := b.Graph()
	if g.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d, want 3 (shared endpoint merged)", g.NodeCount())
	}
	e, ok := g.Edge("lt_cable_1")
	if !ok || e.Kind != KindCable {
		t.Errorf("Edge(lt_cable_1) = %+v, want a cable", e)
	}
}

func TestAttachLoadsDuplicateID(t *testing.T) {
	assets := feederAssets()
	assets.LTLoads = append(assets.LTLoads, assets.LTLoads[0])
	_, _, err := Build(context.Background(), assets, quietOptions())
	if !errors.Is(err, errors.ErrCodeInvalidAsset) {
		t.Errorf("Build() = %v, want INVALID_ASSET", err)
	}
}

func TestAttachLoadsSharedLocation(t *testing.T) {
	assets := feederAssets()
	assets.LTLoads = append(assets.LTLoads, LoadRecord{ID: "c2", X: 150, Y: 8, KW: 4, Phase: "Y"})
	g, stats, err := Build(context.Background(), assets, quietOptions())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if stats.Loads != 2 {
		t.Errorf("Loads = %d, want 2", stats.Loads)
	}
	if _, ok := g.Edge("service_c2"); ok {
		t.Error("second customer at the same location got its own service drop")
	}
	loads := g.Loads()
	if loads[0].Node != loads[1].Node {
		t.Errorf("customers at one location attached to nodes %d and %d", loads[0].Node, loads[1].Node)
	}
}

func TestAttachHTLoad(t *testing.T) {
	assets := feederAssets()
	assets.HTLoads = []LoadRecord{{ID: "h1", X: 50, Y: 4, KW: 500, Phase: "RYB"}}
	g, _, err := Build(context.Background(), assets, quietOptions())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	svc, ok := g.Edge("service_h1")
	if !ok {
		t.Fatal("Edge(service_h1) missing")
	}
	if svc.NumConductors != htServiceConductors {
		t.Errorf("NumConductors = %d, want %d", svc.NumConductors, htServiceConductors)
	}
	n, _ := g.Node(svc.To)
	if n.Tier != TierHT {
		t.Errorf("HT customer node tier = %s, want HT", n.Tier)
	}
}
