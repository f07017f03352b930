package topology

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/matzehuels/gridrisk/pkg/errors"
)

const (
	// DefaultCoordinatePrecision is the number of decimals coordinates are
	// rounded to before shared endpoints are merged.
	DefaultCoordinatePrecision = 6

	// DefaultSeed seeds random phase allocation so rebuilding is reproducible.
	DefaultSeed = uint64(42)

	// DefaultThreePhase is the phase label of a three-phase customer.
	DefaultThreePhase = "RYB"
)

// DefaultSinglePhase lists the phases a single-phase LT customer may be
// reallocated to.
var DefaultSinglePhase = []string{"R", "Y", "B"}

// Conductor counts for generated service drops.
const (
	serviceSinglePhaseConductors = 2
	serviceThreePhaseConductors  = 4
	htServiceConductors          = 3
)

// Options configures graph assembly.
type Options struct {
	// CoordinatePrecision rounds coordinates before endpoint merging.
	CoordinatePrecision int

	// RandomPhase reallocates non-three-phase LT customers to a random
	// single phase drawn from SinglePhase.
	RandomPhase bool
	Seed        uint64
	ThreePhase  string
	SinglePhase []string

	// ServiceConductor and HTServiceConductor name the conductor used for
	// generated LT and HT service drops.
	ServiceConductor   string
	HTServiceConductor string
	ServiceSpacing     string
	Units              string

	// Conductors is the conductor library. When non-empty every referenced
	// conductor must appear in it.
	Conductors []string

	// Source locates the feeder head when no power transformer is given.
	// The nearest HT node becomes the source.
	Source *orb.Point

	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.CoordinatePrecision <= 0 {
		o.CoordinatePrecision = DefaultCoordinatePrecision
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.ThreePhase == "" {
		o.ThreePhase = DefaultThreePhase
	}
	if len(o.SinglePhase) == 0 {
		o.SinglePhase = DefaultSinglePhase
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// nodeKey identifies a location on a tier after rounding.
type nodeKey struct {
	x, y float64
	tier Tier
}

// Stats summarizes one build.
type Stats struct {
	EdgesByClass map[AssetClass]int
	Repairs      []RepairResult
	Transformers int
	Loads        int
}

// IslandsRepaired returns the total number of contractions performed.
func (s Stats) IslandsRepaired() int {
	total := 0
	for _, r := range s.Repairs {
		total += len(r.Contractions)
	}
	return total
}

// Builder assembles a [Graph] from asset records. Use [Build] to run the full
// assembly order; the individual steps are exported for callers that feed
// records incrementally.
type Builder struct {
	opts       Options
	g          *Graph
	index      *spatialIndex
	keys       map[nodeKey]NodeID
	conductors map[string]bool
	loadIDs    map[string]bool
	rng        *rand.Rand
	logger     *log.Logger
	stats      Stats
}

// NewBuilder creates a builder over an empty graph.
func NewBuilder(opts Options) *Builder {
	opts.setDefaults()
	b := &Builder{
		opts:    opts,
		g:       NewGraph(),
		index:   newSpatialIndex(),
		keys:    make(map[nodeKey]NodeID),
		loadIDs: make(map[string]bool),
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed)),
		logger:  opts.Logger,
		stats:   Stats{EdgesByClass: make(map[AssetClass]int)},
	}
	if len(opts.Conductors) > 0 {
		b.conductors = make(map[string]bool, len(opts.Conductors))
		for _, c := range opts.Conductors {
			b.conductors[c] = true
		}
	}
	return b
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph { return b.g }

// Stats returns what the builder has done so far.
func (b *Builder) Stats() Stats { return b.stats }

func (b *Builder) round(v float64) float64 {
	p := math.Pow(10, float64(b.opts.CoordinatePrecision))
	return math.Round(v*p) / p
}

// node returns the node at (x, y, tier), creating it if needed. The second
// result is false when an existing node was reused.
func (b *Builder) node(x, y float64, tier Tier) (*Node, bool) {
	x, y = b.round(x), b.round(y)
	key := nodeKey{x: x, y: y, tier: tier}
	if id, ok := b.keys[key]; ok {
		if n, live := b.g.Node(id); live {
			return n, false
		}
	}
	n := b.g.AddNode(x, y, tier)
	b.keys[key] = n.ID
	b.index.insert(n)
	return n, true
}

func (b *Builder) checkConductor(owner, name string) error {
	if b.conductors == nil || name == "" {
		return nil
	}
	if !b.conductors[name] {
		return errors.New(errors.ErrCodeMissingConductor, "%s references conductor %q missing from the conductor library", owner, name)
	}
	return nil
}

func (b *Builder) addEdge(e Edge) error {
	if err := errors.ValidateAssetName(e.Name); err != nil {
		return err
	}
	if _, err := b.g.AddEdge(e); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidAsset, err, "add %s %s", e.Kind, e.Name)
	}
	b.stats.EdgesByClass[e.Class]++
	return nil
}

// AddEdges creates one edge per attribute record of a line class. Each
// record is matched to its coordinates by shape id; the first and last vertex
// become the endpoints on the given tier. Segments sharing an endpoint merge
// into one node. It returns the number of edges created.
func (b *Builder) AddEdges(class AssetClass, tier Tier, set LineSet) (int, error) {
	shapes := make(map[string][]CoordinateRecord)
	for _, c := range set.Coordinates {
		shapes[c.ShapeID] = append(shapes[c.ShapeID], c)
	}

	created := 0
	for i, rec := range set.Attributes {
		pts := shapes[rec.ShapeID]
		if len(pts) == 0 {
			return created, errors.New(errors.ErrCodeInvalidAsset, "%s shape %q has no coordinates", class, rec.ShapeID)
		}
		name := rec.ID
		if name == "" {
			name = fmt.Sprintf("%s_%d", strings.ToLower(string(class)), i+1)
		}
		if err := b.checkConductor(name, rec.Conductor); err != nil {
			return created, err
		}
		if err := b.checkConductor(name, rec.NeutralConductor); err != nil {
			return created, err
		}

		first, last := pts[0], pts[len(pts)-1]
		from, _ := b.node(first.X, first.Y, tier)
		to, _ := b.node(last.X, last.Y, tier)
		if from.ID == to.ID {
			b.logger.Warn("skipping zero-length segment", "class", class, "shape", rec.ShapeID)
			continue
		}

		err := b.addEdge(Edge{
			Name:             name,
			Kind:             class.edgeKind(),
			Class:            class,
			From:             from.ID,
			To:               to.ID,
			Phase:            rec.Phase,
			Conductor:        rec.Conductor,
			ConductorSize:    rec.ConductorSize,
			NeutralConductor: rec.NeutralConductor,
			NeutralSize:      rec.NeutralSize,
			Length:           rec.Length,
			Spacing:          rec.Spacing,
			NumConductors:    rec.NumConductors,
			Units:            rec.Units,
			RatedAmps:        rec.RatedAmps,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// ValidateTopology enforces the radial invariant. More than one component
// triggers [Builder.RepairIslands]; any remaining cycle is fatal.
func (b *Builder) ValidateTopology() error {
	if comps := b.g.Components(); len(comps) > 1 {
		b.logger.Info("network has islands, repairing", "islands", len(comps))
		res, err := b.RepairIslands()
		if err != nil {
			return err
		}
		b.stats.Repairs = append(b.stats.Repairs, res)
	}

	if cycles := b.g.CycleBasis(); len(cycles) > 0 {
		closing := make([]string, len(cycles))
		for i, c := range cycles {
			closing[i] = c.Closing
		}
		return errors.New(errors.ErrCodeCycleDetected,
			"network has %d loop(s); closing edges: %s", len(cycles), strings.Join(closing, ", "))
	}
	return nil
}

// AttachDistributionTransformers links each transformer between the HT and LT
// nodes nearest to its location.
func (b *Builder) AttachDistributionTransformers(recs []TransformerRecord) error {
	for i, rec := range recs {
		name := rec.ID
		if name == "" {
			name = fmt.Sprintf("dt_%d", i+1)
		}
		p := orb.Point{rec.X, rec.Y}
		ht, _, ok := b.index.nearest(b.g, p, TierHT)
		if !ok {
			return errors.New(errors.ErrCodeInvalidTopology, "transformer %s has no HT node to attach to", name)
		}
		lt, _, ok := b.index.nearest(b.g, p, TierLT)
		if !ok {
			return errors.New(errors.ErrCodeInvalidTopology, "transformer %s has no LT node to attach to", name)
		}
		err := b.addEdge(Edge{
			Name:     name,
			Kind:     KindTransformer,
			Class:    ClassDistributionTransformer,
			From:     ht.ID,
			To:       lt.ID,
			Phase:    rec.Phase,
			RatedKVA: rec.KVA,
		})
		if err != nil {
			return err
		}
		b.stats.Transformers++
	}
	return nil
}

// AttachPowerTransformer creates the EHT node at the substation location,
// links it to the nearest HT node, and makes it the source.
func (b *Builder) AttachPowerTransformer(rec TransformerRecord) error {
	name := rec.ID
	if name == "" {
		name = "pt_1"
	}
	ht, _, ok := b.index.nearest(b.g, orb.Point{rec.X, rec.Y}, TierHT)
	if !ok {
		return errors.New(errors.ErrCodeInvalidTopology, "power transformer %s has no HT node to attach to", name)
	}
	eht, _ := b.node(rec.X, rec.Y, TierEHT)
	err := b.addEdge(Edge{
		Name:     name,
		Kind:     KindPowerTransformer,
		Class:    ClassPowerTransformer,
		From:     eht.ID,
		To:       ht.ID,
		Phase:    rec.Phase,
		RatedKVA: rec.KVA,
	})
	if err != nil {
		return err
	}
	b.stats.Transformers++
	return b.g.SetSource(eht.ID)
}

// AttachLoads connects each customer to the nearest node of tier. LT
// customers get a service node plus a service drop; HT customers get an HT
// node. Customers sharing a location share its node and drop.
func (b *Builder) AttachLoads(tier Tier, recs []LoadRecord) error {
	nodeTier, conductor, class := TierService, b.opts.ServiceConductor, ClassService
	if tier == TierHT {
		nodeTier, conductor = TierHT, b.opts.HTServiceConductor
	}
	if err := b.checkConductor("service drops", conductor); err != nil {
		return err
	}

	for _, rec := range recs {
		if err := errors.ValidateAssetName(rec.ID); err != nil {
			return err
		}
		if b.loadIDs[rec.ID] {
			return errors.New(errors.ErrCodeInvalidAsset, "duplicate customer id %s", rec.ID)
		}
		b.loadIDs[rec.ID] = true
		p := orb.Point{rec.X, rec.Y}
		target, dist, ok := b.index.nearest(b.g, p, tier)
		if !ok {
			return errors.New(errors.ErrCodeInvalidTopology, "customer %s has no %s node to attach to", rec.ID, tier)
		}

		phase := rec.Phase
		if tier == TierLT && b.opts.RandomPhase && phase != b.opts.ThreePhase {
			phase = b.opts.SinglePhase[b.rng.IntN(len(b.opts.SinglePhase))]
		}

		load := CustomerLoad{
			ID:            rec.ID,
			KW:            rec.KW,
			KVAR:          loadKVAR(rec),
			Phase:         phase,
			VoltageClass:  rec.VoltageClass,
			CustomerClass: rec.CustomerClass,
			AnnualKWh:     rec.AnnualKWh,
		}

		n, created := b.node(rec.X, rec.Y, nodeTier)
		if n.ID == target.ID || !created {
			n.Loads = append(n.Loads, load)
			b.stats.Loads++
			continue
		}

		err := b.addEdge(Edge{
			Name:          "service_" + rec.ID,
			Kind:          KindService,
			Class:         class,
			From:          target.ID,
			To:            n.ID,
			Phase:         phase,
			Conductor:     conductor,
			Length:        dist,
			Spacing:       b.opts.ServiceSpacing,
			NumConductors: serviceConductors(tier, phase == b.opts.ThreePhase),
			Units:         b.opts.Units,
		})
		if err != nil {
			return err
		}
		n.Loads = append(n.Loads, load)
		b.stats.Loads++
	}
	return nil
}

func serviceConductors(tier Tier, threePhase bool) int {
	switch {
	case tier == TierHT:
		return htServiceConductors
	case threePhase:
		return serviceThreePhaseConductors
	}
	return serviceSinglePhaseConductors
}

// loadKVAR derives reactive power from the power factor when not given.
func loadKVAR(rec LoadRecord) float64 {
	if rec.KVAR != 0 || rec.PF <= 0 || rec.PF >= 1 {
		return rec.KVAR
	}
	return rec.KW * math.Tan(math.Acos(rec.PF))
}

// RepairResult lists the contractions performed by one repair pass.
type RepairResult struct {
	IslandsBefore int
	Contractions  []Contraction
}

// Contraction records one merge of Dropped into Kept.
type Contraction struct {
	Kept     NodeID
	Dropped  NodeID
	Distance float64
}

// RepairIslands joins islands by greedy pairwise contraction. Each round scans
// every node of the first island against every node of the other islands and
// contracts the closest pair on a matching tier; the first minimum found
// wins. Rounds repeat until one component remains.
func (b *Builder) RepairIslands() (RepairResult, error) {
	comps := b.g.Components()
	res := RepairResult{IslandsBefore: len(comps)}

	for len(comps) > 1 {
		var keep, drop *Node
		best := math.Inf(1)
		for _, id1 := range comps[0] {
			n1, _ := b.g.Node(id1)
			for _, comp := range comps[1:] {
				for _, id2 := range comp {
					n2, _ := b.g.Node(id2)
					if n1.Tier != n2.Tier {
						continue
					}
					if d := planar.Distance(n1.Point(), n2.Point()); d < best {
						best, keep, drop = d, n1, n2
					}
				}
			}
		}
		if keep == nil {
			return res, errors.New(errors.ErrCodeIslandUnresolved,
				"no tier-matching node pair joins island %s to the network", describeIsland(b.g, comps[1]))
		}

		b.logger.Debug("contracting island nodes", "kept", keep.Name(), "dropped", drop.Name(), "distance", best)
		b.index.remove(drop)
		dropKey := nodeKey{x: drop.X, y: drop.Y, tier: drop.Tier}
		if err := b.g.Contract(keep.ID, drop.ID); err != nil {
			return res, errors.Wrap(errors.ErrCodeIslandUnresolved, err, "contract %s into %s", drop.Name(), keep.Name())
		}
		b.keys[dropKey] = keep.ID
		res.Contractions = append(res.Contractions, Contraction{Kept: keep.ID, Dropped: drop.ID, Distance: best})
		comps = b.g.Components()
	}
	return res, nil
}

func describeIsland(g *Graph, comp []NodeID) string {
	const shown = 5
	var names []string
	for _, id := range comp[:min(shown, len(comp))] {
		if n, ok := g.Node(id); ok {
			names = append(names, n.Name())
		}
	}
	if len(comp) > shown {
		names = append(names, fmt.Sprintf("and %d more", len(comp)-shown))
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Build assembles a radial feeder from assets in the canonical order: HT
// lines, LT lines and distribution transformers, the power transformer, then
// LT and HT customers. The topology is validated after each network tier and
// once more at the end.
func Build(ctx context.Context, assets Assets, opts Options) (*Graph, Stats, error) {
	b := NewBuilder(opts)
	logger := b.logger

	addTier := func(tier Tier, classes ...AssetClass) (int, error) {
		total := 0
		for _, class := range classes {
			set, ok := assets.Lines[class]
			if !ok {
				continue
			}
			n, err := b.AddEdges(class, tier, set)
			if err != nil {
				return total, err
			}
			logger.Debug("added line class", "class", class, "edges", n)
			total += n
		}
		return total, nil
	}

	htEdges, err := addTier(TierHT, ClassHTLine, ClassHTCable)
	if err != nil {
		return nil, b.stats, err
	}
	if htEdges > 0 {
		if err := b.ValidateTopology(); err != nil {
			return nil, b.stats, err
		}
	} else {
		logger.Warn("network has no HT edges")
	}
	if err := ctx.Err(); err != nil {
		return nil, b.stats, err
	}

	ltEdges, err := addTier(TierLT, ClassLTLine, ClassLTCable)
	if err != nil {
		return nil, b.stats, err
	}
	if len(assets.DistributionTransformers) > 0 {
		if htEdges > 0 {
			if err := b.AttachDistributionTransformers(assets.DistributionTransformers); err != nil {
				return nil, b.stats, err
			}
		} else {
			logger.Warn("ignoring distribution transformers without an HT network", "count", len(assets.DistributionTransformers))
		}
	}
	switch {
	case ltEdges > 0:
		if err := b.ValidateTopology(); err != nil {
			return nil, b.stats, err
		}
	case htEdges == 0:
		return nil, b.stats, errors.New(errors.ErrCodeInvalidTopology, "no HT or LT line records; nothing to build")
	default:
		logger.Warn("network has no LT edges")
	}

	if assets.PowerTransformer != nil {
		if err := b.AttachPowerTransformer(*assets.PowerTransformer); err != nil {
			return nil, b.stats, err
		}
	} else {
		logger.Warn("network has no power transformer")
	}

	if len(assets.LTLoads) > 0 {
		if err := b.AttachLoads(TierLT, assets.LTLoads); err != nil {
			return nil, b.stats, err
		}
	}
	if len(assets.HTLoads) > 0 {
		if err := b.AttachLoads(TierHT, assets.HTLoads); err != nil {
			return nil, b.stats, err
		}
	}
	if err := b.ValidateTopology(); err != nil {
		return nil, b.stats, err
	}

	if b.g.Source() == NoNode {
		if err := b.resolveSource(); err != nil {
			return nil, b.stats, err
		}
	}

	logger.Info("built topology",
		"nodes", b.g.NodeCount(),
		"edges", b.g.EdgeCount(),
		"loads", b.g.LoadCount(),
		"islands_repaired", b.stats.IslandsRepaired())
	return b.g, b.stats, nil
}

func (b *Builder) resolveSource() error {
	if b.opts.Source == nil {
		return errors.New(errors.ErrCodeInvalidTopology, "no power transformer and no source location configured")
	}
	for _, tier := range []Tier{TierHT, TierLT} {
		if n, _, ok := b.index.nearest(b.g, *b.opts.Source, tier); ok {
			return b.g.SetSource(n.ID)
		}
	}
	return errors.New(errors.ErrCodeInvalidTopology, "no node near configured source %v", *b.opts.Source)
}
