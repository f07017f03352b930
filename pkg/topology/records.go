package topology

// AssetClass names an input asset file family. Line classes carry their tier
// in the prefix.
type AssetClass string

const (
	ClassHTLine  AssetClass = "HT_line"
	ClassHTCable AssetClass = "HT_cable"
	ClassLTLine  AssetClass = "LT_line"
	ClassLTCable AssetClass = "LT_cable"

	ClassDistributionTransformer AssetClass = "DT"
	ClassPowerTransformer        AssetClass = "PT"
	ClassService                 AssetClass = "service"
)

// edgeKind maps a line class to its branch kind.
func (c AssetClass) edgeKind() EdgeKind {
	switch c {
	case ClassHTCable, ClassLTCable:
		return KindCable
	case ClassDistributionTransformer:
		return KindTransformer
	case ClassPowerTransformer:
		return KindPowerTransformer
	case ClassService:
		return KindService
	}
	return KindLine
}

// LineRecord is one normalized attribute row for a line or cable segment.
// It is matched to its geometry by ShapeID.
type LineRecord struct {
	ShapeID          string  `json:"shape_id"`
	ID               string  `json:"id,omitempty"`
	Length           float64 `json:"length"`
	Phase            string  `json:"phase"`
	Conductor        string  `json:"cname"`
	ConductorSize    string  `json:"csize,omitempty"`
	NeutralConductor string  `json:"nname,omitempty"`
	NeutralSize      string  `json:"nsize,omitempty"`
	NumConductors    int     `json:"num_of_cond"`
	Spacing          string  `json:"spacing,omitempty"`
	Units            string  `json:"units,omitempty"`
	RatedAmps        float64 `json:"rated_amps,omitempty"`
}

// CoordinateRecord is one vertex of a line shape. Vertices of a shape are
// listed in drawing order; only the first and last become nodes.
type CoordinateRecord struct {
	ShapeID string  `json:"shape_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// LineSet is the attribute and coordinate data of one line class.
type LineSet struct {
	Attributes  []LineRecord       `json:"attributes"`
	Coordinates []CoordinateRecord `json:"coordinates"`
}

// TransformerRecord is a distribution or power transformer located by a
// single coordinate.
type TransformerRecord struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	KVA    float64 `json:"kva"`
	Phase  string  `json:"phase,omitempty"`
	HighKV float64 `json:"high_kv,omitempty"`
	LowKV  float64 `json:"low_kv,omitempty"`
}

// LoadRecord is a customer located by a single coordinate.
type LoadRecord struct {
	ID            string  `json:"id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	KW            float64 `json:"kw"`
	PF            float64 `json:"pf,omitempty"`
	KVAR          float64 `json:"kvar,omitempty"`
	Phase         string  `json:"phase"`
	VoltageClass  string  `json:"voltage_class,omitempty"`
	CustomerClass string  `json:"customer_class,omitempty"`
	AnnualKWh     float64 `json:"annual_kwh,omitempty"`
}

// Assets is the normalized output of the external asset readers and the
// whole input of [Build].
type Assets struct {
	Lines                    map[AssetClass]LineSet `json:"lines"`
	DistributionTransformers []TransformerRecord    `json:"distribution_transformers,omitempty"`
	PowerTransformer         *TransformerRecord     `json:"power_transformer,omitempty"`
	LTLoads                  []LoadRecord           `json:"lt_loads,omitempty"`
	HTLoads                  []LoadRecord           `json:"ht_loads,omitempty"`
}
