package simulation

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gridrisk/pkg/cache"
	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

var t0 = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func segment(shape string, x1, y1, x2, y2 float64) []topology.CoordinateRecord {
	return []topology.CoordinateRecord{
		{ShapeID: shape, X: x1, Y: y1},
		{ShapeID: shape, X: x2, Y: y2},
	}
}

// feederAssets is S -ht_sa- A -dt_1- B, with B feeding customer c1 over
// lt_bc and customer c2 over lt_bd.
func feederAssets() topology.Assets {
	return topology.Assets{
		Lines: map[topology.AssetClass]topology.LineSet{
			topology.ClassHTLine: {
				Attributes:  []topology.LineRecord{{ShapeID: "1", ID: "ht_sa", RatedAmps: 100}},
				Coordinates: segment("1", 0, 0, 100, 0),
			},
			topology.ClassLTLine: {
				Attributes: []topology.LineRecord{{ShapeID: "7", ID: "lt_bc"}, {ShapeID: "8", ID: "lt_bd"}},
				Coordinates: append(segment("7", 100, 5, 150, 5),
					segment("8", 100, 5, 100, 50)...),
			},
		},
		DistributionTransformers: []topology.TransformerRecord{{ID: "dt_1", X: 100, Y: 2, KVA: 100}},
		PowerTransformer:         &topology.TransformerRecord{ID: "pt", X: -10, Y: 0},
		LTLoads: []topology.LoadRecord{
			{ID: "c1", X: 150, Y: 8, KW: 10, Phase: "R"},
			{ID: "c2", X: 100, Y: 53, KW: 5, Phase: "Y"},
		},
	}
}

// replay holds n quarter-hourly snapshots with lt_bc at 150% loading. The
// second snapshot did not converge.
func replay(t *testing.T, n int) *powerflow.ReplaySolver {
	t.Helper()
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, `{"time":%q,"converged":%t,"buses":[{"name":"ht_1","pu":[1.0]}],`+
			`"lines":[{"name":"lt_bc","currents":[150],"rated_amps":100,"p_from":10,"p_to":-9.9,"loss_w":100},`+
			`{"name":"lt_bd","currents":[50],"rated_amps":100,"p_from":5,"p_to":-4.95,"loss_w":50}],`+
			`"transformers":[{"name":"dt_1","currents":[10],"rated_amps":100,"p_from":15,"p_to":-14.9,"loss_w":100}],`+
			`"circuit":{"power_kw":-15,"loss_w":250}}`+"\n",
			t0.Add(time.Duration(i)*15*time.Minute).Format(time.RFC3339), i != 1)
	}
	s, err := powerflow.NewReplaySolver(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("NewReplaySolver() error: %v", err)
	}
	return s
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse("[simulation]\nstep_minutes = 15.0\nrecord_every = 2\n")
	if err != nil {
		t.Fatalf("config.Parse() error: %v", err)
	}
	return cfg
}

func quietRunner(c cache.Cache) *Runner {
	return NewRunner(c, nil, log.New(io.Discard))
}

func TestTimeline(t *testing.T) {
	tests := []struct {
		name  string
		end   time.Time
		step  time.Duration
		want  int
		fails bool
	}{
		{"inclusive end", t0.Add(time.Hour), 15 * time.Minute, 5, false},
		{"single step", t0, 15 * time.Minute, 1, false},
		{"end between steps", t0.Add(40 * time.Minute), 15 * time.Minute, 3, false},
		{"reversed", t0.Add(-time.Minute), 15 * time.Minute, 0, true},
		{"zero step", t0.Add(time.Hour), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Timeline(t0, tt.end, tt.step)
			if tt.fails {
				if !errors.Is(err, errors.ErrCodeInvalidConfig) {
					t.Errorf("Timeline() error = %v, want INVALID_CONFIG", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Timeline() error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Timeline() = %d steps, want %d", len(got), tt.want)
			}
			if !got[0].Equal(t0) {
				t.Errorf("Timeline()[0] = %v, want %v", got[0], t0)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	r := quietRunner(nil)
	res, err := r.Execute(context.Background(), Scenario{
		Name:   "base",
		Assets: feederAssets(),
		Solver: replay(t, 4),
		Config: testConfig(t),
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if res.Steps != 4 {
		t.Errorf("Steps = %d, want 4", res.Steps)
	}
	if !res.Start.Equal(t0) || !res.End.Equal(t0.Add(45*time.Minute)) {
		t.Errorf("window = %v..%v, want the replay's own times", res.Start, res.End)
	}
	if res.Stats.Customers != 2 {
		t.Errorf("Customers = %d, want 2", res.Stats.Customers)
	}
	if res.TopologyHash == "" || res.Graph == nil {
		t.Error("topology stage produced no graph")
	}

	if failed := res.Convergence.Failed(); len(failed) != 1 || !failed[0].Equal(t0.Add(15*time.Minute)) {
		t.Errorf("Convergence.Failed() = %v, want [t0+15m]", failed)
	}

	// gamma 0.5 on c1 of 2 customers: 0.5 * 0.5 * 15 * 100 / 4 per step.
	if got := res.Metrics.LLRI["lt_bc"]; !approx(got, 375) {
		t.Errorf("LLRI[lt_bc] = %v, want 375", got)
	}
	if got := res.Metrics.LLRI["lt_bd"]; got != 0 {
		t.Errorf("LLRI[lt_bd] = %v, want 0", got)
	}

	llri := res.Metrics.Series["LLRI"]
	if len(llri.Times) != 2 {
		t.Fatalf("LLRI series has %d rows, want 2 (record_every = 2)", len(llri.Times))
	}
	if !llri.Times[0].Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("first recorded time = %v, want t0+15m", llri.Times[0])
	}
	if got := llri.Values["lt_bc"]; !approx(got[0], 187.5) || !approx(got[1], 187.5) {
		t.Errorf("LLRI series[lt_bc] = %v, want [187.5 187.5]", got)
	}

	if len(res.Metrics.Overloads) != 1 || res.Metrics.Overloads[0].Name != "lt_bc" {
		t.Errorf("Overloads = %+v, want lt_bc only", res.Metrics.Overloads)
	}
}

func TestExecuteCachesIndex(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}
	r := quietRunner(fc)
	ctx := context.Background()

	for i, wantHit := range []bool{false, true} {
		res, err := r.Execute(ctx, Scenario{
			Name:   "base",
			Assets: feederAssets(),
			Solver: replay(t, 2),
			Config: testConfig(t),
		})
		if err != nil {
			t.Fatalf("run %d: Execute() error: %v", i, err)
		}
		if res.CacheInfo.IndexHit != wantHit {
			t.Errorf("run %d: IndexHit = %v, want %v", i, res.CacheInfo.IndexHit, wantHit)
		}
	}

	res, err := r.Execute(ctx, Scenario{
		Name:    "base",
		Assets:  feederAssets(),
		Solver:  replay(t, 2),
		Config:  testConfig(t),
		Refresh: true,
	})
	if err != nil {
		t.Fatalf("Execute(refresh) error: %v", err)
	}
	if res.CacheInfo.IndexHit {
		t.Error("Execute(refresh) used the cached index")
	}
}

func TestExecutePrebuiltIndex(t *testing.T) {
	r := quietRunner(nil)
	ctx := context.Background()
	_, _, idx, _, err := r.BuildIndex(ctx, feederAssets(), nil, false)
	if err != nil {
		t.Fatalf("BuildIndex() error: %v", err)
	}
	res, err := r.Execute(ctx, Scenario{Name: "pre", Index: idx, Solver: replay(t, 2), Config: testConfig(t)})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Graph != nil {
		t.Error("Execute() rebuilt the topology despite a supplied index")
	}
	if res.Stats.Customers != 2 {
		t.Errorf("Customers = %d, want 2", res.Stats.Customers)
	}
}

func TestExecuteErrors(t *testing.T) {
	ctx := context.Background()
	r := quietRunner(nil)

	t.Run("no solver", func(t *testing.T) {
		_, err := r.Execute(ctx, Scenario{Name: "x", Assets: feederAssets()})
		if !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Execute() error = %v, want INVALID_INPUT", err)
		}
	})

	t.Run("unknown circuit asset", func(t *testing.T) {
		s, err := powerflow.NewReplaySolver(strings.NewReader(
			`{"time":"2018-01-01T00:00:00Z","converged":true,"lines":[{"name":"ghost","currents":[1],"rated_amps":1}]}`))
		if err != nil {
			t.Fatalf("NewReplaySolver() error: %v", err)
		}
		_, err = r.Execute(ctx, Scenario{Name: "x", Assets: feederAssets(), Solver: s})
		if !errors.Is(err, errors.ErrCodeAssetNotIndexed) {
			t.Errorf("Execute() error = %v, want ASSET_NOT_INDEXED", err)
		}
	})

	t.Run("window beyond replay", func(t *testing.T) {
		cfg, err := config.Parse("[simulation]\nstart = 2018-01-01T00:00:00Z\nend = 2018-01-01T02:00:00Z\n")
		if err != nil {
			t.Fatalf("config.Parse() error: %v", err)
		}
		_, err = r.Execute(ctx, Scenario{Name: "x", Assets: feederAssets(), Solver: replay(t, 2), Config: cfg})
		if !errors.Is(err, errors.ErrCodeNotFound) {
			t.Errorf("Execute() error = %v, want NOT_FOUND", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := r.Execute(cctx, Scenario{Name: "x", Assets: feederAssets(), Solver: replay(t, 2), Config: testConfig(t)})
		if err == nil {
			t.Error("Execute() with cancelled context succeeded")
		}
	})
}
