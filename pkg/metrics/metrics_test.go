package metrics

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/thermal"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(step int) time.Time { return t0.Add(time.Duration(step) * 15 * time.Minute) }

// chainIndex describes S -l_sa- A -l_ab- B with customer c1 at B.
func chainIndex() *impact.Index {
	return &impact.Index{
		Source:       "S",
		Customers:    []string{"c1"},
		Lines:        map[string][]string{"l_sa": {"c1"}, "l_ab": {"c1"}},
		Transformers: map[string][]string{},
		Nodes:        map[string][]string{"S": {"c1"}, "A": {"c1"}, "B": {"c1"}},
	}
}

// fourIndex has four customers: node B feeds c1 and c2, line l1 feeds c2
// and c3, transformer t1 feeds c4.
func fourIndex() *impact.Index {
	return &impact.Index{
		Source:       "S",
		Customers:    []string{"c1", "c2", "c3", "c4"},
		Lines:        map[string][]string{"l1": {"c2", "c3"}},
		Transformers: map[string][]string{"t1": {"c4"}},
		Nodes:        map[string][]string{"B": {"c1", "c2"}},
	}
}

func newEnv(t *testing.T, idx *impact.Index, steps int) *Env {
	t.Helper()
	env := &Env{Index: idx, StepMinutes: 15, TotalSteps: steps, Logger: log.New(io.Discard)}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return env
}

func line(name string, loading float64) powerflow.Branch {
	return powerflow.Branch{Name: name, Currents: []float64{loading * 100}, RatedAmps: 100}
}

func bus(name string, pu ...float64) powerflow.Bus {
	return powerflow.Bus{Name: name, PU: pu}
}

// run notifies every snapshot in order, recording each step, then
// finalizes.
func run(t *testing.T, suite *Suite, snaps []*powerflow.Snapshot) {
	t.Helper()
	sub := NewSubject(log.New(io.Discard))
	suite.Attach(sub)
	for i, s := range snaps {
		step := NewStep(at(i), i, true, true, s)
		if err := sub.Notify(context.Background(), step); err != nil {
			t.Fatalf("Notify() step %d error: %v", i, err)
		}
	}
	if err := sub.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
}

func TestLLRISingleOverload(t *testing.T) {
	env := newEnv(t, chainIndex(), 4)
	suite, err := NewSuite(env, SuiteOptions{})
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	loadings := []float64{0.5, 1.2, 0.5, 0.5}
	snaps := make([]*powerflow.Snapshot, len(loadings))
	for i, l := range loadings {
		snaps[i] = &powerflow.Snapshot{
			Buses: []powerflow.Bus{bus("S", 1), bus("A", 1), bus("B", 1)},
			Lines: []powerflow.Branch{line("l_sa", 0.5), line("l_ab", l)},
		}
	}
	run(t, suite, snaps)

	llri, err := suite.Line.LLRI()
	if err != nil {
		t.Fatalf("LLRI() error: %v", err)
	}
	if got := llri["l_ab"]; math.Abs(got-75) > 1e-6 {
		t.Errorf("LLRI[l_ab] = %v, want 75", got)
	}
	if got := llri["l_sa"]; got != 0 {
		t.Errorf("LLRI[l_sa] = %v, want 0", got)
	}

	cri, _ := suite.Customer.CRI()
	if got := cri["c1"]; math.Abs(got-0.2) > 1e-6 {
		t.Errorf("CRI[c1] = %v, want 0.2", got)
	}

	series, _ := suite.Line.Series()
	inc := series["LLRI"].Values["l_ab"]
	if len(inc) != 4 {
		t.Fatalf("LLRI series has %d rows, want 4", len(inc))
	}
	sum := 0.0
	for _, v := range inc {
		sum += v
	}
	if math.Abs(sum-75) > 1e-6 || inc[0] != 0 || inc[2] != 0 {
		t.Errorf("LLRI increments = %v, want 75 at step 1 only", inc)
	}
}

func TestSARDI(t *testing.T) {
	env := newEnv(t, fourIndex(), 2)
	suite, err := NewSuite(env, SuiteOptions{})
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	snaps := []*powerflow.Snapshot{
		{
			Buses:        []powerflow.Bus{bus("B", 0.90, 1.0)},
			Lines:        []powerflow.Branch{line("l1", 1.1)},
			Transformers: []powerflow.Branch{line("t1", 0.5)},
		},
		{
			Buses:        []powerflow.Bus{bus("B", 1.0)},
			Lines:        []powerflow.Branch{line("l1", 0.5)},
			Transformers: []powerflow.Branch{line("t1", 0.5)},
		},
	}
	run(t, suite, snaps)

	sys, err := suite.System.Metrics()
	if err != nil {
		t.Fatalf("Metrics() error: %v", err)
	}
	want := map[string]float64{
		SARDIVoltage:     25,
		SARDILine:        25,
		SARDITransformer: 0,
		SARDIAggregated:  37.5,
	}
	for k, w := range want {
		if got := sys[k]; !approx(got, w) {
			t.Errorf("%s = %v, want %v", k, got, w)
		}
	}

	points, _ := suite.System.SARDISteps()
	for _, p := range points {
		for _, v := range []float64{p.Voltage, p.Line, p.Transformer, p.Aggregated} {
			if v < 0 || v > 100 {
				t.Errorf("SARDI step %v out of [0, 100]: %+v", p.Time, p)
			}
		}
		if p.Aggregated < max(p.Voltage, p.Line, p.Transformer) {
			t.Errorf("aggregated %v below category max at %v", p.Aggregated, p.Time)
		}
	}

	cri, _ := suite.Customer.CRI()
	wantCRI := map[string]float64{"c1": 0.05, "c2": 0.1, "c3": 0.1, "c4": 0}
	for id, w := range wantCRI {
		if got := cri[id]; math.Abs(got-w) > 1e-6 {
			t.Errorf("CRI[%s] = %v, want %v", id, got, w)
		}
	}
}

func TestMetricsNonNegative(t *testing.T) {
	env := newEnv(t, fourIndex(), 3)
	suite, err := NewSuite(env, SuiteOptions{LoadingBins: []float64{0.5, 1.0}})
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	tr := func(loading, pFrom, pTo float64) powerflow.Branch {
		b := line("t1", loading)
		b.PFrom, b.PTo, b.LossW = pFrom, pTo, 200
		return b
	}
	snaps := []*powerflow.Snapshot{
		{Buses: []powerflow.Bus{bus("B", 1.08)}, Lines: []powerflow.Branch{line("l1", 0.3)}, Transformers: []powerflow.Branch{tr(1.3, -49, -50)}, Circuit: powerflow.Circuit{PowerKW: -60, LossW: 900}},
		{Buses: []powerflow.Bus{bus("B", 0.97)}, Lines: []powerflow.Branch{line("l1", 0.9)}, Transformers: []powerflow.Branch{tr(0.4, 10, 20)}, Circuit: powerflow.Circuit{PowerKW: 8, LossW: 50}},
		{Buses: []powerflow.Bus{bus("B", 1.0)}, Lines: []powerflow.Branch{line("l1", 1.05)}, Transformers: []powerflow.Branch{tr(0.0, 0, 0)}},
	}
	run(t, suite, snaps)

	res, err := suite.Results()
	if err != nil {
		t.Fatalf("Results() error: %v", err)
	}
	groups := map[string]map[string]float64{
		"NVRI": res.NVRI, "LLRI": res.LLRI, "TLRI": res.TLRI, "CRI": res.CRI,
		"TOG": res.TOG, "TLOL": res.TLOL, "System": res.System, "bins": res.LineLoadingBins,
	}
	for name, m := range groups {
		for k, v := range m {
			if v < 0 || math.IsNaN(v) {
				t.Errorf("%s[%s] = %v, want >= 0", name, k, v)
			}
		}
	}
	if got := res.TOG["t1"]; !approx(got, 10*15.0/60) {
		t.Errorf("TOG[t1] = %v, want 2.5", got)
	}
	if got := res.System[SOG]; !approx(got, 8*15.0/60) {
		t.Errorf("SOG = %v, want 2", got)
	}
	if got := res.TLOL["t1"]; got <= 0 {
		t.Errorf("TLOL[t1] = %v, want > 0", got)
	}
	if got := res.System[SATLOL]; !approx(got, res.TLOL["t1"]) {
		t.Errorf("SATLOL = %v, want %v", got, res.TLOL["t1"])
	}
	if len(res.Overloads) != 2 {
		t.Errorf("Overloads = %+v, want t1 and l1", res.Overloads)
	} else if res.Overloads[0].Name != "t1" || !approx(res.Overloads[0].Peak, 1.3) {
		t.Errorf("Overloads[0] = %+v, want t1 at 1.3", res.Overloads[0])
	}
	hours := 0.0
	for _, h := range res.LineLoadingBins {
		hours += h
	}
	if !approx(hours, 0.75) {
		t.Errorf("line loading bin hours = %v, want 0.75", hours)
	}
}

func TestSystemEnergy(t *testing.T) {
	env := newEnv(t, chainIndex(), 2)
	suite, err := NewSuite(env, SuiteOptions{})
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	run(t, suite, []*powerflow.Snapshot{
		{Circuit: powerflow.Circuit{PowerKW: -100, PowerKVAR: -40, LossW: 2000, LossVAR: 800}},
		{Circuit: powerflow.Circuit{PowerKW: 20, PowerKVAR: 4, LossW: 400, LossVAR: 100}},
	})

	sys, err := suite.System.Metrics()
	if err != nil {
		t.Fatalf("Metrics() error: %v", err)
	}
	want := map[string]float64{
		EnergyKWh:         25 - 5,
		EnergyKVARh:       10 - 1,
		EnergyImportKWh:   25,
		EnergyImportKVARh: 10,
		EnergyExportKWh:   5,
		EnergyExportKVARh: 1,
		LossEnergyKWh:     0.6,
		LossEnergyKVARh:   0.225,
		SOG:               5,
	}
	for k, w := range want {
		if got := sys[k]; !approx(got, w) {
			t.Errorf("%s = %v, want %v", k, got, w)
		}
	}

	series, _ := suite.System.Series()
	energy := series["Energy"]
	if len(energy.Times) != 2 {
		t.Fatalf("Energy series has %d rows, want 2", len(energy.Times))
	}
	wantRows := map[string][]float64{
		PowerKWh:   {25, -5},
		PowerKVARh: {10, -1},
		LossKWh:    {0.5, 0.1},
		LossKVARh:  {0.2, 0.025},
	}
	for k, w := range wantRows {
		for i, v := range energy.Values[k] {
			if !approx(v, w[i]) {
				t.Errorf("Energy[%s][%d] = %v, want %v", k, i, v, w[i])
			}
		}
	}
	if got := series["System"].Values[LossEnergyKWh]; len(got) != 2 || !approx(got[1], 0.1) {
		t.Errorf("System[%s] = %v, want window increments ending in 0.1", LossEnergyKWh, got)
	}
}

func TestSATLOLAveragesTransformers(t *testing.T) {
	idx := &impact.Index{
		Customers:    []string{"c1", "c2"},
		Lines:        map[string][]string{},
		Transformers: map[string][]string{"t1": {"c1"}, "t2": {"c2"}},
		Nodes:        map[string][]string{},
	}
	env := newEnv(t, idx, 1)
	suite, err := NewSuite(env, SuiteOptions{})
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	run(t, suite, []*powerflow.Snapshot{{
		Transformers: []powerflow.Branch{line("t1", 1.0), line("t2", 1.0)},
	}})
	want := thermal.LossOfLife(1.0, thermal.DefaultTemperature, 15, thermal.DefaultLifeParameters())
	sys, _ := suite.System.Metrics()
	if got := sys[SATLOL]; !approx(got, want) {
		t.Errorf("SATLOL = %v, want %v", got, want)
	}
}

func TestEfficiency(t *testing.T) {
	tests := []struct {
		name        string
		lossW, powr float64
		want        float64
	}{
		{"one percent", 1000, 100, 99},
		{"lossless", 0, 50, 100},
		{"idle", 500, 0.005, 100},
		{"floor", 500, 0.01, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Efficiency(tt.lossW, tt.powr); !approx(got, tt.want) {
				t.Errorf("Efficiency(%v, %v) = %v, want %v", tt.lossW, tt.powr, got, tt.want)
			}
		})
	}
}

func TestLineEfficiency(t *testing.T) {
	env := newEnv(t, chainIndex(), 2)
	suite, _ := NewSuite(env, SuiteOptions{})
	mk := func(loss float64) *powerflow.Snapshot {
		return &powerflow.Snapshot{Lines: []powerflow.Branch{
			{Name: "l_ab", PFrom: 100, PTo: -99, LossW: loss},
		}}
	}
	run(t, suite, []*powerflow.Snapshot{mk(1000), mk(3000)})
	le, _ := suite.Line.LE()
	if got := le["l_ab"]; !approx(got, 98) {
		t.Errorf("LE[l_ab] = %v, want 98", got)
	}
	series, _ := suite.Line.Series()
	if got := series["LE"].Values["l_ab"]; len(got) != 2 || !approx(got[0], 99) || !approx(got[1], 97) {
		t.Errorf("LE series = %v, want [99 97]", got)
	}
}

func TestVoltageGamma(t *testing.T) {
	tests := []struct {
		name       string
		vmax, vmin float64
		want       float64
	}{
		{"nominal", 1.0, 1.0, 0},
		{"at limits", 1.05, 0.95, 0},
		{"over", 1.08, 1.0, 0.03},
		{"under", 1.0, 0.9, 0.05},
		{"both, under deeper", 1.06, 0.9, 0.05},
		{"both, over deeper", 1.2, 0.94, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VoltageGamma(tt.vmax, tt.vmin, DefaultOvervoltage, DefaultUndervoltage)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("VoltageGamma(%v, %v) = %v, want %v", tt.vmax, tt.vmin, got, tt.want)
			}
		})
	}
}

func TestThermalGamma(t *testing.T) {
	if got := ThermalGamma(0.8, 1.0); got != 0 {
		t.Errorf("ThermalGamma(0.8) = %v, want 0", got)
	}
	if got := ThermalGamma(1.5, 1.0); got != 0.5 {
		t.Errorf("ThermalGamma(1.5) = %v, want 0.5", got)
	}
}

func TestNotFinalized(t *testing.T) {
	env := newEnv(t, chainIndex(), 1)
	o := NewNodeObserver(env)
	if _, err := o.NVRI(); !errors.Is(err, errors.ErrCodeNotFinalized) {
		t.Errorf("NVRI() before Finalize error = %v, want NOT_FINALIZED", err)
	}
	if err := o.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if _, err := o.NVRI(); err != nil {
		t.Errorf("NVRI() after Finalize error: %v", err)
	}
	step := NewStep(t0, 0, false, true, &powerflow.Snapshot{})
	if err := o.Observe(context.Background(), step); err == nil {
		t.Error("Observe() after Finalize succeeded, want error")
	}
}

func TestNodeObserverRejectsEmptyBus(t *testing.T) {
	env := newEnv(t, chainIndex(), 1)
	o := NewNodeObserver(env)
	step := NewStep(t0, 0, true, true, &powerflow.Snapshot{Buses: []powerflow.Bus{bus("B")}})
	if err := o.Observe(context.Background(), step); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("Observe() error = %v, want INVALID_INPUT", err)
	}
	if got := step.Impacted(impact.CategoryNode); len(got) != 0 {
		t.Errorf("Impacted(node) = %v, want none", got)
	}
}

func TestMissingImpactData(t *testing.T) {
	env := newEnv(t, chainIndex(), 1)
	o := NewLineObserver(env)
	step := NewStep(t0, 0, false, true, &powerflow.Snapshot{Lines: []powerflow.Branch{line("unknown", 1.2)}})
	err := o.Observe(context.Background(), step)
	if !errors.Is(err, errors.ErrCodeMissingImpactData) {
		t.Errorf("Observe() error = %v, want MISSING_IMPACT_DATA", err)
	}
}

func TestEnvValidate(t *testing.T) {
	tests := []struct {
		name string
		env  Env
		code errors.Code
	}{
		{"no index", Env{StepMinutes: 15, TotalSteps: 1}, errors.ErrCodeMissingImpactData},
		{"no customers", Env{Index: &impact.Index{}, StepMinutes: 15, TotalSteps: 1}, errors.ErrCodeMissingImpactData},
		{"bad step", Env{Index: chainIndex(), TotalSteps: 1}, errors.ErrCodeInvalidConfig},
		{"no steps", Env{Index: chainIndex(), StepMinutes: 15}, errors.ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.env.Validate(); errors.GetCode(err) != tt.code {
				t.Errorf("Validate() error = %v, want %s", err, tt.code)
			}
		})
	}

	env := Env{Index: chainIndex(), StepMinutes: 15, TotalSteps: 1}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if env.Thresholds != DefaultThresholds() || env.Logger == nil {
		t.Errorf("Validate() did not fill defaults: %+v", env)
	}
}

func TestSubject(t *testing.T) {
	env := newEnv(t, chainIndex(), 1)
	sub := NewSubject(log.New(io.Discard))
	a, b := NewNodeObserver(env), NewNodeObserver(env)

	if !sub.Attach(a) || !sub.Attach(b) {
		t.Fatal("Attach() = false for new observers")
	}
	if sub.Attach(a) {
		t.Error("Attach() duplicate = true, want false")
	}
	if got := len(sub.Observers()); got != 2 {
		t.Errorf("len(Observers()) = %d, want 2", got)
	}
	if !sub.Detach(a) {
		t.Error("Detach() = false, want true")
	}
	if sub.Detach(a) {
		t.Error("Detach() twice = true, want false")
	}
	if obs := sub.Observers(); len(obs) != 1 || obs[0].ID() != b.ID() {
		t.Errorf("Observers() = %v, want only b", obs)
	}
	if a.ID() == b.ID() {
		t.Error("observers share an id")
	}
}

func TestBins(t *testing.T) {
	b, err := NewBins([]float64{1.0, 0.5, 1.0, 0.8})
	if err != nil {
		t.Fatalf("NewBins() error: %v", err)
	}
	wantLabels := []string{"<0.5", ">=0.5__<0.8", ">=0.8__<1", ">=1"}
	got := b.Labels()
	if len(got) != len(wantLabels) {
		t.Fatalf("Labels() = %v, want %v", got, wantLabels)
	}
	for i := range got {
		if got[i] != wantLabels[i] {
			t.Errorf("Labels()[%d] = %q, want %q", i, got[i], wantLabels[i])
		}
	}

	tests := []struct {
		v    float64
		want string
	}{
		{0.1, "<0.5"},
		{0.5, ">=0.5__<0.8"},
		{0.79, ">=0.5__<0.8"},
		{0.8, ">=0.8__<1"},
		{1.0, ">=1"},
		{2.5, ">=1"},
	}
	for _, tt := range tests {
		if got := b.Label(tt.v); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}

	if _, err := NewBins([]float64{1, 1}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("NewBins(single value) error = %v, want INVALID_CONFIG", err)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]float64{1.0, 0.2, 0.8, 0.4, 0.6})
	want := map[string]float64{"min": 0.2, "max": 1.0, "mean": 0.6, "median": 0.6}
	for k, w := range want {
		if !approx(got[k], w) {
			t.Errorf("Describe()[%s] = %v, want %v", k, got[k], w)
		}
	}
	for _, name := range StatNames {
		if _, ok := got[name]; !ok {
			t.Errorf("Describe() missing %s", name)
		}
	}
	if got := Describe(nil); got["max"] != 0 {
		t.Errorf("Describe(nil)[max] = %v, want 0", got["max"])
	}
}

func TestExporterWindow(t *testing.T) {
	e, err := NewExporter(ExportLineLoadings, at(1), at(2))
	if err != nil {
		t.Fatalf("NewExporter() error: %v", err)
	}
	for i := range 4 {
		snap := &powerflow.Snapshot{Lines: []powerflow.Branch{line("l1", float64(i)/10)}}
		if err := e.Observe(context.Background(), NewStep(at(i), i, false, true, snap)); err != nil {
			t.Fatalf("Observe() error: %v", err)
		}
	}
	if err := e.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	got, _ := e.Values()
	if len(got.Times) != 2 || !got.Times[0].Equal(at(1)) {
		t.Errorf("exported times = %v, want steps 1 and 2", got.Times)
	}
	if v := got.Values["l1"]; len(v) != 2 || !approx(v[1], 0.2) {
		t.Errorf("exported l1 = %v, want [0.1 0.2]", v)
	}

	if _, err := NewExporter("currents", time.Time{}, time.Time{}); err == nil {
		t.Error("NewExporter(unknown) succeeded, want error")
	}
}

func TestRecorderBackfill(t *testing.T) {
	r := newRecorder()
	r.row(at(0), map[string]float64{"a": 1})
	r.row(at(1), map[string]float64{"b": 2})
	got := r.result()
	if a := got.Values["a"]; len(a) != 2 || a[1] != 0 {
		t.Errorf("a = %v, want [1 0]", a)
	}
	if b := got.Values["b"]; len(b) != 2 || b[0] != 0 || b[1] != 2 {
		t.Errorf("b = %v, want [0 2]", b)
	}
	if keys := got.Keys(); len(keys) != 2 || keys[0] != "a" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}
