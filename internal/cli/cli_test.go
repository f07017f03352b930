package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
)

const feederJSON = `{
  "lines": {
    "HT_line": {
      "attributes": [{"shape_id": "1", "id": "ht_sa", "rated_amps": 100}],
      "coordinates": [{"shape_id": "1", "x": 0, "y": 0}, {"shape_id": "1", "x": 100, "y": 0}]
    },
    "LT_line": {
      "attributes": [{"shape_id": "7", "id": "lt_bc"}, {"shape_id": "8", "id": "lt_bd"}],
      "coordinates": [
        {"shape_id": "7", "x": 100, "y": 5}, {"shape_id": "7", "x": 150, "y": 5},
        {"shape_id": "8", "x": 100, "y": 5}, {"shape_id": "8", "x": 100, "y": 50}
      ]
    }
  },
  "distribution_transformers": [{"id": "dt_1", "x": 100, "y": 2, "kva": 100}],
  "power_transformer": {"id": "pt", "x": -10, "y": 0},
  "lt_loads": [
    {"id": "c1", "x": 150, "y": 8, "kw": 10, "phase": "R"},
    {"id": "c2", "x": 100, "y": 53, "kw": 5, "phase": "Y"}
  ]
}`

func snapshotsJSONL(n int) string {
	t0 := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, `{"time":%q,"converged":true,"buses":[{"name":"ht_1","pu":[1.0]}],`+
			`"lines":[{"name":"lt_bc","currents":[150],"rated_amps":100,"p_from":10,"p_to":-9.9,"loss_w":100}],`+
			`"transformers":[{"name":"dt_1","currents":[10],"rated_amps":100,"p_from":15,"p_to":-14.9,"loss_w":100}],`+
			`"circuit":{"power_kw":-15,"loss_w":200}}`+"\n", t0.Add(time.Duration(i)*15*time.Minute).Format(time.RFC3339))
	}
	return b.String()
}

func writeScenario(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, assetsFile), []byte(feederJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotsFile), []byte(snapshotsJSONL(4)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testCLI() *CLI {
	c := New(io.Discard, LogInfo)
	c.getenv = func(string) string { return "" }
	return c
}

func execute(t *testing.T, c *CLI, args ...string) error {
	t.Helper()
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestOutDir(t *testing.T) {
	withDir := config.Default()
	withDir.Export.Dir = "from-config"

	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "from-flag", withDir, "from-flag"},
		{"config", "", withDir, "from-config"},
		{"default", "", config.Default(), defaultOutDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outDir(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("outDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadConfigEnv(t *testing.T) {
	c := testCLI()
	c.getenv = func(key string) string {
		if key == config.EnvMongoURI {
			return "mongodb://db:27017"
		}
		return ""
	}
	cfg, err := c.loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Store.MongoURI != "mongodb://db:27017" {
		t.Errorf("Store.MongoURI = %q, want the environment override", cfg.Store.MongoURI)
	}

	if _, err := c.loadConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("loadConfig(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestDiscoverScenarios(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, filepath.Join(root, "peak"))
	writeScenario(t, filepath.Join(root, "base"))
	writeScenario(t, filepath.Join(root, ".hidden"))
	if err := os.MkdirAll(filepath.Join(root, "incomplete"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := discoverScenarios(root)
	if err != nil {
		t.Fatalf("discoverScenarios() error: %v", err)
	}
	if len(got) != 2 || got[0].name != "base" || got[1].name != "peak" {
		t.Errorf("discoverScenarios() = %+v, want [base peak]", got)
	}

	if _, err := discoverScenarios(filepath.Join(root, "incomplete")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("discoverScenarios(empty) error = %v, want NOT_FOUND", err)
	}
	if _, err := discoverScenarios(filepath.Join(root, "nope")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("discoverScenarios(missing) error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir)
	out := filepath.Join(dir, "reports")

	err := execute(t, testCLI(), "analyze",
		"--assets", filepath.Join(dir, assetsFile),
		"--snapshots", filepath.Join(dir, snapshotsFile),
		"--out", out, "--no-cache", "--no-store")
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	for _, name := range []string{"LLRI.csv", "System.csv", "convergence_report.csv"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestIndexThenAnalyze(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir)
	indexDir := filepath.Join(dir, "index")

	c := testCLI()
	if err := execute(t, c, "index", "build", "--assets", filepath.Join(dir, assetsFile),
		"--out", indexDir, "--verify", "--no-cache"); err != nil {
		t.Fatalf("index build error: %v", err)
	}
	err := execute(t, c, "analyze", "--index", indexDir,
		"--snapshots", filepath.Join(dir, snapshotsFile),
		"--out", filepath.Join(dir, "reports"), "--no-cache", "--no-store")
	if err != nil {
		t.Fatalf("analyze --index error: %v", err)
	}
}

func TestBatchCommand(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, filepath.Join(root, "runs", "a"))
	writeScenario(t, filepath.Join(root, "runs", "b"))
	out := filepath.Join(root, "reports")

	err := execute(t, testCLI(), "batch", "--scenarios", filepath.Join(root, "runs"),
		"--out", out, "--workers", "2", "--no-cache", "--no-store")
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	for _, sc := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(out, sc, "LLRI.csv")); err != nil {
			t.Errorf("scenario %s: %v", sc, err)
		}
	}

	err = execute(t, testCLI(), "batch", "--scenarios", filepath.Join(root, "runs"), "--workers", "64", "--no-store")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("batch --workers 64 error = %v, want INVALID_INPUT", err)
	}
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"topology without assets", []string{"topology", "build"}},
		{"index without out", []string{"index", "build", "--assets", "a.json"}},
		{"analyze without snapshots", []string{"analyze", "--assets", "missing.json"}},
		{"batch without scenarios", []string{"batch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := execute(t, testCLI(), tt.args...); err == nil {
				t.Errorf("%v succeeded, want error", tt.args)
			}
		})
	}
}
