package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		level     log.Level
		want      []string
		wantStart bool
	}{
		{
			name:  "info",
			level: log.InfoLevel,
			want:  []string{"stage done", "stage=index", "customers=2", "cached=false", "elapsed="},
		},
		{
			name:      "verbose",
			level:     log.DebugLevel,
			want:      []string{"stage done", "stage=index"},
			wantStart: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prog := newProgress(newLogger(&buf, tt.level), "index")
			if got := strings.Contains(buf.String(), "stage started"); got != tt.wantStart {
				t.Errorf("start logged = %v, want %v", got, tt.wantStart)
			}
			if elapsed := prog.done("customers", 2, "cached", false); elapsed < 0 {
				t.Errorf("done() = %v, want >= 0", elapsed)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("log = %q, want %q", buf.String(), w)
				}
			}
		})
	}
}

func TestAnalyzeLogsStages(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir)

	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.getenv = func(string) string { return "" }
	err := execute(t, c, "analyze",
		"--assets", filepath.Join(dir, assetsFile),
		"--snapshots", filepath.Join(dir, snapshotsFile),
		"--out", filepath.Join(dir, "reports"), "--no-cache", "--no-store")
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	for _, w := range []string{"stage=analyze", "scenario=base", "steps=4"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("log = %q, want %q", buf.String(), w)
		}
	}
	if strings.Contains(buf.String(), "stage started") {
		t.Errorf("log = %q, want no debug lines at info level", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, log.InfoLevel)

	if got := loggerFromContext(withLogger(context.Background(), l)); got != l {
		t.Errorf("loggerFromContext() = %p, want %p", got, l)
	}
	if got := loggerFromContext(context.Background()); got != log.Default() {
		t.Errorf("loggerFromContext(empty) = %p, want log.Default()", got)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.Logger.Debug("hidden")
	c.SetLogLevel(LogDebug)
	c.Logger.Debug("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("log = %q, want only the message logged after --verbose", buf.String())
	}
}
