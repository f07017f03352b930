// Package cli implements the gridrisk command-line interface.
//
// Commands are cobra commands sharing one [CLI]:
//   - topology build: build the feeder graph from an asset file
//   - index build: build, verify and save the customer impact index
//   - analyze: run one scenario and write its reports
//   - batch: run every scenario under a directory in parallel
//   - cache: manage the impact index cache
//
// Structured logs go to stderr through charmbracelet/log; --verbose
// enables debug level. Summaries go to stdout.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress times one pipeline stage of a command.
type progress struct {
	logger *log.Logger
	stage  string
	start  time.Time
}

// newProgress starts timing stage. The start is logged at debug level.
func newProgress(l *log.Logger, stage string) *progress {
	l.Debug("stage started", "stage", stage)
	return &progress{logger: l, stage: stage, start: time.Now()}
}

// done logs the stage with keyvals and the elapsed time, rounded to the
// millisecond, e.g. "stage done stage=index customers=2 elapsed=4ms".
func (p *progress) done(keyvals ...any) time.Duration {
	elapsed := time.Since(p.start).Round(time.Millisecond)
	fields := make([]any, 0, len(keyvals)+4)
	fields = append(fields, "stage", p.stage)
	fields = append(fields, keyvals...)
	fields = append(fields, "elapsed", elapsed)
	p.logger.Info("stage done", fields...)
	return elapsed
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the command logger, or log.Default when the
// root command did not attach one.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
