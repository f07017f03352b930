package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// spinner animates one status line on w while a long check runs. The
// animation ends when ctx is cancelled or finish is called.
type spinner struct {
	w       io.Writer
	message string
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func startSpinner(ctx context.Context, w io.Writer, message string) *spinner {
	s := &spinner{
		w:       w,
		message: message,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *spinner) run(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			fmt.Fprintf(s.w, "\r%s %s", StyleHighlight.Render(frame), StyleDim.Render(s.message))
		}
	}
}

// finish clears the animated line and replaces it with the outcome: ok
// with a success mark when err is nil, the error's message otherwise.
// Calling it more than once is safe.
func (s *spinner) finish(err error, ok string) {
	s.once.Do(func() {
		close(s.stop)
		<-s.stopped
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
		if err != nil {
			writeStatus(s.w, markFail, styleFail, errors.UserMessage(err))
			return
		}
		writeStatus(s.w, markOK, styleOK, ok)
	})
}

// verifyIndex rechecks every downstream set of idx against graph search
// while a spinner runs on w.
func verifyIndex(ctx context.Context, w io.Writer, g *topology.Graph, idx *impact.Index) error {
	spin := startSpinner(ctx, w, "Verifying downstream sets...")
	err := idx.Verify(g)
	spin.finish(err, "Every downstream set matches graph search")
	return err
}
