package powerflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matzehuels/gridrisk/pkg/errors"
)

// maxLineSize bounds one JSON line of a replay file.
const maxLineSize = 64 << 20

// ReplaySolver answers Solve from snapshots recorded by an external solver.
// It is not safe for concurrent use; each run owns its own replay.
type ReplaySolver struct {
	byTime  map[time.Time]*Snapshot
	times   []time.Time
	inv     Inventory
	current *Snapshot
}

var _ Solver = (*ReplaySolver)(nil)

// NewReplaySolver reads one JSON snapshot per line from r. Blank lines are
// skipped and every snapshot must pass [Snapshot.Validate]. The inventory is
// taken from the first snapshot.
func NewReplaySolver(r io.Reader) (*ReplaySolver, error) {
	s := &ReplaySolver{byTime: make(map[time.Time]*Snapshot)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "snapshot line %d", line)
		}
		if err := snap.Validate(); err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "snapshot line %d: %s", line, errors.UserMessage(err))
		}
		key := snap.Time.UTC()
		if _, dup := s.byTime[key]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "snapshot line %d repeats time %s", line, key.Format(time.RFC3339))
		}
		if len(s.times) == 0 {
			s.inv = InventoryOf(&snap)
		}
		s.byTime[key] = &snap
		s.times = append(s.times, key)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	if len(s.times) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no snapshots to replay")
	}
	return s, nil
}

// OpenReplay opens a JSON-lines snapshot file.
func OpenReplay(path string) (*ReplaySolver, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "snapshot file %s not found", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()
	return NewReplaySolver(f)
}

// Solve selects the snapshot recorded at t. A timestep that was never
// recorded is an error.
func (s *ReplaySolver) Solve(ctx context.Context, t time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	snap, ok := s.byTime[t.UTC()]
	if !ok {
		return false, errors.New(errors.ErrCodeNotFound, "no snapshot recorded for %s", t.UTC().Format(time.RFC3339))
	}
	s.current = snap
	return snap.Converged, nil
}

// Snapshot returns the snapshot selected by the last Solve, or nil.
func (s *ReplaySolver) Snapshot() *Snapshot { return s.current }

// Inventory returns the element names of the first snapshot.
func (s *ReplaySolver) Inventory() Inventory { return s.inv }

// Times returns the recorded timestamps in file order.
func (s *ReplaySolver) Times() []time.Time { return s.times }
