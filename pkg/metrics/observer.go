package metrics

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
)

// Observer accumulates one family of metrics over a run.
//
// Observe is called once per solved timestep in registration order. After
// Finalize the observer is read-only and its accessors return results;
// before it they return a NOT_FINALIZED error.
type Observer interface {
	ID() uuid.UUID
	Name() string
	Observe(ctx context.Context, s *Step) error
	Finalize() error
}

// Env is the run-wide context every observer shares.
type Env struct {
	Index       *impact.Index
	Thresholds  Thresholds
	StepMinutes float64
	TotalSteps  int
	Logger      *log.Logger
}

// Validate checks that customer-weighted metrics can be computed.
func (e *Env) Validate() error {
	if e.Index == nil {
		return errors.New(errors.ErrCodeMissingImpactData, "no impact index")
	}
	if e.Index.TotalCustomers() == 0 {
		return errors.New(errors.ErrCodeMissingImpactData, "impact index has no customers; weighted metrics are undefined")
	}
	if e.StepMinutes <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "step_minutes must be positive, got %v", e.StepMinutes)
	}
	if e.TotalSteps <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "run has no timesteps")
	}
	if e.Thresholds == (Thresholds{}) {
		e.Thresholds = DefaultThresholds()
	}
	if e.Logger == nil {
		e.Logger = log.Default()
	}
	return nil
}

// weight returns the per-step increment factor for an asset:
// downstream/total * step minutes * 100 / total steps.
func (e *Env) weight(ids []string) float64 {
	return float64(len(ids)) / float64(e.Index.TotalCustomers()) * e.StepMinutes * 100 / float64(e.TotalSteps)
}

// Step carries one solved timestep to the observers. Producers (node, line,
// and transformer observers) publish impacted customers, per-customer
// violation depth, and losses on it for the consumers registered after them.
type Step struct {
	Time      time.Time
	Index     int
	Record    bool
	Converged bool
	Snapshot  *powerflow.Snapshot

	impacted         map[impact.Category]map[string]struct{}
	gamma            map[string]float64
	lineLossW        float64
	transformerLossW float64
	lossOfLife       float64
}

// NewStep wraps a snapshot for notification. Record marks a time-series
// recording step.
func NewStep(t time.Time, index int, record, converged bool, snap *powerflow.Snapshot) *Step {
	if snap == nil {
		snap = &powerflow.Snapshot{Time: t}
	}
	return &Step{
		Time:      t,
		Index:     index,
		Record:    record,
		Converged: converged,
		Snapshot:  snap,
		impacted:  make(map[impact.Category]map[string]struct{}),
		gamma:     make(map[string]float64),
	}
}

func (s *Step) markImpacted(c impact.Category, ids []string) {
	set := s.impacted[c]
	if set == nil {
		set = make(map[string]struct{}, len(ids))
		s.impacted[c] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

func (s *Step) raiseGamma(ids []string, g float64) {
	for _, id := range ids {
		if g > s.gamma[id] {
			s.gamma[id] = g
		}
	}
}

// Impacted returns the sorted customers downstream of a violating asset of
// category c at this step.
func (s *Step) Impacted(c impact.Category) []string {
	out := make([]string, 0, len(s.impacted[c]))
	for id := range s.impacted[c] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// impactedUnion counts customers impacted in any category.
func (s *Step) impactedUnion() int {
	union := make(map[string]struct{})
	for _, set := range s.impacted {
		for id := range set {
			union[id] = struct{}{}
		}
	}
	return len(union)
}

// Metric holds a result that only exists once its observer is finalized.
type Metric[T any] struct {
	name  string
	value T
	done  bool
}

// Get returns the value, or a NOT_FINALIZED error while accumulating.
func (m *Metric[T]) Get() (T, error) {
	if !m.done {
		var zero T
		return zero, errors.New(errors.ErrCodeNotFinalized, "%s is still accumulating; finalize the run first", m.name)
	}
	return m.value, nil
}

func (m *Metric[T]) set(v T) {
	m.value = v
	m.done = true
}

// base carries identity and lifecycle for observers.
type base struct {
	id        uuid.UUID
	name      string
	finalized bool
}

func newBase(name string) base {
	return base{id: uuid.New(), name: name}
}

func (b *base) ID() uuid.UUID { return b.id }
func (b *base) Name() string  { return b.name }

func (b *base) accumulating() error {
	if b.finalized {
		return errors.New(errors.ErrCodeInternal, "%s observed a step after Finalize", b.name)
	}
	return nil
}

// Subject notifies a run's observers. Each run owns its own Subject; nothing
// is shared between runs.
type Subject struct {
	observers []Observer
	logger    *log.Logger
}

// NewSubject creates an empty subject. A nil logger means log.Default().
func NewSubject(logger *log.Logger) *Subject {
	if logger == nil {
		logger = log.Default()
	}
	return &Subject{logger: logger}
}

// Attach registers o. An observer already attached is ignored and Attach
// returns false.
func (s *Subject) Attach(o Observer) bool {
	if s.find(o.ID()) >= 0 {
		return false
	}
	s.observers = append(s.observers, o)
	s.logger.Debug("attached observer", "name", o.Name(), "id", o.ID())
	return true
}

// Detach removes o and reports whether it was attached.
func (s *Subject) Detach(o Observer) bool {
	i := s.find(o.ID())
	if i < 0 {
		return false
	}
	s.observers = slices.Delete(s.observers, i, i+1)
	return true
}

func (s *Subject) find(id uuid.UUID) int {
	return slices.IndexFunc(s.observers, func(o Observer) bool { return o.ID() == id })
}

// Observers returns the attached observers in registration order.
func (s *Subject) Observers() []Observer { return slices.Clone(s.observers) }

// Notify passes step to every observer in registration order and stops at
// the first error.
func (s *Subject) Notify(ctx context.Context, step *Step) error {
	for _, o := range s.observers {
		if err := o.Observe(ctx, step); err != nil {
			return fmt.Errorf("%s at %s: %w", o.Name(), step.Time.Format(time.RFC3339), err)
		}
	}
	return nil
}

// Finalize finalizes every observer. All observers are attempted; their
// errors are joined.
func (s *Subject) Finalize() error {
	var errs []error
	for _, o := range s.observers {
		if err := o.Finalize(); err != nil {
			errs = append(errs, fmt.Errorf("finalize %s: %w", o.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}
