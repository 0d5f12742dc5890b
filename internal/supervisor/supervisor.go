// Package supervisor implements the Runtime Supervisor (spec.md
// §4.7): the single owner of "what state is the program currently at"
// and "what playback mode governs automatic dispatch", serializing all
// mutation, manual invocation, and step-budget enforcement through one
// goroutine-safe entry point.
//
// Grounded on internal/domain/types.go's ExecutionPhase enum
// (Planning/Executing/Paused/...), generalized from a single
// execution's lifecycle phase to the Playback state the spec names
// (Paused/Step/Running), and on
// internal/infrastructure/api/rest/handlers_executions.go's
// pause/resume endpoints, which name the operations this package
// actually implements (the teacher's handlers are stubs; this is
// where that behavior lives for real).
package supervisor

import (
	"context"
	"sync"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/cgraph"
	"github.com/chidori-ai/chidori/internal/cstate"
	"github.com/chidori-ai/chidori/internal/dispatch"
	"github.com/chidori-ai/chidori/internal/executorreg"
	"github.com/chidori-ai/chidori/internal/step"
	"github.com/chidori-ai/chidori/internal/workerpool"
)

// Playback is the Supervisor's automatic-dispatch mode.
type Playback string

const (
	// Paused: no automatic dispatch. MutateCell and manual invocation
	// still work; StepOnce advances exactly one wave.
	Paused Playback = "paused"
	// Step: run exactly one wave, then revert to Paused. Set by
	// StepOnce; callers never set it directly.
	Step Playback = "step"
	// Running: automatically dispatch waves until no operation is
	// runnable or the step budget is exhausted.
	Running Playback = "running"
)

// DefaultMaxStepsPerLineage bounds the waves a single Resume or
// StepOnce call drains, per spec.md
// §4.7's step budget: a lineage that never quiesces (e.g. two cells
// that keep invalidating each other) is stopped rather than spun
// forever.
const DefaultMaxStepsPerLineage = 10_000

// Supervisor owns the in-flight head state of one program lineage and
// the ExecutionGraph it publishes every new state into.
type Supervisor struct {
	mu       sync.Mutex
	graph    *cgraph.Graph
	registry *executorreg.Registry
	pool     *workerpool.Pool
	head     *cstate.ExecutionState
	playback Playback
	maxSteps int
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithMaxSteps overrides DefaultMaxStepsPerLineage.
func WithMaxSteps(n int) Option {
	return func(s *Supervisor) { s.maxSteps = n }
}

// WithPool overrides the default unbounded worker pool.
func WithPool(p *workerpool.Pool) Option {
	return func(s *Supervisor) { s.pool = p }
}

// New returns a Supervisor starting from an empty root state, Paused.
func New(graph *cgraph.Graph, registry *executorreg.Registry, opts ...Option) *Supervisor {
	s := &Supervisor{
		graph:    graph,
		registry: registry,
		pool:     workerpool.New(0),
		head:     cstate.Root(),
		playback: Paused,
		maxSteps: DefaultMaxStepsPerLineage,
	}
	for _, opt := range opts {
		opt(s)
	}
	graph.Insert(context.Background(), s.head)
	return s
}

// Head returns the current in-flight state.
func (s *Supervisor) Head() *cstate.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Playback returns the current playback mode.
func (s *Supervisor) Playback() Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback
}

// Pause switches playback to Paused; any in-flight drain loop observes
// this at the next wave boundary and stops.
func (s *Supervisor) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playback = Paused
}

// Resume switches playback to Running and drains runnable waves until
// none remain or the step budget is hit.
func (s *Supervisor) Resume(ctx context.Context) error {
	s.mu.Lock()
	s.playback = Running
	s.mu.Unlock()
	return s.drain(ctx)
}

// StepOnce runs exactly one wave (if any operation is runnable) and
// returns to Paused.
func (s *Supervisor) StepOnce(ctx context.Context) error {
	s.mu.Lock()
	s.playback = Step
	s.mu.Unlock()
	err := s.drain(ctx)
	s.mu.Lock()
	s.playback = Paused
	s.mu.Unlock()
	return err
}

// drain runs waves until playback is no longer Running/Step, no
// operation is runnable, or the step budget is exhausted.
func (s *Supervisor) drain(ctx context.Context) error {
	for steps := 0; ; steps++ {
		s.mu.Lock()
		mode := s.playback
		head := s.head
		s.mu.Unlock()

		if mode == Paused {
			return nil
		}
		if steps >= s.maxSteps {
			s.mu.Lock()
			s.playback = Paused
			s.mu.Unlock()
			return &cerr.DispatchError{Message: "step budget exhausted for this lineage"}
		}

		wave := dispatch.DispatchBatch(head)
		if len(wave) == 0 {
			s.mu.Lock()
			s.playback = Paused
			s.mu.Unlock()
			return nil
		}

		next, err := step.RunWaveConcurrentWithGraph(ctx, head, s.registry, s.graph, wave, s.pool)
		if err != nil {
			s.mu.Lock()
			s.playback = Paused
			s.mu.Unlock()
			return err
		}

		s.mu.Lock()
		s.head = next
		s.mu.Unlock()
		s.graph.Insert(ctx, next)

		if mode == Step {
			return nil
		}
	}
}

// MutateCell upserts op into the head state (creating it, or
// reconfiguring it if op.ID already exists) and publishes the
// resulting state, without advancing playback: a mutation under
// Paused stays paused until Resume/StepOnce is called, per spec.md
// §4.7's "editing never implicitly runs code" invariant.
func (s *Supervisor) MutateCell(ctx context.Context, op *cell.OperationNode) {
	s.mu.Lock()
	next := s.head.WithMutation(op)
	s.head = next
	s.mu.Unlock()
	s.graph.Insert(ctx, next)
}

// RemoveCell removes id from the head state.
func (s *Supervisor) RemoveCell(ctx context.Context, id cell.OperationID) {
	s.mu.Lock()
	next := s.head.WithRemoval(id)
	s.head = next
	s.mu.Unlock()
	s.graph.Insert(ctx, next)
}

// Invoke manually runs a Manual-trigger operation regardless of
// playback mode, provided it is presently a valid manual target
// (dispatch.ValidManualTargets). The resulting state becomes the new
// head and is published to the graph.
func (s *Supervisor) Invoke(ctx context.Context, op cell.OperationID) error {
	s.mu.Lock()
	head := s.head
	s.mu.Unlock()

	valid := false
	for _, id := range dispatch.ValidManualTargets(head) {
		if id == op {
			valid = true
			break
		}
	}
	if !valid {
		return &cerr.DispatchError{Message: "operation is not a valid manual invocation target: " + string(op)}
	}

	next, err := step.RunWithGraph(ctx, head, s.registry, s.graph, op)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.head = next
	s.mu.Unlock()
	s.graph.Insert(ctx, next)
	return nil
}

// RevertToState moves the in-flight head back to a previously
// published state (spec.md §4.7's revert-and-re-run scenario),
// without deleting anything: the ExecutionGraph keeps every state
// that was ever inserted, so a revert is just re-pointing head, and
// a subsequent mutation or step begins a new branch from there.
func (s *Supervisor) RevertToState(chronologyID string) error {
	target, err := s.graph.Get(chronologyID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = target
	s.playback = Paused
	return nil
}
