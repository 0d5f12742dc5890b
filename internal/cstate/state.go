// Package cstate implements ExecutionState (spec.md §3), the
// immutable snapshot at the heart of the execution graph: cells-by-id,
// dependency graph, value bindings, and the enclosure marker.
//
// Grounded on internal/domain/execution_state.go's ExecutionState
// aggregate (executionID/workflowID/variables/nodeStates) and
// go/pkg/engine/execution_state_subworkflow_test.go's
// ParentExecutionID/ParentNodeID/ItemIndex fields, which ground the
// Open/Close enclosure bracketing (generalized from "sub-workflow
// fan-out item" to "function-call sub-execution frame"). Unlike the
// teacher's mutable aggregate, ExecutionState here is immutable after
// publication (spec.md §3 invariant): every transition clones the
// structural parts that do not change and replaces only what changed,
// never mutates a published state in place.
package cstate

import (
	"github.com/google/uuid"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/resolver"
)

// EnclosureKind discriminates EvaluatingEnclosedState.
type EnclosureKind string

const (
	EnclosureSelfContained EnclosureKind = "self_contained"
	EnclosureOpen          EnclosureKind = "open"
	EnclosureClose         EnclosureKind = "close"
)

// CloseReason discriminates why a Close state was produced.
type CloseReason string

const (
	CloseComplete CloseReason = "complete"
	CloseError    CloseReason = "error"
)

// EnclosedState is the evaluating_enclosed_state field: SelfContained,
// Open(parent_id), or Close(reason, opener_id).
type EnclosedState struct {
	Kind EnclosureKind

	// ParentStateChronologyID is set when Kind == EnclosureOpen: the
	// chronology_id of the state that issued the function call.
	ParentStateChronologyID string

	// Reason and OpenerID are set when Kind == EnclosureClose.
	Reason   CloseReason
	OpenerID string
}

func SelfContained() EnclosedState { return EnclosedState{Kind: EnclosureSelfContained} }

func Open(parentStateChronologyID string) EnclosedState {
	return EnclosedState{Kind: EnclosureOpen, ParentStateChronologyID: parentStateChronologyID}
}

func Close(reason CloseReason, openerID string) EnclosedState {
	return EnclosedState{Kind: EnclosureClose, Reason: reason, OpenerID: openerID}
}

// OperationOutput is a cell's last known output: a Result<Value, Error>
// plus captured stdout/stderr, and an optional execution_state
// side-channel for operations (e.g. Memory writes, function-call
// entry) that mutate state as a side effect of producing output.
type OperationOutput struct {
	Value       chidorival.Value
	Err         error
	Stdout      []string
	Stderr      []string
	SideChannel string // chronology_id of a side-effect state, if any
}

// IsError reports whether this output represents a failed execution.
func (o OperationOutput) IsError() bool { return o.Err != nil }

// ExecutionState is an immutable snapshot. See spec.md §3 for the full
// field list and invariants.
type ExecutionState struct {
	ChronologyID             string
	ParentStateChronologyID  string
	OperationByID            map[cell.OperationID]*cell.OperationNode
	CellsByID                map[cell.OperationID]cell.Cell
	DependencyGraph          *resolver.Graph
	StateBindings            map[cell.OperationID]OperationOutput
	FreshValues              map[cell.OperationID]struct{}
	ExecCounter              map[cell.OperationID]uint64
	EvaluatingFn             *string
	EvaluatingArguments      *chidorival.Value
	EvaluatingEnclosedState  EnclosedState
	ResolvingExecutionNodeStateID string

	// creationOrder is the fixed iteration order operations were
	// inserted in, used by the resolver for deterministic producer
	// shadowing and by the dispatcher for topological tie-breaks.
	creationOrder []cell.OperationID
}

// NewChronologyID mints a UUID v7 chronology id: monotone by creation
// time, per spec.md §3 and the strict-monotonicity invariant in §8.
func NewChronologyID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only errors if the system clock/random source is
		// unavailable; fall back to a V4 id rather than panic, since a
		// unique-but-unordered id is still safe for correctness (only
		// the monotonicity invariant would degrade).
		return uuid.NewString()
	}
	return id.String()
}

// Root returns the empty initial ExecutionState for a new program: no
// operations, no bindings, SelfContained enclosure, no parent.
func Root() *ExecutionState {
	return &ExecutionState{
		ChronologyID:            NewChronologyID(),
		OperationByID:           map[cell.OperationID]*cell.OperationNode{},
		CellsByID:               map[cell.OperationID]cell.Cell{},
		DependencyGraph:         resolver.Resolve(nil),
		StateBindings:           map[cell.OperationID]OperationOutput{},
		FreshValues:             map[cell.OperationID]struct{}{},
		ExecCounter:             map[cell.OperationID]uint64{},
		EvaluatingEnclosedState: SelfContained(),
	}
}

// OrderedOperations returns this state's operations in their fixed
// creation order, the sequence the resolver and dispatcher depend on.
func (s *ExecutionState) OrderedOperations() resolver.OrderedOperations {
	out := make(resolver.OrderedOperations, 0, len(s.creationOrder))
	for _, id := range s.creationOrder {
		if op, ok := s.OperationByID[id]; ok {
			out = append(out, op)
		}
	}
	return out
}

// IsFresh reports whether op is in the dirty set.
func (s *ExecutionState) IsFresh(op cell.OperationID) bool {
	_, ok := s.FreshValues[op]
	return ok
}

// Binding returns the last known output for op, if any.
func (s *ExecutionState) Binding(op cell.OperationID) (OperationOutput, bool) {
	out, ok := s.StateBindings[op]
	return out, ok
}

// clone performs a shallow structural copy: maps are copied
// (single-level, values are either immutable or themselves copy-on
// write), so mutating the clone's top-level maps never affects s.
func (s *ExecutionState) clone() *ExecutionState {
	next := &ExecutionState{
		ChronologyID:                  NewChronologyID(),
		ParentStateChronologyID:       s.ChronologyID,
		OperationByID:                 make(map[cell.OperationID]*cell.OperationNode, len(s.OperationByID)),
		CellsByID:                     make(map[cell.OperationID]cell.Cell, len(s.CellsByID)),
		DependencyGraph:               s.DependencyGraph,
		StateBindings:                 make(map[cell.OperationID]OperationOutput, len(s.StateBindings)),
		FreshValues:                   make(map[cell.OperationID]struct{}, len(s.FreshValues)),
		ExecCounter:                   make(map[cell.OperationID]uint64, len(s.ExecCounter)),
		EvaluatingFn:                  s.EvaluatingFn,
		EvaluatingArguments:           s.EvaluatingArguments,
		EvaluatingEnclosedState:       SelfContained(),
		ResolvingExecutionNodeStateID: "",
		creationOrder:                 append([]cell.OperationID(nil), s.creationOrder...),
	}
	for k, v := range s.OperationByID {
		next.OperationByID[k] = v
	}
	for k, v := range s.CellsByID {
		next.CellsByID[k] = v
	}
	for k, v := range s.StateBindings {
		next.StateBindings[k] = v
	}
	for k := range s.FreshValues {
		next.FreshValues[k] = struct{}{}
	}
	for k, v := range s.ExecCounter {
		next.ExecCounter[k] = v
	}
	return next
}

// WithMutation returns a new state with op upserted into
// OperationByID/CellsByID and the dependency graph re-resolved. This
// is the structural half of the Supervisor's MutateCell semantics
// (spec.md §4.7 step (iv)): the reconfigured cell's own output binding
// and exec_counter are cleared, seeding it as absent exactly as if it
// had never run, and the op itself plus every transitive downstream
// consumer is added to FreshValues. Removing a cell (WithRemoval), by
// contrast, preserves its last binding (Open Question 1's resolution)
// — this distinction only applies to reconfiguring an existing op in
// place.
func (s *ExecutionState) WithMutation(op *cell.OperationNode) *ExecutionState {
	next := s.clone()
	if _, existed := next.OperationByID[op.ID]; !existed {
		next.creationOrder = append(next.creationOrder, op.ID)
	}
	next.OperationByID[op.ID] = op
	next.CellsByID[op.ID] = op.Cell
	next.DependencyGraph = resolver.Resolve(next.OrderedOperations())

	delete(next.StateBindings, op.ID)
	delete(next.ExecCounter, op.ID)

	next.FreshValues[op.ID] = struct{}{}
	for _, id := range transitiveConsumers(next.DependencyGraph, op.ID) {
		next.FreshValues[id] = struct{}{}
	}
	return next
}

// WithRemoval returns a new state with op removed from OperationByID
// and CellsByID. Its last known binding in StateBindings is preserved
// (Open Question 1's resolution) so downstream consumers can still
// display it; the dependency graph is re-resolved, which naturally
// drops any edges that referenced the removed operation as producer or
// consumer.
func (s *ExecutionState) WithRemoval(id cell.OperationID) *ExecutionState {
	next := s.clone()
	delete(next.OperationByID, id)
	delete(next.CellsByID, id)
	filtered := next.creationOrder[:0:0]
	for _, existing := range next.creationOrder {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	next.creationOrder = filtered
	next.DependencyGraph = resolver.Resolve(next.OrderedOperations())
	return next
}

// WithCompletion returns the next state after operation v completes
// with out (spec.md §4.4 step 4): replace v's binding, update the
// dirty set (remove the producers v just consumed, add v itself if it
// produced a non-error output), increment exec_counter[v], and set
// SelfContained enclosure (callers that need Open/Close use
// WithOpen/WithClose instead).
func (s *ExecutionState) WithCompletion(v cell.OperationID, out OperationOutput) *ExecutionState {
	next := s.clone()
	next.StateBindings[v] = out
	next.ExecCounter[v] = s.ExecCounter[v] + 1

	for _, producer := range next.DependencyGraph.Producers(v) {
		delete(next.FreshValues, producer)
	}
	if !out.IsError() {
		next.FreshValues[v] = struct{}{}
	} else {
		delete(next.FreshValues, v)
	}
	next.EvaluatingEnclosedState = SelfContained()
	return next
}

// WithOpen returns the Open state that begins a function-call
// sub-execution (spec.md §4.5 step 1): evaluating_fn/arguments are
// set, state_bindings are inherited, and the callee's inputs are
// overlaid from arguments by the caller before dispatch proceeds in
// the new sub-graph.
func (s *ExecutionState) WithOpen(fn string, args chidorival.Value) *ExecutionState {
	next := s.clone()
	next.EvaluatingFn = &fn
	next.EvaluatingArguments = &args
	next.EvaluatingEnclosedState = Open(s.ChronologyID)
	return next
}

// WithClose returns the Close state that resolves an Open: it sets the
// Close enclosure and resolving_execution_node_state_id pointing back
// at the opener, and leaves bindings unchanged (enclosure.Close folds
// the callee's return value into the caller before calling it).
func (s *ExecutionState) WithClose(reason CloseReason, openerID string) *ExecutionState {
	next := s.clone()
	next.EvaluatingEnclosedState = Close(reason, openerID)
	next.ResolvingExecutionNodeStateID = openerID
	return next
}

// transitiveConsumers walks g forward from id, returning every
// operation transitively reachable as a consumer (used by
// WithMutation to clear freshness markers for the whole downstream
// fan-out of a changed cell, not just its direct consumers).
func transitiveConsumers(g *resolver.Graph, id cell.OperationID) []cell.OperationID {
	visited := map[cell.OperationID]struct{}{}
	var out []cell.OperationID
	queue := []cell.OperationID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Outbound(cur) {
			if _, ok := visited[e.To]; ok {
				continue
			}
			visited[e.To] = struct{}{}
			out = append(out, e.To)
			queue = append(queue, e.To)
		}
	}
	return out
}

// ErrStateLookup wraps a missing chronology id as the taxonomy member
// named in spec.md §7.
func ErrStateLookup(id string) error {
	return &cerr.StateLookupError{ChronologyID: id}
}
