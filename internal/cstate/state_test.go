package cstate

import (
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

func opNode(id string, produces []string, consumes []string) *cell.OperationNode {
	sig := cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature()}
	for _, p := range produces {
		sig.Output.Globals[p] = struct{}{}
	}
	for _, c := range consumes {
		sig.Input.Globals[c] = cell.SlotDefault{TypeHint: "any"}
	}
	return &cell.OperationNode{ID: cell.OperationID(id), Signature: sig}
}

func TestRootStateIsEmptyAndSelfContained(t *testing.T) {
	s := Root()
	if len(s.OperationByID) != 0 {
		t.Fatalf("expected empty root state")
	}
	if s.EvaluatingEnclosedState.Kind != EnclosureSelfContained {
		t.Fatalf("expected root state self-contained, got %+v", s.EvaluatingEnclosedState)
	}
	if s.ChronologyID == "" {
		t.Fatalf("expected a minted chronology id")
	}
}

func TestWithMutationAppendsAndResolves(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	s1 := root.WithMutation(a)
	if len(s1.OperationByID) != 1 {
		t.Fatalf("expected 1 operation after mutation")
	}
	if s1.ChronologyID == root.ChronologyID {
		t.Fatalf("expected a new chronology id for the mutated state")
	}
	if s1.ParentStateChronologyID != root.ChronologyID {
		t.Fatalf("expected parent pointer back to root")
	}

	b := opNode("B", nil, []string{"x"})
	s2 := s1.WithMutation(b)
	if len(s2.DependencyGraph.Edges()) != 1 {
		t.Fatalf("expected dependency graph to pick up the new edge, got %v", s2.DependencyGraph.Edges())
	}

	// s1 must remain unmodified (immutability).
	if len(s1.OperationByID) != 1 {
		t.Fatalf("mutating a derived state must not affect its parent")
	}
}

func TestWithMutationMarksDownstreamFresh(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	b := opNode("B", []string{"y"}, []string{"x"})
	s := root.WithMutation(a)
	s = s.WithMutation(b)

	// Simulate both having executed and gone stale (no fresh markers).
	s.FreshValues = map[cell.OperationID]struct{}{}

	reconfiguredA := opNode("A", []string{"x"}, nil)
	reconfiguredA.Cell.Source = "changed"
	s2 := s.WithMutation(reconfiguredA)

	if !s2.IsFresh("A") {
		t.Fatalf("expected the mutated cell itself to be marked fresh")
	}
	if !s2.IsFresh("B") {
		t.Fatalf("expected the downstream consumer to be marked fresh after upstream mutation")
	}
}

func TestWithMutationResetsBindingAndExecCounter(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	s := root.WithMutation(a)
	s = s.WithCompletion("A", OperationOutput{Value: chidorival.Int(1)})
	if s.ExecCounter["A"] != 1 {
		t.Fatalf("expected exec counter 1 before reconfiguration")
	}

	reconfigured := opNode("A", []string{"x"}, nil)
	reconfigured.Cell.Source = "changed"
	s2 := s.WithMutation(reconfigured)

	if _, ok := s2.Binding("A"); ok {
		t.Fatalf("expected a reconfigured cell's binding to be seeded as absent")
	}
	if s2.ExecCounter["A"] != 0 {
		t.Fatalf("expected exec counter reset to 0, got %d", s2.ExecCounter["A"])
	}
}

func TestWithRemovalPreservesBinding(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	s := root.WithMutation(a)
	s = s.WithCompletion("A", OperationOutput{Value: chidorival.Int(1)})

	s2 := s.WithRemoval("A")
	if _, exists := s2.OperationByID["A"]; exists {
		t.Fatalf("expected A to be removed from OperationByID")
	}
	out, ok := s2.Binding("A")
	if !ok {
		t.Fatalf("expected A's binding to be preserved after removal")
	}
	if !out.Value.Equal(chidorival.Int(1)) {
		t.Fatalf("expected preserved binding to be unchanged")
	}
}

func TestWithCompletionUpdatesFreshSetAndCounter(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	b := opNode("B", []string{"y"}, []string{"x"})
	s := root.WithMutation(a)
	s = s.WithMutation(b)

	s = s.WithCompletion("A", OperationOutput{Value: chidorival.Int(1)})
	if !s.IsFresh("A") {
		t.Fatalf("expected A fresh after a successful completion")
	}
	if s.ExecCounter["A"] != 1 {
		t.Fatalf("expected exec counter to increment, got %d", s.ExecCounter["A"])
	}

	s = s.WithCompletion("B", OperationOutput{Value: chidorival.Int(2)})
	if s.IsFresh("A") {
		t.Fatalf("expected A's freshness consumed once B (its consumer) completes")
	}
	if !s.IsFresh("B") {
		t.Fatalf("expected B fresh after its own successful completion")
	}
}

func TestWithCompletionErrorDoesNotMarkFresh(t *testing.T) {
	root := Root()
	a := opNode("A", []string{"x"}, nil)
	s := root.WithMutation(a)
	s = s.WithCompletion("A", OperationOutput{Err: ErrStateLookup("missing")})
	if s.IsFresh("A") {
		t.Fatalf("expected a failed completion to not mark the operation fresh")
	}
	if !s.StateBindings["A"].IsError() {
		t.Fatalf("expected the binding to record the error")
	}
}

func TestWithOpenAndWithCloseRoundTrip(t *testing.T) {
	root := Root()
	arg := chidorival.String("hello")
	opened := root.WithOpen("callee", arg)
	if opened.EvaluatingEnclosedState.Kind != EnclosureOpen {
		t.Fatalf("expected Open enclosure, got %+v", opened.EvaluatingEnclosedState)
	}
	if opened.EvaluatingEnclosedState.ParentStateChronologyID != root.ChronologyID {
		t.Fatalf("expected open state to reference its opener")
	}
	if opened.EvaluatingFn == nil || *opened.EvaluatingFn != "callee" {
		t.Fatalf("expected evaluating_fn to be set to callee")
	}

	closed := opened.WithClose(CloseComplete, root.ChronologyID)
	if closed.EvaluatingEnclosedState.Kind != EnclosureClose {
		t.Fatalf("expected Close enclosure, got %+v", closed.EvaluatingEnclosedState)
	}
	if closed.ResolvingExecutionNodeStateID != root.ChronologyID {
		t.Fatalf("expected resolving id to point back at the opener")
	}
}

func TestOrderedOperationsPreservesCreationOrder(t *testing.T) {
	root := Root()
	s := root.WithMutation(opNode("B", nil, nil))
	s = s.WithMutation(opNode("A", nil, nil))
	ops := s.OrderedOperations()
	if len(ops) != 2 || ops[0].ID != "B" || ops[1].ID != "A" {
		t.Fatalf("expected creation order B,A preserved, got %v", ops)
	}
}
