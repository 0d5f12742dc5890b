package supervisor

import (
	"context"
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cgraph"
	"github.com/chidori-ai/chidori/internal/executorreg"
)

func newTestSupervisor() *Supervisor {
	reg := executorreg.NewRegistry()
	reg.Register(cell.KindCode, executorreg.ExprCodeExecutor{})
	return New(cgraph.New(), reg)
}

func codeNode(id, source string, produces, consumes []string) *cell.OperationNode {
	sig := cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature(), Trigger: cell.TriggerOnChange}
	for _, p := range produces {
		sig.Output.Globals[p] = struct{}{}
	}
	for _, c := range consumes {
		sig.Input.Globals[c] = cell.SlotDefault{TypeHint: "any"}
	}
	return &cell.OperationNode{
		ID:        cell.OperationID(id),
		Cell:      cell.Cell{Kind: cell.KindCode, Name: id, Source: source},
		Signature: sig,
	}
}

func TestMutateCellDoesNotAutoRunWhilePaused(t *testing.T) {
	s := newTestSupervisor()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))

	if _, ok := s.Head().Binding("A"); ok {
		t.Fatalf("expected no binding while paused")
	}
}

func TestStepOnceRunsExactlyOneWave(t *testing.T) {
	s := newTestSupervisor()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))
	s.MutateCell(context.Background(), codeNode("B", "y = x + 1", []string{"y"}, []string{"x"}))

	if err := s.StepOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Head().Binding("A"); !ok {
		t.Fatalf("expected A to run in the first wave")
	}
	if _, ok := s.Head().Binding("B"); ok {
		t.Fatalf("expected B to not yet run (depends on A's freshness from the next wave)")
	}

	if err := s.StepOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Head().Binding("B"); !ok {
		t.Fatalf("expected B to run in the second wave")
	}
	if s.Playback() != Paused {
		t.Fatalf("expected playback to return to Paused after StepOnce")
	}
}

func TestResumeDrainsUntilQuiescent(t *testing.T) {
	s := newTestSupervisor()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))
	s.MutateCell(context.Background(), codeNode("B", "y = x + 1", []string{"y"}, []string{"x"}))

	if err := s.Resume(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Head().Binding("B"); !ok {
		t.Fatalf("expected B bound after draining to quiescence")
	}
	if s.Playback() != Paused {
		t.Fatalf("expected playback to settle back to Paused once nothing is runnable")
	}
}

func TestInvokeRejectsNonManualTarget(t *testing.T) {
	s := newTestSupervisor()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))

	if err := s.Invoke(context.Background(), "A"); err == nil {
		t.Fatalf("expected invoking a non-manual-trigger cell to be rejected")
	}
}

func TestInvokeRunsValidManualTarget(t *testing.T) {
	s := newTestSupervisor()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))
	_ = s.StepOnce(context.Background())

	manual := codeNode("M", "z = x + 1", []string{"z"}, []string{"x"})
	manual.Signature.Trigger = cell.TriggerManual
	s.MutateCell(context.Background(), manual)

	if err := s.Invoke(context.Background(), "M"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, ok := s.Head().Binding("M")
	if !ok {
		t.Fatalf("expected M to be bound after manual invocation")
	}
	n, _ := out.Value.AsInt()
	if n != 2 {
		t.Fatalf("expected 2, got %v", n)
	}
}

func TestRevertToStateRestoresEarlierHead(t *testing.T) {
	s := newTestSupervisor()
	root := s.Head()
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))
	_ = s.StepOnce(context.Background())

	if err := s.RevertToState(root.ChronologyID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Head().ChronologyID != root.ChronologyID {
		t.Fatalf("expected head to be restored to root")
	}
	if s.Playback() != Paused {
		t.Fatalf("expected playback to be Paused after revert")
	}
}

func TestStepBudgetExhaustionReturnsDispatchError(t *testing.T) {
	s := newTestSupervisor()
	s.maxSteps = 1
	s.MutateCell(context.Background(), codeNode("A", "x = 1", []string{"x"}, nil))
	s.MutateCell(context.Background(), codeNode("B", "y = x + 1", []string{"y"}, []string{"x"}))

	err := s.Resume(context.Background())
	if err == nil {
		t.Fatalf("expected step budget exhaustion to surface as an error")
	}
}
