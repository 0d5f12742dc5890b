package dispatch

import (
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/cstate"
)

func opNode(id string, produces []string, consumes []string, trigger cell.TriggerMode) *cell.OperationNode {
	sig := cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature(), Trigger: trigger}
	for _, p := range produces {
		sig.Output.Globals[p] = struct{}{}
	}
	for _, c := range consumes {
		sig.Input.Globals[c] = cell.SlotDefault{TypeHint: "any"}
	}
	return &cell.OperationNode{ID: cell.OperationID(id), Signature: sig}
}

func TestSourceCellRunnableOnlyUntilFirstRun(t *testing.T) {
	s := cstate.Root().WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))
	if !Runnable(s, "A") {
		t.Fatalf("expected a fresh source cell to be runnable")
	}
	s = s.WithCompletion("A", cstate.OperationOutput{Value: chidorival.Int(1)})
	if Runnable(s, "A") {
		t.Fatalf("expected a source cell to not re-run automatically after completing once")
	}
}

func TestConsumerRunnableOnlyWhenProducerFresh(t *testing.T) {
	s := cstate.Root().WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("B", nil, []string{"x"}, cell.TriggerOnChange))

	if Runnable(s, "B") {
		t.Fatalf("expected B to not be runnable before A has produced a value")
	}
	s = s.WithCompletion("A", cstate.OperationOutput{Value: chidorival.Int(1)})
	if !Runnable(s, "B") {
		t.Fatalf("expected B to be runnable once A is fresh")
	}
	s = s.WithCompletion("B", cstate.OperationOutput{Value: chidorival.Int(2)})
	if Runnable(s, "B") {
		t.Fatalf("expected B to not be runnable again until A changes")
	}
}

func TestManualTriggerNeverAutoDispatches(t *testing.T) {
	s := cstate.Root().WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("M", nil, []string{"x"}, cell.TriggerManual))
	s = s.WithCompletion("A", cstate.OperationOutput{Value: chidorival.Int(1)})

	if Runnable(s, "M") {
		t.Fatalf("expected a manual-trigger cell to never be automatically runnable")
	}
	targets := ValidManualTargets(s)
	if len(targets) != 1 || targets[0] != "M" {
		t.Fatalf("expected M to be a valid manual target, got %v", targets)
	}
}

func TestErrorBindingBlocksDownstreamDispatch(t *testing.T) {
	s := cstate.Root().WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("B", nil, []string{"x"}, cell.TriggerOnChange))
	s = s.WithCompletion("A", cstate.OperationOutput{Err: cstate.ErrStateLookup("boom")})

	if Runnable(s, "B") {
		t.Fatalf("expected B to stay blocked while its producer's binding is an error")
	}
}

func TestDispatchOrdersByAscendingExecCounterFirst(t *testing.T) {
	// P and B complete once (exec_counter 1, B still fresh); Z is a
	// brand new consumer of B's output created afterwards (exec_counter
	// 0). Z sits one topological layer below B (layer 2 vs 1) and sorts
	// after it lexicographically, so only the exec_counter rule can
	// place Z first.
	s := cstate.Root()
	s = s.WithMutation(opNode("P", []string{"p"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("B", []string{"y"}, []string{"p"}, cell.TriggerOnChange))
	s = s.WithCompletion("P", cstate.OperationOutput{Value: chidorival.Int(1)})
	s = s.WithCompletion("B", cstate.OperationOutput{Value: chidorival.Int(2)})
	s = s.WithMutation(opNode("Z", []string{"z"}, []string{"y"}, cell.TriggerOnChange))
	// Re-complete P so B (exec_counter 1) is runnable again alongside Z
	// (exec_counter 0).
	s = s.WithMutation(opNode("P", []string{"p"}, nil, cell.TriggerOnChange))
	s = s.WithCompletion("P", cstate.OperationOutput{Value: chidorival.Int(3)})

	runnable := Dispatch(s)
	if len(runnable) != 2 || runnable[0] != "Z" || runnable[1] != "B" {
		t.Fatalf("expected Z (exec_counter 0) before B (exec_counter 1), got %v", runnable)
	}
}

func TestDispatchOrdersByTopologicalPositionOverLexicographic(t *testing.T) {
	// "Acon" sorts before "Zsrc" lexicographically, but Acon consumes P
	// (layer 1) while Zsrc is an independent source (layer 0): the
	// topological rule must place Zsrc first despite losing the
	// lexicographic tie-break, proving rule 2 is actually applied and
	// not just a fallthrough to rule 3.
	s := cstate.Root()
	s = s.WithMutation(opNode("P", []string{"p"}, nil, cell.TriggerOnChange))
	s = s.WithCompletion("P", cstate.OperationOutput{Value: chidorival.Int(1)})
	s = s.WithMutation(opNode("Acon", []string{"q"}, []string{"p"}, cell.TriggerOnChange))
	s = s.WithMutation(opNode("Zsrc", []string{"z"}, nil, cell.TriggerOnChange))

	runnable := Dispatch(s)
	if len(runnable) != 2 || runnable[0] != "Zsrc" || runnable[1] != "Acon" {
		t.Fatalf("expected topological order Zsrc,Acon despite lexicographic order favoring Acon, got %v", runnable)
	}
}

func TestDispatchBreaksRemainingTiesLexicographically(t *testing.T) {
	// B is created before A, both are fresh source cells on their first
	// run (equal exec_counter, equal topological layer): the tie-break
	// must fall through to OperationId, not creation order.
	s := cstate.Root()
	s = s.WithMutation(opNode("B", []string{"y"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))

	runnable := Dispatch(s)
	if len(runnable) != 2 || runnable[0] != "A" || runnable[1] != "B" {
		t.Fatalf("expected lexicographic order A,B despite creation order B,A, got %v", runnable)
	}
}

func TestDispatchBatchExcludesBlockedChainMembers(t *testing.T) {
	s := cstate.Root().WithMutation(opNode("A", []string{"x"}, nil, cell.TriggerOnChange))
	s = s.WithMutation(opNode("B", []string{"y"}, []string{"x"}, cell.TriggerOnChange))

	// A is a fresh source cell, B depends on A but A hasn't produced
	// anything yet, so only A should be in the wave.
	wave := DispatchBatch(s)
	if len(wave) != 1 || wave[0] != "A" {
		t.Fatalf("expected only A in the first wave, got %v", wave)
	}
}
