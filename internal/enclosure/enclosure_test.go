package enclosure

import (
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/cstate"
)

func calleeBody(paramSlot string) *cell.OperationNode {
	sig := cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature(), Trigger: cell.TriggerOnChange}
	sig.Input.Globals[paramSlot] = cell.SlotDefault{TypeHint: "any"}
	sig.Output.Globals["result"] = struct{}{}
	return &cell.OperationNode{ID: "double", Signature: sig}
}

func TestOpenSeedsCalleeWithArguments(t *testing.T) {
	caller := cstate.Root().WithMutation(&cell.OperationNode{ID: "call-site", Signature: cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature()}})
	fn := chidorival.FunctionPointer{OperationID: "definer", Name: "double"}

	openedCaller, calleeRoot, frame := Open(caller, fn, chidorival.Int(21), "call-site", "n")

	if openedCaller.EvaluatingEnclosedState.Kind != cstate.EnclosureOpen {
		t.Fatalf("expected caller to be in an Open enclosure")
	}
	if openedCaller.EvaluatingEnclosedState.ParentStateChronologyID != caller.ChronologyID {
		t.Fatalf("expected the open state to reference the original caller")
	}

	paramOp := paramOperationID(fn)
	binding, ok := calleeRoot.Binding(paramOp)
	if !ok {
		t.Fatalf("expected the synthetic parameter operation to be bound")
	}
	n, _ := binding.Value.AsInt()
	if n != 21 {
		t.Fatalf("expected the seeded argument to be 21, got %d", n)
	}
	if frame.CallSite != "call-site" {
		t.Fatalf("expected call frame to record the call site")
	}
}

func TestCloseFoldsReturnValueIntoCaller(t *testing.T) {
	caller := cstate.Root().WithMutation(&cell.OperationNode{ID: "call-site", Signature: cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature()}})
	fn := chidorival.FunctionPointer{OperationID: "definer", Name: "double"}
	opened, calleeRoot, frame := Open(caller, fn, chidorival.Int(21), "call-site", "n")

	body := calleeBody("n")
	callee := calleeRoot.WithMutation(body)
	callee = callee.WithCompletion(body.ID, cstate.OperationOutput{Value: chidorival.Int(42)})

	closed, err := Close(opened, frame, callee, body.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.EvaluatingEnclosedState.Kind != cstate.EnclosureClose {
		t.Fatalf("expected a Close enclosure")
	}
	if closed.EvaluatingEnclosedState.Reason != cstate.CloseComplete {
		t.Fatalf("expected CloseComplete for a successful return")
	}
	out, ok := closed.Binding("call-site")
	if !ok {
		t.Fatalf("expected the call site to carry the callee's return value")
	}
	n, _ := out.Value.AsInt()
	if n != 42 {
		t.Fatalf("expected the folded return value to be 42, got %d", n)
	}
}

func TestCloseMarksErrorReasonOnFailedReturn(t *testing.T) {
	caller := cstate.Root().WithMutation(&cell.OperationNode{ID: "call-site", Signature: cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature()}})
	fn := chidorival.FunctionPointer{OperationID: "definer", Name: "double"}
	opened, calleeRoot, frame := Open(caller, fn, chidorival.Int(21), "call-site", "n")

	body := calleeBody("n")
	callee := calleeRoot.WithMutation(body)
	callee = callee.WithCompletion(body.ID, cstate.OperationOutput{Err: cstate.ErrStateLookup("boom")})

	closed, err := Close(opened, frame, callee, body.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.EvaluatingEnclosedState.Reason != cstate.CloseError {
		t.Fatalf("expected CloseError reason for a failed return")
	}
}

func TestCloseErrorsWhenReturnOperationNeverBound(t *testing.T) {
	caller := cstate.Root().WithMutation(&cell.OperationNode{ID: "call-site", Signature: cell.Signature{Input: cell.NewInputSignature(), Output: cell.NewOutputSignature()}})
	fn := chidorival.FunctionPointer{OperationID: "definer", Name: "double"}
	opened, calleeRoot, frame := Open(caller, fn, chidorival.Int(21), "call-site", "n")

	body := calleeBody("n")
	callee := calleeRoot.WithMutation(body)

	if _, err := Close(opened, frame, callee, body.ID); err == nil {
		t.Fatalf("expected an error when the return operation never completed")
	}
}
