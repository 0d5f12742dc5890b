// Package enclosure implements the Function-call Enclosure (spec.md
// §4.5): bracketing a sub-execution with Open/Close ExecutionStates so
// that calling a function produced by one cell (its OutputSignature's
// Functions) runs that function's own operations to completion in
// isolation, then resumes the caller with the return value bound at
// the call site.
//
// Grounded on go/pkg/engine/execution_state_subworkflow_test.go's
// ParentExecutionID/ParentNodeID/ItemIndex fields (a sub-workflow
// fan-out item tracks which parent execution and node spawned it) and
// go/internal/application/engine/*: this generalizes "parent execution
// spawns one child execution per fan-out item" to "parent state opens
// exactly one child execution graph per function call", closed again
// once the callee produces a terminal value.
package enclosure

import (
	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/cstate"
)

// CallFrame describes one in-flight function call: who opened it, what
// function and arguments were passed, and which call-site operation's
// binding should receive the eventual return value.
type CallFrame struct {
	OpenerChronologyID string
	Fn                 chidorival.FunctionPointer
	Args               chidorival.Value
	CallSite           cell.OperationID
	ParamSlot          string
}

// paramOperationID names the synthetic parameter-binding operation
// injected into a callee's sub-graph so ordinary dependency resolution
// (matching a consumer's input slot against a producer's output)
// delivers the caller's arguments exactly like any other value.
func paramOperationID(fn chidorival.FunctionPointer) cell.OperationID {
	return cell.OperationID("__param__:" + fn.OperationID + ":" + fn.Name)
}

// Open begins a function call: it returns (a) the caller's Open state,
// recording evaluating_fn/evaluating_arguments and the enclosure
// marker, and (b) a callee root state seeded with a synthetic
// parameter operation bound to args, so the callee's own operations
// (whose InputSignature declares paramSlot) are immediately runnable.
func Open(caller *cstate.ExecutionState, fn chidorival.FunctionPointer, args chidorival.Value, callSite cell.OperationID, paramSlot string) (openedCaller, calleeRoot *cstate.ExecutionState, frame CallFrame) {
	openedCaller = caller.WithOpen(fn.Name, args)

	paramOp := &cell.OperationNode{
		ID: paramOperationID(fn),
		Signature: cell.Signature{
			Input:  cell.NewInputSignature(),
			Output: cell.NewOutputSignature(),
		},
	}
	paramOp.Signature.Output.Globals[paramSlot] = struct{}{}

	calleeRoot = cstate.Root().WithMutation(paramOp)
	calleeRoot = calleeRoot.WithCompletion(paramOp.ID, cstate.OperationOutput{Value: args})

	frame = CallFrame{
		OpenerChronologyID: caller.ChronologyID,
		Fn:                 fn,
		Args:               args,
		CallSite:           callSite,
		ParamSlot:          paramSlot,
	}
	return openedCaller, calleeRoot, frame
}

// Close resolves an Open call frame: given the callee's terminal
// state and the operation within it whose output is the function's
// return value, it folds that value into the opener's binding for
// CallSite and returns the opener's Close state.
func Close(opened *cstate.ExecutionState, frame CallFrame, calleeFinal *cstate.ExecutionState, returnOp cell.OperationID) (*cstate.ExecutionState, error) {
	out, ok := calleeFinal.Binding(returnOp)
	if !ok {
		return nil, &cerr.DispatchError{Message: "function call's designated return operation produced no binding"}
	}

	reason := cstate.CloseComplete
	if out.IsError() {
		reason = cstate.CloseError
	}

	resolved := opened.WithCompletion(frame.CallSite, out)
	return resolved.WithClose(reason, frame.OpenerChronologyID), nil
}
