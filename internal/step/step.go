// Package step implements Operation Invocation / Step Execution
// (spec.md §4.4): gather an operation's resolved inputs from the
// current ExecutionState, invoke its Executor, and fold the result
// into the next ExecutionState. It also carries the rpc_channel
// (spec.md §6) that lets an Executor call a function another operation
// produces, bracketed by the Function-call Enclosure (spec.md §4.5).
//
// Grounded on internal/application/executor/engine.go's executeNode,
// generalized from "look up node config, call the matching
// NodeExecutor, write the result into ExecutionContext" to "look up
// the operation's producers, build an Inputs bundle from their
// bindings, call the matching Executor, fold the result via
// cstate.WithCompletion" — the state-threading replaces the teacher's
// in-place ExecutionContext.SetVariable.
package step

import (
	"context"
	"fmt"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/cgraph"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/cstate"
	"github.com/chidori-ai/chidori/internal/dispatch"
	"github.com/chidori-ai/chidori/internal/enclosure"
	"github.com/chidori-ai/chidori/internal/executorreg"
	"github.com/chidori-ai/chidori/internal/workerpool"
)

// maxNestedCallDepth bounds recursive function-call nesting through the
// rpc_channel: a call chain that never bottoms out (e.g. a function
// calling itself unconditionally) is stopped rather than recursing
// forever.
const maxNestedCallDepth = 32

// maxNestedSteps bounds how many dispatch waves a single call's callee
// sub-execution may take to quiesce, independent of the supervisor's
// own per-lineage step budget.
const maxNestedSteps = 10_000

// GatherInputs builds the Inputs bundle for op from s. For every
// inbound edge tagged with a slot name, look up the producer's last
// binding, except a call edge (op's Signature.CallTarget matching the
// slot): there the producer is a callable, not a value, so the slot is
// filled with a FunctionPointer regardless of whether the callee has
// ever run, and invoking it is left to the Executor's rpc_channel.
// A non-call producer with an error binding or no binding at all is
// treated as a DispatchError, since the dispatcher is expected to have
// already excluded any operation whose producers aren't ready.
func GatherInputs(s *cstate.ExecutionState, op cell.OperationID) (executorreg.Inputs, error) {
	node, ok := s.OperationByID[op]
	if !ok {
		return nil, &cerr.DispatchError{Message: fmt.Sprintf("unknown operation %s", op)}
	}

	in := executorreg.Inputs{}
	for _, edge := range s.DependencyGraph.Inbound(op) {
		if dispatch.IsCallEdge(node, edge) {
			in[edge.Slot] = chidorival.Func(chidorival.FunctionPointer{OperationID: string(edge.From), Name: edge.Slot})
			continue
		}
		out, ok := s.Binding(edge.From)
		if !ok {
			return nil, &cerr.DispatchError{Message: fmt.Sprintf("operation %s has no binding for producer %s (slot %s)", op, edge.From, edge.Slot)}
		}
		if out.IsError() {
			return nil, &cerr.DispatchError{Message: fmt.Sprintf("operation %s's producer %s failed, cannot gather inputs", op, edge.From), Cause: out.Err}
		}
		in[edge.Slot] = out.Value
	}
	return in, nil
}

// runOp gathers op's inputs, resolves and invokes its Executor with an
// rpc_channel rooted on s, and returns the resulting OperationOutput.
// It returns a non-nil Go error only for structural problems (unknown
// operation, ungathered producer) that indicate a caller bug rather
// than a cell failure; an Executor failure is captured in the returned
// OperationOutput.Err instead, per Run's "errors are values" contract.
func runOp(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, graph *cgraph.Graph, depth int, op cell.OperationID) (cstate.OperationOutput, error) {
	node, ok := s.OperationByID[op]
	if !ok {
		return cstate.OperationOutput{}, &cerr.DispatchError{Message: fmt.Sprintf("unknown operation %s", op)}
	}

	in, err := GatherInputs(s, op)
	if err != nil {
		return cstate.OperationOutput{}, err
	}

	executor, err := reg.Resolve(node.Cell)
	if err != nil {
		return cstate.OperationOutput{Err: err}, nil
	}

	ec := executorreg.ExecContext{
		State: s,
		Calls: &callChannel{reg: reg, graph: graph, caller: s, callSite: op, depth: depth},
	}

	value, execErr := executor.Execute(ctx, node.Cell, in, ec)
	if execErr != nil {
		return cstate.OperationOutput{Err: execErr}, nil
	}
	return cstate.OperationOutput{Value: value}, nil
}

// Run executes op against s using reg to resolve its Executor,
// returning the new state with op's binding recorded. Run never
// returns a Go error for an executor failure: that failure is
// captured as the operation's OperationOutput.Err so downstream
// operations can observe it through the state, matching spec.md §4.4's
// "errors are values" contract. Run does return a Go error for
// structural problems (missing operation, missing producer binding)
// that indicate a bug in the caller rather than a cell failure.
func Run(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, op cell.OperationID) (*cstate.ExecutionState, error) {
	return RunWithGraph(ctx, s, reg, nil, op)
}

// RunWithGraph is Run with an ExecutionGraph to publish the Open/Close
// states of any nested function call op's Executor issues over its
// rpc_channel (spec.md §4.5). A nil graph skips publishing, matching
// Run's behavior.
func RunWithGraph(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, graph *cgraph.Graph, op cell.OperationID) (*cstate.ExecutionState, error) {
	out, err := runOp(ctx, s, reg, graph, 0, op)
	if err != nil {
		return nil, err
	}
	return s.WithCompletion(op, out), nil
}

// RunBatch executes every operation in wave sequentially against the
// same starting state s, threading the resulting state from one
// operation to the next. Operations in a wave are, by dispatch.DispatchBatch's
// construction, independent of one another within s, so this ordering
// does not change which inputs any operation sees; it only determines
// the final state's creation order for ExecCounter bookkeeping.
// RunBatch is the sequential path; RunWaveConcurrent is the concurrent
// one, and its workerpool workers call runOp directly rather than
// RunBatch.
func RunBatch(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, wave []cell.OperationID) (*cstate.ExecutionState, error) {
	return RunBatchWithGraph(ctx, s, reg, nil, wave)
}

// RunBatchWithGraph is RunBatch with an ExecutionGraph for nested call
// bracketing, as RunWithGraph is to Run.
func RunBatchWithGraph(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, graph *cgraph.Graph, wave []cell.OperationID) (*cstate.ExecutionState, error) {
	cur := s
	for _, op := range wave {
		next, err := RunWithGraph(ctx, cur, reg, graph, op)
		if err != nil {
			return cur, err
		}
		cur = next
	}
	return cur, nil
}

// RunWaveConcurrent executes every operation in wave in its own
// goroutine, bounded by pool, all reading inputs from the same
// starting state s (safe because DispatchBatch guarantees no two wave
// members have a producer/consumer relationship), then folds the
// collected outputs into s sequentially in wave order so the final
// state's ExecCounter and creation-order bookkeeping stay
// deterministic regardless of goroutine scheduling.
func RunWaveConcurrent(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, wave []cell.OperationID, pool *workerpool.Pool) (*cstate.ExecutionState, error) {
	return RunWaveConcurrentWithGraph(ctx, s, reg, nil, wave, pool)
}

// RunWaveConcurrentWithGraph is RunWaveConcurrent with an
// ExecutionGraph for nested call bracketing, as RunWithGraph is to Run.
func RunWaveConcurrentWithGraph(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, graph *cgraph.Graph, wave []cell.OperationID, pool *workerpool.Pool) (*cstate.ExecutionState, error) {
	outputs := make([]cstate.OperationOutput, len(wave))
	structuralErrs := make([]error, len(wave))

	errs := pool.Run(ctx, len(wave), func(ctx context.Context, i int) error {
		op := wave[i]
		out, err := runOp(ctx, s, reg, graph, 0, op)
		if err != nil {
			structuralErrs[i] = err
			return err
		}
		outputs[i] = out
		return nil
	})
	if len(errs) > 0 {
		for _, err := range structuralErrs {
			if err != nil {
				return s, err
			}
		}
		return s, errs[0]
	}

	cur := s
	for i, op := range wave {
		cur = cur.WithCompletion(op, outputs[i])
	}
	return cur, nil
}

// runToQuiescence drives a callee's sub-execution (seeded by
// enclosure.Open) to completion: repeatedly dispatch and run waves
// until nothing more is runnable, bounded by maxNestedSteps. Nested
// calls the callee itself issues get depth+1, so maxNestedCallDepth
// still bounds total recursion regardless of which level calls which.
func runToQuiescence(ctx context.Context, s *cstate.ExecutionState, reg *executorreg.Registry, graph *cgraph.Graph, depth int) (*cstate.ExecutionState, error) {
	cur := s
	for steps := 0; steps < maxNestedSteps; steps++ {
		wave := dispatch.DispatchBatch(cur)
		if len(wave) == 0 {
			return cur, nil
		}
		outputs := make([]cstate.OperationOutput, len(wave))
		for i, op := range wave {
			out, err := runOp(ctx, cur, reg, graph, depth, op)
			if err != nil {
				return cur, err
			}
			outputs[i] = out
		}
		for i, op := range wave {
			cur = cur.WithCompletion(op, outputs[i])
		}
		if graph != nil {
			graph.Insert(ctx, cur)
		}
	}
	return cur, &cerr.DispatchError{Message: "nested function call exceeded its step budget"}
}

// findFunctionDefiner returns the operation currently producing name as
// a callable output, last-writer-wins over creation order, matching
// resolver.Resolve's own producer-index semantics.
func findFunctionDefiner(s *cstate.ExecutionState, name string) (cell.OperationID, bool) {
	var found cell.OperationID
	ok := false
	for _, op := range s.OrderedOperations() {
		if _, produces := op.Signature.Output.Functions[name]; produces {
			found = op.ID
			ok = true
		}
	}
	return found, ok
}

// soleArgSlot picks the parameter slot a called operation's single
// external argument is bound under: its first declared input slot, in
// InputSignature.AllSlots order. This is exact for the common case of a
// callable cell whose only undeclared input is the call argument
// itself; a callee that also reads other notebook globals independent
// of the call would need a richer parameter-binding convention than
// this engine currently has.
func soleArgSlot(node *cell.OperationNode) string {
	slots := node.Signature.Input.AllSlots()
	if len(slots) == 0 {
		return ""
	}
	return slots[0]
}

// callChannel is the executorreg.RPCChannel an Executor's ExecContext
// carries (spec.md §6's rpc_channel): calling a function name resolves
// its producing operation, opens a Function-call Enclosure rooted on a
// fresh callee state seeded with the call argument (spec.md §4.5),
// drains that callee to quiescence, and closes the enclosure back into
// the caller, returning the callee's designated return value.
type callChannel struct {
	reg      *executorreg.Registry
	graph    *cgraph.Graph
	caller   *cstate.ExecutionState
	callSite cell.OperationID
	depth    int
}

func (c *callChannel) Call(ctx context.Context, functionName string, args chidorival.Value) (chidorival.Value, error) {
	if c.depth >= maxNestedCallDepth {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: string(c.callSite), Message: "function call depth exceeded calling " + functionName}
	}

	definer, ok := findFunctionDefiner(c.caller, functionName)
	if !ok {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: string(c.callSite), Message: "no operation produces callable " + functionName}
	}
	definerNode, ok := c.caller.OperationByID[definer]
	if !ok {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: string(c.callSite), Message: "callable " + functionName + " has no operation node"}
	}

	fn := chidorival.FunctionPointer{OperationID: string(definer), Name: functionName}
	opened, calleeRoot, frame := enclosure.Open(c.caller, fn, args, c.callSite, soleArgSlot(definerNode))
	calleeRoot = calleeRoot.WithMutation(definerNode)
	if c.graph != nil {
		c.graph.Insert(ctx, opened)
		c.graph.Insert(ctx, calleeRoot)
	}

	// The call itself is the trigger: run the callee directly rather
	// than through dispatch.DispatchBatch, which would refuse a
	// Manual-trigger callable exactly as it refuses automatic dispatch
	// of any other manually-invoked cell.
	calleeOut, err := runOp(ctx, calleeRoot, c.reg, c.graph, c.depth+1, definer)
	if err != nil {
		return chidorival.Value{}, err
	}
	calleeRoot = calleeRoot.WithCompletion(definer, calleeOut)
	if c.graph != nil {
		c.graph.Insert(ctx, calleeRoot)
	}

	calleeFinal, err := runToQuiescence(ctx, calleeRoot, c.reg, c.graph, c.depth+1)
	if err != nil {
		return chidorival.Value{}, err
	}

	closed, err := enclosure.Close(opened, frame, calleeFinal, definer)
	if err != nil {
		return chidorival.Value{}, err
	}
	if c.graph != nil {
		c.graph.Insert(ctx, closed)
	}

	out, _ := closed.Binding(c.callSite)
	if out.IsError() {
		return chidorival.Value{}, out.Err
	}
	return out.Value, nil
}
