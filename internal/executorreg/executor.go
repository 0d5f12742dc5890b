// Package executorreg implements the pluggable Executor registry
// (spec.md §6): per-cell-kind collaborators that turn a Cell plus its
// resolved inputs into an OperationOutput, kept behind an interface so
// the engine never depends on a concrete language runtime or LLM
// client directly.
//
// Grounded on internal/application/executor/node_executors.go, where
// each node type (OpenAICompletionExecutor, HTTPRequestExecutor, ...)
// implements a small Execute(ctx, execCtx, nodeID, config) interface
// registered into a lookup table by the engine; generalized here to
// the spec's per-Kind split (Code/Prompt/CodeGen/Template/Memory/Web).
package executorreg

import (
	"context"
	"fmt"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
	"github.com/chidori-ai/chidori/internal/cstate"
)

// Inputs is the resolved argument bundle handed to an Executor: one
// Value per input slot name, already joined by the resolver and
// fetched from the calling ExecutionState's bindings.
type Inputs map[string]chidorival.Value

// RPCChannel is the rpc_channel an Executor uses to call a function
// produced by another operation (spec.md §6): send a function_name and
// an argument Value, block until the callee's sub-execution (bracketed
// by the Function-call Enclosure) resolves, and receive its return
// value. A nil RPCChannel means the current cell has no way to call
// anything, e.g. a top-level cell's GatherInputs never supplied it a
// FunctionPointer.
type RPCChannel interface {
	Call(ctx context.Context, functionName string, args chidorival.Value) (chidorival.Value, error)
}

// IntermediateOutputChannel lets a long-running Executor stream partial
// results, tagged by the chronology_id of the state it is evaluating
// under, before its final OperationOutput is folded (spec.md §6).
type IntermediateOutputChannel interface {
	Emit(chronologyID string, partial chidorival.Value)
}

// ExecContext carries the collaborators spec.md §6 names beyond the
// plain argument bundle: a read-only handle to the ExecutionState this
// invocation began from, an optional rpc_channel for calling other
// cells' functions, and an optional intermediate-output stream. Both
// channels are nil unless the caller wired one in.
type ExecContext struct {
	State        *cstate.ExecutionState
	Calls        RPCChannel
	Intermediate IntermediateOutputChannel
}

// Executor runs a single cell to produce its output value. An Executor
// implementation is expected to be stateless or internally
// synchronized: the engine may invoke it concurrently for independent
// operations in the same wave.
type Executor interface {
	Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error)
}

// Registry dispatches to an Executor by cell Kind, with an optional
// finer-grained override by Language for Kind == KindCode (so Python
// and JavaScript code cells can be routed to different collaborators).
type Registry struct {
	byKind     map[cell.Kind]Executor
	byLanguage map[cell.Language]Executor
}

// NewRegistry returns an empty registry; callers wire in executors
// with Register/RegisterLanguage before use.
func NewRegistry() *Registry {
	return &Registry{
		byKind:     map[cell.Kind]Executor{},
		byLanguage: map[cell.Language]Executor{},
	}
}

// Register binds an Executor to every cell of the given Kind.
func (r *Registry) Register(k cell.Kind, e Executor) { r.byKind[k] = e }

// RegisterLanguage binds an Executor to KindCode cells in a specific
// Language, taking priority over a Kind-level registration for that
// language.
func (r *Registry) RegisterLanguage(l cell.Language, e Executor) { r.byLanguage[l] = e }

// Resolve returns the Executor responsible for c, per the lookup
// order: language override (Code cells only), then kind, else an
// ExecutionError reporting no collaborator is registered.
func (r *Registry) Resolve(c cell.Cell) (Executor, error) {
	if c.Kind == cell.KindCode {
		if e, ok := r.byLanguage[c.Language]; ok {
			return e, nil
		}
	}
	if e, ok := r.byKind[c.Kind]; ok {
		return e, nil
	}
	return nil, &cerr.ExecutionError{
		Message: fmt.Sprintf("no executor registered for kind %q (language %q)", c.Kind, c.Language),
	}
}
