// Package chidori is the public entry point for embedding the
// reactive notebook execution engine in a host program: construct a
// Runtime, load or author cells into it, and drive playback. The
// cmd/chidorid binary is a thin process wrapper around this package.
package chidori

import (
	"context"

	"github.com/chidori-ai/chidori/internal/analyzer"
	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cgraph"
	"github.com/chidori-ai/chidori/internal/executorreg"
	"github.com/chidori-ai/chidori/internal/notebook"
	"github.com/chidori-ai/chidori/internal/supervisor"
	"github.com/chidori-ai/chidori/internal/workerpool"
)

// Runtime bundles the pieces a host program needs to run notebooks:
// an ExecutionGraph to publish into, an analyzer Registry to derive
// cell signatures, an Executor Registry to run cell bodies, and the
// Supervisor that owns playback.
type Runtime struct {
	Graph      *cgraph.Graph
	Analyzers  *analyzer.Registry
	Executors  *executorreg.Registry
	Supervisor *supervisor.Supervisor
}

// Option configures a Runtime at construction.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	supervisorOpts []supervisor.Option
	observers      []cgraph.Observer
}

// WithMaxSteps bounds the Supervisor's per-lineage step budget.
func WithMaxSteps(n int) Option {
	return func(c *runtimeConfig) { c.supervisorOpts = append(c.supervisorOpts, supervisor.WithMaxSteps(n)) }
}

// WithMaxConcurrentOperations bounds how many operations in a single
// dispatch wave run concurrently. Zero or negative means unbounded.
func WithMaxConcurrentOperations(n int) Option {
	return func(c *runtimeConfig) {
		c.supervisorOpts = append(c.supervisorOpts, supervisor.WithPool(workerpool.New(n)))
	}
}

// WithObserver registers obs against the Runtime's ExecutionGraph at
// construction, before any state is published.
func WithObserver(obs cgraph.Observer) Option {
	return func(c *runtimeConfig) { c.observers = append(c.observers, obs) }
}

// NewRuntime returns a Runtime starting from an empty root state,
// Paused, executing cells with exactly the executors registered in reg
// (DefaultExecutors builds the built-in set; nothing is added to reg
// here).
func NewRuntime(reg *executorreg.Registry, opts ...Option) *Runtime {
	cfg := &runtimeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	graph := cgraph.New()
	for _, obs := range cfg.observers {
		_ = graph.Register(obs)
	}

	analyzers := analyzer.NewRegistry()
	sup := supervisor.New(graph, reg, cfg.supervisorOpts...)

	return &Runtime{
		Graph:      graph,
		Analyzers:  analyzers,
		Executors:  reg,
		Supervisor: sup,
	}
}

// DefaultExecutors returns a Registry populated with the built-in
// executors that require no external credentials: expr-lang Code
// execution, Template rendering, an in-process Memory store, and the
// Web request pass-through. A host wiring an OpenAI key should
// additionally call reg.Register with an
// executorreg.OpenAIPromptExecutor for Prompt/CodeGen cells.
func DefaultExecutors() *executorreg.Registry {
	reg := executorreg.NewRegistry()
	reg.Register(cell.KindCode, executorreg.ExprCodeExecutor{})
	reg.Register(cell.KindTemplate, executorreg.TemplateExecutor{})
	reg.Register(cell.KindMemory, executorreg.NewMemoryExecutor(executorreg.NewInProcessMemoryStore()))
	reg.Register(cell.KindWeb, executorreg.WebExecutor{})
	return reg
}

// LoadDocument derives a Signature for each cell in doc (via
// rt.Analyzers) and mutates it into rt.Supervisor's head, in document
// order, without advancing playback: loading a notebook only seeds its
// cells, it never runs them (the caller decides when to Resume/
// StepOnce).
func (rt *Runtime) LoadDocument(ctx context.Context, doc *notebook.Document) {
	for _, c := range doc.Cells {
		sig := rt.Analyzers.Derive(c)
		op := &cell.OperationNode{
			ID:        cell.NewOperationID(),
			Cell:      c,
			Signature: sig,
		}
		rt.Supervisor.MutateCell(ctx, op)
	}
}
