// Package resolver implements the Dependency Resolver (spec.md §4.2):
// given the current map of OperationNodes, compute the dependency
// graph by joining each operation's declared InputSignature slots
// against a producer index built from every operation's
// OutputSignature.
//
// Grounded on internal/application/executor/graph.go's
// NewWorkflowGraph, which builds forward/reverse adjacency maps from a
// flat edge list — generalized here from explicit user-authored edges
// to edges *derived* from matching declared inputs against declared
// outputs, which is this spec's defining departure from the teacher's
// model (the teacher's edges are drawn by the workflow author; ours
// are inferred from signatures).
package resolver

import (
	"sort"

	"github.com/chidori-ai/chidori/internal/cell"
)

// Edge is a dependency edge u -> v tagged with the argument slot name
// that v consumes from u's output.
type Edge struct {
	From cell.OperationID
	To   cell.OperationID
	Slot string
}

// Graph is the resolved dependency graph: outbound and inbound edges
// keyed by operation, in deterministic (creation-order-stable) form.
type Graph struct {
	edges []Edge
	out   map[cell.OperationID][]Edge
	in    map[cell.OperationID][]Edge
}

// Edges returns every edge in the graph, in the deterministic order
// they were discovered (iteration over operations in creation order,
// then over each operation's slots in the stable order AllSlots()
// returns).
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Outbound returns the edges leading out of op (op is the producer).
func (g *Graph) Outbound(op cell.OperationID) []Edge { return g.out[op] }

// Inbound returns the edges leading into op (op is the consumer).
func (g *Graph) Inbound(op cell.OperationID) []Edge { return g.in[op] }

// Producers returns the set of operations that feed op, deduplicated.
func (g *Graph) Producers(op cell.OperationID) []cell.OperationID {
	seen := map[cell.OperationID]struct{}{}
	var out []cell.OperationID
	for _, e := range g.in[op] {
		if _, ok := seen[e.From]; ok {
			continue
		}
		seen[e.From] = struct{}{}
		out = append(out, e.From)
	}
	return out
}

// OrderedOperations is the fixed creation-order iteration sequence the
// resolver used; callers that need a stable topological-ish ordering
// (Dispatcher tie-break) can rely on this slice being exactly the
// insertion order handed to Resolve.
type OrderedOperations []*cell.OperationNode

// Resolve builds a Graph from ops, a slice of OperationNodes in fixed
// creation order. The algorithm (spec.md §4.2):
//
//  1. Build a producer index: global_name/function_name -> OperationId,
//     iterating ops in order, last-writer-wins (a later cell producing
//     the same name shadows an earlier one).
//  2. For each operation v (in the same order) and each input slot s in
//     v's InputSignature (args, then kwargs, then globals), look up the
//     producer u; if found, add edge u -> v tagged s.
//
// Resolve is a pure function of ops: re-running it on an unchanged
// operation map produces a byte-identical (here: structurally
// identical, via Edges()) graph, and is safe to call repeatedly.
func Resolve(ops OrderedOperations) *Graph {
	globalProducer := map[string]cell.OperationID{}
	funcProducer := map[string]cell.OperationID{}

	for _, op := range ops {
		for name := range op.Signature.Output.Globals {
			globalProducer[name] = op.ID
		}
		for name := range op.Signature.Output.Functions {
			funcProducer[name] = op.ID
		}
	}

	g := &Graph{
		out: map[cell.OperationID][]Edge{},
		in:  map[cell.OperationID][]Edge{},
	}

	for _, v := range ops {
		for _, slot := range v.Signature.Input.AllSlots() {
			producer, ok := lookupProducer(slot, globalProducer, funcProducer)
			if !ok {
				continue // unbound input: supplied at dispatch time or never fires
			}
			e := Edge{From: producer, To: v.ID, Slot: slot}
			g.edges = append(g.edges, e)
			g.out[producer] = append(g.out[producer], e)
			g.in[v.ID] = append(g.in[v.ID], e)
		}
	}

	return g
}

// lookupProducer checks the global producer index first, then the
// function producer index — a slot name may be satisfied by either a
// global value or a callable, but never both in a well-formed program;
// if both are present, the global producer wins as the more specific
// (value) binding.
func lookupProducer(slot string, globals, funcs map[string]cell.OperationID) (cell.OperationID, bool) {
	if id, ok := globals[slot]; ok {
		return id, true
	}
	if id, ok := funcs[slot]; ok {
		return id, true
	}
	return "", false
}

// ValidateEdges checks spec.md §8 invariant 2: for every edge u -> v
// tagged slot s, v's InputSignature includes s and u's OutputSignature
// produces s. Returns the first violating edge found, if any.
func ValidateEdges(ops OrderedOperations, g *Graph) (Edge, bool) {
	byID := map[cell.OperationID]*cell.OperationNode{}
	for _, op := range ops {
		byID[op.ID] = op
	}
	for _, e := range g.Edges() {
		v, vok := byID[e.To]
		u, uok := byID[e.From]
		if !vok || !uok {
			return e, true
		}
		if !v.Signature.Input.Has(e.Slot) || !u.Signature.Output.Produces(e.Slot) {
			return e, true
		}
	}
	return Edge{}, false
}

// SortedIDs returns a copy of ids in ascending lexicographic order, a
// deterministic ordering over a set of OperationIDs.
func SortedIDs(ids []cell.OperationID) []cell.OperationID {
	out := append([]cell.OperationID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
