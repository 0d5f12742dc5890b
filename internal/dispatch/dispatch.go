// Package dispatch implements the Dispatcher (spec.md §4.3): given an
// ExecutionState, compute the set of operations runnable right now,
// and impose a deterministic tie-break ordering over them.
//
// Grounded on internal/application/executor/graph.go's GetReadyNodes,
// which walks reverseEdges and completedNodes to find nodes whose
// active dependencies are all satisfied. This generalizes that in two
// ways the spec requires: (1) "active dependency" here means "producer
// has a non-error binding AND the dependency edge is part of the
// currently fresh set", since this spec has no conditional-edge
// concept to gate activity; (2) a manually-triggered cell (spec.md
// §4.3 rule 3) is never included in automatic dispatch regardless of
// freshness, only in ValidManualTargets.
package dispatch

import (
	"sort"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cstate"
	"github.com/chidori-ai/chidori/internal/resolver"
)

// Runnable reports whether op is eligible for automatic dispatch in s:
//
//  1. Its trigger mode is not Manual.
//  2. Every producer feeding it has a recorded, non-error binding.
//  3. Either it has never executed and has no producers (a source
//     cell fires once on creation), or at least one of its producers
//     is currently marked fresh (its upstream value changed since op
//     last consumed it).
func Runnable(s *cstate.ExecutionState, op cell.OperationID) bool {
	node, ok := s.OperationByID[op]
	if !ok {
		return false
	}
	if node.Signature.Trigger == cell.TriggerManual {
		return false
	}

	var producers []cell.OperationID
	for _, e := range s.DependencyGraph.Inbound(op) {
		if isCallEdge(node, e) {
			continue // resolved by invoking the callee on demand, not a value dependency
		}
		out, bound := s.Binding(e.From)
		if !bound || out.IsError() {
			return false
		}
		producers = append(producers, e.From)
	}

	if len(producers) == 0 {
		return s.ExecCounter[op] == 0
	}
	for _, p := range producers {
		if s.IsFresh(p) {
			return true
		}
	}
	return false
}

// isCallEdge reports whether e feeds consumer through its declared
// CallTarget (spec.md §4.5/§6): the consumer invokes the producer as a
// function through the rpc_channel rather than reading a value it
// must have already produced, so the edge never gates dispatch on the
// producer's prior execution.
func isCallEdge(consumer *cell.OperationNode, e resolver.Edge) bool {
	return consumer.Signature.CallTarget != "" && e.Slot == consumer.Signature.CallTarget
}

// IsCallEdge exports isCallEdge's classification for other packages
// (step's input gathering) that need to agree with the Dispatcher on
// which inbound edges are calls rather than value dependencies.
func IsCallEdge(consumer *cell.OperationNode, e resolver.Edge) bool {
	return isCallEdge(consumer, e)
}

// ValidManualTargets returns the operations that a manual invocation
// may legally target: Manual-trigger operations whose producers (if
// any) all carry non-error bindings, so the cell has everything it
// needs to run even though it will never be chosen automatically.
func ValidManualTargets(s *cstate.ExecutionState) []cell.OperationID {
	var out []cell.OperationID
	for _, op := range s.OrderedOperations() {
		if op.Signature.Trigger != cell.TriggerManual {
			continue
		}
		ready := true
		for _, e := range s.DependencyGraph.Inbound(op.ID) {
			if isCallEdge(op, e) {
				continue
			}
			b, bound := s.Binding(e.From)
			if !bound || b.IsError() {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, op.ID)
		}
	}
	return out
}

// Dispatch returns every operation runnable in s, ordered by the
// spec.md §4.3 Rule 2 tie-break, applied in order until one criterion
// distinguishes a pair:
//
//  1. Ascending exec_counter[v]: an operation that has run fewer times
//     goes first, so a newly added cell doesn't starve behind a
//     fast-looping one.
//  2. Topological position: a producer is ordered before its
//     consumers, so a wave never has to guess whether a value a cell
//     is about to read is stale.
//  3. OperationId, lexicographically: a final, arbitrary but stable
//     tie-break so two truly independent, equally-fresh operations
//     always dispatch in the same order given the same state.
func Dispatch(s *cstate.ExecutionState) []cell.OperationID {
	ordered := s.OrderedOperations()
	position := topoPositions(ordered, s.DependencyGraph)

	var runnable []cell.OperationID
	for _, op := range ordered {
		if Runnable(s, op.ID) {
			runnable = append(runnable, op.ID)
		}
	}

	sort.SliceStable(runnable, func(i, j int) bool {
		a, b := runnable[i], runnable[j]
		if ca, cb := s.ExecCounter[a], s.ExecCounter[b]; ca != cb {
			return ca < cb
		}
		if pa, pb := position[a], position[b]; pa != pb {
			return pa < pb
		}
		return a < b
	})
	return runnable
}

// topoPositions assigns every operation a layer number via Kahn's
// algorithm over the dependency graph (producers before consumers):
// operations with no unresolved predecessor go in layer 0, then each
// layer peels off the operations whose remaining in-edges all come
// from already-numbered layers. Ties within a layer are broken later,
// by Dispatch's exec_counter and OperationId rules; this function only
// answers "which of two operations must come first structurally."
func topoPositions(ops resolver.OrderedOperations, g *resolver.Graph) map[cell.OperationID]int {
	indegree := make(map[cell.OperationID]int, len(ops))
	for _, op := range ops {
		n := 0
		for range g.Inbound(op.ID) {
			n++
		}
		indegree[op.ID] = n
	}

	position := make(map[cell.OperationID]int, len(ops))
	remaining := make(map[cell.OperationID]*cell.OperationNode, len(ops))
	for _, op := range ops {
		remaining[op.ID] = op
	}

	for layer := 0; len(remaining) > 0; layer++ {
		var frontier []cell.OperationID
		for _, op := range ops {
			if _, ok := remaining[op.ID]; !ok {
				continue
			}
			if indegree[op.ID] == 0 {
				frontier = append(frontier, op.ID)
			}
		}
		if len(frontier) == 0 {
			// A cycle (or an edge to an operation resolver never
			// visited) leaves indegree stuck above zero; place whatever
			// is left in one final layer rather than looping forever.
			for _, op := range ops {
				if _, ok := remaining[op.ID]; ok {
					position[op.ID] = layer
				}
			}
			break
		}
		for _, id := range frontier {
			position[id] = layer
			delete(remaining, id)
			for _, e := range g.Outbound(id) {
				indegree[e.To]--
			}
		}
	}
	return position
}

// DispatchBatch partitions Dispatch's result into independent waves: a
// wave is a maximal set of runnable operations with no producer/consumer
// relationship between any two of them, so all operations in a wave
// can execute concurrently (the Step Executor's worker pool unit of
// work). Operations with a direct dependency on another runnable
// operation in the same call are deferred to the next wave, since
// their producer's freshness was already consumed by the earlier one.
func DispatchBatch(s *cstate.ExecutionState) []cell.OperationID {
	runnable := Dispatch(s)
	runnableSet := make(map[cell.OperationID]struct{}, len(runnable))
	for _, op := range runnable {
		runnableSet[op] = struct{}{}
	}

	var wave []cell.OperationID
	for _, op := range runnable {
		node := s.OperationByID[op]
		blocked := false
		for _, e := range s.DependencyGraph.Inbound(op) {
			if isCallEdge(node, e) {
				continue // calling a function doesn't consume its producer's freshness
			}
			if _, inWave := runnableSet[e.From]; inWave {
				blocked = true
				break
			}
		}
		if !blocked {
			wave = append(wave, op)
		}
	}
	return wave
}
