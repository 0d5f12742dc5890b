// Package cgraph implements the ExecutionGraph (spec.md §4): the
// append-only directed multigraph of ExecutionStates, indexed by
// chronology_id, plus a non-blocking event-stream fan-out to
// observers (UIs, persistence, the websocket surface).
//
// The storage half is grounded on go/pkg/engine/execution_state.go's
// chronology bookkeeping (ParentExecutionID chains through a map), the
// concurrency model is lifted from
// go/internal/application/observer/manager.go's ObserverManager
// (copy-then-unlock before fan-out, goroutine-per-observer, panic
// recovery so one bad observer cannot wedge the graph).
package cgraph

import (
	"context"
	"sync"

	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/cstate"
)

// EventType discriminates the events an ExecutionGraph publishes.
type EventType string

const (
	EventStateInserted EventType = "state_inserted"
	EventCellMutated   EventType = "cell_mutated"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
)

// Event is published to every registered Observer whenever the graph
// gains a new state.
type Event struct {
	Type   EventType
	State  *cstate.ExecutionState
	Parent string // parent chronology_id, "" for a root state
}

// Observer receives graph events. OnEvent must not block for long;
// slow observers should buffer internally. Name must be unique per
// Graph (duplicate registration is rejected, per the teacher's
// ObserverManager.Register).
type Observer interface {
	Name() string
	OnEvent(ctx context.Context, event Event)
}

// Graph is the concurrency-safe, append-only store of ExecutionStates.
// States are never mutated or removed once inserted (spec.md §4
// invariant); only Insert, lookups, and observer registration mutate
// the Graph's own bookkeeping.
type Graph struct {
	mu        sync.RWMutex
	byID      map[string]*cstate.ExecutionState
	children  map[string][]string
	observers []Observer
}

// New returns an empty ExecutionGraph.
func New() *Graph {
	return &Graph{
		byID:     map[string]*cstate.ExecutionState{},
		children: map[string][]string{},
	}
}

// Insert adds s to the graph, indexing it under its own chronology_id
// and appending it to its parent's child list (if it has a parent),
// then publishes EventStateInserted to every registered observer.
// Insert never replaces an existing entry: states are immutable and
// chronology_ids are unique by construction (cstate.NewChronologyID).
func (g *Graph) Insert(ctx context.Context, s *cstate.ExecutionState) {
	g.mu.Lock()
	g.byID[s.ChronologyID] = s
	if s.ParentStateChronologyID != "" {
		g.children[s.ParentStateChronologyID] = append(g.children[s.ParentStateChronologyID], s.ChronologyID)
	}
	g.mu.Unlock()

	g.publish(ctx, Event{Type: EventStateInserted, State: s, Parent: s.ParentStateChronologyID})
}

// Get returns the state stored under id.
func (g *Graph) Get(id string) (*cstate.ExecutionState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.byID[id]
	if !ok {
		return nil, &cerr.StateLookupError{ChronologyID: id}
	}
	return s, nil
}

// ExistsInCurrentTree reports whether id is reachable from root by
// following parent pointers stored in the graph (i.e. id names a real
// state and every ancestor up to a root, ParentStateChronologyID=="",
// is also present). Used to detect dangling references after a branch
// has been pruned by an external history-retention policy.
func (g *Graph) ExistsInCurrentTree(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for cur := id; cur != ""; {
		s, ok := g.byID[cur]
		if !ok {
			return false
		}
		cur = s.ParentStateChronologyID
	}
	return true
}

// Children returns the direct children of id, in insertion order.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.children[id]...)
}

// MergedHistory walks backward from id to its root, returning the
// chain in chronological (root-first) order. This is the "replay" view
// used by the Supervisor to reconstruct how a given state came to be.
func (g *Graph) MergedHistory(id string) ([]*cstate.ExecutionState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var reversed []*cstate.ExecutionState
	for cur := id; cur != ""; {
		s, ok := g.byID[cur]
		if !ok {
			return nil, &cerr.StateLookupError{ChronologyID: cur}
		}
		reversed = append(reversed, s)
		cur = s.ParentStateChronologyID
	}
	out := make([]*cstate.ExecutionState, len(reversed))
	for i, s := range reversed {
		out[len(reversed)-1-i] = s
	}
	return out, nil
}

// Register adds an observer to the graph's event stream, rejecting a
// duplicate name exactly as the teacher's ObserverManager does.
func (g *Graph) Register(obs Observer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.observers {
		if existing.Name() == obs.Name() {
			return &cerr.ValidationError{Field: "observer.name", Message: "already registered: " + obs.Name()}
		}
	}
	g.observers = append(g.observers, obs)
	return nil
}

// Unregister removes the observer named name.
func (g *Graph) Unregister(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, obs := range g.observers {
		if obs.Name() == name {
			g.observers = append(g.observers[:i], g.observers[i+1:]...)
			return
		}
	}
}

// publish fans event out to every registered observer on its own
// goroutine, decoupled from ctx's cancellation so an observer that
// persists history can finish writing even if the triggering request
// has already returned.
func (g *Graph) publish(ctx context.Context, event Event) {
	g.mu.RLock()
	observersCopy := append([]Observer(nil), g.observers...)
	g.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, obs := range observersCopy {
		go notifyObserver(detached, obs, event)
	}
}

func notifyObserver(ctx context.Context, obs Observer, event Event) {
	defer func() {
		recover() // an observer panic must never take down the graph
	}()
	obs.OnEvent(ctx, event)
}
