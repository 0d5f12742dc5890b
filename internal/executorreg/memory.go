package executorreg

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

// MemoryStore is the collaborator a Memory cell delegates to for
// Upsert/Query/Delete, kept behind an interface so a real vector
// database can be substituted without touching the executor (spec.md
// §6's externally-pluggable collaborator pattern, same shape as
// Executor itself).
type MemoryStore interface {
	Upsert(collection, id string, value chidorival.Value) error
	Query(collection, text string, topK int) ([]chidorival.Value, error)
	Delete(collection, id string) error
}

// InProcessMemoryStore is the built-in fallback MemoryStore: an
// in-memory collection of documents, scored for Query by substring
// overlap rather than embeddings. It exists so a notebook's Memory
// cells are runnable with no external dependency configured; wiring a
// real vector store means registering a different MemoryStore, not
// changing MemoryExecutor.
type InProcessMemoryStore struct {
	mu         sync.RWMutex
	collections map[string]map[string]chidorival.Value
}

func NewInProcessMemoryStore() *InProcessMemoryStore {
	return &InProcessMemoryStore{collections: map[string]map[string]chidorival.Value{}}
}

func (s *InProcessMemoryStore) Upsert(collection, id string, value chidorival.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]chidorival.Value{}
		s.collections[collection] = docs
	}
	docs[id] = value
	return nil
}

func (s *InProcessMemoryStore) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *InProcessMemoryStore) Query(collection, text string, topK int) ([]chidorival.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(text)
	type scored struct {
		id    string
		score int
		value chidorival.Value
	}
	var results []scored
	for id, v := range s.collections[collection] {
		score := strings.Count(strings.ToLower(renderInput(v)), needle)
		if score > 0 {
			results = append(results, scored{id: id, score: score, value: v})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	out := make([]chidorival.Value, len(results))
	for i, r := range results {
		out[i] = r.value
	}
	return out, nil
}

// MemoryExecutor dispatches a Memory cell to its configured
// MemoryOp against a MemoryStore.
type MemoryExecutor struct {
	Store MemoryStore
}

func NewMemoryExecutor(store MemoryStore) *MemoryExecutor {
	return &MemoryExecutor{Store: store}
}

func (e *MemoryExecutor) Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error) {
	if c.Memory == nil {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory cell has no MemoryConfig"}
	}
	cfg := *c.Memory

	switch cfg.Op {
	case cell.MemoryOpUpsert:
		doc, ok := in["document"]
		if !ok {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory upsert requires a 'document' input"}
		}
		id := c.Name
		if idVal, ok := in["id"]; ok {
			if s, ok := idVal.AsString(); ok {
				id = s
			}
		}
		if err := e.Store.Upsert(cfg.Collection, id, doc); err != nil {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory upsert failed", Cause: err}
		}
		return doc, nil

	case cell.MemoryOpQuery:
		queryVal, ok := in["query"]
		if !ok {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory query requires a 'query' input"}
		}
		results, err := e.Store.Query(cfg.Collection, renderInput(queryVal), cfg.TopK)
		if err != nil {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory query failed", Cause: err}
		}
		return chidorival.Array(results...), nil

	case cell.MemoryOpDelete:
		idVal, ok := in["id"]
		if !ok {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory delete requires an 'id' input"}
		}
		id, _ := idVal.AsString()
		if err := e.Store.Delete(cfg.Collection, id); err != nil {
			return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "memory delete failed", Cause: err}
		}
		return chidorival.Null(), nil

	default:
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "unknown memory op " + string(cfg.Op)}
	}
}
