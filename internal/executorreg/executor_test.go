package executorreg

import (
	"context"
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

func TestRegistryResolvesByLanguageThenKind(t *testing.T) {
	r := NewRegistry()
	r.RegisterLanguage(cell.LanguagePython, ExprCodeExecutor{})

	c := cell.Cell{Kind: cell.KindCode, Language: cell.LanguagePython}
	e, err := r.Resolve(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.(ExprCodeExecutor); !ok {
		t.Fatalf("expected the language override to be resolved")
	}
}

func TestRegistryResolveMissingReturnsExecutionError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve(cell.Cell{Kind: cell.KindWeb}); err == nil {
		t.Fatalf("expected an error for an unregistered kind")
	}
}

func TestExprCodeExecutorEvaluatesAssignment(t *testing.T) {
	e := ExprCodeExecutor{}
	c := cell.Cell{Kind: cell.KindCode, Source: "y = x + 1"}
	out, err := e.Execute(context.Background(), c, Inputs{"x": chidorival.Int(41)}, ExecContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := out.AsInt()
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %+v", out)
	}
}

func TestExprCodeExecutorInvalidSourceReturnsExecutionError(t *testing.T) {
	e := ExprCodeExecutor{}
	c := cell.Cell{Kind: cell.KindCode, Source: "y = ((("}
	if _, err := e.Execute(context.Background(), c, Inputs{}, ExecContext{}); err == nil {
		t.Fatalf("expected a compile error for malformed source")
	}
}

func TestTemplateExecutorSubstitutes(t *testing.T) {
	e := TemplateExecutor{}
	c := cell.Cell{TemplateBody: "Hello {{name}}"}
	out, err := e.Execute(context.Background(), c, Inputs{"name": chidorival.String("Ada")}, ExecContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := out.AsString()
	if s != "Hello Ada" {
		t.Fatalf("expected substituted template, got %q", s)
	}
}

func TestMemoryExecutorUpsertThenQuery(t *testing.T) {
	store := NewInProcessMemoryStore()
	e := NewMemoryExecutor(store)
	c := cell.Cell{Name: "mem", Kind: cell.KindMemory, Memory: &cell.MemoryConfig{Collection: "notes", Op: cell.MemoryOpUpsert}}

	_, err := e.Execute(context.Background(), c, Inputs{"document": chidorival.String("the quick brown fox"), "id": chidorival.String("doc1")}, ExecContext{})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	queryCell := cell.Cell{Name: "q", Kind: cell.KindMemory, Memory: &cell.MemoryConfig{Collection: "notes", Op: cell.MemoryOpQuery, TopK: 5}}
	out, err := e.Execute(context.Background(), queryCell, Inputs{"query": chidorival.String("fox")}, ExecContext{})
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	results, ok := out.AsArray()
	if !ok || len(results) != 1 {
		t.Fatalf("expected 1 matching document, got %+v", out)
	}
}

func TestWebExecutorExtractsBody(t *testing.T) {
	e := WebExecutor{}
	req := chidorival.Object(map[string]chidorival.Value{"body": chidorival.String("payload")})
	out, err := e.Execute(context.Background(), cell.Cell{Kind: cell.KindWeb}, Inputs{"request": req}, ExecContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := out.AsString()
	if s != "payload" {
		t.Fatalf("expected 'payload', got %q", s)
	}
}
