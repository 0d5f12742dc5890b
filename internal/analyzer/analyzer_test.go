package analyzer

import (
	"testing"

	"github.com/chidori-ai/chidori/internal/cell"
)

func TestDeriveCodeExprAssignment(t *testing.T) {
	r := NewRegistry()
	c := cell.Cell{
		Kind:     cell.KindCode,
		Language: cell.LanguagePython,
		Source:   "y = x + 1",
	}
	sig := r.Derive(c)
	if sig.Diagnostic != "" {
		t.Fatalf("unexpected diagnostic: %s", sig.Diagnostic)
	}
	if !sig.Input.Has("x") {
		t.Fatalf("expected input signature to include 'x', got %+v", sig.Input)
	}
	if _, ok := sig.Output.Globals["y"]; !ok {
		t.Fatalf("expected output signature to declare 'y', got %+v", sig.Output)
	}
}

func TestDeriveCodeAnalysisFailureYieldsEmptySignature(t *testing.T) {
	r := NewRegistry()
	c := cell.Cell{
		Kind:     cell.KindCode,
		Language: cell.LanguagePython,
		Source:   "y = (((",
	}
	sig := r.Derive(c)
	if sig.Diagnostic == "" {
		t.Fatalf("expected a diagnostic for unparseable source")
	}
	if sig.Trigger != cell.TriggerManual {
		t.Fatalf("expected a failed analysis to default to manual trigger so it never auto-fires")
	}
	if len(sig.Input.AllSlots()) != 0 {
		t.Fatalf("expected no input slots on analysis failure")
	}
}

func TestDeriveTemplateScansReferences(t *testing.T) {
	c := cell.Cell{
		Kind:         cell.KindTemplate,
		Name:         "greeting",
		TemplateBody: "Hello {{name}}, your score is {{score.value}}",
	}
	sig := deriveTemplateLike(c)
	if !sig.Input.Has("name") || !sig.Input.Has("score") {
		t.Fatalf("expected both 'name' and 'score' as inputs, got %+v", sig.Input)
	}
	if !sig.Output.Produces("greeting") {
		t.Fatalf("expected cell's own name to be a produced output")
	}
}

func TestReferencedNamesDeduplicates(t *testing.T) {
	names := ReferencedNames("{{a}} and {{a}} and {{b}}")
	if len(names) != 2 {
		t.Fatalf("expected 2 unique names, got %v", names)
	}
}
