// Package analyzer implements signature derivation (spec.md §4.1).
//
// analyze(cell) -> Signature is a pure function. For code cells it
// delegates to a per-language analyzer (external collaborator per
// spec.md §1); for prompt/template cells it scans for {{name}}
// references. This package ships default analyzers sufficient to
// drive the engine end to end (SPEC_FULL.md §4.1.1), grounded on the
// teacher's expr-lang condition evaluation
// (internal/application/executor/graph.go's evaluateCondition) and
// template scanning idiom.
package analyzer

import (
	"fmt"

	"github.com/chidori-ai/chidori/internal/cell"
)

func positionalSlotName(i int) string {
	return fmt.Sprintf("arg%d", i)
}

// CodeAnalysis is what a per-language static analyzer returns for a
// Code cell, per the external interface in spec.md §6.
type CodeAnalysis struct {
	GlobalsRead         []string
	GlobalsWritten      []string
	FunctionsDefined    []string
	FunctionsCalled     []string
	PositionalParamCount int
}

// LanguageAnalyzer is the external per-language collaborator's
// interface (analyze(language_tag, source_text) in spec.md §6).
type LanguageAnalyzer interface {
	Analyze(source string) (CodeAnalysis, error)
}

// Registry resolves a cell.Language to its LanguageAnalyzer, and
// drives template-reference scanning for non-code cells.
type Registry struct {
	languages map[cell.Language]LanguageAnalyzer
}

// NewRegistry returns a Registry with the built-in expr-lang analyzer
// registered as a stand-in for every Code language it is asked to
// analyze that has no more specific analyzer registered — a real
// Python/JavaScript analyzer can be registered in its place via
// Register without touching the resolver or dispatcher.
func NewRegistry() *Registry {
	return &Registry{languages: map[cell.Language]LanguageAnalyzer{}}
}

// Register installs a LanguageAnalyzer for a specific host language.
func (r *Registry) Register(lang cell.Language, a LanguageAnalyzer) {
	r.languages[lang] = a
}

// Derive produces a Signature for c, or an Empty signature carrying a
// diagnostic if analysis fails (spec.md §4.1 Failure behavior: the
// cell is still stored, produces no outputs, and never fires
// automatically under OnChange).
func (r *Registry) Derive(c cell.Cell) cell.Signature {
	switch c.Kind {
	case cell.KindCode:
		return r.deriveCode(c)
	case cell.KindPrompt, cell.KindCodeGen, cell.KindTemplate:
		return deriveTemplateLike(c)
	case cell.KindMemory:
		return deriveMemory(c)
	case cell.KindWeb:
		return deriveWeb(c)
	default:
		return cell.Empty("unknown cell kind")
	}
}

func (r *Registry) deriveCode(c cell.Cell) cell.Signature {
	la, ok := r.languages[c.Language]
	if !ok {
		la = exprFallback{}
	}
	analysis, err := la.Analyze(c.Source)
	if err != nil {
		return cell.Empty(err.Error())
	}

	sig := cell.Signature{
		Input:   cell.NewInputSignature(),
		Output:  cell.NewOutputSignature(),
		Trigger: cell.TriggerOnChange,
	}

	for i := 0; i < analysis.PositionalParamCount; i++ {
		sig.Input.Args[positionalSlotName(i)] = cell.SlotDefault{TypeHint: "any"}
	}
	for _, g := range analysis.GlobalsRead {
		sig.Input.Globals[g] = cell.SlotDefault{TypeHint: "any"}
	}
	for _, g := range analysis.GlobalsWritten {
		sig.Output.Globals[g] = struct{}{}
	}
	for _, fn := range analysis.FunctionsDefined {
		sig.Output.Functions[fn] = struct{}{}
	}
	for _, fn := range analysis.FunctionsCalled {
		// a called function is consumed through the globals namespace:
		// the callee is bound to a name just like any other global.
		if _, declared := sig.Input.Globals[fn]; !declared {
			sig.Input.Globals[fn] = cell.SlotDefault{TypeHint: "function"}
		}
	}
	if c.Name != "" {
		sig.Output.Functions[c.Name] = struct{}{}
	}
	if c.FunctionInvocation != "" {
		sig.CallTarget = c.FunctionInvocation
		if _, declared := sig.Input.Globals[c.FunctionInvocation]; !declared {
			sig.Input.Globals[c.FunctionInvocation] = cell.SlotDefault{TypeHint: "function"}
		}
	}
	return sig
}

func deriveMemory(c cell.Cell) cell.Signature {
	sig := cell.Signature{
		Input:   cell.NewInputSignature(),
		Output:  cell.NewOutputSignature(),
		Trigger: cell.TriggerOnChange,
	}
	sig.Input.Kwargs["query"] = cell.SlotDefault{TypeHint: "any"}
	if c.Name != "" {
		sig.Output.Globals[c.Name] = struct{}{}
	}
	return sig
}

func deriveWeb(c cell.Cell) cell.Signature {
	sig := cell.Signature{
		Input:   cell.NewInputSignature(),
		Output:  cell.NewOutputSignature(),
		Trigger: cell.TriggerOnEvent,
	}
	sig.Input.Kwargs["request"] = cell.SlotDefault{TypeHint: "object"}
	if c.Name != "" {
		sig.Output.Globals[c.Name] = struct{}{}
	}
	return sig
}
