package analyzer

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// exprFallback analyzes a code cell whose source is a single
// github.com/expr-lang/expr expression of the form `name = <expr>`
// (a minimal but real host "language", standing in for the external
// Python/JS executors per SPEC_FULL.md §4.1.1). It walks the compiled
// AST's identifier nodes to recover globals_read; globals_written is
// the single bound output name before '='.
//
// Grounded on internal/application/executor/graph.go's evaluateCondition,
// which already compiles expr-lang source against a map[string]any
// environment for conditional-edge evaluation; this analyzer performs
// the equivalent parse but for dependency discovery instead of
// boolean evaluation.
type exprFallback struct{}

func (exprFallback) Analyze(source string) (CodeAnalysis, error) {
	written, body, isAssignment := splitAssignment(source)

	tree, err := parser.Parse(body)
	if err != nil {
		return CodeAnalysis{}, fmt.Errorf("expr parse failed: %w", err)
	}

	v := &identifierCollector{found: map[string]struct{}{}}
	ast.Walk(&tree.Node, v)

	analysis := CodeAnalysis{}
	for name := range v.found {
		if name == written {
			continue
		}
		analysis.GlobalsRead = append(analysis.GlobalsRead, name)
	}
	if isAssignment {
		analysis.GlobalsWritten = []string{written}
	}
	return analysis, nil
}

// splitAssignment splits "name = expr" into ("name", "expr", true), or
// returns ("", source, false) if there is no top-level assignment.
func splitAssignment(source string) (name string, body string, ok bool) {
	idx := strings.Index(source, "=")
	if idx <= 0 || idx+1 >= len(source) {
		return "", source, false
	}
	// Avoid splitting on ==, !=, <=, >=.
	if idx+1 < len(source) && source[idx+1] == '=' {
		return "", source, false
	}
	if idx > 0 && (source[idx-1] == '!' || source[idx-1] == '<' || source[idx-1] == '>') {
		return "", source, false
	}
	candidate := strings.TrimSpace(source[:idx])
	if !isIdentifier(candidate) {
		return "", source, false
	}
	return candidate, strings.TrimSpace(source[idx+1:]), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// identifierCollector implements ast.Visitor, gathering every
// identifier node's name.
type identifierCollector struct {
	found map[string]struct{}
}

func (c *identifierCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.found[id.Value] = struct{}{}
	}
}
