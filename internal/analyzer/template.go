package analyzer

import (
	"regexp"

	"github.com/chidori-ai/chidori/internal/cell"
)

// templateRef matches {{name}} and {{name.field}} references, the
// same double-brace scanning idiom the teacher's template processor
// uses when it resolves node configs (go/pkg/engine/node_executor.go's
// ResolveConfig call site; the scanner itself is reimplemented here
// for the narrower signature-derivation purpose of listing referenced
// names, not performing substitution).
var templateRef = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)(?:\.[A-Za-z0-9_]+)*\s*\}\}`)

// deriveTemplateLike handles Prompt, CodeGen, and Template cells: scan
// the body (Prompt.TemplateRaw or TemplateBody) for {{name}}
// references as inputs, and register the cell's own name as a
// produced callable output if it has one.
func deriveTemplateLike(c cell.Cell) cell.Signature {
	body := c.TemplateBody
	if c.Prompt != nil {
		body = c.Prompt.TemplateRaw
		for _, msg := range c.Prompt.Messages {
			body += " " + msg.Content
		}
	}

	sig := cell.Signature{
		Input:   cell.NewInputSignature(),
		Output:  cell.NewOutputSignature(),
		Trigger: cell.TriggerOnChange,
	}

	seen := map[string]struct{}{}
	for _, m := range templateRef.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sig.Input.Globals[name] = cell.SlotDefault{TypeHint: "any"}
	}

	if c.Name != "" {
		sig.Output.Functions[c.Name] = struct{}{}
		sig.Output.Globals[c.Name] = struct{}{}
	}
	return sig
}

// ReferencedNames exposes the {{name}} scan directly, matching the
// external interface's analyze_template(body) -> referenced_names
// named in spec.md §6.
func ReferencedNames(body string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range templateRef.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
