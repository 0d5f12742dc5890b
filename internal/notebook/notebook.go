// Package notebook loads a notebook document: YAML frontmatter
// declaring each cell's configuration, followed by a Markdown body
// whose fenced code blocks supply each cell's source, matched to its
// frontmatter entry by the code fence's info string.
//
// The YAML parsing follows src/internal/config.go's use of
// gopkg.in/yaml.v3 for structured configuration; the Markdown AST walk
// (goldmark, extracting fenced code blocks by iterating
// ast.Walk(doc, ...) and switching on node type) is grounded on
// knowledge/chunking/markdown.go from the broader example pack, the
// only place in the retrieval corpus that parses Markdown structurally
// rather than treating it as an opaque string.
package notebook

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/chidori-ai/chidori/internal/cell"
)

// CellFrontmatter is one YAML entry in the frontmatter's `cells` list:
// enough to construct a cell.Cell once its source is matched from the
// body.
type CellFrontmatter struct {
	Name     string            `yaml:"name"`
	Kind     cell.Kind         `yaml:"kind"`
	Language cell.Language     `yaml:"language,omitempty"`
	Trigger  cell.TriggerMode  `yaml:"trigger,omitempty"`
	Prompt   *cell.PromptConfig `yaml:"prompt,omitempty"`
	Memory   *cell.MemoryConfig `yaml:"memory,omitempty"`
	Web      *cell.WebConfig    `yaml:"web,omitempty"`
}

// Frontmatter is the parsed `---`-delimited YAML header.
type Frontmatter struct {
	Title string            `yaml:"title"`
	Cells []CellFrontmatter `yaml:"cells"`
}

// Document is a loaded notebook: its frontmatter plus the fully
// constructed cells, in the order they were declared in frontmatter.
type Document struct {
	Title string
	Cells []cell.Cell
}

// Parse splits raw into YAML frontmatter and Markdown body, matches
// each frontmatter cell entry to a fenced code block in the body whose
// info string names that cell (a fence opened with ```cell_name), and
// returns the assembled Document. A frontmatter entry with no matching code fence
// is still included (useful for Memory/Web cells, which carry no
// source); Template cells take their body from the fence's literal
// text directly, since the spec's Template kind is raw text, not code.
func Parse(raw []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}

	blocks := extractFencedBlocks(body)

	cells := make([]cell.Cell, 0, len(fm.Cells))
	for _, entry := range fm.Cells {
		c := cell.Cell{
			Kind:     entry.Kind,
			Name:     entry.Name,
			Language: entry.Language,
			Prompt:   entry.Prompt,
			Memory:   entry.Memory,
			Web:      entry.Web,
		}
		if src, ok := blocks[entry.Name]; ok {
			switch entry.Kind {
			case cell.KindTemplate:
				c.TemplateBody = src
			default:
				c.Source = src
			}
		}
		cells = append(cells, c)
	}

	return &Document{Title: fm.Title, Cells: cells}, nil
}

// splitFrontmatter separates a leading `---\n...\n---\n` YAML block
// from the remaining Markdown body. A document with no frontmatter
// delimiter yields an empty Frontmatter and the whole input as body.
func splitFrontmatter(raw []byte) (Frontmatter, []byte, error) {
	const delim = "---\n"
	if !bytes.HasPrefix(raw, []byte(delim)) {
		return Frontmatter{}, raw, nil
	}
	rest := raw[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end == -1 {
		return Frontmatter{}, nil, fmt.Errorf("notebook: unterminated frontmatter block")
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return Frontmatter{}, nil, fmt.Errorf("notebook: invalid frontmatter: %w", err)
	}
	body := rest[end+1+len(delim):]
	return fm, body, nil
}

// extractFencedBlocks walks the Markdown body's AST and returns every
// fenced code block keyed by the first word of its info string (the
// cell name a frontmatter entry should match).
func extractFencedBlocks(body []byte) map[string]string {
	md := goldmark.New()
	reader := text.NewReader(body)
	doc := md.Parser().Parse(reader)

	blocks := map[string]string{}
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		info := ""
		if fence.Info != nil {
			info = string(fence.Info.Text(body))
		}
		name := firstWord(info)
		if name == "" {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		for i := 0; i < fence.Lines().Len(); i++ {
			line := fence.Lines().At(i)
			buf.Write(line.Value(body))
		}
		blocks[name] = buf.String()
		return ast.WalkContinue, nil
	})
	return blocks
}

func firstWord(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			return s[:i]
		}
	}
	return s
}
