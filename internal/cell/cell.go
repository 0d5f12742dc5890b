// Package cell defines the authored-unit data model: Cell variants,
// OperationId, Signature, and the pure descriptor OperationNode.
// Grounded on the teacher's node-type-enum-with-config pattern
// (mbflow.go's NodeExecutorType constants, internal/domain/node.go's
// entity-with-config shape) generalized from "workflow node kind" to
// "notebook cell kind".
package cell

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// OperationID is the stable identity of a cell within a program.
// Reused across mutations so dependents keep pointing at the same
// logical operation even when the cell body changes.
type OperationID string

// NewOperationID mints a fresh, opaque OperationID.
func NewOperationID() OperationID {
	return OperationID(uuid.NewString())
}

// Kind enumerates the cell variants named in spec.md §3.
type Kind string

const (
	KindCode     Kind = "code"
	KindPrompt   Kind = "prompt"
	KindCodeGen  Kind = "codegen"
	KindTemplate Kind = "template"
	KindMemory   Kind = "memory"
	KindWeb      Kind = "web"
)

// Language identifies the host language of a Code cell.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

// SourceRange annotates where a cell's source text lives in its
// authoring document (e.g. a notebook's Markdown source), for UI use.
type SourceRange struct {
	StartLine int
	EndLine   int
}

// ChatMessage is one turn of a Prompt cell's chat configuration.
type ChatMessage struct {
	Role    string
	Content string
}

// PromptConfig configures a Prompt or CodeGen cell's LLM call.
type PromptConfig struct {
	Model       string        `validate:"required"`
	Messages    []ChatMessage `validate:"omitempty,dive"`
	TemplateRaw string
	Temperature float64
}

// MemoryOp enumerates vector-store operations a Memory cell can perform.
type MemoryOp string

const (
	MemoryOpUpsert MemoryOp = "upsert"
	MemoryOpQuery  MemoryOp = "query"
	MemoryOpDelete MemoryOp = "delete"
)

// MemoryConfig configures a Memory cell's vector-store surface.
type MemoryConfig struct {
	Collection string `validate:"required"`
	Op         MemoryOp `validate:"required,oneof=upsert query delete"`
	TopK       int
}

// WebConfig configures a Web cell's HTTP surface.
type WebConfig struct {
	Method string `validate:"required,oneof=GET POST PUT DELETE PATCH"`
	Path   string `validate:"required"`
}

// Cell is a user-authored unit. Exactly one of the Kind-specific
// config fields is populated, matching c.Kind.
type Cell struct {
	Kind Kind

	// Name is an optional human name; when set, it is also registered
	// as a produced callable output (see Signature derivation).
	Name string

	Range SourceRange

	// Code cell fields.
	Language           Language
	Source             string
	FunctionInvocation string // optional: the callable name this cell invokes as a function

	// Prompt / CodeGen cell fields.
	Prompt *PromptConfig

	// Template cell fields.
	TemplateBody string

	// Memory cell fields.
	Memory *MemoryConfig

	// Web cell fields.
	Web *WebConfig
}

// TriggerMode determines how an operation participates in automatic
// dispatch.
type TriggerMode string

const (
	TriggerOnChange TriggerMode = "on_change"
	TriggerOnEvent  TriggerMode = "on_event"
	TriggerManual   TriggerMode = "manual"
)

// SlotDefault describes an InputSignature slot's declared type hint
// and whether the slot declares a default. The default value itself is
// not stored.
type SlotDefault struct {
	TypeHint string
	HasValue bool
}

// InputSignature declares the three namespaces a cell may consume
// from: positional args, keyword args, and globals.
type InputSignature struct {
	Args    map[string]SlotDefault
	Kwargs  map[string]SlotDefault
	Globals map[string]SlotDefault
}

// NewInputSignature returns an InputSignature with initialized maps.
func NewInputSignature() InputSignature {
	return InputSignature{
		Args:    map[string]SlotDefault{},
		Kwargs:  map[string]SlotDefault{},
		Globals: map[string]SlotDefault{},
	}
}

// AllSlots returns every declared input slot name across args, kwargs,
// and globals, in a deterministic order (args, then kwargs, then
// globals, each lexicographically).
func (s InputSignature) AllSlots() []string {
	out := make([]string, 0, len(s.Args)+len(s.Kwargs)+len(s.Globals))
	out = append(out, sortedKeys(s.Args)...)
	out = append(out, sortedKeys(s.Kwargs)...)
	out = append(out, sortedKeys(s.Globals)...)
	return out
}

// Has reports whether name is declared in any of the three namespaces.
func (s InputSignature) Has(name string) bool {
	if _, ok := s.Args[name]; ok {
		return true
	}
	if _, ok := s.Kwargs[name]; ok {
		return true
	}
	if _, ok := s.Globals[name]; ok {
		return true
	}
	return false
}

// OutputSignature declares which global names and which callable
// names a cell produces.
type OutputSignature struct {
	Globals   map[string]struct{}
	Functions map[string]struct{}
}

// NewOutputSignature returns an OutputSignature with initialized sets.
func NewOutputSignature() OutputSignature {
	return OutputSignature{
		Globals:   map[string]struct{}{},
		Functions: map[string]struct{}{},
	}
}

// Produces reports whether name is declared as a global or function output.
func (s OutputSignature) Produces(name string) bool {
	if _, ok := s.Globals[name]; ok {
		return true
	}
	if _, ok := s.Functions[name]; ok {
		return true
	}
	return false
}

// Signature is the derived description of a cell's declared inputs,
// outputs, and trigger mode.
type Signature struct {
	Input   InputSignature
	Output  OutputSignature
	Trigger TriggerMode

	// CallTarget, when non-empty, names the callable (Cell.Name of some
	// other operation) this operation invokes through the Function-call
	// Enclosure (spec.md §4.5) rather than consuming as an ordinary
	// value: the input slot of the same name is satisfied by a
	// FunctionPointer at dispatch time and resolved to a real call by
	// the Executor's rpc_channel, so it never gates this operation's
	// dispatch on the callee having already run.
	CallTarget string

	// Diagnostic is set when derivation failed (AnalysisError); the
	// cell still has an (empty) Signature and never fires automatically.
	Diagnostic string
}

// Empty returns the zero signature used when analysis fails: no
// inputs, no outputs, Manual trigger so it never auto-fires.
func Empty(diagnostic string) Signature {
	return Signature{
		Input:      NewInputSignature(),
		Output:     NewOutputSignature(),
		Trigger:    TriggerManual,
		Diagnostic: diagnostic,
	}
}

// OperationNode is a pure descriptor: no mutable execution state lives
// here. created_at_state_id anchors when this operation entered the
// lineage (for invariant checking, not for execution).
type OperationNode struct {
	ID               OperationID
	CreatedAtStateID string
	Cell             Cell
	Signature        Signature
	IsLongRunning    bool
	CreatedAt        time.Time
}

func sortedKeys(m map[string]SlotDefault) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
