package cell

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/chidori-ai/chidori/internal/cerr"
)

var validate = validator.New()

// Validate checks a cell's kind-specific configuration with struct
// tags (go-playground/validator/v10, the teacher's request-validation
// library), independent of signature derivation. It checks required
// structural fields for every kind. The upsert paths
// (Supervisor.MutateCell, the api cell handler, LoadDocument) do not
// call it, so a cell reaches the state whether or not it validates.
func (c Cell) Validate() error {
	switch c.Kind {
	case KindCode:
		if c.Language == "" {
			return &cerr.ValidationError{Field: "language", Message: "required for code cells"}
		}
		if c.Source == "" {
			return &cerr.ValidationError{Field: "source", Message: "required for code cells"}
		}
	case KindPrompt, KindCodeGen:
		if c.Prompt == nil {
			return &cerr.ValidationError{Field: "prompt", Message: "required for prompt/codegen cells"}
		}
		if err := validate.Struct(c.Prompt); err != nil {
			return &cerr.ValidationError{Field: "prompt", Message: err.Error()}
		}
	case KindTemplate:
		if c.TemplateBody == "" {
			return &cerr.ValidationError{Field: "template_body", Message: "required for template cells"}
		}
	case KindMemory:
		if c.Memory == nil {
			return &cerr.ValidationError{Field: "memory", Message: "required for memory cells"}
		}
		if err := validate.Struct(c.Memory); err != nil {
			return &cerr.ValidationError{Field: "memory", Message: err.Error()}
		}
	case KindWeb:
		if c.Web == nil {
			return &cerr.ValidationError{Field: "web", Message: "required for web cells"}
		}
		if err := validate.Struct(c.Web); err != nil {
			return &cerr.ValidationError{Field: "web", Message: err.Error()}
		}
	default:
		return &cerr.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown cell kind %q", c.Kind)}
	}
	return nil
}
