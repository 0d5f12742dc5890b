package executorreg

import (
	"context"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

// TemplateExecutor renders a Template cell's body by substituting
// {{name}} references against resolved inputs, reusing the same
// substitution routine the prompt executor uses for chat messages.
type TemplateExecutor struct{}

func (TemplateExecutor) Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error) {
	vars := make(map[string]string, len(in))
	for k, v := range in {
		vars[k] = renderInput(v)
	}
	return chidorival.String(substitute(c.TemplateBody, vars)), nil
}
