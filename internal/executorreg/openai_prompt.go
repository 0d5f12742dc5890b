package executorreg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

// OpenAIPromptExecutor runs Prompt and CodeGen cells by rendering the
// cell's chat messages (substituting {{name}} references against the
// resolved inputs) and calling the Chat Completions API.
//
// Grounded on internal/application/executor/node_executors.go's
// OpenAICompletionExecutor: same client construction, same
// variable-substitution-then-call shape, same retryable-vs-fatal error
// split on API failure versus an empty choices list.
type OpenAIPromptExecutor struct {
	client *openai.Client
}

// NewOpenAIPromptExecutor constructs an executor bound to apiKey.
func NewOpenAIPromptExecutor(apiKey string) *OpenAIPromptExecutor {
	return &OpenAIPromptExecutor{client: openai.NewClient(apiKey)}
}

func (e *OpenAIPromptExecutor) Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error) {
	if c.Prompt == nil {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "prompt cell has no PromptConfig"}
	}

	vars := make(map[string]string, len(in))
	for k, v := range in {
		vars[k] = renderInput(v)
	}

	messages := buildMessages(*c.Prompt, vars)

	log.Debug().Str("cell", c.Name).Str("model", c.Prompt.Model).Msg("dispatching prompt cell")

	req := openai.ChatCompletionRequest{
		Model:       c.Prompt.Model,
		Temperature: float32(c.Prompt.Temperature),
		Messages:    messages,
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)

	if err != nil {
		return chidorival.Value{}, &cerr.ExecutionError{
			OperationID: c.Name,
			Message:     fmt.Sprintf("openai api error after %s: %v", latency, err),
			Cause:       err,
			Retryable:   true,
		}
	}
	if len(resp.Choices) == 0 {
		return chidorival.Value{}, &cerr.ExecutionError{
			OperationID: c.Name,
			Message:     "openai returned no choices",
			Retryable:   false,
		}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return chidorival.String(content), nil
}

func buildMessages(cfg cell.PromptConfig, vars map[string]string) []openai.ChatCompletionMessage {
	if len(cfg.Messages) == 0 {
		return []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: substitute(cfg.TemplateRaw, vars)},
		}
	}
	out := make([]openai.ChatCompletionMessage, len(cfg.Messages))
	for i, m := range cfg.Messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: substitute(m.Content, vars)}
	}
	return out
}

// substitute replaces every {{name}} reference in body with vars[name],
// leaving unknown references untouched.
func substitute(body string, vars map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(body); {
		if body[i] == '{' && i+1 < len(body) && body[i+1] == '{' {
			end := strings.Index(body[i:], "}}")
			if end == -1 {
				b.WriteString(body[i:])
				break
			}
			name := strings.TrimSpace(body[i+2 : i+end])
			if val, ok := vars[name]; ok {
				b.WriteString(val)
			} else {
				b.WriteString(body[i : i+end+2])
			}
			i += end + 2
			continue
		}
		b.WriteByte(body[i])
		i++
	}
	return b.String()
}

func renderInput(v chidorival.Value) string {
	switch v.Kind {
	case chidorival.KindString:
		s, _ := v.AsString()
		return s
	case chidorival.KindInt:
		n, _ := v.AsInt()
		return fmt.Sprintf("%d", n)
	case chidorival.KindFloat:
		f, _ := v.AsFloat()
		return fmt.Sprintf("%v", f)
	case chidorival.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("%v", b)
	case chidorival.KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
