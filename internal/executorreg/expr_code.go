package executorreg

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

// ExprCodeExecutor runs a Code cell whose source is a single
// github.com/expr-lang/expr expression (the minimal built-in "host
// language" per SPEC_FULL.md §4.1.1, standing in for an external
// Python/JavaScript worker process). Supports the same `name = <expr>`
// shape the analyzer package's expr fallback (exprFallback) derives
// signatures from.
//
// Grounded on internal/application/executor/graph.go's evaluateCondition,
// which already compiles and runs expr-lang expressions against a
// map[string]any environment drawn from workflow variables.
type ExprCodeExecutor struct{}

func (ExprCodeExecutor) Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error) {
	_, body, _ := splitAssignment(c.Source)

	env := make(map[string]any, len(in))
	for k, v := range in {
		env[k] = valueToEnv(ctx, ec, v)
	}

	program, err := expr.Compile(body, expr.Env(env))
	if err != nil {
		return chidorival.Value{}, &cerr.ExecutionError{
			OperationID: c.Name,
			Message:     "failed to compile expression",
			Cause:       err,
		}
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return chidorival.Value{}, &cerr.ExecutionError{
			OperationID: c.Name,
			Message:     "expression evaluation failed",
			Cause:       err,
			Retryable:   false,
		}
	}

	return envToValue(result)
}

// splitAssignment mirrors the analyzer's own helper: it must agree on
// where the expression body begins, or a cell's derived signature and
// its actual runtime behavior would diverge.
func splitAssignment(source string) (name string, body string, ok bool) {
	idx := -1
	for i := 0; i < len(source); i++ {
		if source[i] != '=' {
			continue
		}
		if i+1 < len(source) && source[i+1] == '=' {
			continue
		}
		if i > 0 && (source[i-1] == '!' || source[i-1] == '<' || source[i-1] == '>' || source[i-1] == '=') {
			continue
		}
		idx = i
		break
	}
	if idx <= 0 {
		return "", source, false
	}
	name = strings.TrimSpace(source[:idx])
	for i, r := range name {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(i > 0 && r >= '0' && r <= '9') {
			return "", source, false
		}
	}
	return name, trimSpace(source[idx+1:]), true
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// valueToEnv lowers a chidorival.Value into the plain Go value
// expr-lang's environment expects. A FunctionPointer becomes a plain Go
// func so expr-lang source can call it like `greet(name)`: the call is
// routed over ec.Calls, spec.md §6's rpc_channel, so it runs as a
// genuine nested dispatch through the Function-call Enclosure rather
// than in-process.
func valueToEnv(ctx context.Context, ec ExecContext, v chidorival.Value) any {
	switch v.Kind {
	case chidorival.KindBool:
		b, _ := v.AsBool()
		return b
	case chidorival.KindInt:
		i, _ := v.AsInt()
		return i
	case chidorival.KindFloat:
		f, _ := v.AsFloat()
		return f
	case chidorival.KindString:
		s, _ := v.AsString()
		return s
	case chidorival.KindArray:
		items, _ := v.AsArray()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToEnv(ctx, ec, item)
		}
		return out
	case chidorival.KindObject:
		fields, _ := v.AsObject()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = valueToEnv(ctx, ec, item)
		}
		return out
	case chidorival.KindFunctionPointer:
		ptr, _ := v.AsFunctionPointer()
		return func(arg any) (any, error) {
			if ec.Calls == nil {
				return nil, fmt.Errorf("no rpc_channel available to call %q", ptr.Name)
			}
			argVal, err := envToValue(arg)
			if err != nil {
				return nil, err
			}
			result, err := ec.Calls.Call(ctx, ptr.Name, argVal)
			if err != nil {
				return nil, err
			}
			return valueToEnv(ctx, ec, result), nil
		}
	default:
		return nil
	}
}

// envToValue lifts an expr-lang result back into a chidorival.Value.
func envToValue(result any) (chidorival.Value, error) {
	switch r := result.(type) {
	case nil:
		return chidorival.Null(), nil
	case bool:
		return chidorival.Bool(r), nil
	case int:
		return chidorival.Int(int64(r)), nil
	case int64:
		return chidorival.Int(r), nil
	case float64:
		return chidorival.Float(r), nil
	case string:
		return chidorival.String(r), nil
	case []any:
		items := make([]chidorival.Value, len(r))
		for i, item := range r {
			v, err := envToValue(item)
			if err != nil {
				return chidorival.Value{}, err
			}
			items[i] = v
		}
		return chidorival.Array(items...), nil
	case map[string]any:
		fields := make(map[string]chidorival.Value, len(r))
		for k, item := range r {
			v, err := envToValue(item)
			if err != nil {
				return chidorival.Value{}, err
			}
			fields[k] = v
		}
		return chidorival.Object(fields), nil
	default:
		return chidorival.Value{}, fmt.Errorf("unsupported expression result type %T", result)
	}
}
