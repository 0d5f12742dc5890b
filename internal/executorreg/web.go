package executorreg

import (
	"context"

	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cerr"
	"github.com/chidori-ai/chidori/internal/chidorival"
)

// WebExecutor runs a Web cell: a cell whose TriggerMode is OnEvent and
// whose external event source is an inbound HTTP request matching its
// WebConfig (Method+Path), read from the operation's "request" input
// (an Object of method/path/query/body). The api package has no route
// that supplies that input.
// Executing a Web cell is a pass-through: it hands the request body
// back out as the operation's produced value, so downstream cells can
// consume request fields the same way they consume any other global.
type WebExecutor struct{}

func (WebExecutor) Execute(ctx context.Context, c cell.Cell, in Inputs, ec ExecContext) (chidorival.Value, error) {
	req, ok := in["request"]
	if !ok {
		return chidorival.Value{}, &cerr.ExecutionError{OperationID: c.Name, Message: "web cell invoked without a 'request' input"}
	}
	fields, isObj := req.AsObject()
	if !isObj {
		return req, nil
	}
	if body, ok := fields["body"]; ok {
		return body, nil
	}
	return req, nil
}
