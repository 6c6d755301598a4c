package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inneri/gateway/internal/gateway/model"
)

// Executor runs a single tool. Implementations receive validated
// arguments and return the tool's output object; returned errors are
// surfaced to the caller as per-tool failures, never HTTP failures.
type Executor interface {
	ToolID() string
	Execute(ctx context.Context, tool *model.Tool, args map[string]any) (map[string]any, error)
}

// Runtime dispatches calls to registered executors by tool id.
type Runtime struct {
	executors map[string]Executor
}

func NewRuntime(executors ...Executor) *Runtime {
	rt := &Runtime{executors: make(map[string]Executor, len(executors))}
	for _, e := range executors {
		rt.executors[e.ToolID()] = e
	}
	return rt
}

// Register adds or replaces an executor.
func (rt *Runtime) Register(e Executor) {
	rt.executors[e.ToolID()] = e
}

// Execute runs the executor registered for the tool. A catalog entry
// without a runtime implementation is an execution error, not a lookup
// error: the tool exists, it just cannot run here.
func (rt *Runtime) Execute(ctx context.Context, tool *model.Tool, args map[string]any) (map[string]any, error) {
	e, ok := rt.executors[tool.ToolID]
	if !ok {
		return nil, fmt.Errorf("no executor for tool %q", tool.ToolID)
	}
	return e.Execute(ctx, tool, args)
}

// EchoExecutor returns its text argument unchanged.
type EchoExecutor struct{}

func (EchoExecutor) ToolID() string { return "echo" }

func (EchoExecutor) Execute(_ context.Context, _ *model.Tool, args map[string]any) (map[string]any, error) {
	text, _ := args["text"].(string)
	return map[string]any{"text": text}, nil
}

// TimeNowExecutor reports the current UTC time. The clock is
// injectable for tests.
type TimeNowExecutor struct {
	Now func() time.Time
}

func (TimeNowExecutor) ToolID() string { return "time_now" }

func (e TimeNowExecutor) Execute(_ context.Context, _ *model.Tool, _ map[string]any) (map[string]any, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return map[string]any{"utc": now().UTC().Format("2006-01-02T15:04:05.999999Z07:00")}, nil
}

// UUIDMintExecutor generates random v4 identifiers. Catalogued at
// medium risk so sandbox mode exercises the risk gate against a
// harmless tool.
type UUIDMintExecutor struct{}

func (UUIDMintExecutor) ToolID() string { return "uuid_mint" }

func (UUIDMintExecutor) Execute(_ context.Context, _ *model.Tool, args map[string]any) (map[string]any, error) {
	count := 1
	if v, ok := args["count"].(float64); ok {
		count = int(v)
	}
	if count < 1 || count > 16 {
		return nil, fmt.Errorf("count must be between 1 and 16")
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	return map[string]any{"uuids": ids}, nil
}

// MathEvalExecutor evaluates a pure arithmetic expression.
type MathEvalExecutor struct{}

func (MathEvalExecutor) ToolID() string { return "math_eval" }

func (MathEvalExecutor) Execute(_ context.Context, _ *model.Tool, args map[string]any) (map[string]any, error) {
	expr, _ := args["expression"].(string)
	result, err := EvalMath(expr)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": result}, nil
}
