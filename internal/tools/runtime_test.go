package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/inneri/gateway/internal/gateway/model"
)

func TestRuntimeDispatch(t *testing.T) {
	rt := NewRuntime(EchoExecutor{}, MathEvalExecutor{})
	ctx := context.Background()

	out, err := rt.Execute(ctx, &model.Tool{ToolID: "echo"}, map[string]any{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if out["text"] != "hello" {
		t.Fatalf("echo output = %v", out)
	}

	out, err = rt.Execute(ctx, &model.Tool{ToolID: "math_eval"}, map[string]any{"expression": "2+2"})
	if err != nil {
		t.Fatal(err)
	}
	if out["value"] != int64(4) {
		t.Fatalf("math_eval output = %v", out)
	}

	if _, err := rt.Execute(ctx, &model.Tool{ToolID: "teleport"}, nil); err == nil {
		t.Fatal("expected error for unregistered tool")
	}
}

func TestMathEvalExecutorError(t *testing.T) {
	rt := NewRuntime(MathEvalExecutor{})
	_, err := rt.Execute(context.Background(), &model.Tool{ToolID: "math_eval"}, map[string]any{"expression": "open('/etc/passwd')"})
	if err == nil || err.Error() != "Unsupported expression" {
		t.Fatalf("err = %v", err)
	}
}

func TestUUIDMintExecutor(t *testing.T) {
	e := UUIDMintExecutor{}
	ctx := context.Background()

	out, err := e.Execute(ctx, &model.Tool{ToolID: "uuid_mint"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := out["uuids"].([]string)
	if len(ids) != 1 {
		t.Fatalf("default count output = %v", out)
	}

	out, err = e.Execute(ctx, &model.Tool{ToolID: "uuid_mint"}, map[string]any{"count": float64(3)})
	if err != nil {
		t.Fatal(err)
	}
	ids, _ = out["uuids"].([]string)
	if len(ids) != 3 {
		t.Fatalf("count=3 output = %v", out)
	}
	if ids[0] == ids[1] {
		t.Fatal("uuids not unique")
	}

	if _, err := e.Execute(ctx, &model.Tool{ToolID: "uuid_mint"}, map[string]any{"count": float64(99)}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestTimeNowExecutor(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.FixedZone("PDT", -7*3600))
	e := TimeNowExecutor{Now: func() time.Time { return fixed }}

	out, err := e.Execute(context.Background(), &model.Tool{ToolID: "time_now"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	utc, _ := out["utc"].(string)
	if !strings.HasSuffix(utc, "Z") {
		t.Fatalf("timestamp not UTC-suffixed: %q", utc)
	}
	if !strings.HasPrefix(utc, "2025-03-14T16:26:53") {
		t.Fatalf("timestamp not converted to UTC: %q", utc)
	}
	if _, err := time.Parse(time.RFC3339Nano, utc); err != nil {
		t.Fatalf("timestamp not RFC 3339: %v", err)
	}
}
