package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/inneri/gateway/internal/gateway/model"
)

type stubStore struct {
	tools map[string]*model.Tool
}

func (s *stubStore) Get(_ context.Context, toolID string) (*model.Tool, error) {
	return s.tools[toolID], nil
}

func (s *stubStore) ListEnabled(_ context.Context) ([]*model.Tool, error) {
	var out []*model.Tool
	for _, t := range s.tools {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func echoTool() *model.Tool {
	return &model.Tool{
		ToolID:  "echo",
		Name:    "Echo",
		Risk:    model.RiskLow,
		Enabled: true,
		Version: 1,
		JSONSchema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"text": map[string]any{"type": "string"}},
			"required":             []any{"text"},
			"additionalProperties": false,
		},
	}
}

func TestCatalogLookup(t *testing.T) {
	disabled := echoTool()
	disabled.ToolID = "old_echo"
	disabled.Enabled = false
	store := &stubStore{tools: map[string]*model.Tool{
		"echo":     echoTool(),
		"old_echo": disabled,
	}}
	cat := NewCatalog(store)
	ctx := context.Background()

	if _, err := cat.Lookup(ctx, "echo"); err != nil {
		t.Fatalf("lookup echo: %v", err)
	}
	if _, err := cat.Lookup(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown tool: got %v, want ErrNotFound", err)
	}
	if _, err := cat.Lookup(ctx, "old_echo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disabled tool: got %v, want ErrNotFound", err)
	}
}

func TestCatalogListEnabled(t *testing.T) {
	disabled := echoTool()
	disabled.ToolID = "old_echo"
	disabled.Enabled = false
	store := &stubStore{tools: map[string]*model.Tool{
		"echo":     echoTool(),
		"old_echo": disabled,
	}}
	cat := NewCatalog(store)

	infos, err := cat.ListEnabled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ToolID != "echo" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}

func TestValidateArgs(t *testing.T) {
	cat := NewCatalog(&stubStore{})
	tool := echoTool()

	if err := cat.ValidateArgs(tool, map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}

	err := cat.ValidateArgs(tool, map[string]any{"text": 42.0})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("wrong-type args: got %v, want ValidationError", err)
	}
	if ve.ToolID != "echo" {
		t.Fatalf("ValidationError tool id = %q", ve.ToolID)
	}

	// Missing required property.
	if err := cat.ValidateArgs(tool, nil); !errors.As(err, &ve) {
		t.Fatalf("nil args with required field: got %v", err)
	}

	// Extra property against additionalProperties: false.
	err = cat.ValidateArgs(tool, map[string]any{"text": "hi", "shell": "rm -rf /"})
	if !errors.As(err, &ve) {
		t.Fatalf("extra property: got %v", err)
	}
	if !strings.Contains(ve.Message, "additionalProperties") && !strings.Contains(ve.Message, "shell") {
		t.Fatalf("diagnostic missing detail: %q", ve.Message)
	}
}

func TestValidateArgsSchemaCached(t *testing.T) {
	cat := NewCatalog(&stubStore{})
	tool := echoTool()

	if err := cat.ValidateArgs(tool, map[string]any{"text": "a"}); err != nil {
		t.Fatal(err)
	}
	if len(cat.compiled) != 1 {
		t.Fatalf("compiled cache size = %d", len(cat.compiled))
	}
	if err := cat.ValidateArgs(tool, map[string]any{"text": "b"}); err != nil {
		t.Fatal(err)
	}
	if len(cat.compiled) != 1 {
		t.Fatalf("compiled cache grew to %d", len(cat.compiled))
	}

	// A new version compiles a fresh schema.
	tool.Version = 2
	if err := cat.ValidateArgs(tool, map[string]any{"text": "c"}); err != nil {
		t.Fatal(err)
	}
	if len(cat.compiled) != 2 {
		t.Fatalf("compiled cache after version bump = %d", len(cat.compiled))
	}
}
