// Package tools implements the tool catalog, the per-tool JSON-schema
// argument validator, and the built-in executors.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inneri/gateway/internal/gateway/model"
	"github.com/inneri/gateway/pkg/canonical"
)

// ErrNotFound is returned for unknown and disabled tools alike; clients
// cannot distinguish the two.
var ErrNotFound = errors.New(model.ErrToolNotFoundOrDisabled)

// ValidationError carries the validator diagnostic for a single tool's
// arguments.
type ValidationError struct {
	ToolID  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("args for %s: %s", e.ToolID, e.Message)
}

// toolStore is the persistence interface for the catalog.
// *repository.ToolRepository satisfies this interface.
type toolStore interface {
	Get(ctx context.Context, toolID string) (*model.Tool, error)
	ListEnabled(ctx context.Context) ([]*model.Tool, error)
}

// Catalog looks up tool metadata and validates call arguments against
// each tool's declared schema. Compiled schemas are cached per tool
// version; schema execution is purely data-driven and cannot run code.
type Catalog struct {
	store toolStore

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema // "<tool_id>@<version>"
}

// NewCatalog creates a Catalog over the given store.
func NewCatalog(store toolStore) *Catalog {
	return &Catalog{
		store:    store,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Lookup returns the tool with the given id. Unknown and disabled tools
// both yield ErrNotFound.
func (c *Catalog) Lookup(ctx context.Context, toolID string) (*model.Tool, error) {
	tool, err := c.store.Get(ctx, toolID)
	if err != nil {
		return nil, err
	}
	if tool == nil || !tool.Enabled {
		return nil, ErrNotFound
	}
	return tool, nil
}

// ListEnabled returns the public listing of enabled tools.
func (c *Catalog) ListEnabled(ctx context.Context) ([]model.ToolInfo, error) {
	ts, err := c.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]model.ToolInfo, 0, len(ts))
	for _, t := range ts {
		infos = append(infos, model.ToolInfo{
			ToolID:      t.ToolID,
			Name:        t.Name,
			Description: t.Description,
			Risk:        t.Risk,
			Version:     t.Version,
		})
	}
	return infos, nil
}

// ValidateArgs checks args against the tool's declared JSON schema and
// returns a *ValidationError carrying the validator diagnostic on
// failure.
func (c *Catalog) ValidateArgs(tool *model.Tool, args map[string]any) error {
	schema, err := c.schemaFor(tool)
	if err != nil {
		return err
	}

	// Nil args validate as an empty object.
	if args == nil {
		args = map[string]any{}
	}

	if err := schema.Validate(any(args)); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{ToolID: tool.ToolID, Message: ve.Error()}
		}
		return &ValidationError{ToolID: tool.ToolID, Message: err.Error()}
	}
	return nil
}

// schemaFor compiles the tool's schema, caching by tool id and version.
func (c *Catalog) schemaFor(tool *model.Tool) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%s@%d", tool.ToolID, tool.Version)

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.compiled[key]; ok {
		return s, nil
	}

	raw, err := canonical.Marshal(tool.JSONSchema)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", tool.ToolID, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("inneri:///tools/%s.schema.json", tool.ToolID)
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("load schema for %s: %w", tool.ToolID, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool.ToolID, err)
	}

	c.compiled[key] = schema
	return schema, nil
}
