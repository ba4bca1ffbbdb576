package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voice2action/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation of its
// parameters. Rejected calls get an INVALID_INPUT envelope.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t so that Execute validates params against the
// tool's JSON Schema before forwarding. Tools without a schema are returned
// unchanged.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return invalidResult(fmt.Sprintf("invalid JSON: %v", err)), nil
	}
	if err := s.schema.Validate(v); err != nil {
		return invalidResult(fmt.Sprintf("schema validation failed: %v", err)), nil
	}
	return s.inner.Execute(ctx, params)
}

func invalidResult(msg string) *domain.ToolResult {
	return &domain.ToolResult{IsError: true, Content: Fail(string(domain.CodeInvalidInput), msg, "")}
}
