package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shelfscan/backend/internal/domain"
)

// responseSchemaMap describes the object the prompts ask models to return
func responseSchemaMap() map[string]any {
	categories := make([]any, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, string(c))
	}
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]any{
			"name":     map[string]any{"type": "string", "minLength": 1},
			"price":    map[string]any{"type": []any{"integer", "null"}, "minimum": 0},
			"unit":     map[string]any{"type": []any{"string", "null"}},
			"sku":      map[string]any{"type": []any{"string", "null"}},
			"category": map[string]any{"enum": categories},
		},
		"required": []any{"name", "price", "category"},
	}
}

// SchemaChecker validates raw model objects against the response schema.
// A mismatch is informational: the normalizer still coerces the object.
type SchemaChecker struct {
	schema *jsonschema.Schema
}

// NewSchemaChecker compiles the response schema
func NewSchemaChecker() (*SchemaChecker, error) {
	b, err := json.Marshal(responseSchemaMap())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("product.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("product.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaChecker{schema: schema}, nil
}

// Check reports how obj deviates from the response schema, or nil
func (c *SchemaChecker) Check(obj map[string]any) error {
	if err := c.schema.Validate(obj); err != nil {
		return fmt.Errorf("model output does not match schema: %w", err)
	}
	return nil
}
