package providers

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ResponseFormat asks the provider for schema-constrained JSON output.
// JSONSchema uses the {"name","strict","schema"} wrapper.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema" or "json_object"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// JSONSchemaFormat builds a strict json_schema response format.
func JSONSchemaFormat(name string, schema json.RawMessage) (*ResponseFormat, error) {
	wrapped, err := json.Marshal(map[string]any{
		"name":   name,
		"strict": true,
		"schema": schema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap schema %s: %w", name, err)
	}
	return &ResponseFormat{Type: "json_schema", JSONSchema: wrapped}, nil
}

// adaptedResponseFormat returns the response format to send for model, or
// nil when the model should rely on prompt instructions plus local repair.
func adaptedResponseFormat(model string, rf *ResponseFormat) (*openRouterResponseFormat, error) {
	if rf == nil {
		return nil, nil
	}
	// OpenRouter may route anthropic/* models to backends that reject
	// native structured output.
	if isAnthropicModel(model) {
		return nil, nil
	}

	schema := rf.JSONSchema
	if rf.Type == "json_schema" && len(schema) > 0 {
		var err error
		if schema, err = strictWrapper(schema); err != nil {
			return nil, err
		}
	}
	return &openRouterResponseFormat{Type: rf.Type, JSONSchema: schema}, nil
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

// strictWrapper rewrites the schema inside a {"name","strict","schema"}
// wrapper so strict mode accepts it: every object lists all of its
// properties as required and closes additionalProperties.
func strictWrapper(wrapped json.RawMessage) (json.RawMessage, error) {
	var root map[string]any
	if err := json.Unmarshal(wrapped, &root); err != nil {
		return nil, fmt.Errorf("failed to parse response schema: %w", err)
	}
	inner, ok := root["schema"]
	if !ok {
		return wrapped, nil
	}
	closeObjects(inner)
	out, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response schema: %w", err)
	}
	return out, nil
}

func closeObjects(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			n["required"] = required
			n["additionalProperties"] = false
		}
		for _, v := range n {
			closeObjects(v)
		}
	case []any:
		for _, v := range n {
			closeObjects(v)
		}
	}
}
