package providers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAdaptedResponseFormat(t *testing.T) {
	rf, err := JSONSchemaFormat("breakdown", json.RawMessage(`{
		"type":"object",
		"properties":{
			"scenes":{"type":"array","items":{"type":"object","properties":{"heading":{"type":"string"},"number":{"type":"integer"}},"required":["heading"]}},
			"notes":{"type":"string"}
		}
	}`))
	if err != nil {
		t.Fatalf("JSONSchemaFormat() error = %v", err)
	}

	t.Run("anthropic uses prompt-only output", func(t *testing.T) {
		got, err := adaptedResponseFormat("anthropic/claude-sonnet-4", rf)
		if err != nil {
			t.Fatalf("adaptedResponseFormat() error = %v", err)
		}
		if got != nil {
			t.Errorf("adaptedResponseFormat() = %+v, want nil", got)
		}
	})

	t.Run("other models get a strict schema", func(t *testing.T) {
		got, err := adaptedResponseFormat("google/gemini-2.5-pro", rf)
		if err != nil {
			t.Fatalf("adaptedResponseFormat() error = %v", err)
		}
		if got == nil || got.Type != "json_schema" {
			t.Fatalf("adaptedResponseFormat() = %+v", got)
		}
		body := string(got.JSONSchema)
		if !strings.Contains(body, `"strict":true`) {
			t.Errorf("schema lost strict flag: %s", body)
		}
		if !strings.Contains(body, `"required":["notes","scenes"]`) {
			t.Errorf("top-level properties not all required: %s", body)
		}
		if !strings.Contains(body, `"required":["heading","number"]`) {
			t.Errorf("nested properties not all required: %s", body)
		}
		if strings.Count(body, `"additionalProperties":false`) != 2 {
			t.Errorf("objects not closed: %s", body)
		}
	})

	t.Run("json_object passes through", func(t *testing.T) {
		got, err := adaptedResponseFormat("openai/gpt-4.1", &ResponseFormat{Type: "json_object"})
		if err != nil || got == nil || got.Type != "json_object" {
			t.Errorf("adaptedResponseFormat() = %+v, %v", got, err)
		}
	})

	t.Run("nil format", func(t *testing.T) {
		got, err := adaptedResponseFormat("x", nil)
		if err != nil || got != nil {
			t.Errorf("adaptedResponseFormat(nil) = %v, %v", got, err)
		}
	})
}
