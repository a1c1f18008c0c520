// Package prompts provides prompt management with embedded defaults and
// on-disk overrides.
//
// Embedded .tmpl files in code are the source of truth for defaults. A user
// can drop "<key>.tmpl" files into the prompts directory to replace any of
// them; the content hash of whichever text was used is recorded with every
// provider call.
//
// Resolution order:
//  1. Override file (prompts directory, if present)
//  2. Embedded default
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: analysis.breakdown.system
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// ResolvedPrompt is the text a key resolves to.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	Hash       string   `json:"hash"`
	IsOverride bool     `json:"is_override"`
	Path       string   `json:"path,omitempty"` // override file, when IsOverride
}

// Rendered is a system/user prompt pair ready to send.
type Rendered struct {
	Key        string // system prompt key, recorded with the call
	System     string
	User       string
	Hash       string // hash of the system template text that was rendered
	IsOverride bool
}
