// Package catalog defines the screenplay analysis passes and renders their
// prompts.
package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/reconcile"
)

//go:embed templates/*.tmpl
var templates embed.FS

// OutputFormat says how a pass's output is reconciled across chunks.
type OutputFormat string

const (
	FormatText       OutputFormat = "text"
	FormatStructured OutputFormat = "structured"
)

// Analysis type identifiers.
const (
	TypeBreakdown  = "breakdown"
	TypeCharacters = "characters"
	TypeStructure  = "structure"
	TypeThemes     = "themes"
	TypeDialogue   = "dialogue"
	TypePacing     = "pacing"
	TypeMarket     = "market"
	TypeCoverage   = "coverage"
	TypeLogline    = "logline"

	synthesizeID = "synthesize"
)

// DefaultLanguage is used when a run does not request one.
const DefaultLanguage = "English"

// ErrUnknownType is wrapped by UnknownTypeError.
var ErrUnknownType = errors.New("unknown analysis type")

// UnknownTypeError names an analysis type that is not in the catalog.
type UnknownTypeError struct {
	ID          string
	Suggestions []string
}

func (e *UnknownTypeError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown analysis type %q", e.ID)
	}
	return fmt.Sprintf("unknown analysis type %q (did you mean %s?)", e.ID, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// Spec describes one analysis pass.
type Spec struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Description  string       `json:"description"`
	OutputFormat OutputFormat `json:"output_format"`

	// NoChunking passes always see the whole document.
	NoChunking bool `json:"no_chunking"`

	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`

	SystemTemplate string `json:"-"`
	UserTemplate   string `json:"-"`
}

// SystemKey is the prompt key of the pass's system template.
func (s Spec) SystemKey() string { return "analysis." + s.ID + ".system" }

// UserKey is the prompt key of the pass's user template.
func (s Spec) UserKey() string { return "analysis." + s.ID + ".user" }

// Structured reports whether chunk outputs are merged as JSON.
func (s Spec) Structured() bool { return s.OutputFormat == FormatStructured }

// Schema returns the JSON Schema structured output is checked against, or
// nil for text passes.
func (s Spec) Schema() json.RawMessage {
	if s.ID == TypeBreakdown {
		return reconcile.BreakdownSchema()
	}
	return nil
}

var builtin = []Spec{
	{ID: TypeBreakdown, Label: "production breakdown", Description: "Scenes, characters, locations and equipment as structured data",
		OutputFormat: FormatStructured, Temperature: 0.2, MaxOutputTokens: 8000},
	{ID: TypeCharacters, Label: "character analysis", Description: "Goals, arcs and relationships of the principal characters",
		OutputFormat: FormatText, Temperature: 0.5, MaxOutputTokens: 4000},
	{ID: TypeStructure, Label: "structure analysis", Description: "Acts, turning points and momentum",
		OutputFormat: FormatText, Temperature: 0.4, MaxOutputTokens: 4000},
	{ID: TypeThemes, Label: "thematic analysis", Description: "Central and secondary themes and how they are expressed",
		OutputFormat: FormatText, Temperature: 0.6, MaxOutputTokens: 3000},
	{ID: TypeDialogue, Label: "dialogue review", Description: "Voice, subtext and weak lines with rewrites",
		OutputFormat: FormatText, Temperature: 0.5, MaxOutputTokens: 4000},
	{ID: TypePacing, Label: "pacing analysis", Description: "Scene rhythm and where to compress",
		OutputFormat: FormatText, Temperature: 0.4, MaxOutputTokens: 3000},
	{ID: TypeMarket, Label: "market assessment", Description: "Genre, audience, comparables and buyers",
		OutputFormat: FormatText, Temperature: 0.6, MaxOutputTokens: 3000},
	{ID: TypeCoverage, Label: "script coverage", Description: "Reader's report with synopsis and verdict",
		OutputFormat: FormatText, NoChunking: true, Temperature: 0.4, MaxOutputTokens: 5000},
	{ID: TypeLogline, Label: "loglines", Description: "Alternative loglines and a short pitch",
		OutputFormat: FormatText, NoChunking: true, Temperature: 0.8, MaxOutputTokens: 1000},
}

func mustTemplate(name string) string {
	b, err := templates.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("catalog: missing embedded template %s: %v", name, err))
	}
	return string(b)
}

// PromptData is the data every analysis template is rendered with.
type PromptData struct {
	Label       string
	Language    string
	Title       string
	Text        string
	ChunkIndex  int // 1-based
	TotalChunks int

	// PreserveSpacing marks text whose indentation and line breaks follow
	// screenplay layout.
	PreserveSpacing bool
}

// Catalog holds the analysis passes and resolves their prompts.
type Catalog struct {
	specs    []Spec
	byID     map[string]int
	resolver *prompts.Resolver
}

// New builds the catalog of built-in passes and registers their templates
// with resolver.
func New(resolver *prompts.Resolver) *Catalog {
	if resolver == nil {
		resolver = prompts.NewResolver(nil, nil)
	}
	c := &Catalog{byID: make(map[string]int), resolver: resolver}

	userText := mustTemplate("user.tmpl")
	for _, s := range builtin {
		s.SystemTemplate = mustTemplate(s.ID + ".system.tmpl")
		s.UserTemplate = userText
		c.byID[s.ID] = len(c.specs)
		c.specs = append(c.specs, s)

		resolver.Register(prompts.EmbeddedPrompt{
			Key:         s.SystemKey(),
			Text:        s.SystemTemplate,
			Description: s.Label + " system prompt",
		})
		resolver.Register(prompts.EmbeddedPrompt{
			Key:         s.UserKey(),
			Text:        s.UserTemplate,
			Description: s.Label + " user prompt template",
		})
	}

	resolver.Register(prompts.EmbeddedPrompt{
		Key:         "analysis." + synthesizeID + ".system",
		Text:        mustTemplate("synthesize.system.tmpl"),
		Description: "combines chunk outputs of a text pass into one narrative",
	})
	resolver.Register(prompts.EmbeddedPrompt{
		Key:         "analysis." + synthesizeID + ".user",
		Text:        mustTemplate("synthesize.user.tmpl"),
		Description: "synthesis user prompt carrying the joined parts",
	})
	return c
}

// All returns every pass in catalog order.
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// IDs returns every pass identifier in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.specs))
	for i, s := range c.specs {
		ids[i] = s.ID
	}
	return ids
}

// Get returns the pass with the given identifier.
func (c *Catalog) Get(id string) (Spec, bool) {
	i, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Spec{}, false
	}
	return c.specs[i], true
}

// Lookup resolves ids in order, dropping duplicates. The first unknown id
// yields an *UnknownTypeError with close matches as suggestions.
func (c *Catalog) Lookup(ids []string) ([]Spec, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]Spec, 0, len(ids))
	for _, id := range ids {
		spec, ok := c.Get(id)
		if !ok {
			return nil, &UnknownTypeError{ID: id, Suggestions: c.Suggest(id)}
		}
		if seen[spec.ID] {
			continue
		}
		seen[spec.ID] = true
		out = append(out, spec)
	}
	return out, nil
}

// Suggest returns up to three pass identifiers resembling id.
func (c *Catalog) Suggest(id string) []string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil
	}
	var out []string
	for _, m := range fuzzy.Find(id, c.IDs()) {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// Render resolves and renders the prompts of spec for one chunk.
func (c *Catalog) Render(spec Spec, data PromptData) (prompts.Rendered, error) {
	if data.Label == "" {
		data.Label = spec.Label
	}
	if data.Language == "" {
		data.Language = DefaultLanguage
	}
	if data.TotalChunks == 0 {
		data.TotalChunks = 1
	}
	if data.ChunkIndex == 0 {
		data.ChunkIndex = 1
	}
	return c.render(spec.SystemKey(), spec.UserKey(), data)
}

// SynthesisPrompt renders the combine request for a text pass.
func (c *Catalog) SynthesisPrompt(analysisType, language, combined string) (prompts.Rendered, error) {
	label := analysisType
	if spec, ok := c.Get(analysisType); ok {
		label = spec.Label
	}
	if language == "" {
		language = DefaultLanguage
	}
	data := PromptData{Label: label, Language: language, Text: combined, ChunkIndex: 1, TotalChunks: 1}
	return c.render("analysis."+synthesizeID+".system", "analysis."+synthesizeID+".user", data)
}

func (c *Catalog) render(systemKey, userKey string, data PromptData) (prompts.Rendered, error) {
	sys, err := c.resolver.Resolve(systemKey)
	if err != nil {
		return prompts.Rendered{}, err
	}
	usr, err := c.resolver.Resolve(userKey)
	if err != nil {
		return prompts.Rendered{}, err
	}

	system, err := prompts.Render(systemKey, sys.Text, data)
	if err != nil {
		return prompts.Rendered{}, err
	}
	user, err := prompts.Render(userKey, usr.Text, data)
	if err != nil {
		return prompts.Rendered{}, err
	}
	return prompts.Rendered{
		Key:        systemKey,
		System:     strings.TrimSpace(system),
		User:       strings.TrimSpace(user),
		Hash:       sys.Hash,
		IsOverride: sys.IsOverride || usr.IsOverride,
	}, nil
}
