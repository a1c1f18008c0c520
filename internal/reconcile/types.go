// Package reconcile merges per-chunk analysis output into one result.
//
// Structured breakdowns are merged deterministically; free-text passes are
// combined by a single synthesis request.
package reconcile

// Scene is one scene of a breakdown.
type Scene struct {
	Number           int      `json:"number" jsonschema:"required"`
	Heading          string   `json:"heading" jsonschema:"required"`
	Location         string   `json:"location,omitempty"`
	TimeOfDay        string   `json:"time_of_day,omitempty"`
	Characters       []string `json:"characters,omitempty"`
	Description      string   `json:"description,omitempty"`
	EstimatedRuntime float64  `json:"estimated_runtime,omitempty" jsonschema:"description=Estimated screen time in minutes"`
}

// Character is a speaking or named role.
type Character struct {
	Name                  string  `json:"name" jsonschema:"required"`
	Description           string  `json:"description,omitempty"`
	SceneCount            int     `json:"scene_count"`
	DialogueCount         int     `json:"dialogue_count"`
	EstimatedShootingDays float64 `json:"estimated_shooting_days,omitempty"`
}

// Location is a set or place scenes are shot in.
type Location struct {
	Name                  string  `json:"name" jsonschema:"required"`
	Description           string  `json:"description,omitempty"`
	SceneCount            int     `json:"scene_count"`
	EstimatedShootingDays float64 `json:"estimated_shooting_days,omitempty"`
}

// EquipmentItem is a prop, vehicle, effect or special rig.
type EquipmentItem struct {
	Name     string `json:"name" jsonschema:"required"`
	Category string `json:"category,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ChunkSummary is the summary a model reports for one chunk.
type ChunkSummary struct {
	TotalScenes      int     `json:"total_scenes"`
	EstimatedRuntime float64 `json:"estimated_runtime,omitempty"`
}

// ChunkBreakdown is the shape a model is asked to return for one chunk.
type ChunkBreakdown struct {
	Scenes     []Scene         `json:"scenes" jsonschema:"required"`
	Characters []Character     `json:"characters" jsonschema:"required"`
	Locations  []Location      `json:"locations" jsonschema:"required"`
	Equipment  []EquipmentItem `json:"equipment"`
	Summary    ChunkSummary    `json:"summary"`
}

// BreakdownSummary is recomputed from the merged entities.
type BreakdownSummary struct {
	TotalScenes           int     `json:"total_scenes"`
	EstimatedRuntime      float64 `json:"estimated_runtime"`
	EstimatedShootingDays float64 `json:"estimated_shooting_days"`
	ChunksSucceeded       int     `json:"chunks_succeeded"`
	ChunksFailed          int     `json:"chunks_failed"`
}

// Breakdown is the merged production breakdown of a whole document.
type Breakdown struct {
	Scenes     []Scene          `json:"scenes"`
	Characters []Character      `json:"characters"`
	Locations  []Location       `json:"locations"`
	Equipment  []EquipmentItem  `json:"equipment"`
	Summary    BreakdownSummary `json:"summary"`

	// Unstructured holds the raw text of chunks whose output was not JSON.
	Unstructured []string `json:"unstructured,omitempty"`
}
