package reconcile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Model output is loosely typed: numbers arrive as strings, keys arrive in
// camelCase, and lists of entities arrive as lists of names. The helpers
// below accept all of these.

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		s := strings.TrimSpace(n)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		// "3 days", "2.5 min"
		if fields := strings.Fields(s); len(fields) > 0 {
			if f, err := strconv.ParseFloat(fields[0], 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func floatField(m map[string]any, keys ...string) float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0
	}
	f := toFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func intField(m map[string]any, keys ...string) int {
	return int(math.Round(floatField(m, keys...)))
}

func stringField(m map[string]any, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func stringsField(m map[string]any, keys ...string) []string {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			switch e := item.(type) {
			case string:
				if s := strings.TrimSpace(e); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if s := stringField(e, "name"); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		for _, part := range strings.Split(list, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// objects returns the entries of a list field as maps. Bare strings become
// {"name": s}.
func objects(m map[string]any, keys ...string) []map[string]any {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		switch e := item.(type) {
		case map[string]any:
			out = append(out, e)
		case string:
			if s := strings.TrimSpace(e); s != "" {
				out = append(out, map[string]any{"name": s})
			}
		}
	}
	return out
}

var breakdownKeys = []string{"scenes", "characters", "locations", "equipment", "props", "summary"}

// breakdownRoot finds the object holding the breakdown fields. A bare array
// is taken as a scene list; a single wrapping key is unwrapped.
func breakdownRoot(data any) (map[string]any, bool) {
	switch d := data.(type) {
	case []any:
		return map[string]any{"scenes": d}, true
	case map[string]any:
		for _, k := range breakdownKeys {
			if _, ok := d[k]; ok {
				return d, true
			}
		}
		if len(d) == 1 {
			for _, inner := range d {
				if m, ok := breakdownRoot(inner); ok {
					return m, true
				}
			}
		}
		return d, true
	}
	return nil, false
}

func decodeScene(m map[string]any) Scene {
	return Scene{
		Number:           intField(m, "number", "scene_number", "sceneNumber"),
		Heading:          stringField(m, "heading", "slugline", "name", "title"),
		Location:         stringField(m, "location"),
		TimeOfDay:        stringField(m, "time_of_day", "timeOfDay", "time"),
		Characters:       stringsField(m, "characters", "cast"),
		Description:      stringField(m, "description", "summary"),
		EstimatedRuntime: floatField(m, "estimated_runtime", "estimatedRuntime", "runtime", "duration"),
	}
}

func decodeCharacter(m map[string]any) Character {
	return Character{
		Name:                  stringField(m, "name"),
		Description:           stringField(m, "description"),
		SceneCount:            intField(m, "scene_count", "sceneCount", "scenes"),
		DialogueCount:         intField(m, "dialogue_count", "dialogueCount", "lines", "dialogue_lines"),
		EstimatedShootingDays: floatField(m, "estimated_shooting_days", "estimatedShootingDays", "shooting_days", "shootingDays"),
	}
}

func decodeLocation(m map[string]any) Location {
	return Location{
		Name:                  stringField(m, "name"),
		Description:           stringField(m, "description"),
		SceneCount:            intField(m, "scene_count", "sceneCount", "scenes"),
		EstimatedShootingDays: floatField(m, "estimated_shooting_days", "estimatedShootingDays", "shooting_days", "shootingDays"),
	}
}

func decodeEquipment(m map[string]any) EquipmentItem {
	return EquipmentItem{
		Name:     stringField(m, "name", "item"),
		Category: stringField(m, "category", "type"),
		Notes:    stringField(m, "notes", "description"),
	}
}
