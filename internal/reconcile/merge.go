package reconcile

import (
	"strings"

	"github.com/jackzampolin/slate/internal/normalize"
)

// MergeBreakdowns merges normalized chunk results in chunk order. failed is
// the number of chunks that produced no output at all.
//
// Scenes are concatenated and renumbered from 1. Characters and locations
// are keyed by case-insensitive trimmed name: counts and shooting days are
// summed and the longer description is kept, the first seen on ties.
// Unnamed entities are kept as separate entries. Text fallbacks count as
// succeeded chunks and their raw text is kept in Unstructured.
func MergeBreakdowns(results []normalize.Result, failed int) Breakdown {
	out := Breakdown{
		Scenes:     []Scene{},
		Characters: []Character{},
		Locations:  []Location{},
		Equipment:  []EquipmentItem{},
	}
	charIndex := make(map[string]int)
	locIndex := make(map[string]int)

	for _, r := range results {
		out.Summary.ChunksSucceeded++
		if r.IsText || !r.Success {
			if text := strings.TrimSpace(r.Text()); text != "" {
				out.Unstructured = append(out.Unstructured, text)
			}
			continue
		}
		root, ok := breakdownRoot(r.Data)
		if !ok {
			continue
		}

		var sceneRuntime float64
		for _, m := range objects(root, "scenes") {
			s := decodeScene(m)
			s.Number = len(out.Scenes) + 1
			sceneRuntime += s.EstimatedRuntime
			out.Scenes = append(out.Scenes, s)
		}

		for _, m := range objects(root, "characters", "cast") {
			c := decodeCharacter(m)
			key := entityKey(c.Name)
			i, seen := charIndex[key]
			if key == "" || !seen {
				if key != "" {
					charIndex[key] = len(out.Characters)
				}
				out.Characters = append(out.Characters, c)
				continue
			}
			existing := &out.Characters[i]
			existing.SceneCount += c.SceneCount
			existing.DialogueCount += c.DialogueCount
			existing.EstimatedShootingDays += c.EstimatedShootingDays
			existing.Description = longer(existing.Description, c.Description)
		}

		for _, m := range objects(root, "locations", "sets") {
			l := decodeLocation(m)
			key := entityKey(l.Name)
			i, seen := locIndex[key]
			if key == "" || !seen {
				if key != "" {
					locIndex[key] = len(out.Locations)
				}
				out.Locations = append(out.Locations, l)
				continue
			}
			existing := &out.Locations[i]
			existing.SceneCount += l.SceneCount
			existing.EstimatedShootingDays += l.EstimatedShootingDays
			existing.Description = longer(existing.Description, l.Description)
		}

		for _, m := range objects(root, "equipment", "props") {
			out.Equipment = append(out.Equipment, decodeEquipment(m))
		}

		// Prefer the chunk's own runtime estimate over the sum of its scenes.
		chunkRuntime := sceneRuntime
		if summary, ok := root["summary"].(map[string]any); ok {
			if rt := floatField(summary, "estimated_runtime", "estimatedRuntime", "runtime"); rt > 0 {
				chunkRuntime = rt
			}
		}
		out.Summary.EstimatedRuntime += chunkRuntime
	}

	out.Summary.TotalScenes = len(out.Scenes)
	for _, l := range out.Locations {
		out.Summary.EstimatedShootingDays += l.EstimatedShootingDays
	}
	out.Summary.ChunksFailed = failed
	return out
}

func entityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func longer(current, candidate string) string {
	if len([]rune(candidate)) > len([]rune(current)) {
		return candidate
	}
	return current
}
