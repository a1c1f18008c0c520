// Package normalize turns nominally-JSON model output into structured data.
//
// Normalize never fails: it runs a fixed pipeline of named string repairs and
// either parses the result or falls back to wrapping the raw text.
package normalize

import (
	"encoding/json"
	"strings"
)

// Repair step names, in pipeline order.
const (
	StepStripCodeFence       = "strip_code_fence"
	StepExtractJSONSpan      = "extract_json_span"
	StepSingleToDoubleQuotes = "single_to_double_quotes"
	StepRemoveTrailingCommas = "remove_trailing_commas"
	StepQuoteBareKeys        = "quote_bare_keys"
	StepBalanceBrackets      = "balance_brackets"
)

// TextKey holds the raw output of a text fallback.
const TextKey = "_text"

// Result is the outcome of normalizing one response.
type Result struct {
	Data           any      `json:"data"`
	Success        bool     `json:"success"`
	Repaired       bool     `json:"repaired"`
	IsText         bool     `json:"is_text,omitempty"`
	RepairsApplied []string `json:"repairs_applied,omitempty"`
}

// Text returns the raw text of a fallback result.
func (r Result) Text() string {
	if m, ok := r.Data.(map[string]any); ok {
		if s, ok := m[TextKey].(string); ok {
			return s
		}
	}
	return ""
}

type step struct {
	name  string
	apply func(string) string
}

// pipeline runs after extract_json_span, which is handled separately because
// it can end normalization early.
var pipeline = []step{
	{StepSingleToDoubleQuotes, singleToDoubleQuotes},
	{StepRemoveTrailingCommas, removeTrailingCommas},
	{StepQuoteBareKeys, quoteBareKeys},
	{StepBalanceBrackets, balanceBrackets},
}

// Normalize parses raw as JSON, repairing common model mistakes on the way.
func Normalize(raw string) Result {
	original := strings.TrimSpace(raw)
	text := original
	var repairs []string

	record := func(name, next string) {
		if next != text {
			repairs = append(repairs, name)
			text = next
		}
	}

	record(StepStripCodeFence, stripCodeFence(text))

	span, ok := extractJSONSpan(text)
	if !ok {
		return textResult(original)
	}
	record(StepExtractJSONSpan, span)

	for _, s := range pipeline {
		record(s.name, s.apply(text))
	}

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return textResult(original)
	}
	return Result{
		Data:           data,
		Success:        true,
		Repaired:       len(repairs) > 0,
		RepairsApplied: repairs,
	}
}

func textResult(original string) Result {
	return Result{
		Data:   map[string]any{TextKey: original},
		IsText: true,
	}
}

// stripCodeFence removes a markdown fence that opens and/or closes the text.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") && !strings.HasSuffix(s, "```") {
		return s
	}
	if strings.HasPrefix(s, "```") {
		// Drop the fence line, including any language tag.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONSpan slices from the first '{' or '[' to the last matching
// closer. A missing closer keeps everything up to the end so balanceBrackets
// can finish a truncated response.
func extractJSONSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return strings.TrimSpace(s[start:]), true
	}
	return s[start : end+1], true
}
