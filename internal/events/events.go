// Package events carries run progress from the coordinator to whoever is
// watching: the CLI progress line, a log, or a test.
package events

import "time"

// Kind identifies a progress event.
type Kind string

const (
	KindRunStarted       Kind = "run_started"
	KindRunCached        Kind = "run_cached"
	KindTypeStarted      Kind = "type_started"
	KindTypeSkipped      Kind = "type_skipped"
	KindChunkStarted     Kind = "chunk_started"
	KindChunkCompleted   Kind = "chunk_completed"
	KindTypeCompleted    Kind = "type_completed"
	KindTypeFailed       Kind = "type_failed"
	KindCheckpointFailed Kind = "checkpoint_failed"
	KindRunCompleted     Kind = "run_completed"
	KindRunCancelled     Kind = "run_cancelled"
)

// Progress is one observable step of an analysis run.
type Progress struct {
	Kind    Kind      `json:"kind"`
	RunID   string    `json:"run_id,omitempty"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Phase   string    `json:"phase"`

	// Percent is overall run completion in [0, 100].
	Percent float64 `json:"percent"`

	CurrentType    string `json:"current_type,omitempty"`
	CurrentChunk   int    `json:"current_chunk,omitempty"` // 1-based
	TotalChunks    int    `json:"total_chunks,omitempty"`
	CompletedTypes int    `json:"completed_types"`
	TotalTypes     int    `json:"total_types"`

	Error string `json:"error,omitempty"`
}

// Terminal reports whether no further events follow p for the same run.
func (p Progress) Terminal() bool {
	switch p.Kind {
	case KindRunCompleted, KindRunCancelled, KindRunCached:
		return true
	}
	return false
}

// Sink receives progress events. Emit must not block the caller for long.
type Sink interface {
	Emit(Progress)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Progress)

func (f SinkFunc) Emit(p Progress) { f(p) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Progress) {})

type multi []Sink

func (m multi) Emit(p Progress) {
	for _, s := range m {
		s.Emit(p)
	}
}

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder is a Sink that keeps every event. Safe for use from one goroutine
// at a time; the coordinator emits sequentially.
type Recorder struct {
	Events []Progress
}

func (r *Recorder) Emit(p Progress) { r.Events = append(r.Events, p) }

// Kinds returns the kind of every recorded event, in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}
