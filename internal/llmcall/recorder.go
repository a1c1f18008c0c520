package llmcall

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/store"
)

// Recorder persists call records. Recording failures are logged and never
// fail the analysis that made the call.
type Recorder struct {
	store  store.Store
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to s. A nil store disables recording.
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger}
}

// Record captures a provider call. result may be nil when the client failed
// before building one; err then supplies the failure.
func (r *Recorder) Record(ctx context.Context, result *providers.ChatResult, err error, opts RecordOptions) *Call {
	if r == nil || r.store == nil {
		return nil
	}
	if result == nil {
		if err == nil {
			return nil
		}
		result = &providers.ChatResult{ErrorMessage: err.Error(), ErrorClass: providers.ClassOf(err)}
	}

	call := FromChatResult(result, opts)
	r.RecordCall(ctx, call)
	return call
}

// RecordCall persists an already-constructed Call.
func (r *Recorder) RecordCall(ctx context.Context, call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	runID := call.RunID
	if runID == "" {
		runID = "adhoc"
	}
	// A cancelled run still gets its last call on record.
	if errors.Is(ctx.Err(), context.Canceled) {
		ctx = context.WithoutCancel(ctx)
	}
	if err := store.SetJSON(ctx, r.store, store.CallKey(runID, call.ID), call); err != nil {
		r.logger.Warn("failed to record provider call",
			"error", err,
			"call_id", call.ID,
			"analysis_type", call.AnalysisType)
	}
}
