package domain

// EventType discriminates the progress event union emitted by the
// orchestrator while an analysis runs.
type EventType string

const (
	EventStatus        EventType = "status"
	EventStreamingText EventType = "streaming_text"
	EventProgress      EventType = "progress"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// ProgressEvent is a one-directional notification from the orchestrator to
// its caller. It carries no control information back in.
type ProgressEvent struct {
	Type EventType `json:"type"`
	// Phase names the pipeline stage for status events: initialization,
	// phase1..phase4, chunk_start, chunk_delay, parsing, synthesis,
	// complete, error.
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
	// Delta and Accumulated carry streaming model output.
	Delta       string `json:"delta,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`
	// Partial carries an intermediate normalized result (progress events).
	Partial *AnalysisResult `json:"partial,omitempty"`
	// Result carries the final result (complete events).
	Result *AnalysisResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ProgressFunc receives ordered progress events. A nil ProgressFunc is
// always safe to pass.
type ProgressFunc func(ProgressEvent)

// Emit invokes f if non-nil.
func (f ProgressFunc) Emit(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}
