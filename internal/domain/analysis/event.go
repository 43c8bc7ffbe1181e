package analysis

import "time"

// EventType enum for progress events
type EventType string

const (
	EventProgress  EventType = "ANALYSIS_PROGRESS"
	EventComplete  EventType = "ANALYSIS_COMPLETE"
	EventError     EventType = "ANALYSIS_ERROR"
	EventHeartbeat EventType = "HEARTBEAT"
)

// EventError codes carried in the error descriptor
const (
	CodeCancelled    = "ANALYSIS_CANCELLED"
	CodeStageFailed  = "STAGE_FAILED"
	CodeProviderDown = "PROVIDER_UNAVAILABLE"
)

// ErrorDescriptor travels inside ERROR events.
type ErrorDescriptor struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ProgressEvent is the wire-shaped progress message. Transient, never
// persisted as system of record.
type ProgressEvent struct {
	Type        EventType        `json:"type"`
	AnalysisID  RunID            `json:"analysisId"`
	Progress    int              `json:"progress,omitempty"`
	CurrentStep string           `json:"currentStep,omitempty"`
	Status      Status           `json:"status,omitempty"`
	Summary     *Summary         `json:"summary,omitempty"`
	Error       *ErrorDescriptor `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// TerminalEvent reports whether this event closes the stream for its run.
func (e ProgressEvent) TerminalEvent() bool {
	if e.Type == EventComplete {
		return true
	}
	return e.Type == EventError && e.Status.Terminal()
}
