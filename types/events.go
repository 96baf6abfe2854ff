package types

// ContractVersion is the telemetry event contract version. It moves in
// lockstep with Version.
const ContractVersion = Version

// EventType represents the type of node-lifecycle event a pipeline run emits.
type EventType string

// Event type constants. NodeLog is the only droppable type; the rest must
// be delivered (IsDroppable reports false for them).
const (
	EventTypeNodeLog     EventType = "node_log"
	EventTypeNodeResult  EventType = "node_result"
	EventTypeCheckpoint  EventType = "checkpoint"
	EventTypeRunError    EventType = "run_error"
	EventTypeRunComplete EventType = "run_complete"
)

// IsTerminal returns true if this event type ends the run.
func (e EventType) IsTerminal() bool {
	return e == EventTypeRunComplete || e == EventTypeRunError
}

// LogLevel represents log severity.
type LogLevel string

// Log level constants.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// EventEnvelope is the envelope for every telemetry event a run emits.
type EventEnvelope struct {
	// ContractVersion is the semantic version of the event contract.
	ContractVersion string `json:"contract_version"`
	// EventID is a unique identifier for this event, scoped to the run.
	EventID string `json:"event_id"`
	// RunID is the canonical run identifier.
	RunID string `json:"run_id"`
	// Seq is the monotonic sequence number, starts at 1.
	Seq int64 `json:"seq"`
	// Type is the event type discriminator.
	Type EventType `json:"type"`
	// Ts is the event timestamp in ISO 8601 UTC format.
	Ts string `json:"ts"`
	// Payload is the type-specific payload.
	Payload map[string]any `json:"payload"`
	// JobID is the pipeline name, included when known.
	JobID *string `json:"job_id,omitempty"`
	// ParentRunID is the parent run ID for retries.
	ParentRunID *string `json:"parent_run_id,omitempty"`
	// Attempt is the attempt number, always present, starts at 1.
	Attempt int `json:"attempt"`
}

// NodeResultPayload reports one node's completed envelope.
type NodeResultPayload struct {
	// Node is the node name.
	Node string `json:"node"`
	// Type is the node's operator type name.
	Type string `json:"type"`
	// Code is the envelope's result code (0 success).
	Code int `json:"code"`
	// DurationMs is how long the node's Do call took.
	DurationMs int64 `json:"duration_ms"`
}

// CheckpointPayload is an optional periodic state snapshot marker.
type CheckpointPayload struct {
	// CheckpointID is the unique identifier for the checkpoint.
	CheckpointID string `json:"checkpoint_id"`
	// Note is an optional human-readable note.
	Note *string `json:"note,omitempty"`
}

// LogPayload represents a log event payload.
type LogPayload struct {
	// Level is the log level.
	Level LogLevel `json:"level"`
	// Message is the log message.
	Message string `json:"message"`
	// Fields is optional structured fields.
	Fields map[string]any `json:"fields,omitempty"`
}

// RunErrorPayload represents a run_error event payload.
type RunErrorPayload struct {
	// ErrorType is the error type/category.
	ErrorType string `json:"error_type"`
	// Message is the error message.
	Message string `json:"message"`
	// Stack is an optional stack trace.
	Stack *string `json:"stack,omitempty"`
}

// RunCompletePayload represents a run_complete event payload.
type RunCompletePayload struct {
	// TerminalCode is the terminal node's envelope code.
	TerminalCode int `json:"terminal_code"`
	// NodesExecuted is the number of nodes dispatched during the run.
	NodesExecuted int `json:"nodes_executed"`
}
