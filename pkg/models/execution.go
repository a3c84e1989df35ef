package models

import "time"

// ExecutionRequest identifies a single execution attempt of a workflow. ExecutionID
// is generated fresh per attempt and never reused; RequestID is supplied by the
// caller and participates in duplicate-execution detection.
type ExecutionRequest struct {
	WorkflowID  string         `json:"workflow_id"`
	RequestID   string         `json:"request_id"`
	ExecutionID string         `json:"execution_id"`
	Input       map[string]any `json:"input,omitempty"`
}

// EnvironmentRecord holds the encrypted environment variables of a single owner.
// Values are ciphertext; at most one record exists per owner.
type EnvironmentRecord struct {
	OwnerID   string            `json:"owner_id"`
	Variables map[string]string `json:"variables"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UsageStatus is a read-only snapshot of an owner's quota consumption.
type UsageStatus struct {
	Exceeded     bool    `json:"exceeded"`
	CurrentUsage float64 `json:"current_usage"`
	Limit        float64 `json:"limit"`
	Message      string  `json:"message,omitempty"`
}

// BlockLog records the outcome of one block during an execution.
type BlockLog struct {
	BlockID    string         `json:"block_id"`
	BlockName  string         `json:"block_name,omitempty"`
	BlockType  string         `json:"block_type"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	DurationMS int64          `json:"duration_ms"`
}

// ResultMetadata carries timing information for a completed execution.
type ResultMetadata struct {
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
}

// ExecutionResult is produced by the execution engine. It is never mutated after
// construction; enrichment produces a new EnrichedResult instead.
type ExecutionResult struct {
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Logs     []BlockLog     `json:"logs,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
}

// TraceSpan is a flattened trace entry derived from a block log.
type TraceSpan struct {
	Name       string    `json:"name"`
	BlockID    string    `json:"block_id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
}

// EnrichedResult extends an ExecutionResult with trace spans and total duration.
type EnrichedResult struct {
	ExecutionResult

	TraceSpans      []TraceSpan `json:"trace_spans"`
	TotalDurationMS int64       `json:"total_duration_ms"`
}

// ExecutionLog is the durably recorded outcome of one execution attempt.
type ExecutionLog struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	RequestID   string          `json:"request_id,omitempty"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Result      *EnrichedResult `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
