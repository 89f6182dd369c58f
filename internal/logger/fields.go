package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the callback server request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the workflow run ID
	FieldRunID = "run_id"

	// FieldJobID is the backend export task ID
	FieldJobID = "job_id"

	// FieldJobKind is the export kind (parquet, manifest)
	FieldJobKind = "job_kind"

	// FieldStage is the workflow stage tag
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldDataset is the dataset being exported
	FieldDataset = "dataset"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldAttempt is the 1-based attempt number of a run
	FieldAttempt = "attempt"

	// FieldPercent is a progress percentage
	FieldPercent = "percent"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
