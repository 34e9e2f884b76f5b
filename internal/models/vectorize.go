package models

// JobStatus is the lifecycle state of a vectorization job.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusLoadingModel JobStatus = "loading_model"
	StatusProcessing   JobStatus = "processing"
	StatusCompleted    JobStatus = "completed"
	StatusCancelled    JobStatus = "cancelled"
	StatusError        JobStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// ProgressEvent is broadcast per batch and at terminal states of a
// vectorization job. Units are rows for table vectorization and chunks for
// document vectorization. Delivery is best-effort; the job's own state is
// authoritative.
type ProgressEvent struct {
	SourceID       string    `json:"sourceId"`
	TotalUnits     int       `json:"totalUnits"`
	ProcessedUnits int       `json:"processedUnits"`
	Status         JobStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
}

// VectorizationStatus summarizes the embedding records stored for a table.
// EmbeddingModel is the model of the most recently written record; a
// mixed-model state is reported as-is, not reconciled.
type VectorizationStatus struct {
	IsVectorized      bool     `json:"is_vectorized"`
	VectorizedColumns []string `json:"vectorized_columns"`
	EmbeddingCount    int64    `json:"embedding_count"`
	EmbeddingModel    string   `json:"embedding_model,omitempty"`
}
