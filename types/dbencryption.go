package types

// Type represents the type of batch task
type Type string

const (
	TypeFieldEncrypt Type = "field_encrypt"
	TypeFieldVerify  Type = "field_verify"
)

// Status represents the current state of a task
type Status string

const (
	// StatusProcessing indicates the task is currently being processed
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the task has finished successfully
	StatusCompleted Status = "completed"

	// StatusCompletedWithErrors indicates the task finished, but some documents failed
	StatusCompletedWithErrors Status = "completed_with_errors"

	// StatusFailed indicates the task has failed
	StatusFailed Status = "failed"

	// StatusCancelled indicates the task was cancelled by user or system
	StatusCancelled Status = "cancelled"
)

// Config holds configuration for the batch field processor
type Config struct {
	// Workers is the number of concurrent workers
	Workers int `json:"workers" bson:"workers"`

	// BatchSize is the number of documents fetched per page
	BatchSize int `json:"batchSize" bson:"batchSize"`

	// DryRun counts documents that would change without writing them back
	DryRun bool `json:"dryRun" bson:"dryRun"`
}

// Progress tracks the progress of field processing
type Progress struct {
	Total     int64   `json:"total" bson:"total"`
	Processed int64   `json:"processed" bson:"processed"`
	Changed   int64   `json:"changed" bson:"changed"`
	Failed    int64   `json:"failed" bson:"failed"`
	Percent   float64 `json:"percent" bson:"percent"`
}

// TaskResult represents the result of a task
type TaskResult struct {
	TaskID     string `json:"taskId" bson:"taskId"`
	Status     Status `json:"status" bson:"status"`
	Error      string `json:"error,omitempty" bson:"error,omitempty"`
	Processed  int64  `json:"processed" bson:"processed"`
	Changed    int64  `json:"changed" bson:"changed"`
	Failed     int64  `json:"failed" bson:"failed"`
	Collection string `json:"collection,omitempty" bson:"collection,omitempty"`
}
