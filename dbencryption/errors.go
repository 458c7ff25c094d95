package dbencryption

import "errors"

var (
	// ErrTaskCancelled is returned when a task is cancelled
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrTaskFailed is returned when a task fails
	ErrTaskFailed = errors.New("task failed")

	// ErrInvalidCollection is returned when an invalid collection is provided
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrNoProtectedFields is returned when no protected fields are found for a collection
	ErrNoProtectedFields = errors.New("no protected fields found for collection")

	// ErrInvalidTaskType is returned when an invalid task type is provided
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrMissingID is returned for stored documents without an _id
	ErrMissingID = errors.New("document has no _id")
)
