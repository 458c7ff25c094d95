// Package audit provides audit logging functionality for field encryption operations
package audit

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys for field encryption operations
const (
	// Core context keys
	KeyModel      ContextKey = "model"      // model being transformed
	KeyCollection ContextKey = "collection" // collection being operated on
	KeyFieldPath  ContextKey = "fieldPath"  // top-level field path of a hook
	KeyPhase      ContextKey = "phase"      // save or read
	KeyRecordID   ContextKey = "recordId"   // Record identifier
	KeyError      ContextKey = "error"      // Error message if operation failed

	// User context keys
	KeyUserID    ContextKey = "userId"    // User identifier
	KeyOperation ContextKey = "operation" // Operation being performed
)

