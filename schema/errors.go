package schema

import "errors"

var (
	ErrEmptyModelName   = errors.New("model name cannot be empty")
	ErrNilProperty      = errors.New("property definition cannot be nil")
	ErrInvalidFieldType = errors.New("invalid field type")
	ErrModelExists      = errors.New("model already registered")
	ErrModelNotFound    = errors.New("model not found")
)
