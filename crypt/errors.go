package crypt

import "errors"

var (
	// ErrNilCipher is returned when a primitive is built without a cipher
	ErrNilCipher = errors.New("cipher cannot be nil")

	// ErrUnsupportedValue is returned for values that have no plaintext encoding
	ErrUnsupportedValue = errors.New("value type cannot be encrypted")

	// ErrMalformedPlaintext is returned when a decrypted payload carries an unknown type tag
	ErrMalformedPlaintext = errors.New("malformed typed plaintext")
)
