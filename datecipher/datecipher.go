// Package datecipher implements the date-cipher field type: a date stored as ciphertext
// and cast back to a real date when read.
package datecipher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
)

// ErrCast is matched by every CastError
var ErrCast = errors.New("cast to date failed")

// CastError reports a value that is neither a date nor ciphertext of one
type CastError struct {
	Value  any
	Reason string
	Err    error
}

func (e *CastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cast to date failed for value of type %T: %s: %v", e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("cast to date failed for value of type %T: %s", e.Value, e.Reason)
}

func (e *CastError) Unwrap() error {
	return e.Err
}

func (e *CastError) Is(target error) bool {
	return target == ErrCast
}

var layouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Type casts stored values of date-cipher fields
type Type struct {
	prim *crypt.Primitive
}

// New creates the type over an injected primitive
func New(prim *crypt.Primitive) (*Type, error) {
	if prim == nil {
		return nil, crypt.ErrNilCipher
	}
	return &Type{prim: prim}, nil
}

// Cast returns a date for v. Valid dates pass through untouched. Ciphertext is decrypted
// and its plaintext parsed as a date. Anything else is a *CastError.
func (t *Type) Cast(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, &CastError{Value: v, Reason: "zero time"}
		}
		return v, nil
	case bson.DateTime:
		return v, nil
	}

	plain, ok := t.prim.Decrypt(v)
	if !ok {
		return nil, &CastError{Value: v, Reason: "not a date and not ciphertext"}
	}
	d, err := toDate(plain)
	if err != nil {
		return nil, &CastError{Value: v, Reason: "decrypted value is not a date", Err: err}
	}
	return d, nil
}

func toDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return x, nil
	case bson.DateTime:
		return x.Time().UTC(), nil
	case string:
		for _, layout := range layouts {
			if d, err := time.Parse(layout, x); err == nil {
				return d, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", x)
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case int32:
		return time.UnixMilli(int64(x)).UTC(), nil
	case int:
		return time.UnixMilli(int64(x)).UTC(), nil
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported plaintext type %T", v)
}
