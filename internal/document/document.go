// Package document provides shape helpers over the document representations the
// transforms accept: map[string]any, bson.M, bson.D, []any and bson.A.
package document

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrUnsupportedDocument is returned for top-level values that are not documents
var ErrUnsupportedDocument = errors.New("unsupported document type")

// IsContainer reports whether v is traversed rather than treated as a leaf.
// Dates, regexes, binary values and byte slices are leaves.
func IsContainer(v any) bool {
	switch v.(type) {
	case nil, string, []byte, time.Time, bson.DateTime, bson.Regex, bson.ObjectID,
		bson.Decimal128, bson.Binary, bson.Timestamp:
		return false
	case map[string]any, bson.M, bson.D, []any, bson.A:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	}
	return false
}

// Normalize converts typed slices and string-keyed maps into []any and map[string]any so
// their leaves can be replaced by values of another type. Other values are returned as is.
func Normalize(v any) any {
	switch v.(type) {
	case map[string]any, bson.M, bson.D, []any, bson.A:
		return v
	}
	if !IsContainer(v) {
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	}
	return v
}

// Clone deep-copies containers. Leaves are shared.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Clone(val)
		}
		return out
	case bson.M:
		out := make(bson.M, len(x))
		for k, val := range x {
			out[k] = Clone(val)
		}
		return out
	case bson.D:
		out := make(bson.D, len(x))
		for i, e := range x {
			out[i] = bson.E{Key: e.Key, Value: Clone(e.Value)}
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Clone(val)
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, val := range x {
			out[i] = Clone(val)
		}
		return out
	}
	if IsContainer(v) {
		switch n := Normalize(v).(type) {
		case map[string]any, []any:
			return Clone(n)
		}
	}
	return v
}

// Get returns the value stored under a top-level key
func Get(doc any, key string) (any, bool, error) {
	switch d := doc.(type) {
	case map[string]any:
		v, ok := d[key]
		return v, ok, nil
	case bson.M:
		v, ok := d[key]
		return v, ok, nil
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return e.Value, true, nil
			}
		}
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("%w: %T", ErrUnsupportedDocument, doc)
}

// Set replaces the value stored under an existing top-level key in place
func Set(doc any, key string, value any) error {
	switch d := doc.(type) {
	case map[string]any:
		d[key] = value
		return nil
	case bson.M:
		d[key] = value
		return nil
	case bson.D:
		for i := range d {
			if d[i].Key == key {
				d[i].Value = value
				return nil
			}
		}
		return fmt.Errorf("key %q not present in document", key)
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedDocument, doc)
}

// IsDocument reports whether v is one of the supported top-level document types
func IsDocument(v any) bool {
	switch v.(type) {
	case map[string]any, bson.M, bson.D:
		return true
	}
	return false
}
