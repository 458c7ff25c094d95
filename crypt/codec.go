package crypt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Non-string scalars are tagged so that decrypting yields a typed value. Scalars are
// first brought to the kind BSON stores them as (integers to int64, floats to float64,
// times to millisecond DateTime) so a value has one plaintext whichever Go type carried
// it. Strings are stored verbatim unless they collide with the tag marker.
const tagMarker = "\x00"

const (
	tagString   = "s"
	tagBool     = "b"
	tagInt64    = "i64"
	tagUint64   = "u64"
	tagFloat64  = "f64"
	tagNumber   = "n"
	tagDateTime = "dt"
	tagObjectID = "oid"
	tagDecimal  = "d128"
	tagBytes    = "bin"
)

func tagged(tag, repr string) string {
	return tagMarker + tag + tagMarker + repr
}

func taggedInt(n int64) string {
	return tagged(tagInt64, strconv.FormatInt(n, 10))
}

// taggedUint keeps the u64 tag only for values int64 cannot hold
func taggedUint(n uint64) string {
	if n <= math.MaxInt64 {
		return taggedInt(int64(n))
	}
	return tagged(tagUint64, strconv.FormatUint(n, 10))
}

func taggedFloat(f float64) string {
	return tagged(tagFloat64, strconv.FormatFloat(f, 'g', -1, 64))
}

// encodePlaintext renders a scalar as the string handed to the cipher
func encodePlaintext(v any) (string, error) {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, tagMarker) {
			return tagged(tagString, x), nil
		}
		return x, nil
	case bool:
		return tagged(tagBool, strconv.FormatBool(x)), nil
	case int:
		return taggedInt(int64(x)), nil
	case int8:
		return taggedInt(int64(x)), nil
	case int16:
		return taggedInt(int64(x)), nil
	case int32:
		return taggedInt(int64(x)), nil
	case int64:
		return taggedInt(x), nil
	case uint:
		return taggedUint(uint64(x)), nil
	case uint8:
		return taggedUint(uint64(x)), nil
	case uint16:
		return taggedUint(uint64(x)), nil
	case uint32:
		return taggedUint(uint64(x)), nil
	case uint64:
		return taggedUint(x), nil
	case float32:
		return taggedFloat(float64(x)), nil
	case float64:
		return taggedFloat(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return taggedInt(n), nil
		}
		if f, err := x.Float64(); err == nil {
			return taggedFloat(f), nil
		}
		return tagged(tagNumber, x.String()), nil
	case time.Time:
		return tagged(tagDateTime, strconv.FormatInt(int64(bson.NewDateTimeFromTime(x)), 10)), nil
	case bson.DateTime:
		return tagged(tagDateTime, strconv.FormatInt(int64(x), 10)), nil
	case bson.ObjectID:
		return tagged(tagObjectID, x.Hex()), nil
	case bson.Decimal128:
		return tagged(tagDecimal, x.String()), nil
	case []byte:
		return tagged(tagBytes, base64.StdEncoding.EncodeToString(x)), nil
	}

	// named scalar types are stored by their underlying kind
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return encodePlaintext(rv.String())
	case reflect.Bool:
		return encodePlaintext(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return taggedInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return taggedUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return taggedFloat(rv.Float()), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// decodePlaintext reverses encodePlaintext
func decodePlaintext(s string) (any, error) {
	if !strings.HasPrefix(s, tagMarker) {
		return s, nil
	}
	tag, repr, ok := strings.Cut(s[len(tagMarker):], tagMarker)
	if !ok {
		return nil, ErrMalformedPlaintext
	}

	var (
		v   any
		err error
	)
	switch tag {
	case tagString:
		v = repr
	case tagBool:
		v, err = strconv.ParseBool(repr)
	case tagInt64:
		v, err = strconv.ParseInt(repr, 10, 64)
	case tagUint64:
		v, err = strconv.ParseUint(repr, 10, 64)
	case tagFloat64:
		v, err = strconv.ParseFloat(repr, 64)
	case tagNumber:
		v = json.Number(repr)
	case tagDateTime:
		var ms int64
		ms, err = strconv.ParseInt(repr, 10, 64)
		v = bson.DateTime(ms)
	case tagObjectID:
		v, err = bson.ObjectIDFromHex(repr)
	case tagDecimal:
		v, err = bson.ParseDecimal128(repr)
	case tagBytes:
		v, err = base64.StdEncoding.DecodeString(repr)
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedPlaintext, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlaintext, err)
	}
	return v, nil
}
