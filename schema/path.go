package schema

import "strings"

// Separator joins path segments in dot notation
const Separator = "."

// ElemSegment is the single index every array position collapses to
const ElemSegment = "0"

// Reserved leaf names are never transformed, even under an encryption-enabled ancestor
const (
	ReservedID      = "_id"
	ReservedVersion = "__v"
)

// IsReserved reports whether a path ends in a reserved leaf name
func IsReserved(path []string) bool {
	n := len(path)
	return n > 0 && (path[n-1] == ReservedID || path[n-1] == ReservedVersion)
}

// SplitPath splits a dot-notation path into segments
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// JoinPath joins segments into a dot-notation path
func JoinPath(segments []string) string {
	return strings.Join(segments, Separator)
}

// IsIndex reports whether a segment is an array index
func IsIndex(segment string) bool {
	if segment == "" {
		return false
	}
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}

// RulePath maps an instance path onto the schema by collapsing every array index to
// ElemSegment. Paths that differ only in their indices share one rule path.
func RulePath(instance []string) []string {
	out := make([]string, len(instance))
	for i, seg := range instance {
		if IsIndex(seg) {
			out[i] = ElemSegment
			continue
		}
		out[i] = seg
	}
	return out
}
