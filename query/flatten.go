package query

import (
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/internal/document"
)

// Leaf is one scalar reachable in a condition object. Path holds the keys and indices
// used to reach it, verbatim, so a key may itself be a dot-notation path.
type Leaf struct {
	Path  []string
	Value any
}

// Flatten lists every scalar leaf of v depth-first. Map keys are visited in sorted order;
// bson.D keeps its own order. Composite intermediate nodes are not reported.
func Flatten(v any) []Leaf {
	var out []Leaf
	flatten(v, nil, &out)
	return out
}

func flatten(v any, path []string, out *[]Leaf) {
	switch x := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(x) {
			flatten(x[k], appendSeg(path, k), out)
		}
		return
	case bson.M:
		for _, k := range sortedKeys(x) {
			flatten(x[k], appendSeg(path, k), out)
		}
		return
	case bson.D:
		for _, e := range x {
			flatten(e.Value, appendSeg(path, e.Key), out)
		}
		return
	case []any:
		for i, e := range x {
			flatten(e, appendSeg(path, strconv.Itoa(i)), out)
		}
		return
	case bson.A:
		for i, e := range x {
			flatten(e, appendSeg(path, strconv.Itoa(i)), out)
		}
		return
	}
	if document.IsContainer(v) {
		switch n := document.Normalize(v).(type) {
		case map[string]any, []any:
			flatten(n, path, out)
		}
		return
	}
	*out = append(*out, Leaf{Path: path, Value: v})
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendSeg(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

// setAt replaces the leaf at path inside a cloned container
func setAt(root any, path []string, value any) bool {
	if len(path) == 0 {
		return false
	}
	cur := root
	for i, seg := range path {
		last := i == len(path)-1
		switch x := cur.(type) {
		case map[string]any:
			if last {
				x[seg] = value
				return true
			}
			cur = x[seg]
		case bson.M:
			if last {
				x[seg] = value
				return true
			}
			cur = x[seg]
		case bson.D:
			j := indexOfKey(x, seg)
			if j < 0 {
				return false
			}
			if last {
				x[j].Value = value
				return true
			}
			cur = x[j].Value
		case []any:
			j, err := strconv.Atoi(seg)
			if err != nil || j < 0 || j >= len(x) {
				return false
			}
			if last {
				x[j] = value
				return true
			}
			cur = x[j]
		case bson.A:
			j, err := strconv.Atoi(seg)
			if err != nil || j < 0 || j >= len(x) {
				return false
			}
			if last {
				x[j] = value
				return true
			}
			cur = x[j]
		default:
			return false
		}
	}
	return false
}

func indexOfKey(d bson.D, key string) int {
	for i, e := range d {
		if e.Key == key {
			return i
		}
	}
	return -1
}
