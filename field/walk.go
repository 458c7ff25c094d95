package field

import (
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/internal/document"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
)

// LeafFunc transforms one encryption-enabled leaf. path is the full instance path and
// rule is the rule node the leaf resolved to.
type LeafFunc func(path []string, rule *schema.Rule, value any) (any, error)

type walker struct {
	rule *schema.Rule
	base []string
	fn   LeafFunc
	errs []error
}

// Walk visits every leaf of value depth-first and replaces each encryption-enabled leaf
// with fn's result. Containers are updated in place; the returned value must still be
// stored by the caller since typed containers are normalised into new ones. A failing
// leaf keeps its value and does not stop its siblings; all failures are joined.
func Walk(value any, rule *schema.Rule, fn LeafFunc) (any, error) {
	return WalkAt(value, rule, nil, fn)
}

// WalkAt is Walk for a value that lives at base inside a larger document. Rule paths are
// resolved relative to rule; base only prefixes the paths passed to fn and errors.
func WalkAt(value any, rule *schema.Rule, base []string, fn LeafFunc) (any, error) {
	w := &walker{rule: rule, base: base, fn: fn}
	out := w.walk(value, nil)
	return out, errors.Join(w.errs...)
}

func child(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func (w *walker) walk(v any, path []string) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = w.walk(val, child(path, k))
		}
		return x
	case bson.M:
		for k, val := range x {
			x[k] = w.walk(val, child(path, k))
		}
		return x
	case bson.D:
		for i := range x {
			x[i].Value = w.walk(x[i].Value, child(path, x[i].Key))
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = w.walk(val, child(path, strconv.Itoa(i)))
		}
		return x
	case bson.A:
		for i, val := range x {
			x[i] = w.walk(val, child(path, strconv.Itoa(i)))
		}
		return x
	}
	if document.IsContainer(v) {
		switch n := document.Normalize(v).(type) {
		case map[string]any, []any:
			return w.walk(n, path)
		}
		// nil typed containers hold no leaves
		return v
	}
	return w.leaf(v, path)
}

func (w *walker) leaf(v any, path []string) any {
	if v == nil {
		return nil
	}
	full := append(append([]string(nil), w.base...), path...)
	if schema.IsReserved(full) {
		return v
	}

	node, enabled := w.rule.Resolve(schema.RulePath(path))
	if !enabled {
		return v
	}

	out, err := w.fn(full, node, v)
	if err != nil {
		w.errs = append(w.errs, fmt.Errorf("field %s: %w", schema.JoinPath(full), err))
		return v
	}
	return out
}
