package schema

import (
	"sort"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Rule is one node of a compiled rule tree. A rule tree is never mutated after Compile
// returns, so it can be shared by any number of concurrent readers.
type Rule struct {
	Type       types.FieldType
	Encrypt    bool
	DateCipher bool
	Fields     map[string]*Rule
	Elem       *Rule
}

// open reports whether the node accepts descendants it does not declare
func (r *Rule) open() bool {
	return len(r.Fields) == 0 && r.Elem == nil
}

func (r *Rule) child(seg string) *Rule {
	if f, ok := r.Fields[seg]; ok {
		return f
	}
	if r.Elem == nil {
		return nil
	}
	if seg == ElemSegment {
		return r.Elem
	}
	// a field addressed through an array without an index applies to every element
	return r.Elem.child(seg)
}

// Resolve walks a rule path. It returns the deepest node reached and whether the path
// is encryption-enabled. A path that leaves the tree is enabled only when it leaves
// through an enabled node that declares no children.
func (r *Rule) Resolve(rulePath []string) (*Rule, bool) {
	if r == nil {
		return nil, false
	}
	node := r
	for _, seg := range rulePath {
		next := node.child(seg)
		if next == nil {
			return node, node.Encrypt && node.open()
		}
		node = next
	}
	// a scalar compared against an array of scalars matches its elements
	if node.Elem != nil && node.Elem.open() {
		node = node.Elem
	}
	return node, node.Encrypt
}

// Enabled reports whether a leaf at the given instance path is encryption-enabled
func (r *Rule) Enabled(instancePath []string) bool {
	_, ok := r.Resolve(RulePath(instancePath))
	return ok
}

// HasEncrypted reports whether any node in the subtree is encryption-enabled
func (r *Rule) HasEncrypted() bool {
	if r == nil {
		return false
	}
	if r.Encrypt {
		return true
	}
	for _, f := range r.Fields {
		if f.HasEncrypted() {
			return true
		}
	}
	return r.Elem.HasEncrypted()
}

// encryptedPaths appends every enabled leaf rule path below r
func (r *Rule) encryptedPaths(prefix []string, out []string) []string {
	if r.open() {
		if r.Encrypt {
			out = append(out, JoinPath(prefix))
		}
		return out
	}
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = r.Fields[name].encryptedPaths(append(append([]string(nil), prefix...), name), out)
	}
	if r.Elem != nil {
		out = r.Elem.encryptedPaths(append(append([]string(nil), prefix...), ElemSegment), out)
	}
	return out
}
