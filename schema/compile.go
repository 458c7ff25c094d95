// Package schema compiles raw property definitions into a per-model rule index and the
// table of field hooks the persistence layer invokes on save and read.
package schema

import (
	"fmt"
	"sort"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
	"github.com/rs/zerolog/log"
)

// HookKind selects what a hook does with the value of its top-level field
type HookKind string

const (
	// HookLeaf toggles a scalar field
	HookLeaf HookKind = "leaf"
	// HookContainer walks a nested object or array with the field's own rule subtree
	HookContainer HookKind = "container"
	// HookDateCast toggles a date-cipher field on save and casts it back to a date on read
	HookDateCast HookKind = "dateCast"
)

// Hook is one entry of a model's hook registration table
type Hook struct {
	Path string
	Kind HookKind
	Rule *Rule
}

// Model is a compiled model: its definition, rule tree and hook table
type Model struct {
	Name       string
	Collection string
	Properties types.Properties
	Rules      *Rule
	Hooks      []Hook

	hookIndex map[string]int
}

// Hook returns the hook registered for a top-level field
func (m *Model) Hook(path string) (Hook, bool) {
	i, ok := m.hookIndex[path]
	if !ok {
		return Hook{}, false
	}
	return m.Hooks[i], true
}

// EncryptedPaths lists the rule path of every encryption-enabled leaf
func (m *Model) EncryptedPaths() []string {
	return m.Rules.encryptedPaths(nil, nil)
}

// Compile validates a model definition and builds its rule tree and hook table
func Compile(def types.ModelDefinition) (*Model, error) {
	if def.Name == "" {
		return nil, ErrEmptyModelName
	}

	root := &Rule{Type: types.FieldTypeObject, Fields: make(map[string]*Rule, len(def.Properties))}
	for name, prop := range def.Properties {
		rule, err := buildRule(prop, false, name)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			root.Fields[name] = rule
		}
	}

	m := &Model{
		Name:       def.Name,
		Collection: def.Collection,
		Properties: def.Properties,
		Rules:      root,
		hookIndex:  make(map[string]int),
	}
	if m.Collection == "" {
		m.Collection = def.Name
	}

	names := make([]string, 0, len(root.Fields))
	for name := range root.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := root.Fields[name]
		if !rule.HasEncrypted() {
			continue
		}
		kind := HookContainer
		switch {
		case rule.DateCipher:
			kind = HookDateCast
		case rule.Type.IsScalar():
			kind = HookLeaf
		}
		m.hookIndex[name] = len(m.Hooks)
		m.Hooks = append(m.Hooks, Hook{Path: name, Kind: kind, Rule: rule})
	}

	log.Debug().
		Str("model", m.Name).
		Int("hooks", len(m.Hooks)).
		Msg("Compiled model schema")

	return m, nil
}

// buildRule converts one property into a rule node. Schema meta objects yield nil.
func buildRule(prop *types.Property, inherited bool, path string) (*Rule, error) {
	if prop == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilProperty, path)
	}
	if prop.IsSchema {
		return nil, nil
	}
	if !prop.Type.Valid() {
		return nil, fmt.Errorf("%w %q at %s", ErrInvalidFieldType, prop.Type, path)
	}

	rule := &Rule{
		Type:       inferType(prop),
		Encrypt:    inherited || prop.Encrypt,
		DateCipher: prop.Type == types.FieldTypeDateCipher,
	}
	if rule.DateCipher {
		rule.Encrypt = true
	}

	switch rule.Type {
	case types.FieldTypeObject:
		rule.Fields = make(map[string]*Rule, len(prop.Properties))
		for name, child := range prop.Properties {
			sub, err := buildRule(child, rule.Encrypt, path+Separator+name)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				rule.Fields[name] = sub
			}
		}
	case types.FieldTypeArray:
		if prop.Items == nil {
			rule.Elem = &Rule{Type: types.FieldTypeMixed, Encrypt: rule.Encrypt}
			break
		}
		elem, err := buildRule(prop.Items, rule.Encrypt, path+Separator+ElemSegment)
		if err != nil {
			return nil, err
		}
		rule.Elem = elem
	}

	return rule, nil
}

func inferType(prop *types.Property) types.FieldType {
	if prop.Type != "" {
		return prop.Type
	}
	switch {
	case prop.Items != nil:
		return types.FieldTypeArray
	case len(prop.Properties) > 0:
		return types.FieldTypeObject
	}
	return types.FieldTypeMixed
}
