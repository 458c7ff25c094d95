// Package query rewrites filter and update conditions so that values compared against
// encryption-enabled fields are compared in their stored, encrypted form.
package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/internal/document"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
)

var (
	// ErrUnsupportedConditions is returned for conditions that are not a document or a
	// list of documents
	ErrUnsupportedConditions = errors.New("unsupported conditions type")
	// ErrNilModel is returned when no compiled model is given
	ErrNilModel = errors.New("model cannot be nil")
)

// operators whose operands are not field values
var nonValueOperators = map[string]bool{
	"$exists":      true,
	"$type":        true,
	"$size":        true,
	"$regex":       true,
	"$options":     true,
	"$mod":         true,
	"$inc":         true,
	"$mul":         true,
	"$rename":      true,
	"$unset":       true,
	"$currentDate": true,
	"$bit":         true,
	"$slice":       true,
	"$sort":        true,
	"$position":    true,
	"$where":       true,
	"$expr":        true,
	"$text":        true,
	"$comment":     true,
}

// Rewriter applies the toggle to every condition leaf that targets an encrypted field
type Rewriter struct {
	prim     *crypt.Primitive
	logger   interfaces.AuditLogger
	recorder interfaces.HookRecorder
}

// Option configures a Rewriter
type Option func(*Rewriter)

// WithAuditLogger emits one audit event per rewrite
func WithAuditLogger(l interfaces.AuditLogger) Option {
	return func(r *Rewriter) { r.logger = l }
}

// WithRecorder counts rewrites
func WithRecorder(rec interfaces.HookRecorder) Option {
	return func(r *Rewriter) { r.recorder = rec }
}

// NewRewriter creates a rewriter over an injected primitive
func NewRewriter(prim *crypt.Primitive, opts ...Option) (*Rewriter, error) {
	if prim == nil {
		return nil, crypt.ErrNilCipher
	}
	r := &Rewriter{prim: prim}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rewrite returns a copy of conditions in which every scalar that addresses an
// encryption-enabled path has been toggled. A top-level key holding a scalar keeps its
// key verbatim, so dot-notation filters stay dot-notation. A top-level key holding an
// object or array is rebuilt with the same nesting. conditions itself is not modified.
//
// Accepted shapes are map[string]any, bson.M, bson.D and slices of those such as
// update pipelines. The result has the same type as conditions.
func (r *Rewriter) Rewrite(ctx context.Context, conditions any, m *schema.Model) (any, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	if conditions == nil {
		return nil, nil
	}

	rw := &rewrite{r: r, rules: m.Rules}
	out, err := rw.any(conditions)
	if err == nil {
		err = errors.Join(rw.errs...)
	}

	if r.recorder != nil {
		r.recorder.RecordRewrite(m.Name, err)
	}
	r.audit(ctx, m, rw.rewritten, err)

	if err != nil {
		log.Error().Err(err).Str("model", m.Name).Msg("Condition rewrite failed")
		return nil, err
	}

	log.Trace().
		Str("model", m.Name).
		Int("rewritten", rw.rewritten).
		Msg("Rewrote conditions")

	return out, nil
}

type rewrite struct {
	r         *Rewriter
	rules     *schema.Rule
	rewritten int
	errs      []error
}

func (rw *rewrite) any(conditions any) (any, error) {
	switch c := conditions.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, v := range c {
			out[k] = rw.entry(k, v)
		}
		return out, nil
	case bson.M:
		out := make(bson.M, len(c))
		for k, v := range c {
			out[k] = rw.entry(k, v)
		}
		return out, nil
	case bson.D:
		out := make(bson.D, len(c))
		for i, e := range c {
			out[i] = bson.E{Key: e.Key, Value: rw.entry(e.Key, e.Value)}
		}
		return out, nil
	}

	rv := reflect.ValueOf(conditions)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedConditions, conditions)
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		stage := rv.Index(i).Interface()
		if !document.IsDocument(stage) {
			return nil, fmt.Errorf("%w: stage %d is %T", ErrUnsupportedConditions, i, stage)
		}
		rewritten, err := rw.any(stage)
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(rewritten))
	}
	return out.Interface(), nil
}

// entry rewrites the value of one top-level key
func (rw *rewrite) entry(key string, value any) any {
	if !document.IsContainer(value) {
		out, _ := rw.leaf([]string{key}, value)
		return out
	}

	clone := document.Clone(value)
	for _, leaf := range Flatten(clone) {
		out, changed := rw.leaf(append([]string{key}, leaf.Path...), leaf.Value)
		if changed {
			setAt(clone, leaf.Path, out)
		}
	}
	return clone
}

func (rw *rewrite) leaf(instance []string, v any) (any, bool) {
	if v == nil {
		return v, false
	}
	if _, isRegex := v.(bson.Regex); isRegex {
		return v, false
	}
	rulePath, ok := conditionRulePath(instance)
	if !ok || schema.IsReserved(rulePath) {
		return v, false
	}
	if _, enabled := rw.rules.Resolve(rulePath); !enabled {
		return v, false
	}

	out, state, err := rw.r.prim.ToggleState(v)
	if err != nil {
		rw.errs = append(rw.errs, fmt.Errorf("condition %s: %w", strings.Join(instance, schema.Separator), err))
		return v, false
	}
	if state != crypt.Unchanged {
		rw.rewritten++
	}
	return out, true
}

// conditionRulePath maps the path of a condition leaf onto the schema. Dot-notation keys
// are split, operator and positional segments are dropped together with an index that
// directly follows them, and the remaining indices collapse as in schema.RulePath. ok is
// false when the leaf is the operand of an operator that does not take field values.
func conditionRulePath(instance []string) ([]string, bool) {
	var segs []string
	for _, key := range instance {
		segs = append(segs, schema.SplitPath(key)...)
	}

	out := make([]string, 0, len(segs))
	afterOperator := false
	for _, seg := range segs {
		if strings.HasPrefix(seg, "$") {
			if nonValueOperators[seg] {
				return nil, false
			}
			afterOperator = true
			continue
		}
		if afterOperator && schema.IsIndex(seg) {
			afterOperator = false
			continue
		}
		afterOperator = false
		out = append(out, seg)
	}
	return schema.RulePath(out), true
}

func (r *Rewriter) audit(ctx context.Context, m *schema.Model, rewritten int, err error) {
	if r.logger == nil {
		return
	}
	ctx = audit.WithOperation(audit.WithContext(ctx, m.Name, m.Collection), audit.OperationRewrite)
	event := audit.NewAuditEvent(audit.EventTypeQueryRewrite, audit.OperationRewrite, m.Name)
	audit.FromContext(ctx, event)
	event.Metadata["rewritten"] = rewritten
	if err != nil {
		event.Status = audit.StatusFailed
		event.Context[string(audit.KeyError)] = err.Error()
	}
	if logErr := r.logger.LogEvent(ctx, event); logErr != nil {
		log.Warn().Err(logErr).Str("model", m.Name).Msg("Failed to log audit event")
	}
}
