// Package dbencryption encrypts documents that were stored before their fields were
// marked for encryption. A run is driven by intent rather than by the toggle, so values
// that are already ciphertext are left alone and repeated runs change nothing.
package dbencryption

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/coordinator"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/datecipher"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/field"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/internal/document"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

const (
	DefaultWorkers   = 4
	DefaultBatchSize = 100
)

// Processor runs batch tasks over one collection
type Processor struct {
	coll     interfaces.Collection
	model    *schema.Model
	prim     *crypt.Primitive
	dates    *datecipher.Type
	coord    *coordinator.Coordinator
	cfg      types.Config
	recorder interfaces.BatchRecorder
	auditLog interfaces.AuditLogger
	logger   zerolog.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithBatchRecorder reports document counts and durations of every run
func WithBatchRecorder(r interfaces.BatchRecorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithAuditLogger emits one audit event per run
func WithAuditLogger(l interfaces.AuditLogger) Option {
	return func(p *Processor) { p.auditLog = l }
}

// NewProcessor creates a processor. A nil coordinator gets a private one.
func NewProcessor(coll interfaces.Collection, model *schema.Model, prim *crypt.Primitive, coord *coordinator.Coordinator, cfg types.Config, opts ...Option) (*Processor, error) {
	if coll == nil {
		return nil, ErrInvalidCollection
	}
	if prim == nil {
		return nil, crypt.ErrNilCipher
	}
	if model == nil || len(model.Hooks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoProtectedFields, coll.Name())
	}
	dates, err := datecipher.New(prim)
	if err != nil {
		return nil, err
	}
	if coord == nil {
		coord = coordinator.NewCoordinator()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	p := &Processor{
		coll:  coll,
		model: model,
		prim:  prim,
		dates: dates,
		coord: coord,
		cfg:   cfg,
		logger: log.With().
			Str("component", "dbencryption").
			Str("model", model.Name).
			Str("collection", coll.Name()).
			Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run encrypts every enabled leaf that is not ciphertext yet and writes changed documents
// back by _id. With DryRun set nothing is written. An empty id gets a generated one.
func (p *Processor) Run(ctx context.Context, id string) (*types.TaskResult, error) {
	return p.run(ctx, id, types.TypeFieldEncrypt)
}

// Verify reports documents that still hold plaintext in enabled leaves as changed and
// documents whose date-cipher values do not decrypt to a date as failed. It never writes.
func (p *Processor) Verify(ctx context.Context, id string) (*types.TaskResult, error) {
	return p.run(ctx, id, types.TypeFieldVerify)
}

// counters are updated by the workers of one run
type counters struct {
	total, processed, changed, failed atomic.Int64
}

func (c *counters) progress() types.Progress {
	return types.Progress{
		Total:     c.total.Load(),
		Processed: c.processed.Load(),
		Changed:   c.changed.Load(),
		Failed:    c.failed.Load(),
	}
}

func (p *Processor) run(ctx context.Context, id string, typ types.Type) (result *types.TaskResult, err error) {
	if typ != types.TypeFieldEncrypt && typ != types.TypeFieldVerify {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaskType, typ)
	}
	if id == "" {
		id = uuid.New().String()
	}
	proc, err := p.coord.StartProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = proc.Context()
	start := time.Now()

	var c counters
	defer func() {
		p.coord.UpdateProgress(id, c.progress())
		p.coord.CompleteProcess(id, err)
		result = p.result(id, &c, err)
		if p.recorder != nil {
			p.recorder.RecordBatch(p.model.Name, int(c.processed.Load()), int(c.changed.Load()), int(c.failed.Load()), time.Since(start))
		}
		p.audit(ctx, typ, result)
	}()

	total, err := p.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count documents: %w", ErrTaskFailed, err)
	}
	c.total.Store(total)

	p.logger.Info().
		Str("taskId", id).
		Str("type", string(typ)).
		Int64("total", total).
		Bool("dryRun", p.cfg.DryRun).
		Msg("Starting batch task")

	var lastID any
	for {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTaskCancelled, ctx.Err())
		}

		page, err := p.page(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTaskCancelled, ctx.Err())
			}
			return nil, fmt.Errorf("%w: failed to fetch page: %w", ErrTaskFailed, err)
		}
		if len(page) == 0 {
			break
		}

		if err := p.processPage(ctx, page, typ, &c); err != nil {
			return nil, err
		}
		p.coord.UpdateProgress(id, c.progress())

		lastID = idOf(page[len(page)-1])
		if lastID == nil || len(page) < p.cfg.BatchSize {
			break
		}
	}

	p.logger.Info().
		Str("taskId", id).
		Int64("processed", c.processed.Load()).
		Int64("changed", c.changed.Load()).
		Int64("failed", c.failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("Batch task finished")

	return nil, nil
}

func (p *Processor) page(ctx context.Context, after any) ([]bson.D, error) {
	filter := bson.D{}
	if after != nil {
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: after}}}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(p.cfg.BatchSize))

	cur, err := p.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (p *Processor) processPage(ctx context.Context, page []bson.D, typ types.Type, c *counters) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, doc := range page {
		g.Go(func() error {
			if gctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrTaskCancelled, gctx.Err())
			}

			var changed bool
			var err error
			if typ == types.TypeFieldVerify {
				changed, err = p.verifyDocument(doc)
			} else {
				changed, err = p.encryptDocument(doc)
				if err == nil && changed && !p.cfg.DryRun {
					err = p.replace(gctx, doc)
				}
			}

			c.processed.Add(1)
			switch {
			case err != nil:
				c.failed.Add(1)
				p.logger.Warn().Err(err).Interface("documentId", idOf(doc)).Msg("Failed to process document")
			case changed:
				c.changed.Add(1)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) replace(ctx context.Context, doc bson.D) error {
	id := idOf(doc)
	if id == nil {
		return ErrMissingID
	}
	_, err := p.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc)
	return err
}

// encryptDocument encrypts plaintext in every hooked field of doc in place
func (p *Processor) encryptDocument(doc bson.D) (bool, error) {
	changed := false
	fn := func(path []string, rule *schema.Rule, v any) (any, error) {
		out, err := p.prim.EnsureEncrypted(v)
		if err != nil {
			return v, err
		}
		if !sameScalar(v, out) {
			changed = true
		}
		return out, nil
	}
	return changed, p.eachHook(doc, fn)
}

// verifyDocument reports whether doc still holds plaintext in an enabled leaf
func (p *Processor) verifyDocument(doc bson.D) (bool, error) {
	plaintext := false
	fn := func(path []string, rule *schema.Rule, v any) (any, error) {
		if s, ok := v.(string); v == nil || (ok && s == "") {
			return v, nil
		}
		if !p.prim.IsAlreadyEncrypted(v) {
			plaintext = true
			return v, nil
		}
		if rule != nil && rule.DateCipher {
			if _, err := p.dates.Cast(v); err != nil {
				return v, fmt.Errorf("%s: %w", schema.JoinPath(path), err)
			}
		}
		return v, nil
	}
	return plaintext, p.eachHook(doc, fn)
}

func (p *Processor) eachHook(doc bson.D, fn field.LeafFunc) error {
	var errs []error
	for _, hook := range p.model.Hooks {
		value, ok, err := document.Get(doc, hook.Path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		out, err := field.WalkAt(value, hook.Rule, []string{hook.Path}, fn)
		if err != nil {
			errs = append(errs, err)
		}
		if err := document.Set(doc, hook.Path, out); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) result(id string, c *counters, err error) *types.TaskResult {
	res := &types.TaskResult{
		TaskID:     id,
		Status:     types.StatusCompleted,
		Processed:  c.processed.Load(),
		Changed:    c.changed.Load(),
		Failed:     c.failed.Load(),
		Collection: p.coll.Name(),
	}
	if st := p.coord.GetProcessStatus(id); st != nil {
		res.Status = st.Status
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (p *Processor) audit(ctx context.Context, typ types.Type, res *types.TaskResult) {
	if p.auditLog == nil {
		return
	}
	// the run context may already be cancelled
	ctx = audit.WithContext(context.WithoutCancel(ctx), p.model.Name, p.coll.Name())
	operation := audit.OperationEncrypt
	if typ == types.TypeFieldVerify {
		operation = audit.OperationVerify
	}
	event := audit.NewAuditEvent(audit.EventTypeBatchEncrypt, operation, p.model.Name)
	audit.FromContext(ctx, event)
	event.Metadata["taskId"] = res.TaskID
	event.Metadata["processed"] = res.Processed
	event.Metadata["changed"] = res.Changed
	event.Metadata["failed"] = res.Failed
	event.Metadata["dryRun"] = p.cfg.DryRun
	if res.Error != "" || res.Status == types.StatusFailed || res.Status == types.StatusCancelled {
		event.Status = audit.StatusFailed
		event.Context[string(audit.KeyError)] = res.Error
	}
	if err := p.auditLog.LogEvent(ctx, event); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to log audit event")
	}
}

func idOf(doc bson.D) any {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value
		}
	}
	return nil
}

// sameScalar reports whether EnsureEncrypted returned its input
func sameScalar(in, out any) bool {
	if in == nil {
		return out == nil
	}
	s, ok := in.(string)
	if !ok {
		return false
	}
	o, ok := out.(string)
	return ok && o == s
}
