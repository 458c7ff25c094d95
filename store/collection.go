// Package store applies field encryption around MongoDB collection calls: documents are
// encrypted before they are written, decrypted after they are read, and filters and
// updates are rewritten to address the stored ciphertext.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/field"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/query"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
)

const defaultWorkers = 4

var (
	// ErrInvalidTarget is returned when a decode target is not a pointer of the right kind
	ErrInvalidTarget = errors.New("decode target must be a non-nil pointer")
	// ErrMissingDependency is returned when a required collaborator is nil
	ErrMissingDependency = errors.New("missing dependency")
)

// Collection is an encrypting view of one MongoDB collection bound to a compiled model
type Collection struct {
	coll     interfaces.Collection
	model    *schema.Model
	fields   *field.Service
	rewriter *query.Rewriter
	workers  int
}

// Option configures a Collection
type Option func(*Collection)

// WithWorkers bounds the number of documents transformed concurrently by InsertMany
func WithWorkers(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewCollection creates an encrypting collection
func NewCollection(coll interfaces.Collection, model *schema.Model, fields *field.Service, rewriter *query.Rewriter, opts ...Option) (*Collection, error) {
	switch {
	case coll == nil:
		return nil, fmt.Errorf("%w: collection", ErrMissingDependency)
	case model == nil:
		return nil, fmt.Errorf("%w: model", ErrMissingDependency)
	case fields == nil:
		return nil, fmt.Errorf("%w: field service", ErrMissingDependency)
	case rewriter == nil:
		return nil, fmt.Errorf("%w: rewriter", ErrMissingDependency)
	}

	c := &Collection{coll: coll, model: model, fields: fields, rewriter: rewriter, workers: defaultWorkers}
	for _, opt := range opts {
		opt(c)
	}

	log.Debug().
		Str("collection", coll.Name()).
		Str("model", model.Name).
		Int("workers", c.workers).
		Msg("Encrypting collection ready")

	return c, nil
}

// Model returns the compiled model the collection is bound to
func (c *Collection) Model() *schema.Model {
	return c.model
}

// prepare copies v into a bson.D and runs the save phase on the copy
func (c *Collection) prepare(ctx context.Context, v any) (bson.D, error) {
	doc, err := toDocument(v)
	if err != nil {
		return nil, err
	}
	if err := c.fields.Save(ctx, c.model, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// conditions rewrites a filter or update; a nil filter matches every document
func (c *Collection) conditions(ctx context.Context, v any) (any, error) {
	if v == nil {
		return bson.D{}, nil
	}
	out, err := c.rewriter.Rewrite(ctx, v, c.model)
	if err != nil {
		return nil, fmt.Errorf("failed to rewrite conditions: %w", err)
	}
	return out, nil
}

// InsertOne encrypts and inserts one document. document is not modified.
func (c *Collection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	doc, err := c.prepare(ctx, document)
	if err != nil {
		return nil, err
	}
	return c.coll.InsertOne(ctx, doc, opts...)
}

// InsertMany encrypts documents concurrently and inserts them in their original order
func (c *Collection) InsertMany(ctx context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	prepared := make([]any, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, d := range documents {
		g.Go(func() error {
			doc, err := c.prepare(gctx, d)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			prepared[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.coll.InsertMany(ctx, prepared, opts...)
}

// FindOne decodes the first matching document into out after decrypting it
func (c *Collection) FindOne(ctx context.Context, filter any, out any, opts ...options.Lister[options.FindOneOptions]) error {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return err
	}

	var raw bson.D
	if err := c.coll.FindOne(ctx, f, opts...).Decode(&raw); err != nil {
		return err
	}
	if err := c.fields.Read(ctx, c.model, raw); err != nil {
		return err
	}
	return fromDocument(raw, out)
}

// Find decodes every matching document into out, which must point to a slice
func (c *Collection) Find(ctx context.Context, filter any, out any, opts ...options.Lister[options.FindOptions]) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w to a slice, got %T", ErrInvalidTarget, out)
	}

	f, err := c.conditions(ctx, filter)
	if err != nil {
		return err
	}
	cur, err := c.coll.Find(ctx, f, opts...)
	if err != nil {
		return err
	}
	var raws []bson.D
	if err := cur.All(ctx, &raws); err != nil {
		return err
	}

	slice := rv.Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(raws))
	var errs []error
	for i, raw := range raws {
		if err := c.fields.Read(ctx, c.model, raw); err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		elem := reflect.New(slice.Type().Elem())
		if err := fromDocument(raw, elem.Interface()); err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return errors.Join(errs...)
}

// UpdateOne rewrites filter and update before updating one document
func (c *Collection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	f, u, err := c.filterAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return c.coll.UpdateOne(ctx, f, u, opts...)
}

// UpdateMany rewrites filter and update before updating matching documents
func (c *Collection) UpdateMany(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error) {
	f, u, err := c.filterAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return c.coll.UpdateMany(ctx, f, u, opts...)
}

func (c *Collection) filterAndUpdate(ctx context.Context, filter, update any) (any, any, error) {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	if update == nil {
		return nil, nil, fmt.Errorf("update cannot be nil")
	}
	u, err := c.conditions(ctx, update)
	if err != nil {
		return nil, nil, err
	}
	return f, u, nil
}

// ReplaceOne rewrites filter and encrypts the replacement document
func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error) {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return nil, err
	}
	doc, err := c.prepare(ctx, replacement)
	if err != nil {
		return nil, err
	}
	return c.coll.ReplaceOne(ctx, f, doc, opts...)
}

// DeleteOne rewrites filter before deleting one document
func (c *Collection) DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error) {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return c.coll.DeleteOne(ctx, f, opts...)
}

// DeleteMany rewrites filter before deleting matching documents
func (c *Collection) DeleteMany(ctx context.Context, filter any, opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error) {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return c.coll.DeleteMany(ctx, f, opts...)
}

// CountDocuments rewrites filter before counting
func (c *Collection) CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error) {
	f, err := c.conditions(ctx, filter)
	if err != nil {
		return 0, err
	}
	return c.coll.CountDocuments(ctx, f, opts...)
}

// toDocument round-trips v through BSON so the transform works on a private copy
func toDocument(v any) (bson.D, error) {
	if v == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}

func fromDocument(doc bson.D, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w, got %T", ErrInvalidTarget, out)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
