package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

const (
	// DefaultKeyCollection holds one document per wrapped data key
	DefaultKeyCollection = "fieldEncryptionKeys"

	defaultCacheTTL = 15 * time.Minute
)

// ErrKeyNotFound is returned when no wrapped data key is stored under a name
var ErrKeyNotFound = errors.New("data key not found")

type cacheEntry struct {
	value     *types.DataKeyInfo
	expiresAt time.Time
}

type keyDocument struct {
	Name      string             `bson:"_id"`
	DataKey   *types.DataKeyInfo `bson:"dataKey"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// KeyStore persists wrapped data keys and caches them for a limited time
type KeyStore struct {
	coll     interfaces.Collection
	cache    sync.Map
	cacheTTL time.Duration
}

// NewKeyStore creates a key store over coll. A ttl of zero uses the default.
func NewKeyStore(coll interfaces.Collection, ttl time.Duration) (*KeyStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("%w: key collection", ErrMissingDependency)
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &KeyStore{coll: coll, cacheTTL: ttl}, nil
}

// SaveDataKey stores info under name, replacing any previous key of that name
func (s *KeyStore) SaveDataKey(ctx context.Context, name string, info *types.DataKeyInfo) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if info == nil || info.Wrapped == "" {
		return fmt.Errorf("wrapped data key cannot be empty")
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	doc := keyDocument{Name: name, DataKey: info, UpdatedAt: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store data key: %w", err)
	}

	s.cache.Store(name, &cacheEntry{value: info, expiresAt: time.Now().Add(s.cacheTTL)})
	log.Debug().
		Str("name", name).
		Str("provider", string(info.Provider)).
		Str("keyId", info.KeyID).
		Msg("Data key stored and cached")

	return nil
}

// GetDataKey returns the key stored under name, from cache while it is fresh
func (s *KeyStore) GetDataKey(ctx context.Context, name string) (*types.DataKeyInfo, error) {
	if cached, ok := s.cache.Load(name); ok {
		entry := cached.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.value, nil
		}
		s.cache.Delete(name)
	}

	var doc keyDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": name}, options.FindOne().SetProjection(bson.M{"dataKey": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return nil, fmt.Errorf("failed to get data key: %w", err)
	}
	if doc.DataKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}

	s.cache.Store(name, &cacheEntry{value: doc.DataKey, expiresAt: time.Now().Add(s.cacheTTL)})
	log.Debug().Str("name", name).Msg("Data key cached after fetch")

	return doc.DataKey, nil
}

// DeleteDataKey removes the key stored under name
func (s *KeyStore) DeleteDataKey(ctx context.Context, name string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("failed to delete data key: %w", err)
	}
	s.cache.Delete(name)
	return nil
}
