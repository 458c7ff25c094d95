// Package interfaces defines all service interfaces for the application.
// IMPORTANT: This is the single source of truth for service interfaces.
// Do not define interfaces in other files.
package interfaces

import (
	"context"
	"time"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Cipher Interfaces
// Cipher is the symmetric cipher injected into the crypt primitive.
// Decrypt must return an error for anything it did not produce.
type Cipher interface {
	// Encrypt encrypts a plaintext string into a self-identifying ciphertext string
	Encrypt(plaintext string) (string, error)
	// Decrypt decrypts a ciphertext string produced by Encrypt
	Decrypt(ciphertext string) (string, error)
}

// KMS Interfaces
// KMSProvider defines the interface for KMS providers
type KMSProvider interface {
	// GetWrapper returns the underlying KMS wrapper
	GetWrapper() wrapping.Wrapper

	// Type returns the configured provider type
	Type() types.ProviderType

	// Test performs a test encryption/decryption
	Test(ctx context.Context) error

	// HealthCheck performs a comprehensive health check
	HealthCheck(ctx context.Context) error

	// GetLastHealthCheckError returns the last health check error
	GetLastHealthCheckError() error
}

// CredentialsManager defines the interface for managing KMS provider credentials
type CredentialsManager interface {
	// EncryptCredentials encrypts all sensitive fields in KMS provider credentials
	EncryptCredentials(config *types.EncryptionConfig) error
	// DecryptCredentials decrypts all sensitive fields in KMS provider credentials
	DecryptCredentials(config *types.EncryptionConfig) error
}

// Audit Interfaces
// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogEvent logs an audit event
	LogEvent(ctx context.Context, event *types.AuditEvent) error

	// GetEvents retrieves audit events based on filters
	GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error)
}

// Instrumentation Interfaces
// HookRecorder receives one call per hook invocation, used to observe invocation parity
type HookRecorder interface {
	RecordHook(model, path, phase string)
	RecordToggle(model, direction string)
	RecordRewrite(model string, err error)
	RecordCastFailure(model string)
}

// BatchRecorder receives the outcome of one batch encryption run
type BatchRecorder interface {
	RecordBatch(model string, processed, changed, failed int, elapsed time.Duration)
}

// Storage Interfaces
// Collection is the subset of *mongo.Collection the persistence adapter uses
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, document interface{}, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents interface{}, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...options.Lister[options.CountOptions]) (int64, error)
}
