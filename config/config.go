// Package config provides configuration through environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Config holds all configuration.
type Config struct {
	// LogLevel is the zerolog level name (e.g., "debug", "info", "warn").
	LogLevel string

	// EncryptionEnabled turns field encryption on.
	EncryptionEnabled bool
	// FieldKey is the base64 field key used when no KMS provider is configured.
	FieldKey string
	// WrappedDataKey is the field key wrapped by the KMS provider (base64 protobuf BlobInfo).
	WrappedDataKey string

	// KMSProvider is one of aead, aws, azure, gcp, vault. Empty means FieldKey is used.
	KMSProvider string
	// KMSKeyID is the provider key id, or the full resource name for gcp.
	KMSKeyID string
	// KMSRegion is the AWS region.
	KMSRegion string
	// KMSVaultAddress is the Vault or Azure Key Vault address.
	KMSVaultAddress string
	// KMSVaultMount is the Vault transit mount path.
	KMSVaultMount string
	// KMSAeadKey is the base64 wrapping key of the aead provider.
	KMSAeadKey string
	// KMSCredentials holds provider credentials; values may be encrypted with
	// KMSCredentialsKey.
	KMSCredentials types.KMSCredentials
	// KMSCredentialsKey is the base64 key that encrypted KMSCredentials values.
	KMSCredentialsKey string

	// MongoURI is the MongoDB connection string.
	MongoURI string
	// MongoDatabase is the database holding the encrypted collections.
	MongoDatabase string
	// KeyCollection stores wrapped data keys.
	KeyCollection string

	// BatchWorkers is the number of concurrent batch encryption workers.
	BatchWorkers int
	// BatchSize is the number of documents fetched per page.
	BatchSize int

	// AuditLogEnabled enables audit events.
	AuditLogEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Field key
		EncryptionEnabled: env.GetBool("FIELD_ENCRYPTION_ENABLED", true),
		FieldKey:          env.GetString("FIELD_ENCRYPTION_KEY", ""),
		WrappedDataKey:    env.GetString("FIELD_ENCRYPTION_WRAPPED_KEY", ""),

		// KMS
		KMSProvider:     env.GetString("KMS_PROVIDER", ""),
		KMSKeyID:        env.GetString("KMS_KEY_ID", ""),
		KMSRegion:       env.GetString("KMS_REGION", ""),
		KMSVaultAddress: env.GetString("KMS_VAULT_ADDRESS", ""),
		KMSVaultMount:   env.GetString("KMS_VAULT_MOUNT", "transit"),
		KMSAeadKey:      env.GetString("KMS_AEAD_KEY", ""),
		KMSCredentials: types.KMSCredentials{
			AccessKeyID:     env.GetString("KMS_CREDENTIALS_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetString("KMS_CREDENTIALS_SECRET_ACCESS_KEY", ""),
			SessionToken:    env.GetString("KMS_CREDENTIALS_SESSION_TOKEN", ""),
			TenantID:        env.GetString("KMS_CREDENTIALS_TENANT_ID", ""),
			ClientID:        env.GetString("KMS_CREDENTIALS_CLIENT_ID", ""),
			ClientSecret:    env.GetString("KMS_CREDENTIALS_CLIENT_SECRET", ""),
			CredentialsJSON: env.GetString("KMS_CREDENTIALS_JSON", ""),
			Token:           env.GetString("KMS_CREDENTIALS_TOKEN", ""),
		},
		KMSCredentialsKey: env.GetString("KMS_CREDENTIALS_KEY", ""),

		// MongoDB
		MongoURI:      env.GetString("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: env.GetString("MONGODB_DATABASE", "app"),
		KeyCollection: env.GetString("MONGODB_KEY_COLLECTION", "fieldEncryptionKeys"),

		// Batch encryption
		BatchWorkers: env.GetInt("BATCH_WORKERS", 4),
		BatchSize:    env.GetInt("BATCH_SIZE", 100),

		// Observability
		AuditLogEnabled:  env.GetBool("AUDIT_LOG_ENABLED", false),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", metrics.DefaultNamespace),
	}
}

// EncryptionConfig converts the environment settings into an encryption configuration
func (c *Config) EncryptionConfig() *types.EncryptionConfig {
	cfg := &types.EncryptionConfig{
		Enabled:        c.EncryptionEnabled,
		Provider:       types.ProviderType(c.KMSProvider),
		KeyID:          c.KMSKeyID,
		Region:         c.KMSRegion,
		VaultAddress:   c.KMSVaultAddress,
		VaultMount:     c.KMSVaultMount,
		AeadKey:        c.KMSAeadKey,
		FieldKey:       c.FieldKey,
		WrappedDataKey: c.WrappedDataKey,
		AuditLog: types.AuditLogConfig{
			Enabled: c.AuditLogEnabled,
			Type:    "stdout",
		},
	}
	if c.KMSCredentials != (types.KMSCredentials{}) {
		creds := c.KMSCredentials
		cfg.Credentials = &creds
	}
	return cfg
}

// BatchConfig returns the batch processor settings
func (c *Config) BatchConfig() types.Config {
	return types.Config{Workers: c.BatchWorkers, BatchSize: c.BatchSize}
}

// loadDotEnv searches for a .env file from the current directory up to the root
// directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
