package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.LogLevel)
				assert.True(t, cfg.EncryptionEnabled)
				assert.Empty(t, cfg.KMSProvider)
				assert.Equal(t, "transit", cfg.KMSVaultMount)
				assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
				assert.Equal(t, "fieldEncryptionKeys", cfg.KeyCollection)
				assert.Equal(t, 4, cfg.BatchWorkers)
				assert.Equal(t, 100, cfg.BatchSize)
				assert.Equal(t, "field_encryption", cfg.MetricsNamespace)
			},
		},
		{
			name: "load kms configuration",
			envVars: map[string]string{
				"KMS_PROVIDER":                      "aws",
				"KMS_KEY_ID":                        "alias/fields",
				"KMS_REGION":                        "eu-central-1",
				"KMS_CREDENTIALS_ACCESS_KEY_ID":     "AKIA",
				"KMS_CREDENTIALS_SECRET_ACCESS_KEY": "secret",
				"FIELD_ENCRYPTION_WRAPPED_KEY":      "d3JhcHBlZA==",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "aws", cfg.KMSProvider)
				assert.Equal(t, "alias/fields", cfg.KMSKeyID)
				assert.Equal(t, "eu-central-1", cfg.KMSRegion)
				assert.Equal(t, "AKIA", cfg.KMSCredentials.AccessKeyID)
				assert.Equal(t, "secret", cfg.KMSCredentials.SecretAccessKey)
				assert.Equal(t, "d3JhcHBlZA==", cfg.WrappedDataKey)
			},
		},
		{
			name: "load batch and observability configuration",
			envVars: map[string]string{
				"BATCH_WORKERS":            "8",
				"BATCH_SIZE":               "500",
				"AUDIT_LOG_ENABLED":        "true",
				"FIELD_ENCRYPTION_ENABLED": "false",
				"METRICS_NAMESPACE":        "app",
				"LOG_LEVEL":                "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.BatchWorkers)
				assert.Equal(t, 500, cfg.BatchSize)
				assert.True(t, cfg.AuditLogEnabled)
				assert.False(t, cfg.EncryptionEnabled)
				assert.Equal(t, "app", cfg.MetricsNamespace)
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			tt.validate(t, Load())
		})
	}
}

func TestEncryptionConfig(t *testing.T) {
	cfg := &Config{
		EncryptionEnabled: true,
		KMSProvider:       "aead",
		KMSKeyID:          "test-key",
		KMSAeadKey:        "a2V5",
		WrappedDataKey:    "d3JhcHBlZA==",
		AuditLogEnabled:   true,
	}

	enc := cfg.EncryptionConfig()
	assert.True(t, enc.Enabled)
	assert.Equal(t, types.ProviderAead, enc.Provider)
	assert.Equal(t, "test-key", enc.KeyID)
	assert.Equal(t, "a2V5", enc.AeadKey)
	assert.Equal(t, "d3JhcHBlZA==", enc.WrappedDataKey)
	assert.True(t, enc.AuditLog.Enabled)
	assert.Nil(t, enc.Credentials)

	cfg.KMSCredentials.Token = "s.token"
	enc = cfg.EncryptionConfig()
	require.NotNil(t, enc.Credentials)
	assert.Equal(t, "s.token", enc.Credentials.Token)

	enc.Credentials.Token = "changed"
	assert.Equal(t, "s.token", cfg.KMSCredentials.Token)

	assert.Equal(t, types.Config{Workers: 0, BatchSize: 0}, (&Config{}).BatchConfig())
}

func TestLoadDotEnv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("KMS_KEY_ID=from-dotenv\n"), 0o600))

	t.Chdir(nested)
	// registers cleanup so the loaded value does not leak into other tests
	t.Setenv("KMS_KEY_ID", "")
	require.NoError(t, os.Unsetenv("KMS_KEY_ID"))

	cfg := Load()
	assert.Equal(t, "from-dotenv", cfg.KMSKeyID)
}
