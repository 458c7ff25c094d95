package types

import (
	"time"
)

// ProviderType represents the type of KMS provider
type ProviderType string

const (
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
	ProviderVault ProviderType = "vault"
	ProviderAead  ProviderType = "aead"

	// ProviderLocal means the field key is configured directly and no KMS is involved
	ProviderLocal ProviderType = ""
)

// KMSCredentials represents KMS provider credentials
type KMSCredentials struct {
	// AWS credentials
	AccessKeyID     string `json:"accessKeyId,omitempty" bson:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" bson:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty" bson:"sessionToken,omitempty"`

	// Azure credentials
	TenantID     string `json:"tenantId,omitempty" bson:"tenantId,omitempty"`
	ClientID     string `json:"clientId,omitempty" bson:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty" bson:"clientSecret,omitempty"`

	// GCP credentials
	CredentialsJSON string `json:"credentialsJson,omitempty" bson:"credentialsJson,omitempty"`

	// Vault credentials
	Token string `json:"token,omitempty" bson:"token,omitempty"`
}

// EncryptionConfig describes where the field encryption key comes from.
//
// With ProviderLocal the key is FieldKey. With any other provider WrappedDataKey holds
// the field key wrapped by that provider and is unwrapped once at startup.
type EncryptionConfig struct {
	Enabled        bool            `json:"enabled" bson:"enabled"`
	Provider       ProviderType    `json:"provider" bson:"provider"`
	KeyID          string          `json:"keyId" bson:"keyId"`
	Region         string          `json:"region,omitempty" bson:"region,omitempty"`
	VaultAddress   string          `json:"vaultAddress,omitempty" bson:"vaultAddress,omitempty"`
	VaultMount     string          `json:"vaultMount,omitempty" bson:"vaultMount,omitempty"`
	AeadKey        string          `json:"-" bson:"-"`
	FieldKey       string          `json:"-" bson:"-"`
	WrappedDataKey string          `json:"wrappedDataKey,omitempty" bson:"wrappedDataKey,omitempty"`
	Credentials    *KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
	AuditLog       AuditLogConfig  `json:"auditLog" bson:"auditLog"`
	CreatedAt      time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// AuditLogConfig represents the audit log configuration
type AuditLogConfig struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Type    string `json:"type" bson:"type"`
}
