package kms

import (
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Provider wraps and unwraps the field data key
type Provider = interfaces.KMSProvider

// Config represents the internal KMS provider configuration. Exactly one of the
// provider sections is read, selected by Type.
type Config struct {
	Type  types.ProviderType `json:"type"`
	AWS   *AWSConfig         `json:"aws,omitempty"`
	Azure *AzureConfig       `json:"azure,omitempty"`
	GCP   *GCPConfig         `json:"gcp,omitempty"`
	Vault *VaultConfig       `json:"vault,omitempty"`

	// AEAD wrapper for local development and tests
	AeadKeyBase64 string `json:"-"`
	AeadKeyID     string `json:"aeadKeyId,omitempty"`
}

// AWSConfig configures the AWS KMS wrapper
type AWSConfig struct {
	KeyID       string                `json:"keyId"`
	Region      string                `json:"region"`
	Credentials *types.KMSCredentials `json:"-"`
}

// AzureConfig configures the Azure Key Vault wrapper
type AzureConfig struct {
	KeyID        string                `json:"keyId"`
	VaultAddress string                `json:"vaultAddress"`
	Credentials  *types.KMSCredentials `json:"-"`
}

// GCPConfig configures the GCP Cloud KMS wrapper.
// ResourceName is projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{key}.
type GCPConfig struct {
	ResourceName string                `json:"resourceName"`
	Credentials  *types.KMSCredentials `json:"-"`
}

// VaultConfig configures the Vault transit wrapper
type VaultConfig struct {
	KeyID        string                `json:"keyId"`
	VaultAddress string                `json:"vaultAddress"`
	VaultMount   string                `json:"vaultMount,omitempty"`
	Credentials  *types.KMSCredentials `json:"-"`
}
