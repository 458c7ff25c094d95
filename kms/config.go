package kms

import (
	"fmt"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// ConfigFromEncryptionConfig maps the flat encryption configuration onto the provider
// section its Provider selects
func ConfigFromEncryptionConfig(cfg *types.EncryptionConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("encryption config cannot be nil")
	}

	out := Config{Type: cfg.Provider}
	switch cfg.Provider {
	case types.ProviderAWS:
		out.AWS = &AWSConfig{KeyID: cfg.KeyID, Region: cfg.Region, Credentials: cfg.Credentials}
	case types.ProviderAzure:
		out.Azure = &AzureConfig{KeyID: cfg.KeyID, VaultAddress: cfg.VaultAddress, Credentials: cfg.Credentials}
	case types.ProviderGCP:
		out.GCP = &GCPConfig{ResourceName: cfg.KeyID, Credentials: cfg.Credentials}
	case types.ProviderVault:
		out.Vault = &VaultConfig{
			KeyID:        cfg.KeyID,
			VaultAddress: cfg.VaultAddress,
			VaultMount:   cfg.VaultMount,
			Credentials:  cfg.Credentials,
		}
	case types.ProviderAead:
		out.AeadKeyBase64 = cfg.AeadKey
		out.AeadKeyID = cfg.KeyID
	case types.ProviderLocal:
		return Config{}, fmt.Errorf("local key configuration does not use a KMS provider")
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	return out, nil
}
