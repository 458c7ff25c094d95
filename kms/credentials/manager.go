// Package credentials keeps KMS provider credentials encrypted at rest in configuration
package credentials

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// MaskedValue replaces secrets in displayed configuration. Masked fields are never
// encrypted or decrypted.
const MaskedValue = "[MASKED]"

type secret struct {
	name string
	ptr  *string
}

// secrets returns the credential fields the provider uses
func secrets(provider types.ProviderType, c *types.KMSCredentials) ([]secret, error) {
	switch provider {
	case types.ProviderAWS:
		return []secret{
			{"AWS access key", &c.AccessKeyID},
			{"AWS secret key", &c.SecretAccessKey},
			{"AWS session token", &c.SessionToken},
		}, nil
	case types.ProviderAzure:
		return []secret{
			{"Azure tenant ID", &c.TenantID},
			{"Azure client ID", &c.ClientID},
			{"Azure client secret", &c.ClientSecret},
		}, nil
	case types.ProviderGCP:
		return []secret{{"GCP credentials JSON", &c.CredentialsJSON}}, nil
	case types.ProviderVault:
		return []secret{{"Vault token", &c.Token}}, nil
	}
	return nil, fmt.Errorf("unsupported provider type: %q", provider)
}

type credentialManager struct {
	cipher interfaces.Cipher
}

// NewManager creates a credential manager keyed by encryptionKey
func NewManager(encryptionKey []byte) (interfaces.CredentialsManager, error) {
	c, err := symmetric.NewEncryption(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials cipher: %w", err)
	}
	return &credentialManager{cipher: c}, nil
}

// EncryptCredentials encrypts every credential field of the configured provider.
// Fields that are already encrypted are left as they are.
func (m *credentialManager) EncryptCredentials(config *types.EncryptionConfig) error {
	if config == nil || config.Credentials == nil {
		return nil
	}

	out := *config.Credentials
	fields, err := secrets(config.Provider, &out)
	if err != nil {
		return err
	}
	for _, f := range fields {
		v := *f.ptr
		if v == "" || v == MaskedValue {
			continue
		}
		if _, err := m.cipher.Decrypt(v); err == nil {
			continue
		}
		enc, err := m.cipher.Encrypt(v)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", f.name, err)
		}
		*f.ptr = enc
	}

	config.Credentials = &out
	log.Debug().Str("provider", string(config.Provider)).Int("fields", len(fields)).Msg("Credentials encrypted")
	return nil
}

// DecryptCredentials decrypts every credential field of the configured provider
func (m *credentialManager) DecryptCredentials(config *types.EncryptionConfig) error {
	if config == nil || config.Credentials == nil {
		return nil
	}
	if config.Provider == types.ProviderLocal {
		return fmt.Errorf("provider type is required for decryption")
	}

	out := *config.Credentials
	fields, err := secrets(config.Provider, &out)
	if err != nil {
		return err
	}
	for _, f := range fields {
		v := *f.ptr
		if v == "" || v == MaskedValue {
			*f.ptr = ""
			continue
		}
		dec, err := m.cipher.Decrypt(v)
		if err != nil {
			log.Error().Err(err).Str("field", f.name).Msg("Failed to decrypt credential field")
			return fmt.Errorf("failed to decrypt %s: %w", f.name, err)
		}
		*f.ptr = dec
	}

	config.Credentials = &out
	log.Debug().Str("provider", string(config.Provider)).Msg("Credentials decrypted")
	return nil
}

// Mask returns a copy of creds with every non-empty field replaced by MaskedValue
func Mask(creds *types.KMSCredentials) *types.KMSCredentials {
	if creds == nil {
		return nil
	}
	out := *creds
	for _, p := range []*string{
		&out.AccessKeyID, &out.SecretAccessKey, &out.SessionToken,
		&out.TenantID, &out.ClientID, &out.ClientSecret,
		&out.CredentialsJSON, &out.Token,
	} {
		if *p != "" {
			*p = MaskedValue
		}
	}
	return &out
}

// ToKMSConfig decrypts the credentials of a copy of config and maps it onto a
// provider configuration. config itself is not modified.
func ToKMSConfig(m interfaces.CredentialsManager, config *types.EncryptionConfig) (kms.Config, error) {
	if config == nil {
		return kms.Config{}, fmt.Errorf("encryption config cannot be nil")
	}
	plain := *config
	if m != nil && plain.Credentials != nil {
		if err := m.DecryptCredentials(&plain); err != nil {
			return kms.Config{}, err
		}
	}
	return kms.ConfigFromEncryptionConfig(&plain)
}
