// Package kms wraps the field data key with an external key management service
package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	kmsaead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	awskms "github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	azurekeyvault "github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	gcpckms "github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	transit "github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
	"github.com/rs/zerolog"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "kms").Logger()

// aeadKeySize is the AES-256-GCM key length the AEAD wrapper expects
const aeadKeySize = 32

var (
	// ErrUnsupportedProvider is returned for provider types without a wrapper
	ErrUnsupportedProvider = errors.New("unsupported KMS provider type")
	// ErrMissingSection is returned when the section for the selected provider is absent
	ErrMissingSection = errors.New("provider configuration section is missing")
)

type provider struct {
	typ     types.ProviderType
	wrapper wrapping.Wrapper

	mu              sync.RWMutex
	lastHealthCheck error
}

// NewProvider creates a KMS provider for config.Type
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	var (
		wrapper  wrapping.Wrapper
		keyID    string
		location string
		err      error
	)

	log.Debug().Str("provider", string(config.Type)).Msg("Initializing KMS provider")

	switch config.Type {
	case types.ProviderAWS:
		if config.AWS == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, config.Type)
		}
		if err = validateAWSConfig(*config.AWS); err != nil {
			return nil, fmt.Errorf("invalid AWS KMS configuration: %w", err)
		}
		keyID, location = config.AWS.KeyID, config.AWS.Region
		wrapper, err = createAWSWrapper(ctx, *config.AWS)
	case types.ProviderAzure:
		if config.Azure == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, config.Type)
		}
		if err = validateAzureConfig(*config.Azure); err != nil {
			return nil, fmt.Errorf("invalid Azure Key Vault configuration: %w", err)
		}
		keyID, location = config.Azure.KeyID, config.Azure.VaultAddress
		wrapper, err = createAzureWrapper(ctx, *config.Azure)
	case types.ProviderGCP:
		if config.GCP == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, config.Type)
		}
		var res gcpResource
		if res, err = parseGCPResource(config.GCP.ResourceName); err != nil {
			return nil, fmt.Errorf("invalid GCP KMS configuration: %w", err)
		}
		if err = validateGCPConfig(*config.GCP); err != nil {
			return nil, fmt.Errorf("invalid GCP KMS configuration: %w", err)
		}
		keyID, location = res.cryptoKey, res.location
		wrapper, err = createGCPWrapper(ctx, res, config.GCP.Credentials)
	case types.ProviderVault:
		if config.Vault == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, config.Type)
		}
		if err = validateVaultConfig(*config.Vault); err != nil {
			return nil, fmt.Errorf("invalid Vault configuration: %w", err)
		}
		keyID, location = config.Vault.KeyID, config.Vault.VaultAddress
		wrapper, err = createVaultWrapper(ctx, *config.Vault)
	case types.ProviderAead:
		keyID, location = config.AeadKeyID, "local"
		wrapper, err = createAeadWrapper(ctx, config.AeadKeyBase64, config.AeadKeyID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, config.Type)
	}

	if err != nil {
		log.Error().Err(err).Str("provider", string(config.Type)).Msg("Failed to create KMS wrapper")
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}

	log.Info().
		Str("provider", string(config.Type)).
		Str("keyIdentifier", keyID).
		Str("locationContext", location).
		Msg("KMS provider initialized")

	return &provider{typ: config.Type, wrapper: wrapper}, nil
}

func (p *provider) GetWrapper() wrapping.Wrapper {
	return p.wrapper
}

func (p *provider) Type() types.ProviderType {
	return p.typ
}

// Test wraps and unwraps a probe value
func (p *provider) Test(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("wrapper not initialized")
	}

	probe := []byte("field-encryption-probe")
	blob, err := p.wrapper.Encrypt(ctx, probe)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}
	out, err := p.wrapper.Decrypt(ctx, blob)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}
	if !bytes.Equal(out, probe) {
		return fmt.Errorf("decrypted data does not match original")
	}
	return nil
}

func (p *provider) HealthCheck(ctx context.Context) error {
	err := p.Test(ctx)
	if err != nil {
		err = fmt.Errorf("KMS provider health check failed: %w", err)
	}
	p.mu.Lock()
	p.lastHealthCheck = err
	p.mu.Unlock()
	return err
}

func (p *provider) GetLastHealthCheckError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHealthCheck
}

func validateAWSConfig(c AWSConfig) error {
	if c.KeyID == "" {
		return fmt.Errorf("key ID (ARN) is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Credentials == nil {
		log.Info().Msg("AWS credentials not configured, using the default credential chain")
		return nil
	}
	if (c.Credentials.AccessKeyID == "") != (c.Credentials.SecretAccessKey == "") {
		return fmt.Errorf("both accessKeyId and secretAccessKey must be provided if using credentials")
	}
	return nil
}

func validateAzureConfig(c AzureConfig) error {
	if c.KeyID == "" {
		return fmt.Errorf("key ID (URL) is required")
	}
	if !strings.HasPrefix(c.VaultAddress, "https://") || !strings.Contains(c.VaultAddress, ".vault.azure.net") {
		return fmt.Errorf("vault address must be a valid Azure Key Vault URL (e.g., https://myvault.vault.azure.net)")
	}
	if c.Credentials == nil {
		log.Info().Msg("Azure credentials not configured, assuming managed identity")
		return nil
	}
	required := map[string]string{
		"tenantId":     c.Credentials.TenantID,
		"clientId":     c.Credentials.ClientID,
		"clientSecret": c.Credentials.ClientSecret,
	}
	for _, name := range []string{"tenantId", "clientId", "clientSecret"} {
		if required[name] == "" {
			return fmt.Errorf("%s is required in credentials and cannot be empty", name)
		}
	}
	return nil
}

type gcpResource struct {
	project   string
	location  string
	keyRing   string
	cryptoKey string
}

func parseGCPResource(name string) (gcpResource, error) {
	if name == "" {
		return gcpResource{}, fmt.Errorf("resource name is required")
	}
	parts := strings.Split(name, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return gcpResource{}, fmt.Errorf("invalid resource name format. Expected: projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}")
	}
	res := gcpResource{project: parts[1], location: parts[3], keyRing: parts[5], cryptoKey: parts[7]}
	if res.project == "" || res.location == "" || res.keyRing == "" || res.cryptoKey == "" {
		return gcpResource{}, fmt.Errorf("resource name components cannot be empty")
	}
	return res, nil
}

func validateGCPConfig(c GCPConfig) error {
	if _, err := parseGCPResource(c.ResourceName); err != nil {
		return err
	}
	if c.Credentials == nil {
		log.Info().Msg("GCP credentials not configured, using application default credentials")
		return nil
	}
	if c.Credentials.CredentialsJSON == "" {
		return fmt.Errorf("credentialsJson is required in credentials and cannot be empty")
	}
	return nil
}

func validateVaultConfig(c VaultConfig) error {
	if c.KeyID == "" {
		return fmt.Errorf("key ID (key name) is required")
	}
	if c.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}
	if c.Credentials == nil {
		log.Info().Msg("Vault token not configured, assuming VAULT_TOKEN")
		return nil
	}
	if c.Credentials.Token == "" {
		return fmt.Errorf("token is required in credentials and cannot be empty")
	}
	return nil
}

func createAWSWrapper(ctx context.Context, c AWSConfig) (wrapping.Wrapper, error) {
	configMap := map[string]string{
		"kms_key_id": c.KeyID,
		"region":     c.Region,
	}
	if creds := c.Credentials; creds != nil {
		setIfPresent(configMap, "access_key", creds.AccessKeyID)
		setIfPresent(configMap, "secret_key", creds.SecretAccessKey)
		setIfPresent(configMap, "session_token", creds.SessionToken)
		log.Debug().Bool("sessionToken", creds.SessionToken != "").Msg("Configuring AWS KMS credentials from config")
	}

	wrapper := awskms.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure AWS KMS wrapper: %w", err)
	}
	return wrapper, nil
}

func createAzureWrapper(ctx context.Context, c AzureConfig) (wrapping.Wrapper, error) {
	// https://{vault}.vault.azure.net/keys/{name}/{version}
	keyName, keyVersion := c.KeyID, ""
	if parts := strings.Split(c.KeyID, "/"); len(parts) >= 5 && parts[3] == "keys" {
		keyName = parts[4]
		if len(parts) >= 6 {
			keyVersion = parts[5]
		}
	} else {
		log.Warn().Str("keyId", c.KeyID).Msg("Azure key ID is not a key identifier URL, using it as the key name")
	}
	vaultName, _, _ := strings.Cut(strings.TrimPrefix(c.VaultAddress, "https://"), ".")

	configMap := map[string]string{
		"key_name":   keyName,
		"vault_name": vaultName,
		"vault_url":  c.VaultAddress,
	}
	setIfPresent(configMap, "key_version", keyVersion)
	if creds := c.Credentials; creds != nil {
		setIfPresent(configMap, "tenant_id", creds.TenantID)
		setIfPresent(configMap, "client_id", creds.ClientID)
		setIfPresent(configMap, "client_secret", creds.ClientSecret)
	}

	wrapper := azurekeyvault.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Azure Key Vault wrapper: %w", err)
	}
	return wrapper, nil
}

func createGCPWrapper(ctx context.Context, res gcpResource, creds *types.KMSCredentials) (wrapping.Wrapper, error) {
	configMap := map[string]string{
		"project":    res.project,
		"region":     res.location,
		"key_ring":   res.keyRing,
		"crypto_key": res.cryptoKey,
	}

	// the GCP wrapper only reads credentials from a file
	if creds != nil {
		path, cleanup, err := writeTempCredentials(creds.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		configMap["credentials"] = path
	}

	wrapper := gcpckms.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure GCP KMS wrapper: %w", err)
	}
	return wrapper, nil
}

func writeTempCredentials(content string) (string, func(), error) {
	f, err := os.CreateTemp("", "gcp-creds-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary credentials file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil {
			log.Error().Err(err).Str("filePath", f.Name()).Msg("Failed to remove temporary credentials file")
		}
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write credentials to temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		log.Error().Err(err).Str("filePath", f.Name()).Msg("Failed to close temporary credentials file")
	}
	return f.Name(), cleanup, nil
}

func createVaultWrapper(ctx context.Context, c VaultConfig) (wrapping.Wrapper, error) {
	configMap := map[string]string{
		"address":  c.VaultAddress,
		"key_name": c.KeyID,
	}
	setIfPresent(configMap, "mount_path", c.VaultMount)
	if c.Credentials != nil {
		configMap["token"] = c.Credentials.Token
	}

	wrapper := transit.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Vault Transit wrapper: %w", err)
	}
	return wrapper, nil
}

func createAeadWrapper(ctx context.Context, keyBase64, keyID string) (wrapping.Wrapper, error) {
	if keyBase64 == "" {
		return nil, fmt.Errorf("AEAD provider requires a base64 key")
	}
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode AEAD key: %w", err)
	}
	if len(key) != aeadKeySize {
		return nil, fmt.Errorf("decoded AEAD key must be %d bytes, got %d", aeadKeySize, len(key))
	}

	opts := []wrapping.Option{kmsaead.WithKey(key)}
	if keyID != "" {
		opts = append(opts, wrapping.WithKeyId(keyID))
	} else {
		log.Warn().Msg("AEAD key ID is empty")
	}

	wrapper := kmsaead.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, opts...); err != nil {
		return nil, fmt.Errorf("failed to configure AEAD wrapper: %w", err)
	}
	return wrapper, nil
}

func setIfPresent(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
