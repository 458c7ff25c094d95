package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

func checkErr(t *testing.T, err error, expectErr bool, errSubstr string) {
	t.Helper()
	if expectErr {
		if err == nil {
			t.Errorf("expected an error but got nil")
		} else if errSubstr != "" && !strings.Contains(err.Error(), errSubstr) {
			t.Errorf("expected error containing %q, got %q", errSubstr, err.Error())
		}
	} else if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}
}

func TestValidateAWSConfig(t *testing.T) {
	const arn = "arn:aws:kms:us-east-1:123456789012:key/valid-key-id"
	tests := []struct {
		name      string
		config    AWSConfig
		expectErr bool
		errSubstr string
	}{
		{
			name: "valid with credentials",
			config: AWSConfig{KeyID: arn, Region: "us-east-1", Credentials: &types.KMSCredentials{
				AccessKeyID: "ACCESSKEY", SecretAccessKey: "SECRETKEY",
			}},
		},
		{name: "valid without credentials", config: AWSConfig{KeyID: arn, Region: "us-east-1"}},
		{name: "missing key id", config: AWSConfig{Region: "us-east-1"}, expectErr: true, errSubstr: "key ID (ARN) is required"},
		{name: "missing region", config: AWSConfig{KeyID: arn}, expectErr: true, errSubstr: "region is required"},
		{
			name:      "missing secret key",
			config:    AWSConfig{KeyID: arn, Region: "us-east-1", Credentials: &types.KMSCredentials{AccessKeyID: "ACCESSKEY"}},
			expectErr: true,
			errSubstr: "both accessKeyId and secretAccessKey must be provided",
		},
		{
			name:      "missing access key",
			config:    AWSConfig{KeyID: arn, Region: "us-east-1", Credentials: &types.KMSCredentials{SecretAccessKey: "SECRETKEY"}},
			expectErr: true,
			errSubstr: "both accessKeyId and secretAccessKey must be provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateAWSConfig(tt.config), tt.expectErr, tt.errSubstr)
		})
	}
}

func TestValidateAzureConfig(t *testing.T) {
	const keyID = "https://myvault.vault.azure.net/keys/mykey/version"
	const vault = "https://myvault.vault.azure.net"
	tests := []struct {
		name      string
		config    AzureConfig
		expectErr bool
		errSubstr string
	}{
		{
			name: "valid with credentials",
			config: AzureConfig{KeyID: keyID, VaultAddress: vault, Credentials: &types.KMSCredentials{
				TenantID: "TENANT", ClientID: "CLIENT", ClientSecret: "SECRET",
			}},
		},
		{name: "valid managed identity", config: AzureConfig{KeyID: keyID, VaultAddress: vault}},
		{name: "missing key id", config: AzureConfig{VaultAddress: vault}, expectErr: true, errSubstr: "key ID (URL) is required"},
		{name: "missing vault", config: AzureConfig{KeyID: keyID}, expectErr: true, errSubstr: "vault address must be a valid Azure Key Vault URL"},
		{name: "bad vault", config: AzureConfig{KeyID: keyID, VaultAddress: "myvault"}, expectErr: true, errSubstr: "vault address must be a valid Azure Key Vault URL"},
		{
			name: "missing tenant",
			config: AzureConfig{KeyID: keyID, VaultAddress: vault, Credentials: &types.KMSCredentials{
				ClientID: "CLIENT", ClientSecret: "SECRET",
			}},
			expectErr: true,
			errSubstr: "tenantId is required in credentials",
		},
		{
			name: "empty client secret",
			config: AzureConfig{KeyID: keyID, VaultAddress: vault, Credentials: &types.KMSCredentials{
				TenantID: "TENANT", ClientID: "CLIENT",
			}},
			expectErr: true,
			errSubstr: "clientSecret is required in credentials and cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateAzureConfig(tt.config), tt.expectErr, tt.errSubstr)
		})
	}
}

func TestValidateGCPConfig(t *testing.T) {
	const resource = "projects/p/locations/europe-west3/keyRings/r/cryptoKeys/k"
	tests := []struct {
		name      string
		config    GCPConfig
		expectErr bool
		errSubstr string
	}{
		{name: "valid adc", config: GCPConfig{ResourceName: resource}},
		{name: "valid with json", config: GCPConfig{ResourceName: resource, Credentials: &types.KMSCredentials{CredentialsJSON: `{"project_id":"p"}`}}},
		{name: "missing resource", config: GCPConfig{}, expectErr: true, errSubstr: "resource name is required"},
		{name: "bad format", config: GCPConfig{ResourceName: "projects/p/keys/k"}, expectErr: true, errSubstr: "invalid resource name format"},
		{name: "empty component", config: GCPConfig{ResourceName: "projects//locations/l/keyRings/r/cryptoKeys/k"}, expectErr: true, errSubstr: "cannot be empty"},
		{name: "empty json", config: GCPConfig{ResourceName: resource, Credentials: &types.KMSCredentials{}}, expectErr: true, errSubstr: "credentialsJson is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateGCPConfig(tt.config), tt.expectErr, tt.errSubstr)
		})
	}
}

func TestValidateVaultConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    VaultConfig
		expectErr bool
		errSubstr string
	}{
		{name: "valid env token", config: VaultConfig{KeyID: "fields", VaultAddress: "https://vault:8200"}},
		{name: "valid token", config: VaultConfig{KeyID: "fields", VaultAddress: "https://vault:8200", Credentials: &types.KMSCredentials{Token: "s.x"}}},
		{name: "missing key", config: VaultConfig{VaultAddress: "https://vault:8200"}, expectErr: true, errSubstr: "key ID (key name) is required"},
		{name: "missing address", config: VaultConfig{KeyID: "fields"}, expectErr: true, errSubstr: "vault address is required"},
		{name: "empty token", config: VaultConfig{KeyID: "fields", VaultAddress: "https://vault:8200", Credentials: &types.KMSCredentials{}}, expectErr: true, errSubstr: "token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, validateVaultConfig(tt.config), tt.expectErr, tt.errSubstr)
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		target    error
		errSubstr string
	}{
		{name: "unsupported", config: Config{Type: "unknown"}, target: ErrUnsupportedProvider},
		{name: "local", config: Config{Type: types.ProviderLocal}, target: ErrUnsupportedProvider},
		{name: "missing aws", config: Config{Type: types.ProviderAWS}, target: ErrMissingSection},
		{name: "missing azure", config: Config{Type: types.ProviderAzure}, target: ErrMissingSection},
		{name: "missing gcp", config: Config{Type: types.ProviderGCP}, target: ErrMissingSection},
		{name: "missing vault", config: Config{Type: types.ProviderVault}, target: ErrMissingSection},
		{name: "invalid aws", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{Region: "us-east-1"}}, errSubstr: "invalid AWS KMS configuration"},
		{name: "invalid gcp", config: Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: "invalid"}}, errSubstr: "invalid GCP KMS configuration"},
		{name: "aead without key", config: Config{Type: types.ProviderAead}, errSubstr: "requires a base64 key"},
		{name: "aead short key", config: Config{Type: types.ProviderAead, AeadKeyBase64: base64.StdEncoding.EncodeToString([]byte("short"))}, errSubstr: "must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			if err == nil {
				t.Fatalf("expected an error but got nil")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
			if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("expected error containing %q, got %q", tt.errSubstr, err.Error())
			}
		})
	}
}

func newAeadProvider(t *testing.T) Provider {
	t.Helper()
	key, err := symmetric.GenerateKey()
	require.NoError(t, err)
	p, err := NewProvider(context.Background(), Config{
		Type:          types.ProviderAead,
		AeadKeyBase64: base64.StdEncoding.EncodeToString(key),
		AeadKeyID:     "test-key",
	})
	require.NoError(t, err)
	return p
}

func TestAeadProviderHealth(t *testing.T) {
	ctx := context.Background()
	p := newAeadProvider(t)

	assert.Equal(t, types.ProviderAead, p.Type())
	require.NoError(t, p.HealthCheck(ctx))
	assert.NoError(t, p.GetLastHealthCheckError())
}

func TestDataKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newAeadProvider(t)

	dk, err := GenerateDataKey(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderAead, dk.Provider)
	assert.NotEmpty(t, dk.GetCiphertext())

	info, err := Info(dk)
	require.NoError(t, err)
	assert.Equal(t, "test-key", info.KeyID)

	key, err := UnwrapDataKey(ctx, p, info.Wrapped)
	require.NoError(t, err)
	assert.Len(t, key, symmetric.KeySize)

	first, err := NewCipher(ctx, p, info.Wrapped)
	require.NoError(t, err)
	second, err := NewCipher(ctx, p, info.Wrapped)
	require.NoError(t, err)

	ct, err := first.Encrypt("a@b.com")
	require.NoError(t, err)
	again, err := second.Encrypt("a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ct, again)

	pt, err := second.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", pt)
}

func TestDataKeyErrors(t *testing.T) {
	ctx := context.Background()

	_, err := WrapDataKey(ctx, nil, []byte("k"))
	assert.ErrorIs(t, err, ErrNilProvider)

	_, err = UnwrapDataKey(ctx, newAeadProvider(t), "not base64!")
	assert.Error(t, err)

	// a key wrapped under one provider cannot be unwrapped by another
	dk, err := GenerateDataKey(ctx, newAeadProvider(t))
	require.NoError(t, err)
	encoded, err := EncodeDataKey(dk)
	require.NoError(t, err)
	_, err = UnwrapDataKey(ctx, newAeadProvider(t), encoded)
	assert.Error(t, err)

	_, err = EncodeDataKey(&types.DataKey{})
	assert.Error(t, err)
}

func TestConfigFromEncryptionConfig(t *testing.T) {
	creds := &types.KMSCredentials{Token: "t"}
	tests := []struct {
		name  string
		input types.EncryptionConfig
		check func(t *testing.T, c Config)
		err   bool
	}{
		{
			name:  "aws",
			input: types.EncryptionConfig{Provider: types.ProviderAWS, KeyID: "arn", Region: "eu-central-1"},
			check: func(t *testing.T, c Config) {
				require.NotNil(t, c.AWS)
				assert.Equal(t, "eu-central-1", c.AWS.Region)
			},
		},
		{
			name:  "gcp",
			input: types.EncryptionConfig{Provider: types.ProviderGCP, KeyID: "projects/p/locations/l/keyRings/r/cryptoKeys/k"},
			check: func(t *testing.T, c Config) {
				require.NotNil(t, c.GCP)
				assert.Equal(t, "projects/p/locations/l/keyRings/r/cryptoKeys/k", c.GCP.ResourceName)
			},
		},
		{
			name:  "vault",
			input: types.EncryptionConfig{Provider: types.ProviderVault, KeyID: "k", VaultAddress: "https://v", VaultMount: "transit", Credentials: creds},
			check: func(t *testing.T, c Config) {
				require.NotNil(t, c.Vault)
				assert.Equal(t, "transit", c.Vault.VaultMount)
				assert.Same(t, creds, c.Vault.Credentials)
			},
		},
		{
			name:  "aead",
			input: types.EncryptionConfig{Provider: types.ProviderAead, KeyID: "dev", AeadKey: "a2V5"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "a2V5", c.AeadKeyBase64)
				assert.Equal(t, "dev", c.AeadKeyID)
			},
		},
		{name: "local", input: types.EncryptionConfig{Provider: types.ProviderLocal}, err: true},
		{name: "unknown", input: types.EncryptionConfig{Provider: "hsm"}, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ConfigFromEncryptionConfig(&tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input.Provider, c.Type)
			tt.check(t, c)
		})
	}
}
