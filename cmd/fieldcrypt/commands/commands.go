// Package commands implements the fieldcrypt CLI commands.
package commands

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/config"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/field"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// LoadModel reads a JSON model definition and compiles it
func LoadModel(path string) (*schema.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()

	var def types.ModelDefinition
	if err := json.NewDecoder(f).Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	return schema.Compile(def)
}

// OpenInput returns stdin for "-" or an empty path
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// NewPrimitive builds the crypt primitive from the local key or the KMS envelope
func NewPrimitive(ctx context.Context, cfg *config.Config) (*crypt.Primitive, error) {
	enc := cfg.EncryptionConfig()
	var provider kms.Provider
	if enc.Provider != types.ProviderLocal {
		var err error
		provider, err = NewKMSProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	return field.NewFactory(enc, nil, nil, provider).Primitive(ctx)
}

// NewKMSProvider creates the configured KMS provider. Credential values encrypted with
// KMS_CREDENTIALS_KEY are decrypted first.
func NewKMSProvider(ctx context.Context, cfg *config.Config) (kms.Provider, error) {
	mgr, err := credentialsManager(cfg)
	if err != nil {
		return nil, err
	}
	kc, err := credentials.ToKMSConfig(mgr, cfg.EncryptionConfig())
	if err != nil {
		return nil, err
	}
	return kms.NewProvider(ctx, kc)
}

func credentialsManager(cfg *config.Config) (interfaces.CredentialsManager, error) {
	if cfg.KMSCredentialsKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(cfg.KMSCredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials key: %w", err)
	}
	return credentials.NewManager(key)
}

// auditLogger returns the stdout audit logger when audit logging is enabled
func auditLogger(cfg *config.Config) interfaces.AuditLogger {
	if !cfg.AuditLogEnabled {
		return nil
	}
	return audit.NewStdoutAuditLogger()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func readJSONObject(in io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(in)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("input must be a JSON object")
	}
	log.Debug().Int("keys", len(doc)).Msg("Read input document")
	return doc, nil
}
