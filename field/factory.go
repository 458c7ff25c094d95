package field

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Factory builds field services from an encryption configuration. The cipher is
// resolved once: from the local key, or by unwrapping the data key through KMS.
type Factory struct {
	encryptionConfig *types.EncryptionConfig
	auditLogger      interfaces.AuditLogger
	recorder         interfaces.HookRecorder
	kmsProvider      kms.Provider

	once sync.Once
	prim *crypt.Primitive
	err  error
}

// NewFactory creates a new field service factory. kmsProvider may be nil when the
// configuration uses a local key.
func NewFactory(config *types.EncryptionConfig, logger interfaces.AuditLogger, recorder interfaces.HookRecorder, kmsProvider kms.Provider) *Factory {
	return &Factory{
		encryptionConfig: config,
		auditLogger:      logger,
		recorder:         recorder,
		kmsProvider:      kmsProvider,
	}
}

// Primitive returns the shared crypt primitive, resolving the cipher on first use
func (f *Factory) Primitive(ctx context.Context) (*crypt.Primitive, error) {
	if f.encryptionConfig == nil || !f.encryptionConfig.Enabled {
		return nil, ErrEncryptionDisabled
	}
	f.once.Do(func() {
		var c interfaces.Cipher
		c, f.err = f.resolveCipher(ctx)
		if f.err != nil {
			return
		}
		f.prim, f.err = crypt.New(c)
	})
	return f.prim, f.err
}

// CreateFieldService creates a field service over the shared primitive
func (f *Factory) CreateFieldService(ctx context.Context) (*Service, error) {
	prim, err := f.Primitive(ctx)
	if err != nil {
		return nil, err
	}
	opts := []Option{}
	if f.auditLogger != nil {
		opts = append(opts, WithAuditLogger(f.auditLogger))
	}
	if f.recorder != nil {
		opts = append(opts, WithRecorder(f.recorder))
	}
	return NewService(prim, opts...)
}

func (f *Factory) resolveCipher(ctx context.Context) (interfaces.Cipher, error) {
	cfg := f.encryptionConfig
	if cfg.Provider == types.ProviderLocal {
		key, err := base64.StdEncoding.DecodeString(cfg.FieldKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field key: %w", err)
		}
		log.Debug().Msg("Using local field encryption key")
		return symmetric.NewEncryption(key)
	}

	if f.kmsProvider == nil {
		return nil, fmt.Errorf("KMS provider %s configured but not initialized", cfg.Provider)
	}
	if cfg.WrappedDataKey == "" {
		return nil, fmt.Errorf("wrapped data key is required for provider %s", cfg.Provider)
	}
	log.Debug().Str("provider", string(cfg.Provider)).Msg("Unwrapping field encryption key")
	return kms.NewCipher(ctx, f.kmsProvider, cfg.WrappedDataKey)
}
