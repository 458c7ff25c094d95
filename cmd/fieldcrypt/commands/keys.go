package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/config"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/store"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// RunGenKey prints a new field key. Without a KMS provider the key is printed in plain
// base64; otherwise a data key is generated, wrapped by the provider and printed in its
// wrapped form. With keyName set the wrapped key is also saved in the key collection.
func RunGenKey(ctx context.Context, cfg *config.Config, keyName string, out io.Writer) error {
	if cfg.KMSProvider == "" {
		if keyName != "" {
			return fmt.Errorf("storing a key requires a KMS provider")
		}
		key, err := symmetric.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "FIELD_ENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
		return err
	}

	provider, err := NewKMSProvider(ctx, cfg)
	if err != nil {
		return err
	}
	dk, err := kms.GenerateDataKey(ctx, provider)
	if err != nil {
		return err
	}
	info, err := kms.Info(dk)
	if err != nil {
		return err
	}

	if keyName != "" {
		client, db, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer disconnect(client)

		ks, err := store.NewKeyStore(db.Collection(cfg.KeyCollection), 0)
		if err != nil {
			return err
		}
		if err := ks.SaveDataKey(ctx, keyName, info); err != nil {
			return err
		}
		log.Info().Str("name", keyName).Str("collection", cfg.KeyCollection).Msg("Wrapped data key stored")
	}

	_, err = fmt.Fprintf(out, "FIELD_ENCRYPTION_WRAPPED_KEY=%s\n", info.Wrapped)
	return err
}

// RunEncryptCredentials prints the configured KMS credentials encrypted with
// KMS_CREDENTIALS_KEY, ready to be placed in the environment.
func RunEncryptCredentials(cfg *config.Config, out io.Writer) error {
	mgr, err := credentialsManager(cfg)
	if err != nil {
		return err
	}
	if mgr == nil {
		return fmt.Errorf("KMS_CREDENTIALS_KEY is required")
	}

	enc := cfg.EncryptionConfig()
	if enc.Credentials == nil {
		return fmt.Errorf("no KMS credentials configured")
	}
	if err := mgr.EncryptCredentials(enc); err != nil {
		return err
	}
	return writeJSON(out, enc.Credentials)
}

// RunShowConfig prints the encryption configuration with secrets masked
func RunShowConfig(cfg *config.Config, out io.Writer) error {
	enc := cfg.EncryptionConfig()
	view := struct {
		*types.EncryptionConfig
		FieldKeySet bool `json:"fieldKeySet"`
		AeadKeySet  bool `json:"aeadKeySet"`
	}{
		EncryptionConfig: enc,
		FieldKeySet:      enc.FieldKey != "",
		AeadKeySet:       enc.AeadKey != "",
	}
	if enc.Credentials != nil {
		enc.Credentials = credentials.Mask(enc.Credentials)
	}
	return writeJSON(out, view)
}
