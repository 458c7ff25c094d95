package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"google.golang.org/protobuf/proto"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// ErrNilProvider is returned when a data key operation has no provider
var ErrNilProvider = errors.New("KMS provider cannot be nil")

// GenerateDataKey creates a fresh field key and wraps it with the provider
func GenerateDataKey(ctx context.Context, p Provider) (*types.DataKey, error) {
	key, err := symmetric.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	return WrapDataKey(ctx, p, key)
}

// WrapDataKey wraps an existing field key
func WrapDataKey(ctx context.Context, p Provider, key []byte) (*types.DataKey, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	blob, err := p.GetWrapper().Encrypt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	return &types.DataKey{
		BlobInfo:  blob,
		Provider:  p.Type(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EncodeDataKey renders a wrapped key as the base64 protobuf string stored in configuration
func EncodeDataKey(dk *types.DataKey) (string, error) {
	if dk == nil || dk.BlobInfo == nil {
		return "", fmt.Errorf("data key has no blob")
	}
	raw, err := proto.Marshal(dk.BlobInfo)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeDataKey parses a string produced by EncodeDataKey
func DecodeDataKey(encoded string) (*wrapping.BlobInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data key: %w", err)
	}
	blob := &wrapping.BlobInfo{}
	if err := proto.Unmarshal(raw, blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data key: %w", err)
	}
	return blob, nil
}

// UnwrapDataKey returns the plaintext field key. Callers should wipe it after use.
func UnwrapDataKey(ctx context.Context, p Provider, encoded string) ([]byte, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	blob, err := DecodeDataKey(encoded)
	if err != nil {
		return nil, err
	}
	key, err := p.GetWrapper().Decrypt(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	return key, nil
}

// NewCipher unwraps the field key and builds the field cipher from it
func NewCipher(ctx context.Context, p Provider, encoded string) (interfaces.Cipher, error) {
	key, err := UnwrapDataKey(ctx, p, encoded)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	log.Debug().Str("provider", string(p.Type())).Msg("Unwrapped field data key")
	return symmetric.NewEncryption(key)
}

// Info summarises a wrapped key for display
func Info(dk *types.DataKey) (*types.DataKeyInfo, error) {
	encoded, err := EncodeDataKey(dk)
	if err != nil {
		return nil, err
	}
	return &types.DataKeyInfo{
		Provider:  dk.Provider,
		KeyID:     dk.GetKeyID(),
		Wrapped:   encoded,
		CreatedAt: dk.CreatedAt,
	}, nil
}
