// Package symmetric provides the default field cipher: deterministic AES-256-GCM with a
// self-identifying ENC[...] envelope.
//
// The nonce is derived from an HMAC of the plaintext, so equal plaintexts always yield
// equal ciphertexts. Query filters can then be rewritten to match stored values.
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"golang.org/x/crypto/hkdf"
)

const (
	// encryptionPrefix is used to identify encrypted data
	encryptionPrefix = "ENC["
	encryptionSuffix = "]"

	// KeySize is the minimum accepted key length
	KeySize = 32

	nonceSize = 12

	infoEncKey = "document-field-encryption/aes-256-gcm"
	infoMacKey = "document-field-encryption/siv-nonce"
)

var (
	// ErrNotEncrypted is returned by Decrypt for input without the ENC[...] envelope
	ErrNotEncrypted = errors.New("value is not encrypted")

	// ErrMalformedCiphertext is returned for an envelope whose payload cannot be decoded
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrAuthentication is returned when the payload was not produced under this key
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// encryption implements the interfaces.Cipher interface
type encryption struct {
	encKey *memguard.Enclave
	macKey *memguard.Enclave
}

// NewEncryption creates a new deterministic AES-GCM cipher. Only the first 32 bytes of
// key are used.
func NewEncryption(key []byte) (interfaces.Cipher, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("encryption key must be at least %d bytes", KeySize)
	}

	// Always use exactly 32 bytes for AES-256
	key = key[:KeySize]

	if !validateKeyEntropy(key) {
		return nil, fmt.Errorf("key has insufficient entropy")
	}

	encKey, err := deriveKey(key, infoEncKey)
	if err != nil {
		return nil, err
	}
	macKey, err := deriveKey(key, infoMacKey)
	if err != nil {
		return nil, err
	}

	return &encryption{
		encKey: memguard.NewEnclave(encKey),
		macKey: memguard.NewEnclave(macKey),
	}, nil
}

// GenerateKey returns a fresh random key suitable for NewEncryption
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// validateKeyEntropy performs a basic entropy check on the key
func validateKeyEntropy(key []byte) bool {
	uniqueBytes := make(map[byte]bool)
	for _, b := range key {
		uniqueBytes[b] = true
	}

	// Require at least 16 unique bytes in the key
	return len(uniqueBytes) >= 16
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

// isEncrypted checks if a string carries the ENC[...] envelope
func isEncrypted(s string) bool {
	return strings.HasPrefix(s, encryptionPrefix) && strings.HasSuffix(s, encryptionSuffix)
}

func (e *encryption) gcm() (cipher.AEAD, error) {
	buf, err := e.encKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open key enclave: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

func (e *encryption) nonce(plaintext []byte) ([]byte, error) {
	buf, err := e.macKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open key enclave: %w", err)
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write(plaintext)
	return mac.Sum(nil)[:nonceSize], nil
}

// Encrypt encrypts data using AES-256-GCM
func (e *encryption) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}
	nonce, err := e.nonce([]byte(plaintext))
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptionPrefix + base64.URLEncoding.EncodeToString(sealed) + encryptionSuffix, nil
}

// Decrypt decrypts data using AES-256-GCM
func (e *encryption) Decrypt(ciphertext string) (string, error) {
	if !isEncrypted(ciphertext) {
		return "", ErrNotEncrypted
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(ciphertext, encryptionPrefix), encryptionSuffix)
	decoded, err := base64.URLEncoding.DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}
	if len(decoded) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrMalformedCiphertext)
	}

	nonce := decoded[:nonceSize]
	plaintext, err := gcm.Open(nil, nonce, decoded[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	// the nonce must be the one this key derives for the plaintext
	expected, err := e.nonce(plaintext)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(nonce, expected) {
		return "", ErrAuthentication
	}

	return string(plaintext), nil
}
