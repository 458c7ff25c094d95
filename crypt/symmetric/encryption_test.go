package symmetric

import (
	"errors"
	"strings"
	"testing"
)

var testKey = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

func TestNewEncryption(t *testing.T) {
	tests := []struct {
		name      string
		key       []byte
		expectErr bool
		errSubstr string
	}{
		{
			name: "Valid Key",
			key:  testKey,
		},
		{
			name:      "Short Key",
			key:       []byte("too-short"),
			expectErr: true,
			errSubstr: "at least 32 bytes",
		},
		{
			name:      "Low Entropy Key",
			key:       []byte(strings.Repeat("ab", 16)),
			expectErr: true,
			errSubstr: "insufficient entropy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncryption(tt.key)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected an error but got nil")
				} else if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errSubstr, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryption(testKey)
	if err != nil {
		t.Fatalf("NewEncryption() error = %v", err)
	}

	for _, plain := range []string{"a@b.com", "ENC[not-really]", "ünïcödé", strings.Repeat("x", 4096)} {
		ct, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		if !strings.HasPrefix(ct, encryptionPrefix) || !strings.HasSuffix(ct, encryptionSuffix) {
			t.Errorf("Encrypt(%q) = %q, missing envelope", plain, ct)
		}
		got, err := enc.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plain {
			t.Errorf("Decrypt() = %q, want %q", got, plain)
		}
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	enc, err := NewEncryption(testKey)
	if err != nil {
		t.Fatalf("NewEncryption() error = %v", err)
	}

	first, _ := enc.Encrypt("a@b.com")
	second, _ := enc.Encrypt("a@b.com")
	other, _ := enc.Encrypt("c@d.com")

	if first != second {
		t.Errorf("equal plaintexts produced different ciphertexts: %q vs %q", first, second)
	}
	if first == other {
		t.Errorf("different plaintexts produced the same ciphertext")
	}
}

func TestEncryptEmpty(t *testing.T) {
	enc, _ := NewEncryption(testKey)
	if _, err := enc.Encrypt(""); err == nil {
		t.Errorf("expected an error for empty plaintext")
	}
}

func TestDecryptRejects(t *testing.T) {
	enc, _ := NewEncryption(testKey)
	otherKey := []byte("zyxwvutsrqponmlkjihgfedcba9876543210")
	other, _ := NewEncryption(otherKey)
	foreign, _ := other.Encrypt("a@b.com")
	valid, _ := enc.Encrypt("a@b.com")
	tampered := valid[:len(valid)-3] + "AA]"

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "plaintext", input: "a@b.com", wantErr: ErrNotEncrypted},
		{name: "empty", input: "", wantErr: ErrNotEncrypted},
		{name: "prefix only", input: "ENC[abc", wantErr: ErrNotEncrypted},
		{name: "bad base64", input: "ENC[***]", wantErr: ErrMalformedCiphertext},
		{name: "too short", input: "ENC[AAAA]", wantErr: ErrMalformedCiphertext},
		{name: "other key", input: foreign, wantErr: ErrAuthentication},
		{name: "tampered", input: tampered, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.input)
			if err == nil {
				t.Fatalf("Decrypt(%q) expected error", tt.input)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("GenerateKey() len = %d, want %d", len(key), KeySize)
	}
	if _, err := NewEncryption(key); err != nil {
		t.Errorf("generated key rejected: %v", err)
	}
}
