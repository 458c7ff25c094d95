// Package crypt provides the crypt primitive and the toggle transform built on it.
//
// The primitive never decides what a caller wants. Toggle looks at the current state of
// a value and flips it: ciphertext is decrypted, anything else is encrypted. This only
// works because the injected cipher refuses to decrypt anything it did not produce, so
// plaintext and ciphertext never overlap.
package crypt

import (
	"fmt"
	"sync/atomic"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// State describes what a toggle did to a value
type State int

const (
	// Unchanged means the value was passed through (nil or empty)
	Unchanged State = iota
	// Encrypted means the value was plaintext and is now ciphertext
	Encrypted
	// Decrypted means the value was ciphertext and is now plaintext
	Decrypted
)

func (s State) String() string {
	switch s {
	case Encrypted:
		return "encrypt"
	case Decrypted:
		return "decrypt"
	}
	return "unchanged"
}

// Primitive wraps an injected cipher
type Primitive struct {
	cipher interfaces.Cipher

	encrypts uint64
	decrypts uint64
	toggles  uint64
	misses   uint64
}

// New creates a primitive over the given cipher
func New(c interfaces.Cipher) (*Primitive, error) {
	if c == nil {
		return nil, ErrNilCipher
	}
	return &Primitive{cipher: c}, nil
}

// Encrypt encrypts a scalar value into ciphertext
func (p *Primitive) Encrypt(v any) (string, error) {
	plain, err := encodePlaintext(v)
	if err != nil {
		return "", err
	}
	ct, err := p.cipher.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	atomic.AddUint64(&p.encrypts, 1)
	return ct, nil
}

// Decrypt decrypts v. It never fails loudly: ok is false when v is not ciphertext.
func (p *Primitive) Decrypt(v any) (any, bool) {
	s, isString := v.(string)
	if !isString || s == "" {
		return nil, false
	}
	plain, err := p.cipher.Decrypt(s)
	if err != nil {
		atomic.AddUint64(&p.misses, 1)
		return nil, false
	}
	out, err := decodePlaintext(plain)
	if err != nil {
		atomic.AddUint64(&p.misses, 1)
		return nil, false
	}
	atomic.AddUint64(&p.decrypts, 1)
	return out, true
}

// IsAlreadyEncrypted reports whether v decrypts under the injected cipher
func (p *Primitive) IsAlreadyEncrypted(v any) bool {
	_, ok := p.Decrypt(v)
	return ok
}

// Toggle flips v between plaintext and ciphertext based on its current state
func (p *Primitive) Toggle(v any) (any, error) {
	out, _, err := p.ToggleState(v)
	return out, err
}

// ToggleState is Toggle that also reports which way the value went
func (p *Primitive) ToggleState(v any) (any, State, error) {
	if v == nil {
		return nil, Unchanged, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return v, Unchanged, nil
	}
	atomic.AddUint64(&p.toggles, 1)
	if plain, ok := p.Decrypt(v); ok {
		return plain, Decrypted, nil
	}
	ct, err := p.Encrypt(v)
	if err != nil {
		return v, Unchanged, err
	}
	return ct, Encrypted, nil
}

// EnsureEncrypted encrypts v unless it is already ciphertext. Unlike Toggle it is
// driven by intent and is safe to apply any number of times.
func (p *Primitive) EnsureEncrypted(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return v, nil
	}
	if p.IsAlreadyEncrypted(v) {
		return v, nil
	}
	return p.Encrypt(v)
}

// Stats returns a snapshot of the primitive counters
func (p *Primitive) Stats() types.CryptStats {
	return types.CryptStats{
		TotalEncrypts:   atomic.LoadUint64(&p.encrypts),
		TotalDecrypts:   atomic.LoadUint64(&p.decrypts),
		TotalToggles:    atomic.LoadUint64(&p.toggles),
		DetectionMisses: atomic.LoadUint64(&p.misses),
	}
}
