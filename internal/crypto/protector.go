// Package crypto exposes the credential-encryption primitive as a pure
// Seal/Open interface. The spec treats the actual primitive as an external
// collaborator (§1); AEADProtector below is the default implementation used
// when no other Protector is injected, so the Credential Store is
// exercisable without a real KMS.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Protector seals and unseals small secrets (API keys). Implementations must
// never return the plaintext on a failed Open, and must never log ciphertext
// or plaintext.
type Protector interface {
	Seal(plaintext []byte) (sealed []byte, err error)
	Open(sealed []byte) (plaintext []byte, err error)
}

// AEADProtector seals with XChaCha20-Poly1305 under a fixed 32-byte key.
// The nonce is prepended to the ciphertext on Seal and read back on Open.
type AEADProtector struct {
	aead cipher.AEAD
}

// NewAEADProtector builds a Protector from a 32-byte key. Keys shorter or
// longer than that are rejected rather than silently truncated/padded.
func NewAEADProtector(key []byte) (*AEADProtector, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build aead: %w", err)
	}
	return &AEADProtector{aead: aead}, nil
}

func (p *AEADProtector) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	sealed := p.aead.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

func (p *AEADProtector) Open(sealed []byte) ([]byte, error) {
	nonceSize := p.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("crypto: sealed value too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("crypto: unseal failed")
	}
	return plaintext, nil
}
