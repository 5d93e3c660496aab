package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

const (
	// KeySize is the master key length (AES-256)
	KeySize = 32
	// NonceSize is the per-record nonce length (128 bits)
	NonceSize = 16
	// TagSize is the GCM authentication tag appended to every ciphertext
	TagSize = 16
)

// AEAD seals secrets with AES-256-GCM under a fixed master key
type AEAD struct {
	gcm stdcipher.AEAD
	rnd io.Reader
}

// New builds the envelope cipher. The master key is copied into the
// AES key schedule; callers may wipe their copy afterwards.
func New(masterKey []byte) (ports.Cipher, error) {
	return newAEAD(masterKey, rand.Reader)
}

func newAEAD(masterKey []byte, rnd io.Reader) (*AEAD, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	gcm, err := stdcipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &AEAD{gcm: gcm, rnd: rnd}, nil
}

// Seal encrypts plaintext under a nonce drawn fresh for this call
func (a *AEAD) Seal(plaintext []byte) ([]byte, []byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(a.rnd, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open fails closed: a short blob, a wrong nonce length or a tag
// mismatch all yield core.ErrIntegrity and no plaintext.
func (a *AEAD) Open(sealed, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce is %d bytes: %w", len(nonce), core.ErrIntegrity)
	}
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("sealed blob is %d bytes: %w", len(sealed), core.ErrIntegrity)
	}
	plaintext, err := a.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, core.ErrIntegrity
	}
	return plaintext, nil
}
