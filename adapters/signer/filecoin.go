package signer

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/filecoin-project/go-address"
	fcrypto "github.com/filecoin-project/go-crypto"
	"golang.org/x/crypto/blake2b"

	"github.com/layer-3/keyvault/core"
)

const ChainFilecoin = "filecoin"

// keyInfo is the lotus wallet export format (hex encoded JSON)
type keyInfo struct {
	Type       string
	PrivateKey []byte
}

// Filecoin signs payloads with secp256k1 over a blake2b-256 digest
type Filecoin struct{}

func NewFilecoin() *Filecoin { return &Filecoin{} }

func (Filecoin) Chain() string { return ChainFilecoin }

func (Filecoin) GenerateKey() ([]byte, error) {
	key, err := fcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return key, nil
}

// ParseKey accepts a raw 32 byte hex key, a base64 key, or a lotus
// `wallet export` string holding a secp256k1 key.
func (Filecoin) ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), "0x")

	if raw, err := hex.DecodeString(encoded); err == nil {
		if len(raw) == 32 {
			return raw, nil
		}
		var ki keyInfo
		if err := json.Unmarshal(raw, &ki); err == nil && ki.PrivateKey != nil {
			if ki.Type != "secp256k1" {
				return nil, fmt.Errorf("%w: unsupported filecoin key type %q", core.ErrInvalidKey, ki.Type)
			}
			return ki.PrivateKey, nil
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: expected a 32 byte secp256k1 key", core.ErrInvalidKey)
}

func (Filecoin) Address(key []byte) (string, error) {
	pub, err := secpPublicKey(key)
	if err != nil {
		return "", err
	}
	addr, err := address.NewSecp256k1Address(pub)
	if err != nil {
		return "", fmt.Errorf("failed to create secp256k1 address: %w", err)
	}
	return addr.String(), nil
}

// Sign returns the hex encoded 65 byte recoverable signature
func (Filecoin) Sign(ctx context.Context, key []byte, tx []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(key) != 32 {
		return "", fmt.Errorf("%w: secp256k1 key must be 32 bytes", core.ErrInvalidKey)
	}
	digest := blake2b.Sum256(tx)
	sig, err := fcrypto.Sign(key, digest[:])
	if err != nil {
		log.Errorf("filecoin signing failed: %v", err)
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

func secpPublicKey(key []byte) (pub []byte, err error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: secp256k1 key must be 32 bytes", core.ErrInvalidKey)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: invalid secp256k1 private key", core.ErrInvalidKey)
		}
	}()
	pub = fcrypto.PublicKey(key)
	if len(pub) == 0 {
		return nil, fmt.Errorf("%w: invalid secp256k1 private key", core.ErrInvalidKey)
	}
	return pub, nil
}
