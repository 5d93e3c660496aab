package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/layer-3/keyvault/core"
)

const ChainSolana = "solana"

// Solana signs payloads with ed25519. The raw key is the 32 byte seed.
type Solana struct{}

func NewSolana() *Solana { return &Solana{} }

func (Solana) Chain() string { return ChainSolana }

func (Solana) GenerateKey() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 seed: %w", err)
	}
	return seed, nil
}

// ParseKey accepts a base58 keypair or seed, a hex seed, or the JSON byte
// array written by the solana CLI.
func (Solana) ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)

	var raw []byte
	switch {
	case strings.HasPrefix(encoded, "["):
		if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
		}
	case len(encoded) == 2*ed25519.SeedSize && isHex(encoded):
		raw, _ = hex.DecodeString(encoded)
	default:
		decoded, err := base58.Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return raw, nil
	case ed25519.PrivateKeySize:
		seed := append([]byte(nil), raw[:ed25519.SeedSize]...)
		if !ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: keypair public half does not match seed", core.ErrInvalidKey)
		}
		return seed, nil
	}
	return nil, fmt.Errorf("%w: ed25519 key must be 32 or 64 bytes, got %d", core.ErrInvalidKey, len(raw))
}

func (Solana) Address(key []byte) (string, error) {
	if len(key) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: ed25519 seed must be %d bytes", core.ErrInvalidKey, ed25519.SeedSize)
	}
	pub := ed25519.NewKeyFromSeed(key).Public().(ed25519.PublicKey)
	return base58.Encode(pub), nil
}

// Sign returns the base58 encoded ed25519 signature of tx
func (Solana) Sign(ctx context.Context, key []byte, tx []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(key) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: ed25519 seed must be %d bytes", core.ErrInvalidKey, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(key)
	defer wipe(priv)
	return base58.Encode(ed25519.Sign(priv, tx)), nil
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

func wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
