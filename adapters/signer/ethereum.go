package signer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/keyvault/core"
)

const ChainEthereum = "ethereum"

// Ethereum signs payloads with secp256k1 over the EIP-191 text hash
type Ethereum struct{}

func NewEthereum() *Ethereum { return &Ethereum{} }

func (Ethereum) Chain() string { return ChainEthereum }

func (Ethereum) GenerateKey() ([]byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return crypto.FromECDSA(key), nil
}

// ParseKey accepts a 32 byte hex key with or without 0x
func (Ethereum) ParseKey(encoded string) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
	}
	return crypto.FromECDSA(key), nil
}

func (Ethereum) Address(key []byte) (string, error) {
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

// Sign returns a 65 byte [R || S || V] signature, V in {27, 28}, hex encoded
func (Ethereum) Sign(ctx context.Context, key []byte, tx []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
	}
	sig, err := crypto.Sign(accounts.TextHash(tx), priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
