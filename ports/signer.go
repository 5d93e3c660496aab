package ports

import "context"

// Signer is the blockchain-specific signing capability. The core treats
// it as opaque: it only hands it raw key bytes and a transaction payload.
type Signer interface {
	// Chain is the blockchain identifier this signer serves
	Chain() string

	// GenerateKey returns fresh raw private key bytes
	GenerateKey() ([]byte, error)

	// ParseKey decodes caller supplied key material into raw key bytes
	ParseKey(encoded string) ([]byte, error)

	// Address derives the public address for a raw private key
	Address(key []byte) (string, error)

	// Sign signs one transaction payload and returns the encoded signature
	Sign(ctx context.Context, key []byte, tx []byte) (string, error)
}

// SignerRegistry resolves signers by blockchain identifier
type SignerRegistry interface {
	Lookup(chain string) (Signer, error)
}
