package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters for passphrase based master keys
const (
	ScryptN = 1 << 15
	ScryptR = 8
	ScryptP = 1

	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4
)

// ParseMasterKey decodes a hex encoded 32 byte master key
func ParseMasterKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return nil, fmt.Errorf("master key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// DeriveMasterKey stretches a passphrase with scrypt and then Argon2id.
// An empty salt falls back to sha256(passphrase).
func DeriveMasterKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase is empty")
	}
	if len(salt) == 0 {
		sum := sha256.Sum256(passphrase)
		salt = sum[:]
	}
	stretched, err := scrypt.Key(passphrase, salt, ScryptN, ScryptR, ScryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return argon2.IDKey(stretched, salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize), nil
}

// GenerateMasterKey returns a fresh random master key, hex encoded
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
