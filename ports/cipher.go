package ports

// Cipher seals secret material under the process master key
type Cipher interface {
	// Seal encrypts plaintext with a fresh random nonce and returns
	// ciphertext||tag together with that nonce
	Seal(plaintext []byte) (sealed []byte, nonce []byte, err error)

	// Open authenticates and decrypts sealed. Any failure is core.ErrIntegrity.
	Open(sealed, nonce []byte) ([]byte, error)
}
