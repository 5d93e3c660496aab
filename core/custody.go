package core

import "time"

const (
	// APIKeyPrefix marks live API keys. It is stored for display and is not secret.
	APIKeyPrefix = "sk_live_"

	// RoleSessionUser is the only role carried by session tokens
	RoleSessionUser = "session_user"

	PermWalletCreate = "wallet:create"
	PermWalletRead   = "wallet:read"
	PermWalletSign   = "wallet:sign"
	PermMonitoring   = "monitoring:read"
)

// DefaultPermissions are granted to newly issued API keys and to session tokens
var DefaultPermissions = []string{PermWalletCreate, PermWalletRead, PermWalletSign, PermMonitoring}

// Wallet is a custodied key. EncryptedKey is ciphertext||tag, never plaintext.
type Wallet struct {
	ID           string
	Label        string
	Blockchain   string
	Address      string
	EncryptedKey []byte
	Nonce        []byte
	Active       bool
	LastAccessed *time.Time
	CreatedAt    time.Time
}

// APIKey is the stored record of an issued key. Only the hash of the
// plaintext key is kept.
type APIKey struct {
	ID          string
	UserID      string
	Name        string
	Hash        string // hex sha256 of the plaintext key
	Prefix      string
	Permissions []string
	ExpiresAt   time.Time
	Active      bool
	LastUsed    *time.Time
	CreatedAt   time.Time
}

// User owns API keys
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // placeholder credential, no login flow uses it
	CreatedAt    time.Time
}

// Principal is the authenticated caller of a protected operation
type Principal struct {
	UserID      string   // empty for session principals
	KeyID       string   // API key record ID, empty for session principals
	Role        string   // RoleSessionUser for session principals
	Permissions []string
}

// Can reports whether the principal holds perm
func (p Principal) Can(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// Session is the decoded content of a session token
type Session struct {
	ID        string    // JWT ID
	Role      string    // always RoleSessionUser
	IssuedAt  time.Time // when the token was signed
	ExpiresAt time.Time // IssuedAt + session TTL
}

// SignedTransaction is the result of signing one opaque transaction payload
type SignedTransaction struct {
	Transaction string `json:"transaction"`
	Signature   string `json:"signature"`
	Signer      string `json:"signer"`
}

// WalletInfo is the public view of a wallet; it never carries key material
type WalletInfo struct {
	ID           string     `json:"wallet_id"`
	Label        string     `json:"label"`
	Blockchain   string     `json:"blockchain"`
	Address      string     `json:"wallet_address"`
	Active       bool       `json:"is_active"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Info strips key material from the wallet
func (w *Wallet) Info() WalletInfo {
	return WalletInfo{
		ID:           w.ID,
		Label:        w.Label,
		Blockchain:   w.Blockchain,
		Address:      w.Address,
		Active:       w.Active,
		LastAccessed: w.LastAccessed,
		CreatedAt:    w.CreatedAt,
	}
}
