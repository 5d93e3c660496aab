package ports

import (
	"context"
	"time"

	"github.com/layer-3/keyvault/core"
)

// Store is the credential store adapter consumed by the core.
// Lookups of absent records return core.ErrNotFound and uniqueness
// violations return core.ErrConflict.
type Store interface {
	// Wallet operations
	GetWallet(ctx context.Context, id string) (*core.Wallet, error)
	InsertWallet(ctx context.Context, wallet *core.Wallet) error
	TouchWallet(ctx context.Context, id string, at time.Time) error
	SetWalletActive(ctx context.Context, id string, active bool) error

	// API key operations
	GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error)
	InsertAPIKey(ctx context.Context, key *core.APIKey) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error

	// User operations
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	InsertUser(ctx context.Context, user *core.User) error
}
