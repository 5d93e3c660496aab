package keyvault

import (
	"context"
	"time"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/service"
)

// CreateWalletParams is the input of Client.CreateWallet
type CreateWalletParams = service.CreateWalletParams

// Client represents the public interface of the custody service
type Client interface {
	// IssueSession exchanges the admin secret for a session token
	IssueSession(ctx context.Context, adminSecret string) (token string, ttl time.Duration, err error)

	// VerifySession resolves a session token to its principal
	VerifySession(ctx context.Context, token string) (*core.Principal, error)

	// Register creates a user that API keys can be issued to
	Register(ctx context.Context, username, email string) (*core.User, error)

	// IssueAPIKey mints an API key for an allow-listed, registered email.
	// The plaintext key is returned once.
	IssueAPIKey(ctx context.Context, email, adminSecret string, duration time.Duration) (plaintext string, key *core.APIKey, err error)

	// VerifyAPIKey resolves a presented API key to its principal
	VerifyAPIKey(ctx context.Context, apiKey string) (*core.Principal, error)

	// CreateWallet seals a private key, generating one when none is given
	CreateWallet(ctx context.Context, params CreateWalletParams) (walletID, address string, err error)

	// SignOne signs one transaction with a wallet
	SignOne(ctx context.Context, walletID, transaction string) (*core.SignedTransaction, error)

	// SignBatch signs transactions in order with a single decryption
	SignBatch(ctx context.Context, walletID string, transactions []string) ([]core.SignedTransaction, error)

	// GetWallet returns wallet metadata without key material
	GetWallet(ctx context.Context, walletID string) (*core.WalletInfo, error)

	// SetWalletActive enables or disables a wallet
	SetWalletActive(ctx context.Context, walletID string, active bool) error
}
