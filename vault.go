// Package keyvault is a custodial key-management service: it keeps
// blockchain private keys encrypted at rest, authenticates callers with
// API keys or session tokens, and signs transactions without ever
// returning a plaintext key.
package keyvault

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/internal/metrics"
	"github.com/layer-3/keyvault/ports"
	"github.com/layer-3/keyvault/service"
)

// Options are the policy settings of a Vault
type Options struct {
	AdminSecret      string
	AuthorizedEmails []string
	APIKeyTTL        time.Duration
	APIKeyMaxTTL     time.Duration
	DefaultChain     string
	SignTimeout      time.Duration
}

// Deps are the adapters a Vault is assembled from
type Deps struct {
	Store     ports.Store
	Cipher    ports.Cipher
	Signers   ports.SignerRegistry
	Tokenizer ports.Tokenizer
	Clock     ports.Clock
	Books     ports.Bookkeeper
	Metrics   *metrics.Metrics
}

// Vault implements Client on top of the service layer
type Vault struct {
	keys     *service.APIKeyService
	sessions *service.SessionService
	signing  *service.SigningService
	users    *service.UserService
}

var _ Client = (*Vault)(nil)

// New assembles a Vault
func New(deps Deps, opts Options) (*Vault, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("keyvault: store is required")
	case deps.Cipher == nil:
		return nil, errors.New("keyvault: cipher is required")
	case deps.Signers == nil:
		return nil, errors.New("keyvault: signer registry is required")
	case deps.Tokenizer == nil:
		return nil, errors.New("keyvault: tokenizer is required")
	case deps.Clock == nil:
		return nil, errors.New("keyvault: clock is required")
	case deps.Books == nil:
		return nil, errors.New("keyvault: bookkeeper is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Vault{
		keys: service.NewAPIKeyService(deps.Store, deps.Clock, deps.Books, deps.Metrics, service.APIKeyConfig{
			DefaultTTL:       opts.APIKeyTTL,
			MaxTTL:           opts.APIKeyMaxTTL,
			AdminSecret:      opts.AdminSecret,
			AuthorizedEmails: opts.AuthorizedEmails,
		}),
		sessions: service.NewSessionService(deps.Tokenizer, deps.Clock, opts.AdminSecret),
		signing: service.NewSigningService(deps.Store, deps.Cipher, deps.Signers, deps.Clock, deps.Books, deps.Metrics, service.SigningConfig{
			DefaultChain: opts.DefaultChain,
			SignTimeout:  opts.SignTimeout,
		}),
		users: service.NewUserService(deps.Store, deps.Clock),
	}, nil
}

func (v *Vault) IssueSession(_ context.Context, adminSecret string) (string, time.Duration, error) {
	return v.sessions.IssueSession(adminSecret)
}

func (v *Vault) VerifySession(_ context.Context, token string) (*core.Principal, error) {
	return v.sessions.VerifySession(token)
}

func (v *Vault) Register(ctx context.Context, username, email string) (*core.User, error) {
	return v.users.Register(ctx, username, email)
}

func (v *Vault) IssueAPIKey(ctx context.Context, email, adminSecret string, duration time.Duration) (string, *core.APIKey, error) {
	return v.keys.IssueForEmail(ctx, email, adminSecret, duration)
}

func (v *Vault) VerifyAPIKey(ctx context.Context, apiKey string) (*core.Principal, error) {
	return v.keys.Verify(ctx, apiKey)
}

func (v *Vault) CreateWallet(ctx context.Context, params CreateWalletParams) (string, string, error) {
	return v.signing.CreateWallet(ctx, params)
}

func (v *Vault) SignOne(ctx context.Context, walletID, transaction string) (*core.SignedTransaction, error) {
	return v.signing.SignOne(ctx, walletID, transaction)
}

func (v *Vault) SignBatch(ctx context.Context, walletID string, transactions []string) ([]core.SignedTransaction, error) {
	return v.signing.SignBatch(ctx, walletID, transactions)
}

func (v *Vault) GetWallet(ctx context.Context, walletID string) (*core.WalletInfo, error) {
	return v.signing.GetWallet(ctx, walletID)
}

func (v *Vault) SetWalletActive(ctx context.Context, walletID string, active bool) error {
	return v.signing.SetWalletActive(ctx, walletID, active)
}
