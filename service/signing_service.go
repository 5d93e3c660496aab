package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/internal/metrics"
	"github.com/layer-3/keyvault/internal/secret"
	"github.com/layer-3/keyvault/ports"
)

const (
	DefaultWalletLabel = "My Wallet"
	DefaultSignTimeout = 10 * time.Second
)

// SigningConfig carries the wallet defaults and the signing deadline
type SigningConfig struct {
	DefaultChain string
	SignTimeout  time.Duration
}

// CreateWalletParams is the input of CreateWallet. Empty fields take defaults:
// the key is generated and the address derived from it.
type CreateWalletParams struct {
	Label      string
	Blockchain string
	Address    string
	PrivateKey string
}

// SigningService creates custodied wallets and signs with them. Plaintext
// keys exist only inside a secret buffer for the duration of one call.
type SigningService struct {
	store   ports.Store
	cipher  ports.Cipher
	signers ports.SignerRegistry
	clock   ports.Clock
	books   ports.Bookkeeper
	metrics *metrics.Metrics

	defaultChain string
	signTimeout  time.Duration
}

// NewSigningService creates a new signing service
func NewSigningService(
	store ports.Store,
	cipher ports.Cipher,
	signers ports.SignerRegistry,
	clock ports.Clock,
	books ports.Bookkeeper,
	m *metrics.Metrics,
	cfg SigningConfig,
) *SigningService {
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = DefaultSignTimeout
	}
	return &SigningService{
		store:        store,
		cipher:       cipher,
		signers:      signers,
		clock:        clock,
		books:        books,
		metrics:      m,
		defaultChain: cfg.DefaultChain,
		signTimeout:  cfg.SignTimeout,
	}
}

// CreateWallet seals a private key and stores the wallet
func (s *SigningService) CreateWallet(ctx context.Context, p CreateWalletParams) (walletID, address string, err error) {
	label := strings.TrimSpace(p.Label)
	if label == "" {
		label = DefaultWalletLabel
	}
	chain := strings.TrimSpace(p.Blockchain)
	if chain == "" {
		chain = s.defaultChain
	}
	if chain == "" {
		return "", "", core.BadRequest("blockchain is required")
	}

	signer, err := s.signers.Lookup(chain)
	if err != nil {
		return "", "", core.BadRequest(fmt.Sprintf("unsupported blockchain %q", chain))
	}

	var raw []byte
	if p.PrivateKey == "" {
		raw, err = signer.GenerateKey()
		if err != nil {
			return "", "", core.Internal(err)
		}
	} else {
		raw, err = signer.ParseKey(p.PrivateKey)
		if err != nil {
			return "", "", core.BadRequest("invalid private key").WithDetail(err.Error())
		}
	}

	key, err := secret.FromBytes(raw)
	if err != nil {
		return "", "", core.Internal(err)
	}
	defer key.Close()

	plain, err := key.Bytes()
	if err != nil {
		return "", "", core.Internal(err)
	}

	derived, err := signer.Address(plain)
	if err != nil {
		return "", "", core.BadRequest("invalid private key").WithDetail(err.Error())
	}
	address = strings.TrimSpace(p.Address)
	if address == "" {
		address = derived
	} else if !sameAddress(address, derived) {
		return "", "", core.BadRequest("wallet_address does not match the private key")
	}

	sealed, nonce, err := s.cipher.Seal(plain)
	if err != nil {
		return "", "", core.Internal(fmt.Errorf("failed to seal private key: %w", err))
	}

	wallet := &core.Wallet{
		ID:           uuid.New().String(),
		Label:        label,
		Blockchain:   signer.Chain(),
		Address:      address,
		EncryptedKey: sealed,
		Nonce:        nonce,
		Active:       true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.InsertWallet(ctx, wallet); err != nil {
		return "", "", core.Internal(fmt.Errorf("failed to store wallet: %w", err))
	}

	s.metrics.WalletsCreated.WithLabelValues(wallet.Blockchain).Inc()
	log.Infof("created wallet %s on %s at %s", wallet.ID, wallet.Blockchain, wallet.Address)
	return wallet.ID, wallet.Address, nil
}

// GetWallet returns the public view of a wallet
func (s *SigningService) GetWallet(ctx context.Context, walletID string) (*core.WalletInfo, error) {
	if walletID == "" {
		return nil, core.BadRequest("wallet_id is required")
	}
	wallet, err := s.store.GetWallet(ctx, walletID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.NotFound("wallet not found")
	}
	if err != nil {
		return nil, core.Internal(fmt.Errorf("failed to load wallet: %w", err))
	}
	info := wallet.Info()
	return &info, nil
}

// SetWalletActive enables or disables signing with a wallet
func (s *SigningService) SetWalletActive(ctx context.Context, walletID string, active bool) error {
	if walletID == "" {
		return core.BadRequest("wallet_id is required")
	}
	err := s.store.SetWalletActive(ctx, walletID, active)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound("wallet not found")
	}
	if err != nil {
		return core.Internal(fmt.Errorf("failed to update wallet: %w", err))
	}
	log.Infof("wallet %s active=%t", walletID, active)
	return nil
}

// SignOne signs a single transaction
func (s *SigningService) SignOne(ctx context.Context, walletID, tx string) (*core.SignedTransaction, error) {
	if walletID == "" || tx == "" {
		return nil, core.BadRequest("missing wallet_id or transaction")
	}
	signed, err := s.sign(ctx, "single", walletID, []string{tx})
	if err != nil {
		return nil, err
	}
	return &signed[0], nil
}

// SignBatch signs every transaction with one decryption of the key. The
// output follows input order; the first failure aborts the batch.
func (s *SigningService) SignBatch(ctx context.Context, walletID string, txs []string) ([]core.SignedTransaction, error) {
	if walletID == "" {
		return nil, core.BadRequest("missing wallet_id or transactions array")
	}
	if len(txs) == 0 {
		return nil, core.BadRequest("transactions must not be empty")
	}
	for i, tx := range txs {
		if tx == "" {
			return nil, core.BadRequest(fmt.Sprintf("transaction %d is empty", i))
		}
	}
	return s.sign(ctx, "batch", walletID, txs)
}

type signResult struct {
	signed []core.SignedTransaction
	err    error
}

// sign decrypts the wallet key and runs the signer under the sign timeout.
// On timeout the caller gets ErrSignerTimeout at once, but the key is only
// wiped when the signer returns; a signer that ignores its context keeps
// the plaintext alive until then.
func (s *SigningService) sign(ctx context.Context, op, walletID string, txs []string) ([]core.SignedTransaction, error) {
	wallet, signer, key, err := s.openWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	signCtx, cancel := context.WithTimeout(ctx, s.signTimeout)
	defer cancel()

	// The goroutine owns the buffer so the key is wiped only once signing
	// has actually stopped, even after the caller has given up.
	done := make(chan signResult, 1)
	go func() {
		defer key.Close()
		signed, err := signAll(signCtx, signer, key, wallet.Address, txs)
		done <- signResult{signed: signed, err: err}
	}()

	var res signResult
	select {
	case res = <-done:
	case <-signCtx.Done():
		res = signResult{err: signCtx.Err()}
	}
	s.metrics.ObserveSince(op, start)

	if res.err != nil {
		s.metrics.Signatures.WithLabelValues(wallet.Blockchain, metrics.OutcomeError).Inc()
		if errors.Is(res.err, context.DeadlineExceeded) {
			log.Errorf("signing with wallet %s timed out after %s", wallet.ID, s.signTimeout)
			return nil, core.Internal(core.ErrSignerTimeout)
		}
		log.Errorf("signing with wallet %s failed: %v", wallet.ID, res.err)
		return nil, core.Internal(res.err)
	}

	s.metrics.Signatures.WithLabelValues(wallet.Blockchain, metrics.OutcomeOK).Add(float64(len(res.signed)))
	s.books.WalletAccessed(ctx, wallet.ID, s.clock.Now())
	return res.signed, nil
}

// openWallet loads an active wallet and decrypts its key into a secret buffer
func (s *SigningService) openWallet(ctx context.Context, walletID string) (*core.Wallet, ports.Signer, *secret.Buffer, error) {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, nil, core.NotFound("wallet not found or inactive")
	}
	if err != nil {
		return nil, nil, nil, core.Internal(fmt.Errorf("failed to load wallet: %w", err))
	}
	if !wallet.Active {
		return nil, nil, nil, core.NotFound("wallet not found or inactive")
	}

	signer, err := s.signers.Lookup(wallet.Blockchain)
	if err != nil {
		return nil, nil, nil, core.Internal(err).WithDetail("wallet " + wallet.ID)
	}

	plain, err := s.cipher.Open(wallet.EncryptedKey, wallet.Nonce)
	if err != nil {
		s.metrics.Decryptions.WithLabelValues(metrics.OutcomeError).Inc()
		log.Errorf("failed to decrypt key of wallet %s: %v", wallet.ID, err)
		return nil, nil, nil, core.Integrity(err).WithDetail("wallet " + wallet.ID)
	}
	s.metrics.Decryptions.WithLabelValues(metrics.OutcomeOK).Inc()

	key, err := secret.FromBytes(plain)
	if err != nil {
		return nil, nil, nil, core.Internal(err)
	}
	return wallet, signer, key, nil
}

func signAll(ctx context.Context, signer ports.Signer, key *secret.Buffer, address string, txs []string) ([]core.SignedTransaction, error) {
	signed := make([]core.SignedTransaction, 0, len(txs))
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := key.Bytes()
		if err != nil {
			return nil, err
		}
		sig, err := signer.Sign(ctx, raw, []byte(tx))
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		signed = append(signed, core.SignedTransaction{
			Transaction: tx,
			Signature:   sig,
			Signer:      address,
		})
	}
	return signed, nil
}

// sameAddress compares hex addresses case-insensitively so EIP-55
// checksummed and lowercase forms match. Other encodings are case-sensitive.
func sameAddress(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, "0x") && strings.HasPrefix(b, "0x") && strings.EqualFold(a, b)
}
