package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/keyvault/adapters/cipher"
	"github.com/layer-3/keyvault/adapters/clock"
	"github.com/layer-3/keyvault/adapters/signer"
	"github.com/layer-3/keyvault/adapters/store"
	"github.com/layer-3/keyvault/internal/metrics"
	"github.com/layer-3/keyvault/ports"
)

const (
	testAdminSecret = "admin-secret"
	testEmail       = "ops@example.com"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingCipher counts decryptions
type countingCipher struct {
	ports.Cipher
	opens atomic.Int32
}

func (c *countingCipher) Open(sealed, nonce []byte) ([]byte, error) {
	c.opens.Add(1)
	return c.Cipher.Open(sealed, nonce)
}

type touch struct {
	ID string
	At time.Time
}

// recordingBooks captures bookkeeping calls
type recordingBooks struct {
	mu      sync.Mutex
	wallets []touch
	keys    []touch
}

func (b *recordingBooks) WalletAccessed(_ context.Context, id string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wallets = append(b.wallets, touch{id, at})
}

func (b *recordingBooks) APIKeyUsed(_ context.Context, id string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, touch{id, at})
}

func (b *recordingBooks) walletTouches() []touch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]touch(nil), b.wallets...)
}

func (b *recordingBooks) keyTouches() []touch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]touch(nil), b.keys...)
}

// stubSigner is a controllable signer registered as chain "stub"
type stubSigner struct {
	sign func(ctx context.Context, key, tx []byte) (string, error)
}

func (stubSigner) Chain() string { return "stub" }

func (stubSigner) GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	return key, err
}

func (stubSigner) ParseKey(encoded string) ([]byte, error) { return hex.DecodeString(encoded) }

func (stubSigner) Address(key []byte) (string, error) { return "stub-address", nil }

func (s stubSigner) Sign(ctx context.Context, key, tx []byte) (string, error) {
	if s.sign != nil {
		return s.sign(ctx, key, tx)
	}
	return "sig:" + string(tx), nil
}

type testEnv struct {
	store    *store.MemoryStore
	clock    *clock.Fake
	books    *recordingBooks
	cipher   *countingCipher
	metrics  *metrics.Metrics
	registry *signer.Registry

	keys     *APIKeyService
	sessions *SessionService
	signing  *SigningService
	users    *UserService
}

type envOption func(*SigningConfig, *APIKeyConfig)

func withSignTimeout(d time.Duration) envOption {
	return func(sc *SigningConfig, _ *APIKeyConfig) { sc.SignTimeout = d }
}

func withMaxTTL(d time.Duration) envOption {
	return func(_ *SigningConfig, kc *APIKeyConfig) { kc.MaxTTL = d }
}

func newTestEnv(t *testing.T, stub stubSigner, opts ...envOption) *testEnv {
	t.Helper()

	masterKey := make([]byte, cipher.KeySize)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)
	aead, err := cipher.New(masterKey)
	require.NoError(t, err)

	env := &testEnv{
		store:    store.NewMemoryStore(),
		clock:    clock.NewFake(testEpoch),
		books:    &recordingBooks{},
		cipher:   &countingCipher{Cipher: aead},
		metrics:  metrics.New(),
		registry: signer.NewRegistry(signer.NewSolana(), signer.NewEthereum(), stub),
	}

	env.registry.Alias("eth", signer.ChainEthereum)

	signCfg := SigningConfig{DefaultChain: signer.ChainSolana}
	keyCfg := APIKeyConfig{
		AdminSecret:      testAdminSecret,
		AuthorizedEmails: []string{testEmail},
	}
	for _, opt := range opts {
		opt(&signCfg, &keyCfg)
	}

	tk := newTestTokenizer(t, env.clock)
	env.keys = NewAPIKeyService(env.store, env.clock, env.books, env.metrics, keyCfg)
	env.sessions = NewSessionService(tk, env.clock, testAdminSecret)
	env.signing = NewSigningService(env.store, env.cipher, env.registry, env.clock, env.books, env.metrics, signCfg)
	env.users = NewUserService(env.store, env.clock)
	return env
}
