package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/keyvault/adapters/signer"
	"github.com/layer-3/keyvault/core"
)

// well known hardhat account #0
const (
	ethKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	ethAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestSigningService_EndToEnd(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	_, err := env.users.Register(ctx, "ops", testEmail)
	require.NoError(t, err)
	apiKey, _, err := env.keys.IssueForEmail(ctx, testEmail, testAdminSecret, 0)
	require.NoError(t, err)

	principal, err := env.keys.Verify(ctx, apiKey)
	require.NoError(t, err)
	require.True(t, principal.Can(core.PermWalletCreate))

	walletID, address, err := env.signing.CreateWallet(ctx, CreateWalletParams{
		Label:      "E2E Test Wallet",
		Blockchain: "solana",
	})
	require.NoError(t, err)
	require.NotEmpty(t, walletID)
	require.NotEmpty(t, address)

	stored, err := env.store.GetWallet(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, "E2E Test Wallet", stored.Label)
	assert.Equal(t, signer.ChainSolana, stored.Blockchain)
	assert.Len(t, stored.Nonce, 16)
	assert.NotEmpty(t, stored.EncryptedKey)

	signed, err := env.signing.SignOne(ctx, walletID, "tx1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", signed.Transaction)
	assert.Equal(t, address, signed.Signer)

	pub, err := base58.Decode(address)
	require.NoError(t, err)
	sig, err := base58.Decode(signed.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte("tx1"), sig))

	touches := env.books.walletTouches()
	require.Len(t, touches, 1)
	assert.Equal(t, walletID, touches[0].ID)

	info, err := env.signing.GetWallet(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, "E2E Test Wallet", info.Label)
	assert.Equal(t, address, info.Address)
	assert.True(t, info.Active)
}

func TestSigningService_BatchDecryptsOnce(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)

	signed, err := env.signing.SignBatch(ctx, walletID, []string{"tx1", "tx2", "tx3"})
	require.NoError(t, err)
	require.Len(t, signed, 3)
	for i, want := range []string{"tx1", "tx2", "tx3"} {
		assert.Equal(t, want, signed[i].Transaction)
		assert.Equal(t, "sig:"+want, signed[i].Signature)
	}

	assert.Equal(t, int32(1), env.cipher.opens.Load())
	assert.Len(t, env.books.walletTouches(), 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.Signatures.WithLabelValues("stub", "ok")))
}

func TestSigningService_BatchAbortsOnFirstFailure(t *testing.T) {
	var calls []string
	stub := stubSigner{sign: func(_ context.Context, _, tx []byte) (string, error) {
		calls = append(calls, string(tx))
		if string(tx) == "tx2" {
			return "", errors.New("node rejected payload")
		}
		return "sig:" + string(tx), nil
	}}
	env := newTestEnv(t, stub)
	ctx := context.Background()

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)

	signed, err := env.signing.SignBatch(ctx, walletID, []string{"tx1", "tx2", "tx3"})
	requireKind(t, core.KindInternal, err)
	assert.Nil(t, signed)
	assert.Equal(t, []string{"tx1", "tx2"}, calls)
	assert.Empty(t, env.books.walletTouches())
}

func TestSigningService_InputValidation(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	_, err := env.signing.SignOne(ctx, "", "tx1")
	requireKind(t, core.KindBadRequest, err)
	_, err = env.signing.SignOne(ctx, "w", "")
	requireKind(t, core.KindBadRequest, err)
	_, err = env.signing.SignBatch(ctx, "w", nil)
	requireKind(t, core.KindBadRequest, err)
	_, err = env.signing.SignBatch(ctx, "w", []string{"tx1", ""})
	requireKind(t, core.KindBadRequest, err)
	_, err = env.signing.GetWallet(ctx, "")
	requireKind(t, core.KindBadRequest, err)

	assert.Equal(t, int32(0), env.cipher.opens.Load())
}

func TestSigningService_MissingOrInactiveWallet(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	_, err := env.signing.SignOne(ctx, "no-such-wallet", "tx1")
	requireKind(t, core.KindNotFound, err)
	_, err = env.signing.GetWallet(ctx, "no-such-wallet")
	requireKind(t, core.KindNotFound, err)

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)
	require.NoError(t, env.signing.SetWalletActive(ctx, walletID, false))

	_, err = env.signing.SignBatch(ctx, walletID, []string{"tx1"})
	requireKind(t, core.KindNotFound, err)
	assert.Equal(t, int32(0), env.cipher.opens.Load())

	info, err := env.signing.GetWallet(ctx, walletID)
	require.NoError(t, err)
	assert.False(t, info.Active)

	require.NoError(t, env.signing.SetWalletActive(ctx, walletID, true))
	_, err = env.signing.SignOne(ctx, walletID, "tx1")
	require.NoError(t, err)

	err = env.signing.SetWalletActive(ctx, "no-such-wallet", false)
	requireKind(t, core.KindNotFound, err)
}

func TestSigningService_TamperedKeyFailsClosed(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)

	wallet, err := env.store.GetWallet(ctx, walletID)
	require.NoError(t, err)
	wallet.ID = "tampered"
	wallet.EncryptedKey[0] ^= 0x01
	require.NoError(t, env.store.InsertWallet(ctx, wallet))

	_, err = env.signing.SignOne(ctx, "tampered", "tx1")
	requireKind(t, core.KindIntegrity, err)
	assert.Equal(t, "internal server error", core.PublicMessage(err))
	assert.ErrorIs(t, err, core.ErrIntegrity)
}

func TestSigningService_Timeout(t *testing.T) {
	release := make(chan struct{})
	stub := stubSigner{sign: func(ctx context.Context, _, _ []byte) (string, error) {
		select {
		case <-release:
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	env := newTestEnv(t, stub, withSignTimeout(50*time.Millisecond))
	ctx := context.Background()
	defer close(release)

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)

	start := time.Now()
	_, err = env.signing.SignBatch(ctx, walletID, []string{"tx1", "tx2"})
	requireKind(t, core.KindInternal, err)
	assert.ErrorIs(t, err, core.ErrSignerTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, env.books.walletTouches())
}

func TestSigningService_CallerCancelled(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	walletID, _, err := env.signing.CreateWallet(context.Background(), CreateWalletParams{Blockchain: "stub"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.signing.SignOne(ctx, walletID, "tx1")
	requireKind(t, core.KindInternal, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSigningService_CreateWallet(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		walletID, address, err := env.signing.CreateWallet(ctx, CreateWalletParams{})
		require.NoError(t, err)
		w, err := env.store.GetWallet(ctx, walletID)
		require.NoError(t, err)
		assert.Equal(t, DefaultWalletLabel, w.Label)
		assert.Equal(t, signer.ChainSolana, w.Blockchain)
		assert.Equal(t, address, w.Address)
		assert.True(t, w.Active)
		assert.Equal(t, testEpoch, w.CreatedAt)
	})

	t.Run("imported key derives address", func(t *testing.T) {
		_, address, err := env.signing.CreateWallet(ctx, CreateWalletParams{
			Blockchain: "eth",
			PrivateKey: ethKey,
		})
		require.NoError(t, err)
		assert.Equal(t, ethAddress, address)
	})

	t.Run("lowercase address matches checksum", func(t *testing.T) {
		_, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{
			Blockchain: "ethereum",
			Address:    "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
			PrivateKey: ethKey,
		})
		require.NoError(t, err)
	})

	t.Run("address mismatch", func(t *testing.T) {
		_, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{
			Blockchain: "ethereum",
			Address:    "0x0000000000000000000000000000000000000001",
			PrivateKey: ethKey,
		})
		requireKind(t, core.KindBadRequest, err)
	})

	t.Run("unknown chain", func(t *testing.T) {
		_, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{Blockchain: "ZigChain"})
		requireKind(t, core.KindBadRequest, err)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{
			Blockchain: "ethereum",
			PrivateKey: "0x1234",
		})
		requireKind(t, core.KindBadRequest, err)
	})

	t.Run("no default chain", func(t *testing.T) {
		svc := NewSigningService(env.store, env.cipher, env.registry, env.clock, env.books, env.metrics, SigningConfig{})
		_, _, err := svc.CreateWallet(ctx, CreateWalletParams{})
		requireKind(t, core.KindBadRequest, err)
	})
}

func TestSigningService_SealedKeyIsNotPlaintext(t *testing.T) {
	env := newTestEnv(t, stubSigner{})
	ctx := context.Background()

	walletID, _, err := env.signing.CreateWallet(ctx, CreateWalletParams{
		Blockchain: "stub",
		PrivateKey: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	})
	require.NoError(t, err)

	w, err := env.store.GetWallet(ctx, walletID)
	require.NoError(t, err)
	assert.NotContains(t, string(w.EncryptedKey), "\x00\x11\x22\x33\x44\x55\x66\x77")
	assert.Len(t, w.EncryptedKey, 32+16)
}
