package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/keyvault/adapters/store"
	"github.com/layer-3/keyvault/core"
)

func TestWalletDisable_NeedsOnlyDatabaseSettings(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "keyvault.db")
	ctx := context.Background()

	st, err := store.OpenGormStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.InsertWallet(ctx, &core.Wallet{
		ID:           "wallet-1",
		Label:        "ops",
		Blockchain:   "ethereum",
		Address:      "0xabc",
		EncryptedKey: []byte{1},
		Nonce:        []byte{2},
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}))
	require.NoError(t, st.Close())

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", dsn)

	args := []string{"keyvault", "--env-file", filepath.Join(dir, "missing.env"), "wallet", "disable", "wallet-1"}
	require.NoError(t, newApp().Run(args))

	st, err = store.OpenGormStore(dsn)
	require.NoError(t, err)
	defer st.Close()
	w, err := st.GetWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.False(t, w.Active)

	args = []string{"keyvault", "--env-file", filepath.Join(dir, "missing.env"), "wallet", "enable", "unknown"}
	assert.ErrorIs(t, newApp().Run(args), core.ErrNotFound)
}
