package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It backs the mock mode and the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]core.Wallet
	keys    map[string]core.APIKey // by hash
	keyIDs  map[string]string      // id -> hash
	users   map[string]core.User   // by lowercased email
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]core.Wallet),
		keys:    make(map[string]core.APIKey),
		keyIDs:  make(map[string]string),
		users:   make(map[string]core.User),
	}
}

var _ ports.Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetWallet(ctx context.Context, id string) (*core.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneWallet(w), nil
}

func (s *MemoryStore) InsertWallet(ctx context.Context, wallet *core.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[wallet.ID]; exists {
		return core.ErrConflict
	}
	s.wallets[wallet.ID] = *cloneWallet(*wallet)
	return nil
}

func (s *MemoryStore) TouchWallet(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return core.ErrNotFound
	}
	w.LastAccessed = &at
	s.wallets[id] = w
	return nil
}

func (s *MemoryStore) SetWalletActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[id]
	if !ok {
		return core.ErrNotFound
	}
	w.Active = active
	s.wallets[id] = w
	return nil
}

func (s *MemoryStore) GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[hash]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneAPIKey(k), nil
}

func (s *MemoryStore) InsertAPIKey(ctx context.Context, key *core.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.Hash]; exists {
		return core.ErrConflict
	}
	if _, exists := s.keyIDs[key.ID]; exists {
		return core.ErrConflict
	}
	s.keys[key.Hash] = *cloneAPIKey(*key)
	s.keyIDs[key.ID] = key.Hash
	return nil
}

func (s *MemoryStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.keyIDs[id]
	if !ok {
		return core.ErrNotFound
	}
	k := s.keys[hash]
	k.LastUsed = &at
	s.keys[hash] = k
	return nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) InsertUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.users[email]; exists {
		return core.ErrConflict
	}
	for _, u := range s.users {
		if u.Username == user.Username || u.ID == user.ID {
			return core.ErrConflict
		}
	}
	s.users[email] = *user
	return nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets = make(map[string]core.Wallet)
	s.keys = make(map[string]core.APIKey)
	s.keyIDs = make(map[string]string)
	s.users = make(map[string]core.User)
}

func cloneWallet(w core.Wallet) *core.Wallet {
	w.EncryptedKey = append([]byte(nil), w.EncryptedKey...)
	w.Nonce = append([]byte(nil), w.Nonce...)
	if w.LastAccessed != nil {
		t := *w.LastAccessed
		w.LastAccessed = &t
	}
	return &w
}

func cloneAPIKey(k core.APIKey) *core.APIKey {
	k.Permissions = append([]string(nil), k.Permissions...)
	if k.LastUsed != nil {
		t := *k.LastUsed
		k.LastUsed = &t
	}
	return &k
}
