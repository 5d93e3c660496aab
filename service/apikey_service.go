package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/internal/metrics"
	"github.com/layer-3/keyvault/ports"
)

var log = logging.Logger("keyvault/service")

const (
	// DefaultAPIKeyTTL applies when neither the caller nor the config sets a duration
	DefaultAPIKeyTTL = time.Hour

	apiKeyRandomBytes = 24
	defaultKeyName    = "Default Key"
)

// APIKeyConfig carries the issuance policy and the admin credentials
type APIKeyConfig struct {
	DefaultTTL       time.Duration
	MaxTTL           time.Duration // zero means uncapped
	AdminSecret      string
	AuthorizedEmails []string
}

// APIKeyService issues and verifies API keys
type APIKeyService struct {
	store   ports.Store
	clock   ports.Clock
	books   ports.Bookkeeper
	metrics *metrics.Metrics

	defaultTTL  time.Duration
	maxTTL      time.Duration
	adminSecret string
	authorized  map[string]struct{}
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(
	store ports.Store,
	clock ports.Clock,
	books ports.Bookkeeper,
	m *metrics.Metrics,
	cfg APIKeyConfig,
) *APIKeyService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultAPIKeyTTL
	}
	authorized := make(map[string]struct{}, len(cfg.AuthorizedEmails))
	for _, email := range cfg.AuthorizedEmails {
		if email = normalizeEmail(email); email != "" {
			authorized[email] = struct{}{}
		}
	}
	return &APIKeyService{
		store:       store,
		clock:       clock,
		books:       books,
		metrics:     m,
		defaultTTL:  cfg.DefaultTTL,
		maxTTL:      cfg.MaxTTL,
		adminSecret: cfg.AdminSecret,
		authorized:  authorized,
	}
}

// Issue mints a key for userID. The plaintext is returned once and never stored.
func (s *APIKeyService) Issue(ctx context.Context, userID string, ttl time.Duration) (string, *core.APIKey, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	random := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(random); err != nil {
		return "", nil, core.Internal(fmt.Errorf("failed to generate api key: %w", err))
	}
	plaintext := core.APIKeyPrefix + hex.EncodeToString(random)

	now := s.clock.Now()
	record := &core.APIKey{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        defaultKeyName,
		Hash:        HashAPIKey(plaintext),
		Prefix:      core.APIKeyPrefix,
		Permissions: append([]string(nil), core.DefaultPermissions...),
		ExpiresAt:   now.Add(ttl),
		Active:      true,
		CreatedAt:   now,
	}

	if err := s.store.InsertAPIKey(ctx, record); err != nil {
		return "", nil, core.Internal(fmt.Errorf("failed to store api key: %w", err))
	}

	log.Infof("issued api key %s for user %s, expires %s", record.ID, userID, record.ExpiresAt.Format(time.RFC3339))
	return plaintext, record, nil
}

// IssueForEmail is the admin-gated issuance path. Checks run in a fixed
// order so the failure kind does not reveal which users exist.
func (s *APIKeyService) IssueForEmail(ctx context.Context, email, adminSecret string, ttl time.Duration) (string, *core.APIKey, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", nil, core.BadRequest("email is required")
	}
	if adminSecret == "" {
		return "", nil, core.BadRequest("admin_secret is required")
	}
	if !secretsEqual(adminSecret, s.adminSecret) {
		return "", nil, core.Forbidden("invalid admin secret")
	}
	if _, ok := s.authorized[email]; !ok {
		return "", nil, core.Forbidden("this email is not allowed to generate keys")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil, core.NotFound("user not found, register first")
	}
	if err != nil {
		return "", nil, core.Internal(fmt.Errorf("failed to look up user: %w", err))
	}

	return s.Issue(ctx, user.ID, ttl)
}

// Verify resolves a presented key to its principal
func (s *APIKeyService) Verify(ctx context.Context, candidate string) (*core.Principal, error) {
	principal, err := s.verify(ctx, candidate)
	result := "ok"
	if err != nil {
		result = core.KindOf(err).String()
	}
	s.metrics.APIKeyChecks.WithLabelValues(result).Inc()
	return principal, err
}

func (s *APIKeyService) verify(ctx context.Context, candidate string) (*core.Principal, error) {
	if candidate == "" {
		return nil, core.Unauthenticated("missing API key")
	}
	if !strings.HasPrefix(candidate, core.APIKeyPrefix) {
		return nil, core.Forbidden("invalid API key")
	}

	record, err := s.store.GetAPIKeyByHash(ctx, HashAPIKey(candidate))
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.Forbidden("invalid API key")
	}
	if err != nil {
		return nil, core.Internal(fmt.Errorf("failed to look up api key: %w", err))
	}

	if !record.Active {
		return nil, core.Forbidden("API key is inactive")
	}
	now := s.clock.Now()
	if !now.Before(record.ExpiresAt) {
		return nil, core.Forbidden("API key expired")
	}

	s.books.APIKeyUsed(ctx, record.ID, now)

	return &core.Principal{
		UserID:      record.UserID,
		KeyID:       record.ID,
		Permissions: record.Permissions,
	}, nil
}

// HashAPIKey returns the lookup hash stored for a plaintext key
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
