package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

// SessionTTL is the lifetime of every session token
const SessionTTL = time.Hour

// SessionService exchanges the admin secret for short-lived session tokens.
// Sessions are stateless: a token stays valid until it expires.
type SessionService struct {
	tokenizer   ports.Tokenizer
	clock       ports.Clock
	adminSecret string
}

// NewSessionService creates a new session service
func NewSessionService(tokenizer ports.Tokenizer, clock ports.Clock, adminSecret string) *SessionService {
	return &SessionService{
		tokenizer:   tokenizer,
		clock:       clock,
		adminSecret: adminSecret,
	}
}

// IssueSession returns a signed session token and its lifetime
func (s *SessionService) IssueSession(adminSecret string) (string, time.Duration, error) {
	if adminSecret == "" {
		return "", 0, core.BadRequest("missing admin_secret")
	}
	if !secretsEqual(adminSecret, s.adminSecret) {
		return "", 0, core.Forbidden("invalid admin secret")
	}

	now := s.clock.Now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Role:      core.RoleSessionUser,
		IssuedAt:  now,
		ExpiresAt: now.Add(SessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", 0, core.Internal(fmt.Errorf("failed to create session token: %w", err))
	}

	log.Infof("issued session %s, expires %s", session.ID, session.ExpiresAt.Format(time.RFC3339))
	return token, SessionTTL, nil
}

// VerifySession resolves a session token to its principal
func (s *SessionService) VerifySession(token string) (*core.Principal, error) {
	if token == "" {
		return nil, core.Unauthenticated("missing session token")
	}

	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil, core.Unauthenticated("session token expired")
		}
		log.Debugf("rejected session token: %v", err)
		return nil, core.Unauthenticated("invalid session token")
	}

	return &core.Principal{
		Role:        session.Role,
		Permissions: append([]string(nil), core.DefaultPermissions...),
	}, nil
}

// secretsEqual compares in constant time. An unset expected secret matches nothing.
func secretsEqual(given, expected string) bool {
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}
