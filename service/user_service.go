package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

// RegisterRequest is the validated input of Register
type RegisterRequest struct {
	Username string `validate:"required,min=3,max=64"`
	Email    string `validate:"required,email,max=255"`
}

// UserService registers the users API keys are issued to
type UserService struct {
	store    ports.Store
	clock    ports.Clock
	validate *validator.Validate
}

// NewUserService creates a new user service
func NewUserService(store ports.Store, clock ports.Clock) *UserService {
	return &UserService{
		store:    store,
		clock:    clock,
		validate: validator.New(),
	}
}

// Register creates a user. Username and email must both be unused.
func (s *UserService) Register(ctx context.Context, username, email string) (*core.User, error) {
	req := RegisterRequest{
		Username: strings.TrimSpace(username),
		Email:    normalizeEmail(email),
	}
	if req.Username == "" || req.Email == "" {
		return nil, core.BadRequest("username and email are required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, core.BadRequest(describeValidation(err))
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, core.Conflict("email already exists")
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, core.Internal(fmt.Errorf("failed to look up user: %w", err))
	}

	// No login flow uses the credential; it only fills the column.
	placeholder := make([]byte, 32)
	if _, err := rand.Read(placeholder); err != nil {
		return nil, core.Internal(fmt.Errorf("failed to generate credential: %w", err))
	}

	user := &core.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: HashAPIKey(string(placeholder)),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, core.Conflict("username already exists")
		}
		return nil, core.Internal(fmt.Errorf("failed to store user: %w", err))
	}

	log.Infof("registered user %s (%s)", user.ID, user.Username)
	return user, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "email":
		return "invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}
