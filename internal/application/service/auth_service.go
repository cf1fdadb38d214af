package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{3,64}$`)

// AuthService manages local accounts. The username is the owner identity of
// every record the account creates.
type AuthService struct {
	users      port.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     Logger
}

// NewAuthService creates a new AuthService; bcryptCost <= 0 uses bcrypt.DefaultCost
func NewAuthService(users port.UserRepository, tokens *auth.TokenManager, bcryptCost int, logger Logger) *AuthService {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates an account
func (s *AuthService) Register(ctx context.Context, username, password string) (*entity.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-64 letters, digits or _.@-", entity.ErrInvalidField)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", entity.ErrInvalidField, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &entity.User{Username: username, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", "username", username)
	return user, nil
}

// Login verifies the password and issues a bearer token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, entity.ErrNotFound) {
		return "", time.Time{}, entity.ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Login rejected", "username", username)
		return "", time.Time{}, entity.ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("User logged in", "username", username)
	return token, expires, nil
}

// Authenticate returns the owner identity carried by a bearer token
func (s *AuthService) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Owner(), nil
}
