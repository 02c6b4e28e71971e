package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/security"
)

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// TokenIssuer signs and validates bearer tokens of a given kind.
type TokenIssuer interface {
	Issue(subject, kind string, ttl time.Duration) (string, error)
	Validate(token, kind string) (string, error)
}

// AuthService handles registration, login and token lifecycle.
type AuthService struct {
	userRepo   repositories.UserRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, hasher PasswordHasher, tokens TokenIssuer, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		hasher:     hasher,
		tokens:     tokens,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// Register creates a user and returns its id. Email uniqueness is checked
// before username uniqueness.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return "", models.ErrDuplicateEmail
	} else if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return "", models.ErrDuplicateUsername
	} else if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	user := &models.User{Username: username, Email: email, PasswordHash: digest}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user.ID, nil
}

// Authenticate checks the password of the user registered under email.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", models.ErrBadCredential
	}
	return user.ID, nil
}

func (s *AuthService) IssueAccessToken(userID string) (string, error) {
	return s.tokens.Issue(userID, security.TokenAccess, s.accessTTL)
}

func (s *AuthService) IssueRefreshToken(userID string) (string, error) {
	return s.tokens.Issue(userID, security.TokenRefresh, s.refreshTTL)
}

// Login authenticates and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.TokenPair, error) {
	userID, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issuePair(userID)
}

// Refresh exchanges a refresh token for a new token pair. Access tokens are
// rejected.
func (s *AuthService) Refresh(refreshToken string) (*models.TokenPair, error) {
	userID, err := s.tokens.Validate(refreshToken, security.TokenRefresh)
	if err != nil {
		return nil, err
	}
	return s.issuePair(userID)
}

// ValidateAccessToken returns the user id carried by an access token.
func (s *AuthService) ValidateAccessToken(token string) (string, error) {
	return s.tokens.Validate(token, security.TokenAccess)
}

func (s *AuthService) issuePair(userID string) (*models.TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
