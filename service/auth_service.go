package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

const minPasswordLen = 8

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	users     ports.UserRepository
	logger    *zap.Logger

	nonceTTL   time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithAuthLogger sets the service logger
func WithAuthLogger(l *zap.Logger) AuthOption {
	return func(s *AuthService) { s.logger = l }
}

// WithTTLs overrides nonce, access and refresh lifetimes. Zero keeps the default.
func WithTTLs(nonce, access, refresh time.Duration) AuthOption {
	return func(s *AuthService) {
		if nonce > 0 {
			s.nonceTTL = nonce
		}
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	users ports.UserRepository,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		tokenizer:  tokenizer,
		store:      store,
		eventPub:   eventPub,
		users:      users,
		logger:     zap.NewNop(),
		nonceTTL:   5 * time.Minute,
		accessTTL:  5 * time.Minute,
		refreshTTL: 5 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL is the lifetime of issued access tokens
func (s *AuthService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the lifetime of issued refresh tokens
func (s *AuthService) RefreshTTL() time.Duration { return s.refreshTTL }

// RequestNonce issues a single-use nonce bound to address
func (s *AuthService) RequestNonce(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}

	nonceBytes, err := randBytes(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.now()
	challenge := &core.NonceChallenge{
		ID:        uuid.New().String(),
		Address:   common.HexToAddress(address).Hex(),
		Nonce:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}
	if err := s.store.PutNonce(ctx, challenge, s.nonceTTL); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	s.logger.Debug("nonce issued", zap.String("address", challenge.Address), zap.String("challenge_id", challenge.ID))
	return challenge.Nonce, nil
}

// VerifySignature checks a signed nonce and opens a session.
// The nonce is consumed before anything else, so it is burned whether or not verification succeeds.
func (s *AuthService) VerifySignature(ctx context.Context, proof core.SignatureProof) (*core.AuthenticatedUser, *core.Tokens, error) {
	challenge, err := s.store.ConsumeNonce(ctx, proof.Nonce)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tokenizer.VerifySignature(challenge, proof.Signature, proof.Address); err != nil {
		s.logger.Info("signature rejected",
			zap.String("address", proof.Address),
			zap.String("challenge_id", challenge.ID),
			zap.Error(err))
		return nil, nil, err
	}

	user, err := s.users.FindOrCreateByAddress(ctx, challenge.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("wallet login", zap.String("user_id", user.ID), zap.String("wallet", string(proof.WalletKind)))
	return user, tokens, nil
}

// RegisterEmail creates an email user with an argon2id password hash
func (s *AuthService) RegisterEmail(ctx context.Context, email, password, name string) (*core.AuthenticatedUser, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") || len(password) < minPasswordLen {
		return nil, core.ErrInvalidInput
	}

	salt, err := randBytes(saltLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return s.users.CreateEmailUser(ctx, ports.Credentials{
		User:     core.AuthenticatedUser{Email: email, Name: name},
		PwdHash:  hashPassword([]byte(password), salt),
		SaltAuth: salt,
	})
}

// LoginEmail authenticates an email user
func (s *AuthService) LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, *core.Tokens, error) {
	creds, err := s.users.GetCredentials(ctx, strings.TrimSpace(email))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !verifyPassword([]byte(password), creds.SaltAuth, creds.PwdHash) {
		return nil, nil, core.ErrInvalidCredentials
	}

	user := creds.User
	tokens, err := s.issue(&user)
	if err != nil {
		return nil, nil, err
	}
	return &user, tokens, nil
}

func (s *AuthService) issue(user *core.AuthenticatedUser) (*core.Tokens, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		Address:       user.Address,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return &core.Tokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (*core.Tokens, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.RefreshExpiry) {
		return nil, core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	// the old refresh token stays revoked for the rest of its lifetime
	if err := s.store.InvalidateToken(ctx, session.RefreshID, session.RefreshExpiry.Sub(s.now())); err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	return s.issue(&core.AuthenticatedUser{ID: session.UserID, Address: session.Address})
}

// Logout invalidates a refresh token, expired or not
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return err
	}

	remaining := session.RefreshExpiry.Sub(s.now())
	if remaining <= 0 {
		remaining = time.Hour
	}
	if err := s.store.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// the store is authoritative; the event only notifies other instances
	if err := s.eventPub.PublishLogout(ctx, session.UserID, session.RefreshID); err != nil {
		s.logger.Warn("failed to publish logout event", zap.String("user_id", session.UserID), zap.Error(err))
	}
	return nil
}

// ValidateAccessToken parses an access token and checks it against revocations
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}
	return session, nil
}

// Me returns the user behind a validated session
func (s *AuthService) Me(ctx context.Context, session *core.Session) (*core.AuthenticatedUser, error) {
	return s.users.GetByID(ctx, session.UserID)
}
