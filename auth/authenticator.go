// Package auth runs the wallet challenge-response login against the backend.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/ports"
	"github.com/layer-3/stindem/state"
	"go.uber.org/zap"
)

// Wallet is the connected wallet as seen by the login flow
type Wallet interface {
	Session() (core.WalletSession, error)
	SignTypedMessage(ctx context.Context, msg core.TypedMessage) (string, error)
}

type cachedNonce struct {
	address string
	nonce   string
}

// Authenticator turns a connected wallet into an authenticated backend session
type Authenticator struct {
	api     ports.AuthAPI
	state   *state.Container
	appName string
	chainID string
	logger  *zap.Logger
	metrics metrics.Recorder

	mu     sync.Mutex
	cached *cachedNonce
}

// Option configures an Authenticator
type Option func(*Authenticator)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(a *Authenticator) { a.metrics = rec }
}

// New creates an Authenticator. appName and chainID form the typed message domain.
func New(api ports.AuthAPI, st *state.Container, appName, chainID string, opts ...Option) *Authenticator {
	a := &Authenticator{
		api:     api,
		state:   st,
		appName: appName,
		chainID: chainID,
		logger:  zap.NewNop(),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("auth")
	return a
}

// RequestNonce fetches a fresh nonce for address and caches it for the next Login
func (a *Authenticator) RequestNonce(ctx context.Context, address string) (string, error) {
	nonce, err := a.api.RequestNonce(ctx, address)
	if err != nil {
		return "", &core.NonceError{Address: address, Err: err}
	}
	a.mu.Lock()
	a.cached = &cachedNonce{address: address, nonce: nonce}
	a.mu.Unlock()
	return nonce, nil
}

// takeNonce removes the cached nonce for address. Whatever happens next, it is never used again.
func (a *Authenticator) takeNonce(address string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.cached
	a.cached = nil
	if c == nil || !state.SameAddress(c.address, address) {
		return "", false
	}
	return c.nonce, true
}

// Login signs a nonce challenge with the connected wallet and verifies it with the backend
func (a *Authenticator) Login(ctx context.Context, wallet Wallet) (*core.AuthenticatedUser, error) {
	session, err := wallet.Session()
	if err != nil {
		return nil, err
	}

	a.state.BeginAuth()
	user, err := a.login(ctx, wallet, session)
	if err != nil {
		a.state.AuthFailed(err)
		a.metrics.IncCounter(metrics.LoginFailed, map[string]string{"kind": string(session.Kind)})
		a.logger.Info("wallet login failed", zap.String("address", session.Address), zap.Error(err))
		return nil, err
	}
	a.state.AuthSucceeded(*user)
	a.metrics.IncCounter(metrics.LoginSucceeded, map[string]string{"kind": string(session.Kind)})
	a.logger.Info("wallet login succeeded", zap.String("address", session.Address), zap.String("user_id", user.ID))
	return user, nil
}

func (a *Authenticator) login(ctx context.Context, wallet Wallet, session core.WalletSession) (*core.AuthenticatedUser, error) {
	nonce, ok := a.takeNonce(session.Address)
	if !ok {
		if _, err := a.RequestNonce(ctx, session.Address); err != nil {
			return nil, err
		}
		nonce, _ = a.takeNonce(session.Address)
	}

	msg := eth.NonceMessage(a.appName, a.chainID, nonce)
	signature, err := wallet.SignTypedMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	return a.api.VerifySignature(ctx, core.SignatureProof{
		Address:    session.Address,
		Signature:  signature,
		Nonce:      nonce,
		WalletKind: session.Kind,
	})
}

// LoginEmail authenticates without a wallet
func (a *Authenticator) LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, error) {
	a.state.BeginAuth()
	user, err := a.api.LoginEmail(ctx, email, password)
	if err != nil {
		a.state.AuthFailed(err)
		return nil, err
	}
	a.state.AuthSucceeded(*user)
	return user, nil
}

// Me re-reads the identity from the backend. An expired session signs the user out locally.
func (a *Authenticator) Me(ctx context.Context) (*core.AuthenticatedUser, error) {
	user, err := a.api.Me(ctx)
	if errors.Is(err, core.ErrNotAuthenticated) {
		a.state.LoggedOut()
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	a.state.AuthSucceeded(*user)
	return user, nil
}

// Logout ends the backend session. Local state is cleared even when the backend call fails.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.cached = nil
	a.mu.Unlock()

	err := a.api.Logout(ctx)
	a.state.LoggedOut()
	if err != nil && !errors.Is(err, core.ErrNotAuthenticated) {
		return err
	}
	return nil
}
