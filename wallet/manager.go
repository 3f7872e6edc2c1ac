// Package wallet manages the connection to the user's wallet: discovery, account
// access, restore on startup and reaction to account or network changes.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/stindem/adapters/wallets"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"github.com/layer-3/stindem/state"
	"go.uber.org/zap"
)

// Chooser picks one wallet kind when several are installed. It may return core.ErrUserRejected.
type Chooser func(available []core.WalletKind) (core.WalletKind, error)

// Option configures a Manager
type Option func(*Manager)

// WithChooser sets the wallet selection surface used by interactive connects
func WithChooser(choose Chooser) Option {
	return func(m *Manager) { m.choose = choose }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager owns the active wallet provider. Connects are serialized.
type Manager struct {
	candidates []ports.WalletProvider
	state      *state.Container
	choose     Chooser
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	active      ports.WalletProvider
	unsubscribe func()
}

// NewManager creates a manager over the candidate providers, probed on each connect
func NewManager(candidates []ports.WalletProvider, st *state.Container, opts ...Option) *Manager {
	m := &Manager{
		candidates: candidates,
		state:      st,
		choose:     firstKind,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("wallet")
	return m
}

func firstKind(available []core.WalletKind) (core.WalletKind, error) {
	return available[0], nil
}

// Connect establishes or refreshes the wallet session. A silent connect never
// prompts and fails with core.ErrNotAuthorized when no prior authorization exists.
func (m *Manager) Connect(ctx context.Context, silent bool) (core.WalletSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, silent, true)
}

// Restore re-establishes a previous session without prompting. It is a best-effort
// probe: failures are logged and leave the state as it was.
func (m *Manager) Restore(ctx context.Context) {
	snap := m.state.Snapshot()
	if snap.WalletKind == "" || snap.LastConnectedAt.IsZero() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.connectLocked(ctx, true, false); err != nil {
		m.logger.Info("wallet session not restored", zap.String("kind", string(snap.WalletKind)), zap.Error(err))
	}
}

// Disconnect drops the local handle and clears the session. The wallet may still
// remember its authorization, so a later connect can succeed silently.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopEventsLocked()
	var err error
	if m.active != nil {
		err = m.active.Disconnect()
		m.active = nil
	}
	m.state.Disconnected()
	return err
}

// Close releases the providers at process exit. Unlike Disconnect it leaves the
// session state untouched, so the persisted marker survives for the next Restore.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopEventsLocked()
	m.active = nil
	var errs []error
	for _, p := range m.candidates {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
			continue
		}
		errs = append(errs, p.Disconnect())
	}
	return errors.Join(errs...)
}

func (m *Manager) connectLocked(ctx context.Context, silent, surface bool) (core.WalletSession, error) {
	snap := m.state.Snapshot()
	provider, err := m.selectProvider(ctx, silent, snap)
	if err != nil {
		m.failLocked(snap, err, silent, surface)
		return core.WalletSession{}, err
	}

	prev := m.state.BeginConnect()
	address, err := provider.Enable(ctx, silent)
	if err == nil {
		var chainID string
		chainID, err = provider.ChainID(ctx)
		if err == nil {
			return m.establishLocked(provider, address, chainID, snap), nil
		}
	}

	switch {
	case errors.Is(err, core.ErrUserRejected):
		m.state.ConnectRejected(prev, err)
	case silent && snap.Session == nil:
		m.state.ConnectRejected(prev, surfaced(err, surface))
	default:
		m.failLocked(snap, err, silent, surface)
	}
	return core.WalletSession{}, err
}

// failLocked drops a session that can no longer be refreshed
func (m *Manager) failLocked(snap state.Snapshot, err error, silent, surface bool) {
	if errors.Is(err, core.ErrUserRejected) {
		m.state.ConnectRejected(snap.Status, err)
		return
	}
	status := core.StatusError
	if silent && errors.Is(err, core.ErrNotAuthorized) {
		status = core.StatusDisconnected
	}
	if snap.Session == nil && !surface {
		m.state.ConnectRejected(snap.Status, nil)
		return
	}
	m.stopEventsLocked()
	m.state.ConnectFailed(surfaced(err, surface), status)
}

func surfaced(err error, surface bool) error {
	if surface {
		return err
	}
	return nil
}

func (m *Manager) establishLocked(provider ports.WalletProvider, address, chainID string, snap state.Snapshot) core.WalletSession {
	address = common.HexToAddress(address).Hex()
	if cur := snap.Session; cur != nil && cur.Kind == provider.Kind() &&
		state.SameAddress(cur.Address, address) && cur.ChainID == chainID && snap.Status == core.StatusConnected {
		m.state.ConnectSucceeded(*cur)
		return *cur
	}

	session := core.WalletSession{
		ID:          uuid.NewString(),
		Kind:        provider.Kind(),
		Address:     address,
		ChainID:     chainID,
		ConnectedAt: m.now().UTC(),
	}
	if m.active != nil && m.active != provider {
		m.stopEventsLocked()
		if err := m.active.Disconnect(); err != nil {
			m.logger.Debug("disconnect previous wallet", zap.Error(err))
		}
	}
	m.active = provider
	m.state.ConnectSucceeded(session)
	m.logger.Info("wallet connected",
		zap.String("kind", string(session.Kind)),
		zap.String("address", session.Address),
		zap.String("chain_id", session.ChainID))

	if m.unsubscribe == nil {
		m.subscribeLocked(provider)
	}
	return session
}

func (m *Manager) selectProvider(ctx context.Context, silent bool, snap state.Snapshot) (ports.WalletProvider, error) {
	if silent && m.active != nil {
		return m.active, nil
	}
	available, err := wallets.Discover(ctx, m.candidates, m.logger)
	if err != nil {
		return nil, err
	}
	if silent {
		for _, p := range available {
			if p.Kind() == snap.WalletKind {
				return p, nil
			}
		}
		return nil, core.ErrNotAuthorized
	}
	if len(available) == 1 {
		return available[0], nil
	}

	kinds := make([]core.WalletKind, 0, len(available))
	for _, p := range available {
		kinds = append(kinds, p.Kind())
	}
	chosen, err := m.choose(kinds)
	if err != nil {
		return nil, err
	}
	for _, p := range available {
		if p.Kind() == chosen {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s wallet not installed", core.ErrProviderUnavailable, chosen)
}

func (m *Manager) subscribeLocked(provider ports.WalletProvider) {
	unsubscribe, err := provider.Subscribe(context.Background(), m.handleEvent)
	if err != nil {
		m.logger.Warn("wallet change notifications unavailable", zap.Error(err))
		return
	}
	m.unsubscribe = unsubscribe
}

func (m *Manager) stopEventsLocked() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// handleEvent re-runs a silent connect so the session follows the wallet.
// Unrelated application state is left alone.
func (m *Manager) handleEvent(ev core.ProviderEvent) {
	m.logger.Info("wallet changed", zap.String("event", string(ev.Type)), zap.String("value", ev.Value))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return
	}
	if _, err := m.connectLocked(context.Background(), true, true); err != nil {
		m.logger.Warn("wallet refresh failed", zap.Error(err))
	}
}

// Session returns the established session or core.ErrNotConnected
func (m *Manager) Session() (core.WalletSession, error) {
	snap := m.state.Snapshot()
	if !snap.Connected() {
		return core.WalletSession{}, core.ErrNotConnected
	}
	return *snap.Session, nil
}

func (m *Manager) provider() (ports.WalletProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, core.ErrNotConnected
	}
	if _, err := m.Session(); err != nil {
		return nil, err
	}
	return m.active, nil
}

// Execute submits call through the connected wallet
func (m *Manager) Execute(ctx context.Context, call core.ChainCall) (string, error) {
	p, err := m.provider()
	if err != nil {
		return "", err
	}
	return p.Execute(ctx, call)
}

// SignTypedMessage asks the connected wallet to sign msg
func (m *Manager) SignTypedMessage(ctx context.Context, msg core.TypedMessage) (string, error) {
	p, err := m.provider()
	if err != nil {
		return "", err
	}
	return p.SignTypedMessage(ctx, msg)
}
