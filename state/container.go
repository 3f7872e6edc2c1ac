// Package state holds the client session state shared by the wallet, auth and action components.
package state

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// Flags are the transient loading and error markers of one component
type Flags struct {
	Busy bool
	Err  error
}

// Snapshot is a consistent copy of the container. Mutating it has no effect on the container.
type Snapshot struct {
	Status          core.ConnectionStatus
	Session         *core.WalletSession
	WalletKind      core.WalletKind
	ChainID         string
	LastConnectedAt time.Time
	User            *core.AuthenticatedUser
	Authenticated   bool

	Wallet      Flags
	Auth        Flags
	Actions     map[core.SettlementKind]Flags
	Settlements map[core.SettlementKind][]core.SettlementRecord
}

// Connected reports whether a wallet session is established
func (s Snapshot) Connected() bool {
	return s.Status == core.StatusConnected && s.Session != nil
}

// Container is the single owner of mutable session state. Every field is written
// through a named mutator under one lock, so interleaved completions cannot tear state.
type Container struct {
	mu    sync.Mutex
	snap  Snapshot
	store ports.StateStore
	log   *zap.Logger

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New creates an empty container. store may be nil for an ephemeral session.
func New(store ports.StateStore, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		snap: Snapshot{
			Status:      core.StatusDisconnected,
			Actions:     make(map[core.SettlementKind]Flags),
			Settlements: make(map[core.SettlementKind][]core.SettlementRecord),
		},
		store: store,
		log:   logger,
		subs:  make(map[int]chan Snapshot),
	}
}

// Load reads the persisted subset into the container and returns it
func (c *Container) Load(ctx context.Context) (core.PersistedState, error) {
	if c.store == nil {
		return core.PersistedState{}, nil
	}
	ps, err := c.store.LoadState(ctx)
	if err != nil {
		return core.PersistedState{}, err
	}

	c.update(false, func(s *Snapshot) {
		s.WalletKind = ps.WalletKind
		s.ChainID = ps.ChainID
		s.LastConnectedAt = ps.LastConnectedAt
		s.User = copyUser(ps.User)
		s.Authenticated = ps.Authenticated && ps.User != nil
	})
	return ps, nil
}

// Snapshot returns a copy of the current state
func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Subscribe delivers a snapshot after every change. Slow readers only see the latest one.
func (c *Container) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// BeginConnect marks a connect attempt and returns the status to restore on rejection.
// An established session keeps its Connected status while a refresh runs.
func (c *Container) BeginConnect() core.ConnectionStatus {
	var prev core.ConnectionStatus
	c.update(false, func(s *Snapshot) {
		prev = s.Status
		s.Wallet = Flags{Busy: true}
		if s.Session == nil {
			s.Status = core.StatusConnecting
		}
	})
	return prev
}

// ConnectSucceeded installs a fresh session. When the account differs from the
// authenticated user's wallet the user is signed out locally.
func (c *Container) ConnectSucceeded(session core.WalletSession) {
	c.update(true, func(s *Snapshot) {
		sess := session
		s.Session = &sess
		s.Status = core.StatusConnected
		s.WalletKind = session.Kind
		s.ChainID = session.ChainID
		s.LastConnectedAt = session.ConnectedAt
		s.Wallet = Flags{}
		if s.User != nil && s.User.Address != "" && !SameAddress(s.User.Address, session.Address) {
			s.User = nil
			s.Authenticated = false
			s.Settlements = make(map[core.SettlementKind][]core.SettlementRecord)
		}
	})
}

// ConnectRejected restores prev and records a neutral error. Session and user are untouched.
func (c *Container) ConnectRejected(prev core.ConnectionStatus, err error) {
	c.update(false, func(s *Snapshot) {
		s.Status = prev
		s.Wallet = Flags{Err: err}
	})
}

// ConnectFailed records a provider failure. Any session is dropped because its
// address or chain can no longer be trusted.
func (c *Container) ConnectFailed(err error, status core.ConnectionStatus) {
	c.update(false, func(s *Snapshot) {
		s.Session = nil
		s.Status = status
		s.Wallet = Flags{Err: err}
	})
}

// Disconnected clears the session and forgets the restore marker
func (c *Container) Disconnected() {
	c.update(true, func(s *Snapshot) {
		s.Session = nil
		s.Status = core.StatusDisconnected
		s.WalletKind = ""
		s.LastConnectedAt = time.Time{}
		s.Wallet = Flags{}
	})
}

// BeginAuth marks a login attempt
func (c *Container) BeginAuth() {
	c.update(false, func(s *Snapshot) { s.Auth = Flags{Busy: true} })
}

// AuthSucceeded records the authenticated identity
func (c *Container) AuthSucceeded(user core.AuthenticatedUser) {
	c.update(true, func(s *Snapshot) {
		s.User = copyUser(&user)
		s.Authenticated = true
		s.Auth = Flags{}
	})
}

// AuthFailed records a login failure and leaves any previous identity in place
func (c *Container) AuthFailed(err error) {
	c.update(false, func(s *Snapshot) { s.Auth = Flags{Err: err} })
}

// LoggedOut drops the identity and the cached settlement lists
func (c *Container) LoggedOut() {
	c.update(true, func(s *Snapshot) {
		s.User = nil
		s.Authenticated = false
		s.Auth = Flags{}
		s.Settlements = make(map[core.SettlementKind][]core.SettlementRecord)
	})
}

// BeginAction claims the in-flight slot of kind; core.ErrActionInFlight if it is taken
func (c *Container) BeginAction(kind core.SettlementKind) error {
	var err error
	c.update(false, func(s *Snapshot) {
		if s.Actions[kind].Busy {
			err = core.ErrActionInFlight
			return
		}
		s.Actions[kind] = Flags{Busy: true}
	})
	return err
}

// EndAction releases the slot of kind and records the outcome
func (c *Container) EndAction(kind core.SettlementKind, err error) {
	c.update(false, func(s *Snapshot) { s.Actions[kind] = Flags{Err: err} })
}

// SetSettlements replaces the cached list of kind
func (c *Container) SetSettlements(kind core.SettlementKind, records []core.SettlementRecord) {
	c.update(false, func(s *Snapshot) {
		s.Settlements[kind] = append([]core.SettlementRecord(nil), records...)
	})
}

// AppendSettlement adds a new record to the cached list of its kind
func (c *Container) AppendSettlement(record core.SettlementRecord) {
	c.update(false, func(s *Snapshot) {
		s.Settlements[record.Kind] = append(s.Settlements[record.Kind], record)
	})
}

func (c *Container) update(persist bool, fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	snap := c.snap.clone()
	if persist && c.store != nil {
		// saved under the lock so persisted writes keep mutation order
		if err := c.store.SaveState(context.Background(), snap.persisted()); err != nil {
			c.log.Warn("failed to persist session state", zap.Error(err))
		}
	}
	c.mu.Unlock()

	c.broadcast(snap)
}

func (c *Container) broadcast(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s Snapshot) persisted() core.PersistedState {
	return core.PersistedState{
		WalletKind:      s.WalletKind,
		ChainID:         s.ChainID,
		LastConnectedAt: s.LastConnectedAt,
		User:            copyUser(s.User),
		Authenticated:   s.Authenticated,
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.User = copyUser(s.User)
	out.Actions = make(map[core.SettlementKind]Flags, len(s.Actions))
	for k, v := range s.Actions {
		out.Actions[k] = v
	}
	out.Settlements = make(map[core.SettlementKind][]core.SettlementRecord, len(s.Settlements))
	for k, v := range s.Settlements {
		out.Settlements[k] = append([]core.SettlementRecord(nil), v...)
	}
	return out
}

func copyUser(u *core.AuthenticatedUser) *core.AuthenticatedUser {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// SameAddress compares two hex addresses ignoring checksum casing
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
