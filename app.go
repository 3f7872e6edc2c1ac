// Package stindem is the wallet client: it connects a wallet, signs in with a nonce
// challenge, submits contract actions and mirrors each confirmed action into the backend ledger.
package stindem

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/stindem/adapters/backend"
	"github.com/layer-3/stindem/adapters/chain"
	"github.com/layer-3/stindem/adapters/localstore"
	"github.com/layer-3/stindem/adapters/wallets"
	"github.com/layer-3/stindem/auth"
	"github.com/layer-3/stindem/config"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/orchestrator"
	"github.com/layer-3/stindem/ports"
	"github.com/layer-3/stindem/recorder"
	"github.com/layer-3/stindem/state"
	"github.com/layer-3/stindem/wallet"
	"go.uber.org/zap"
)

// Backend is the REST surface of the backend
type Backend interface {
	ports.AuthAPI
	ports.SettlementAPI
}

// LocalStore persists session state and the attempt journal
type LocalStore interface {
	ports.StateStore
	ports.AttemptJournal
}

// Deps are the collaborators of an App
type Deps struct {
	Config  config.Client
	Wallets []ports.WalletProvider
	Chain   ports.Chain
	Backend Backend
	Store   LocalStore
	Logger  *zap.Logger
	Metrics metrics.Recorder
	Chooser wallet.Chooser
}

// App wires the wallet, auth, orchestrator and recorder components around one state container
type App struct {
	cfg     config.Client
	state   *state.Container
	journal ports.AttemptJournal
	wallet  *wallet.Manager
	auth    *auth.Authenticator
	orch    *orchestrator.Orchestrator
	rec     *recorder.Recorder
	actions map[core.SettlementKind]core.Action
	logger  *zap.Logger
	now     func() time.Time
	closers []func() error
}

var _ Client = (*App)(nil)

// NewApp builds an App from deps and loads the persisted state
func NewApp(ctx context.Context, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}

	st := state.New(deps.Store, deps.Logger)
	if _, err := st.Load(ctx); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	actions := eth.DefaultActions()
	for name, event := range deps.Config.Events {
		kind, err := core.ParseSettlementKind(name)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		action := actions[kind]
		action.EventName = event
		actions[kind] = action
	}

	walletOpts := []wallet.Option{wallet.WithLogger(deps.Logger)}
	if deps.Chooser != nil {
		walletOpts = append(walletOpts, wallet.WithChooser(deps.Chooser))
	}
	wm := wallet.NewManager(deps.Wallets, st, walletOpts...)

	return &App{
		cfg:     deps.Config,
		state:   st,
		journal: deps.Store,
		wallet:  wm,
		auth: auth.New(deps.Backend, st, deps.Config.AppName, deps.Config.ChainID,
			auth.WithLogger(deps.Logger), auth.WithMetrics(deps.Metrics)),
		orch: orchestrator.New(wm, deps.Chain, deps.Store,
			orchestrator.WithLogger(deps.Logger), orchestrator.WithMetrics(deps.Metrics)),
		rec: recorder.New(deps.Backend, deps.Store, st,
			recorder.WithLogger(deps.Logger), recorder.WithMetrics(deps.Metrics)),
		actions: actions,
		logger:  deps.Logger,
		now:     time.Now,
	}, nil
}

// Open builds an App against real infrastructure described by cfg
func Open(ctx context.Context, cfg config.Client, logger *zap.Logger, chooser wallet.Chooser, prompt wallets.PromptFunc) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := localstore.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	rpc, err := chain.Dial(cfg.RPCURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainClient := chain.NewClient(rpc, cfg.PollInterval, logger)
	api, err := backend.New(cfg.BackendURL, backend.WithLogger(logger))
	if err != nil {
		rpc.Close()
		store.Close()
		return nil, err
	}

	// resolved lazily, the app is created after the adapters
	var app *App
	authorized := func(kind core.WalletKind) bool {
		if app == nil {
			return false
		}
		snap := app.state.Snapshot()
		return snap.WalletKind == kind && !snap.LastConnectedAt.IsZero()
	}
	providers, err := wallets.Build(cfg.Wallets, chainClient, wallets.Options{
		Authorized:  authorized,
		Prompt:      prompt,
		NetworkPoll: cfg.PollInterval,
		Logger:      logger,
	})
	if err != nil {
		rpc.Close()
		store.Close()
		return nil, err
	}

	app, err = NewApp(ctx, Deps{
		Config:  cfg,
		Wallets: providers,
		Chain:   chainClient,
		Backend: api,
		Store:   store,
		Logger:  logger,
		Chooser: chooser,
	})
	if err != nil {
		rpc.Close()
		store.Close()
		return nil, err
	}
	app.closers = append(app.closers, func() error { rpc.Close(); return nil }, store.Close)
	return app, nil
}

// Close releases the wallet, node connection and local store. The persisted
// session marker is kept, so the next process can Restore it.
func (a *App) Close() error {
	errs := []error{a.wallet.Close()}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (a *App) Connect(ctx context.Context, silent bool) (core.WalletSession, error) {
	return a.wallet.Connect(ctx, silent)
}

func (a *App) Disconnect() error { return a.wallet.Disconnect() }

func (a *App) Restore(ctx context.Context) { a.wallet.Restore(ctx) }

func (a *App) Login(ctx context.Context) (*core.AuthenticatedUser, error) {
	return a.auth.Login(ctx, a.wallet)
}

func (a *App) LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, error) {
	return a.auth.LoginEmail(ctx, email, password)
}

func (a *App) Logout(ctx context.Context) error { return a.auth.Logout(ctx) }

func (a *App) Me(ctx context.Context) (*core.AuthenticatedUser, error) { return a.auth.Me(ctx) }

func (a *App) State() state.Snapshot { return a.state.Snapshot() }

func (a *App) Settlements(ctx context.Context, kind core.SettlementKind) ([]core.SettlementRecord, error) {
	return a.rec.Refresh(ctx, kind)
}

func (a *App) Pending(ctx context.Context) ([]core.Attempt, error) { return a.rec.Pending(ctx) }

func (a *App) RetryRecord(ctx context.Context, txHash string) (*core.SettlementRecord, error) {
	if _, err := a.authenticated(); err != nil {
		return nil, err
	}
	return a.rec.RetryRecord(ctx, txHash)
}

// Resume polls an attempt whose confirmation was unresolved and records it once its event is found
func (a *App) Resume(ctx context.Context, txHash string) (*core.SettlementRecord, error) {
	if _, err := a.authenticated(); err != nil {
		return nil, err
	}
	sub, err := a.orch.Resume(ctx, txHash)
	if err != nil {
		return nil, err
	}
	attempt, err := a.journal.GetAttempt(ctx, sub.TxHash)
	if err != nil {
		return nil, fmt.Errorf("load attempt %s: %w", sub.TxHash, err)
	}
	if attempt.Phase == core.PhaseRecorded {
		return nil, fmt.Errorf("attempt %s is already recorded", sub.TxHash)
	}
	meta := attempt.Metadata
	meta.TxHash = sub.TxHash
	return a.rec.Record(ctx, sub.Action.Kind, sub.TransactionID, meta)
}

func (a *App) PayPremium(ctx context.Context, p PremiumPayment) (*core.SettlementRecord, error) {
	return a.run(ctx, core.KindPremiumPayment, func(payer common.Address) (core.ChainCall, core.SettlementMetadata, error) {
		call, err := eth.PayPremiumCall(a.cfg.Contract, p.PolicyID, payer, p.Amount)
		if err != nil {
			return core.ChainCall{}, core.SettlementMetadata{}, err
		}
		return call, core.SettlementMetadata{
			PolicyID: p.PolicyID.String(),
			Amount:   eth.FormatAmount(p.Amount, a.cfg.TokenDecimals),
		}, nil
	})
}

func (a *App) PurchaseStindem(ctx context.Context, p Purchase) (*core.SettlementRecord, error) {
	return a.run(ctx, core.KindTokenPurchase, func(buyer common.Address) (core.ChainCall, core.SettlementMetadata, error) {
		call, err := eth.PurchaseCall(a.cfg.Contract, buyer, p.Quantity, p.TotalPrice)
		if err != nil {
			return core.ChainCall{}, core.SettlementMetadata{}, err
		}
		return call, core.SettlementMetadata{
			Quantity: eth.FormatAmount(p.Quantity, a.cfg.TokenDecimals),
			Amount:   eth.FormatAmount(p.TotalPrice, a.cfg.TokenDecimals),
		}, nil
	})
}

func (a *App) RecoverStindem(ctx context.Context, r Recovery) (*core.SettlementRecord, error) {
	return a.run(ctx, core.KindTokenRecovery, func(seller common.Address) (core.ChainCall, core.SettlementMetadata, error) {
		call, err := eth.RecoveryCall(a.cfg.Contract, seller, r.Quantity, r.TotalValue)
		if err != nil {
			return core.ChainCall{}, core.SettlementMetadata{}, err
		}
		return call, core.SettlementMetadata{
			Quantity: eth.FormatAmount(r.Quantity, a.cfg.TokenDecimals),
			Amount:   eth.FormatAmount(r.TotalValue, a.cfg.TokenDecimals),
		}, nil
	})
}

func (a *App) authenticated() (*core.AuthenticatedUser, error) {
	snap := a.state.Snapshot()
	if !snap.Authenticated || snap.User == nil {
		return nil, core.ErrNotAuthenticated
	}
	return snap.User, nil
}

type buildFunc func(actor common.Address) (core.ChainCall, core.SettlementMetadata, error)

// run is the one pipeline every action kind goes through: execute, confirm, extract, record.
// Only one attempt per kind may be in flight.
func (a *App) run(ctx context.Context, kind core.SettlementKind, build buildFunc) (rec *core.SettlementRecord, err error) {
	session, err := a.wallet.Session()
	if err != nil {
		return nil, err
	}
	user, err := a.authenticated()
	if err != nil {
		return nil, err
	}
	if user.Address != "" && !state.SameAddress(user.Address, session.Address) {
		return nil, fmt.Errorf("%w: wallet %s is not the signed in account", core.ErrNotAuthenticated, session.Address)
	}
	if a.cfg.Contract == "" {
		return nil, fmt.Errorf("%w: contract address not configured", core.ErrInvalidInput)
	}

	if err := a.state.BeginAction(kind); err != nil {
		return nil, err
	}
	defer func() { a.state.EndAction(kind, err) }()

	actor := common.HexToAddress(session.Address)
	call, meta, err := build(actor)
	if err != nil {
		return nil, &core.ExecutionError{Entrypoint: a.actions[kind].Entrypoint, Err: err}
	}
	meta.UserID = user.ID
	meta.ActorAddress = actor.Hex()
	meta.OccurredAt = a.now().UTC()

	sub, err := a.orch.Submit(ctx, a.actions[kind], call, meta)
	if err != nil {
		return nil, err
	}
	meta.TxHash = sub.TxHash
	return a.rec.Record(ctx, kind, sub.TransactionID, meta)
}

// ParseKind accepts a settlement kind name or collection path
func ParseKind(s string) (core.SettlementKind, error) {
	return core.ParseSettlementKind(strings.TrimSpace(s))
}

// ParseUint parses a decimal or 0x integer into a 256-bit quantity
func ParseUint(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", core.ErrInvalidInput, s)
	}
	if err := eth.ValidateUint256(v); err != nil {
		return nil, err
	}
	return v, nil
}
