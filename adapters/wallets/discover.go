package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/stindem/config"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// Options are shared by every adapter Discover builds
type Options struct {
	// Authorized reports whether kind was connected before
	Authorized  func(kind core.WalletKind) bool
	Prompt      PromptFunc
	NetworkPoll time.Duration
	Logger      *zap.Logger
}

// Build constructs the adapters listed in cfg.Order without probing them
func Build(cfg config.Wallets, backend TxBackend, opts Options) ([]ports.WalletProvider, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	authorized := func(kind core.WalletKind) func() bool {
		return func() bool { return opts.Authorized != nil && opts.Authorized(kind) }
	}

	var providers []ports.WalletProvider
	for _, name := range cfg.Order {
		kind, err := core.ParseWalletKind(name)
		if err != nil {
			return nil, err
		}
		switch kind {
		case core.WalletKeystore:
			providers = append(providers, NewKeystore(KeystoreConfig{
				Dir:         cfg.Keystore.Dir,
				Account:     cfg.Keystore.Account,
				Authorized:  authorized(kind),
				NetworkPoll: opts.NetworkPoll,
			}, backend, NewPassphrase(cfg.Keystore.PassphraseEnv, opts.Prompt), opts.Logger))
		case core.WalletClef:
			providers = append(providers, NewClef(ClefConfig{
				Endpoint:    cfg.Clef.Endpoint,
				Authorized:  authorized(kind),
				NetworkPoll: opts.NetworkPoll,
			}, backend, opts.Logger))
		}
	}
	return providers, nil
}

// Discover probes candidates in order and returns the ones that are installed.
// It fails with core.ErrProviderUnavailable when none is.
func Discover(ctx context.Context, candidates []ports.WalletProvider, logger *zap.Logger) ([]ports.WalletProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var available []ports.WalletProvider
	for _, p := range candidates {
		err := p.Connect(ctx)
		switch {
		case err == nil:
			available = append(available, p)
		case errors.Is(err, core.ErrProviderUnavailable):
			logger.Debug("wallet not available", zap.String("kind", string(p.Kind())), zap.Error(err))
		default:
			return nil, fmt.Errorf("probe %s wallet: %w", p.Kind(), err)
		}
	}
	if len(available) == 0 {
		return nil, core.ErrProviderUnavailable
	}
	return available, nil
}
