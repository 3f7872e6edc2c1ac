package wallets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// KeystoreConfig selects the keystore directory and account
type KeystoreConfig struct {
	Dir     string
	Account string // empty means the first account in Dir

	// Authorized reports whether the user connected this wallet before.
	// Silent connects fail with core.ErrNotAuthorized without it.
	Authorized func() bool

	NetworkPoll time.Duration
}

// Keystore is a wallet backed by an encrypted go-ethereum keystore directory
type Keystore struct {
	cfg        KeystoreConfig
	backend    TxBackend
	passphrase *Passphrase
	logger     *zap.Logger

	mu      sync.Mutex
	ks      *keystore.KeyStore
	account *accounts.Account
}

var _ ports.WalletProvider = (*Keystore)(nil)

// NewKeystore creates the adapter. Nothing is opened until Connect.
func NewKeystore(cfg KeystoreConfig, backend TxBackend, passphrase *Passphrase, logger *zap.Logger) *Keystore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keystore{cfg: cfg, backend: backend, passphrase: passphrase, logger: logger.Named("keystore")}
}

func (k *Keystore) Kind() core.WalletKind { return core.WalletKeystore }

// Connect opens the keystore directory. A missing or empty directory means no wallet is installed.
func (k *Keystore) Connect(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks != nil {
		return nil
	}
	info, err := os.Stat(k.cfg.Dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: keystore directory %q", core.ErrProviderUnavailable, k.cfg.Dir)
	}
	ks := keystore.NewKeyStore(k.cfg.Dir, keystore.StandardScryptN, keystore.StandardScryptP)
	if len(ks.Accounts()) == 0 {
		return fmt.Errorf("%w: %v in %q", core.ErrProviderUnavailable, errNoAccount, k.cfg.Dir)
	}
	k.ks = ks
	return nil
}

// Enable unlocks the configured account
func (k *Keystore) Enable(ctx context.Context, silent bool) (string, error) {
	k.mu.Lock()
	ks := k.ks
	k.mu.Unlock()
	if ks == nil {
		return "", core.ErrNotConnected
	}

	account, err := k.selectAccount(ks)
	if err != nil {
		return "", &core.ProviderError{Kind: core.WalletKeystore, Err: err}
	}

	var pass string
	if silent {
		value, ok := k.passphrase.Lookup()
		if !ok || k.cfg.Authorized == nil || !k.cfg.Authorized() {
			return "", core.ErrNotAuthorized
		}
		pass = value
	} else {
		pass, err = k.passphrase.Get(account.Address.Hex())
		if err != nil {
			return "", err
		}
	}

	if err := ks.Unlock(account, pass); err != nil {
		k.passphrase.Forget()
		if errors.Is(err, keystore.ErrDecrypt) {
			if silent {
				return "", core.ErrNotAuthorized
			}
			return "", fmt.Errorf("%w: wrong passphrase", core.ErrUserRejected)
		}
		return "", &core.ProviderError{Kind: core.WalletKeystore, Err: err}
	}
	k.passphrase.Remember(pass)

	k.mu.Lock()
	k.account = &account
	k.mu.Unlock()
	return account.Address.Hex(), nil
}

func (k *Keystore) selectAccount(ks *keystore.KeyStore) (accounts.Account, error) {
	all := ks.Accounts()
	if k.cfg.Account == "" {
		if len(all) == 0 {
			return accounts.Account{}, errNoAccount
		}
		return all[0], nil
	}
	if !common.IsHexAddress(k.cfg.Account) {
		return accounts.Account{}, fmt.Errorf("invalid account %q", k.cfg.Account)
	}
	return ks.Find(accounts.Account{Address: common.HexToAddress(k.cfg.Account)})
}

func (k *Keystore) active() (*keystore.KeyStore, accounts.Account, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks == nil || k.account == nil {
		return nil, accounts.Account{}, core.ErrNotConnected
	}
	return k.ks, *k.account, nil
}

func (k *Keystore) ChainID(ctx context.Context) (string, error) {
	id, err := k.backend.ChainID(ctx)
	if err != nil {
		return "", &core.ProviderError{Kind: core.WalletKeystore, Err: err}
	}
	return id, nil
}

// Execute signs the call with the unlocked account and broadcasts it
func (k *Keystore) Execute(ctx context.Context, call core.ChainCall) (string, error) {
	ks, account, err := k.active()
	if err != nil {
		return "", err
	}
	tx, chainID, err := k.backend.BuildTx(ctx, account.Address, call)
	if err != nil {
		return "", err
	}
	signed, err := ks.SignTx(account, tx, chainID)
	if err != nil {
		return "", &core.ProviderError{Kind: core.WalletKeystore, Err: err}
	}
	return k.backend.Send(ctx, signed)
}

// SignTypedMessage signs the EIP-712 digest of msg
func (k *Keystore) SignTypedMessage(ctx context.Context, msg core.TypedMessage) (string, error) {
	ks, account, err := k.active()
	if err != nil {
		return "", err
	}
	digest, err := eth.Digest(msg)
	if err != nil {
		return "", err
	}
	sig, err := ks.SignHash(account, digest)
	if err != nil {
		return "", &core.ProviderError{Kind: core.WalletKeystore, Err: err}
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Subscribe reports account changes from the keystore directory and network changes from the node
func (k *Keystore) Subscribe(ctx context.Context, handler func(core.ProviderEvent)) (func(), error) {
	k.mu.Lock()
	ks := k.ks
	k.mu.Unlock()
	if ks == nil {
		return nil, core.ErrNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	sink := make(chan accounts.WalletEvent, 8)
	sub := ks.Subscribe(sink)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					k.logger.Warn("keystore subscription ended", zap.Error(err))
				}
				return
			case ev := <-sink:
				if k.affectsActive(ev) {
					handler(core.ProviderEvent{Type: core.AccountsChanged, Value: ev.Wallet.URL().String()})
				}
			}
		}
	}()
	go watchNetwork(ctx, k.backend, k.cfg.NetworkPoll, k.logger, handler)

	return cancel, nil
}

// affectsActive reports whether ev adds or removes the account in use
func (k *Keystore) affectsActive(ev accounts.WalletEvent) bool {
	if ev.Kind != accounts.WalletDropped && ev.Kind != accounts.WalletArrived {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.account == nil {
		return ev.Kind == accounts.WalletArrived
	}
	for _, a := range ev.Wallet.Accounts() {
		if a.Address == k.account.Address {
			return true
		}
	}
	return strings.EqualFold(ev.Wallet.URL().Path, k.account.URL.Path)
}

// Disconnect locks the account and drops the handle. The keystore file and the
// cached passphrase stay, so a later silent connect can succeed again.
func (k *Keystore) Disconnect() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks != nil && k.account != nil {
		if err := k.ks.Lock(k.account.Address); err != nil {
			k.logger.Debug("lock account", zap.Error(err))
		}
	}
	k.account = nil
	return nil
}

// Close locks the account and drops the keystore. The keystore stops watching its
// directory once it is collected, so Connect must run again before further use.
func (k *Keystore) Close() error {
	if err := k.Disconnect(); err != nil {
		return err
	}
	k.mu.Lock()
	k.ks = nil
	k.mu.Unlock()
	return nil
}
