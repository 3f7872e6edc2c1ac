package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// ClefConfig points at a running clef instance
type ClefConfig struct {
	Endpoint   string
	Authorized func() bool

	NetworkPoll  time.Duration
	AccountsPoll time.Duration
}

// clefRPC is the part of the clef API used directly
type clefRPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Clef is a wallet backed by the clef external signer. Clef's own approval
// prompt plays the role of the wallet confirmation dialog.
type Clef struct {
	cfg     ClefConfig
	backend TxBackend
	logger  *zap.Logger

	dial func(ctx context.Context, endpoint string) (clefRPC, *external.ExternalSigner, error)

	mu      sync.Mutex
	client  clefRPC
	signer  *external.ExternalSigner
	account *common.Address
}

var _ ports.WalletProvider = (*Clef)(nil)

func NewClef(cfg ClefConfig, backend TxBackend, logger *zap.Logger) *Clef {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clef{cfg: cfg, backend: backend, logger: logger.Named("clef"), dial: dialClef}
}

func dialClef(ctx context.Context, endpoint string) (clefRPC, *external.ExternalSigner, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}
	signer, err := external.NewExternalSigner(endpoint)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, signer, nil
}

func (c *Clef) Kind() core.WalletKind { return core.WalletClef }

// Connect dials clef. An unreachable endpoint means no wallet is installed.
func (c *Clef) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return fmt.Errorf("%w: clef endpoint not configured", core.ErrProviderUnavailable)
	}
	client, signer, err := c.dial(ctx, c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: clef at %s: %v", core.ErrProviderUnavailable, c.cfg.Endpoint, err)
	}
	c.client, c.signer = client, signer
	return nil
}

// Enable asks clef for the account list. Clef decides whether to prompt, so a silent
// connect is only attempted for a wallet authorized before, and a denial maps to
// core.ErrNotAuthorized instead of a rejection.
func (c *Clef) Enable(ctx context.Context, silent bool) (string, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return "", core.ErrNotConnected
	}
	if silent && (c.cfg.Authorized == nil || !c.cfg.Authorized()) {
		return "", core.ErrNotAuthorized
	}

	addrs, err := c.listAccounts(ctx, client)
	if err != nil {
		if silent && errors.Is(err, core.ErrUserRejected) {
			return "", core.ErrNotAuthorized
		}
		return "", err
	}
	if len(addrs) == 0 {
		if silent {
			return "", core.ErrNotAuthorized
		}
		return "", core.ErrUserRejected
	}

	c.mu.Lock()
	c.account = &addrs[0]
	c.mu.Unlock()
	return addrs[0].Hex(), nil
}

func (c *Clef) listAccounts(ctx context.Context, client clefRPC) ([]common.Address, error) {
	var addrs []common.Address
	if err := client.CallContext(ctx, &addrs, "account_list"); err != nil {
		return nil, c.mapError(err)
	}
	return addrs, nil
}

// mapError turns clef's denial into core.ErrUserRejected
func (c *Clef) mapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Request denied") {
		return fmt.Errorf("%w: %v", core.ErrUserRejected, err)
	}
	return &core.ProviderError{Kind: core.WalletClef, Err: err}
}

func (c *Clef) active() (clefRPC, *external.ExternalSigner, common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || c.account == nil {
		return nil, nil, common.Address{}, core.ErrNotConnected
	}
	return c.client, c.signer, *c.account, nil
}

func (c *Clef) ChainID(ctx context.Context) (string, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return "", &core.ProviderError{Kind: core.WalletClef, Err: err}
	}
	return id, nil
}

// Execute has clef sign the transaction and broadcasts it through the node
func (c *Clef) Execute(ctx context.Context, call core.ChainCall) (string, error) {
	_, signer, addr, err := c.active()
	if err != nil {
		return "", err
	}
	tx, chainID, err := c.backend.BuildTx(ctx, addr, call)
	if err != nil {
		return "", err
	}
	signed, err := signer.SignTx(accounts.Account{Address: addr}, tx, chainID)
	if err != nil {
		return "", c.mapError(err)
	}
	return c.backend.Send(ctx, signed)
}

// SignTypedMessage calls account_signTypedData
func (c *Clef) SignTypedMessage(ctx context.Context, msg core.TypedMessage) (string, error) {
	client, _, addr, err := c.active()
	if err != nil {
		return "", err
	}
	typed, err := eth.ToTypedData(msg)
	if err != nil {
		return "", err
	}
	var sig hexutil.Bytes
	if err := client.CallContext(ctx, &sig, "account_signTypedData", common.NewMixedcaseAddress(addr), typed); err != nil {
		return "", c.mapError(err)
	}
	return hexutil.Encode(sig), nil
}

// Subscribe polls clef's account list and the node's chain id. Clef has no push notifications.
func (c *Clef) Subscribe(ctx context.Context, handler func(core.ProviderEvent)) (func(), error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil, core.ErrNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	go c.watchAccounts(ctx, client, handler)
	go watchNetwork(ctx, c.backend, c.cfg.NetworkPoll, c.logger, handler)
	return cancel, nil
}

func (c *Clef) watchAccounts(ctx context.Context, client clefRPC, handler func(core.ProviderEvent)) {
	interval := c.cfg.AccountsPoll
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		addrs, err := c.listAccounts(ctx, client)
		if err != nil {
			c.logger.Debug("account poll failed", zap.Error(err))
			continue
		}
		c.mu.Lock()
		current := c.account
		c.mu.Unlock()
		if current == nil {
			continue
		}
		if len(addrs) == 0 || addrs[0] != *current {
			value := ""
			if len(addrs) > 0 {
				value = addrs[0].Hex()
			}
			handler(core.ProviderEvent{Type: core.AccountsChanged, Value: value})
		}
	}
}

// Disconnect closes the connection to clef. Clef keeps its own rules, so a later
// connect may succeed without a prompt.
func (c *Clef) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
	}
	c.client, c.signer, c.account = nil, nil, nil
	return nil
}
