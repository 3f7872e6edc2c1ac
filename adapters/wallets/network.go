// Package wallets holds the wallet provider adapters and the discovery routine that selects them.
package wallets

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/stindem/core"
	"go.uber.org/zap"
)

// TxBackend prepares and broadcasts transactions on the target network
type TxBackend interface {
	ChainID(ctx context.Context) (string, error)
	BuildTx(ctx context.Context, from common.Address, call core.ChainCall) (*types.Transaction, *big.Int, error)
	Send(ctx context.Context, tx *types.Transaction) (string, error)
}

// watchNetwork polls the chain id and reports a NetworkChanged event whenever it differs
// from the last value seen. It returns when ctx is done.
func watchNetwork(ctx context.Context, backend TxBackend, interval time.Duration, logger *zap.Logger, emit func(core.ProviderEvent)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last, err := backend.ChainID(ctx)
	if err != nil {
		logger.Debug("initial chain id unavailable", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		current, err := backend.ChainID(ctx)
		if err != nil {
			logger.Debug("chain id poll failed", zap.Error(err))
			continue
		}
		if last != "" && current != last {
			emit(core.ProviderEvent{Type: core.NetworkChanged, Value: current})
		}
		last = current
	}
}
