// Package chain reads transaction outcomes from an EVM node and prepares transactions for wallets.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// Backend is the subset of the node RPC the adapter uses
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dial connects to the node at endpoint
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Client implements ports.Chain on top of a node connection
type Client struct {
	backend      Backend
	pollInterval time.Duration
	logger       *zap.Logger
}

var _ ports.Chain = (*Client)(nil)

// NewClient wraps backend. pollInterval paces WaitForTransaction.
func NewClient(backend Backend, pollInterval time.Duration, logger *zap.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, pollInterval: pollInterval, logger: logger}
}

// ChainID returns the node's chain id in decimal
func (c *Client) ChainID(ctx context.Context) (string, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// WaitForTransaction polls until the transaction is mined. There is no timeout
// besides ctx; a pending transaction is simply polled again.
func (c *Client) WaitForTransaction(ctx context.Context, txHash string) (core.TxStatus, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return core.TxAccepted, nil
			}
			return core.TxReverted, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return "", fmt.Errorf("poll receipt: %w", err)
		}

		c.logger.Debug("transaction pending", zap.String("tx_hash", txHash))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// TransactionReceipt fetches the receipt and converts its logs into events
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*core.TransactionReceipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return nil, errors.New("transaction receipt missing")
	}

	status := core.TxAccepted
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = core.TxReverted
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &core.TransactionReceipt{
		TxHash:      receipt.TxHash.Hex(),
		Status:      status,
		BlockNumber: block,
		Events:      eth.EventsFromLogs(receipt.Logs),
	}, nil
}

// BuildTx prepares an unsigned EIP-1559 transaction for call sent by from.
// Gas estimation runs the call, so a reverting call fails here before anything is signed.
func (c *Client) BuildTx(ctx context.Context, from common.Address, call core.ChainCall) (*types.Transaction, *big.Int, error) {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	to := common.HexToAddress(call.Contract)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      call.Calldata,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("estimate gas for %s: %w", call.Entrypoint, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      call.Calldata,
	})
	return tx, chainID, nil
}

// Send broadcasts a signed transaction and returns its hash
func (c *Client) Send(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}
