package ports

import (
	"context"

	"github.com/layer-3/stindem/core"
)

// WalletProvider is the capability surface of one wallet kind
type WalletProvider interface {
	Kind() core.WalletKind

	// Connect opens the provider handle; core.ErrProviderUnavailable when it is not installed
	Connect(ctx context.Context) error
	// Enable negotiates account access. With silent set it must not prompt and fails
	// with core.ErrNotAuthorized when no prior authorization exists.
	Enable(ctx context.Context, silent bool) (address string, err error)
	ChainID(ctx context.Context) (string, error)

	Execute(ctx context.Context, call core.ChainCall) (txHash string, err error)
	SignTypedMessage(ctx context.Context, msg core.TypedMessage) (signature string, err error)

	// Subscribe delivers account and network changes until the returned func is called
	Subscribe(ctx context.Context, handler func(core.ProviderEvent)) (unsubscribe func(), err error)

	// Disconnect drops the local handle. It cannot revoke the wallet's own authorization.
	Disconnect() error
}

// Chain reads transaction outcomes from the network
type Chain interface {
	// WaitForTransaction blocks until the transaction is accepted or reverted
	WaitForTransaction(ctx context.Context, txHash string) (core.TxStatus, error)
	TransactionReceipt(ctx context.Context, txHash string) (*core.TransactionReceipt, error)
}
