package stindem

import (
	"context"
	"math/big"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/state"
)

// Client is the public interface of the wallet client
type Client interface {
	// Connect opens a wallet session; silent connects never prompt
	Connect(ctx context.Context, silent bool) (core.WalletSession, error)

	// Disconnect drops the wallet session locally
	Disconnect() error

	// Restore silently re-establishes the previous wallet session, if any
	Restore(ctx context.Context)

	// Login proves control of the connected address to the backend
	Login(ctx context.Context) (*core.AuthenticatedUser, error)

	// LoginEmail authenticates with email and password
	LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, error)

	// Logout ends the backend session
	Logout(ctx context.Context) error

	// Me re-reads the authenticated identity
	Me(ctx context.Context) (*core.AuthenticatedUser, error)

	// PayPremium pays a policy premium on-chain and records it
	PayPremium(ctx context.Context, p PremiumPayment) (*core.SettlementRecord, error)

	// PurchaseStindem buys tokens on-chain and records the purchase
	PurchaseStindem(ctx context.Context, p Purchase) (*core.SettlementRecord, error)

	// RecoverStindem sells tokens back to the market and records the recovery
	RecoverStindem(ctx context.Context, r Recovery) (*core.SettlementRecord, error)

	// Settlements reloads the user's records of kind
	Settlements(ctx context.Context, kind core.SettlementKind) ([]core.SettlementRecord, error)

	// Pending lists journaled attempts that are not reconciled
	Pending(ctx context.Context) ([]core.Attempt, error)

	// RetryRecord replays the settlement write of a confirmed attempt
	RetryRecord(ctx context.Context, txHash string) (*core.SettlementRecord, error)

	// Resume polls an unresolved attempt again and records it once confirmed
	Resume(ctx context.Context, txHash string) (*core.SettlementRecord, error)

	// State returns a snapshot of the session state
	State() state.Snapshot
}

// PremiumPayment pays Amount base units towards PolicyID
type PremiumPayment struct {
	PolicyID *big.Int
	Amount   *big.Int
}

// Purchase buys Quantity tokens for TotalPrice base units
type Purchase struct {
	Quantity   *big.Int
	TotalPrice *big.Int
}

// Recovery sells Quantity tokens for TotalValue base units
type Recovery struct {
	Quantity   *big.Int
	TotalValue *big.Int
}
