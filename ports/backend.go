package ports

import (
	"context"

	"github.com/layer-3/stindem/core"
)

// AuthAPI is the backend authentication surface consumed by the client
type AuthAPI interface {
	RequestNonce(ctx context.Context, address string) (string, error)
	VerifySignature(ctx context.Context, proof core.SignatureProof) (*core.AuthenticatedUser, error)
	LoginEmail(ctx context.Context, email, password string) (*core.AuthenticatedUser, error)
	Me(ctx context.Context) (*core.AuthenticatedUser, error)
	Logout(ctx context.Context) error
}

// SettlementAPI is the backend settlement ledger consumed by the client
type SettlementAPI interface {
	CreateSettlement(ctx context.Context, record core.SettlementRecord) (*core.SettlementRecord, error)
	ListSettlements(ctx context.Context, kind core.SettlementKind, userID string) ([]core.SettlementRecord, error)
}
