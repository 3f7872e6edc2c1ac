package ports

import (
	"context"

	"github.com/layer-3/stindem/core"
)

// Credentials is the stored password material for an email user
type Credentials struct {
	User     core.AuthenticatedUser
	PwdHash  []byte
	SaltAuth []byte
}

// UserRepository persists backend users
type UserRepository interface {
	FindOrCreateByAddress(ctx context.Context, address string) (*core.AuthenticatedUser, error)
	CreateEmailUser(ctx context.Context, creds Credentials) (*core.AuthenticatedUser, error)
	GetCredentials(ctx context.Context, email string) (*Credentials, error)
	GetByID(ctx context.Context, id string) (*core.AuthenticatedUser, error)
}

// SettlementRepository persists settlement records, unique per (kind, transaction id)
type SettlementRepository interface {
	// CreateSettlement returns core.ErrAlreadyExists when the kind already has the transaction id
	CreateSettlement(ctx context.Context, record *core.SettlementRecord) error
	ListSettlements(ctx context.Context, kind core.SettlementKind, userID string) ([]core.SettlementRecord, error)
}
