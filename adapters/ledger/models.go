package ledger

import (
	"time"

	"github.com/layer-3/stindem/core"
	"gorm.io/gorm"
)

// User is a backend account, identified by wallet address or by email
type User struct {
	ID        string  `gorm:"size:36;primaryKey"`
	Address   *string `gorm:"size:42;uniqueIndex"`
	Email     *string `gorm:"size:320;uniqueIndex"`
	Name      string  `gorm:"size:128"`
	PwdHash   []byte
	SaltAuth  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settlement mirrors one confirmed on-chain action.
// The composite unique index is the idempotency key.
type Settlement struct {
	ID            string `gorm:"size:36;primaryKey"`
	Kind          string `gorm:"size:16;not null;uniqueIndex:idx_settlement_kind_txid"`
	TransactionID string `gorm:"size:66;not null;uniqueIndex:idx_settlement_kind_txid"`
	UserID        string `gorm:"size:36;index"`
	PolicyID      string `gorm:"size:78"`
	ActorAddress  string `gorm:"size:42;index"`
	Quantity      string `gorm:"size:78"`
	Amount        string `gorm:"size:78;not null"`
	TxHash        string `gorm:"size:66;not null"`
	Status        string `gorm:"size:16;not null"`
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// AutoMigrate creates or updates the ledger tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Settlement{})
}

func (u *User) toCore() *core.AuthenticatedUser {
	out := &core.AuthenticatedUser{
		ID:        u.ID,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
	if u.Address != nil {
		out.Address = *u.Address
	}
	if u.Email != nil {
		out.Email = *u.Email
	}
	return out
}

func settlementFromCore(r *core.SettlementRecord) *Settlement {
	return &Settlement{
		ID:            r.ID,
		Kind:          string(r.Kind),
		TransactionID: r.TransactionID,
		UserID:        r.Metadata.UserID,
		PolicyID:      r.Metadata.PolicyID,
		ActorAddress:  r.Metadata.ActorAddress,
		Quantity:      r.Metadata.Quantity,
		Amount:        r.Metadata.Amount,
		TxHash:        r.Metadata.TxHash,
		Status:        string(r.Status),
		OccurredAt:    r.Metadata.OccurredAt,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Settlement) toCore() core.SettlementRecord {
	return core.SettlementRecord{
		ID:            s.ID,
		Kind:          core.SettlementKind(s.Kind),
		TransactionID: s.TransactionID,
		Status:        core.SettlementStatus(s.Status),
		CreatedAt:     s.CreatedAt,
		Metadata: core.SettlementMetadata{
			UserID:       s.UserID,
			PolicyID:     s.PolicyID,
			ActorAddress: s.ActorAddress,
			Quantity:     s.Quantity,
			Amount:       s.Amount,
			TxHash:       s.TxHash,
			OccurredAt:   s.OccurredAt,
		},
	}
}
