// Package ledger is the backend's relational store for users and settlement records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to postgres for postgres:// DSNs and to sqlite for anything else
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return db, nil
}

// Repository implements the user and settlement repositories on gorm
type Repository struct {
	db *gorm.DB
}

var (
	_ ports.UserRepository       = (*Repository)(nil)
	_ ports.SettlementRepository = (*Repository)(nil)
)

// NewRepository wraps an opened database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindOrCreateByAddress returns the wallet user, creating it on first login
func (r *Repository) FindOrCreateByAddress(ctx context.Context, address string) (*core.AuthenticatedUser, error) {
	db := r.db.WithContext(ctx)
	addr := address
	candidate := User{ID: uuid.NewString(), Address: &addr}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var user User
	if err := db.Where("address = ?", address).First(&user).Error; err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user.toCore(), nil
}

// CreateEmailUser stores a new email user; core.ErrAlreadyExists if the email is taken
func (r *Repository) CreateEmailUser(ctx context.Context, creds ports.Credentials) (*core.AuthenticatedUser, error) {
	email := strings.ToLower(creds.User.Email)
	user := User{
		ID:       uuid.NewString(),
		Email:    &email,
		Name:     creds.User.Name,
		PwdHash:  creds.PwdHash,
		SaltAuth: creds.SaltAuth,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, core.ErrAlreadyExists
	}
	return user.toCore(), nil
}

// GetCredentials loads the password material of an email user
func (r *Repository) GetCredentials(ctx context.Context, email string) (*ports.Credentials, error) {
	var user User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &ports.Credentials{User: *user.toCore(), PwdHash: user.PwdHash, SaltAuth: user.SaltAuth}, nil
}

// GetByID loads a user
func (r *Repository) GetByID(ctx context.Context, id string) (*core.AuthenticatedUser, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user.toCore(), nil
}

// CreateSettlement inserts a record once per (kind, transaction id).
// A second insert for the same pair affects no rows and yields core.ErrAlreadyExists.
func (r *Repository) CreateSettlement(ctx context.Context, record *core.SettlementRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	row := settlementFromCore(record)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "transaction_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return fmt.Errorf("create settlement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrAlreadyExists
	}
	return nil
}

// ListSettlements returns the records of one kind, newest first. An empty userID lists all users.
func (r *Repository) ListSettlements(ctx context.Context, kind core.SettlementKind, userID string) ([]core.SettlementRecord, error) {
	q := r.db.WithContext(ctx).Where("kind = ?", string(kind))
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}

	var rows []Settlement
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}

	out := make([]core.SettlementRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toCore())
	}
	return out, nil
}
