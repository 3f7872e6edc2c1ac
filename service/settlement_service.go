package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementService owns the off-chain settlement ledger
type SettlementService struct {
	repo     ports.SettlementRepository
	eventPub ports.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSettlementService creates a settlement service
func NewSettlementService(repo ports.SettlementRepository, eventPub ports.EventPublisher, logger *zap.Logger) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{repo: repo, eventPub: eventPub, logger: logger, now: time.Now}
}

func validateQuantity(field, v string, required bool) error {
	if v == "" {
		if required {
			return fmt.Errorf("%s is required: %w", field, core.ErrInvalidInput)
		}
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return fmt.Errorf("%s must be a non-negative number: %w", field, core.ErrInvalidInput)
	}
	return nil
}

func validateSettlement(record *core.SettlementRecord) error {
	if !record.Kind.Valid() {
		return fmt.Errorf("unknown kind %q: %w", record.Kind, core.ErrInvalidInput)
	}
	if strings.TrimSpace(record.TransactionID) == "" {
		return fmt.Errorf("transactionId is required: %w", core.ErrInvalidInput)
	}
	md := record.Metadata
	if !common.IsHexAddress(md.ActorAddress) {
		return fmt.Errorf("actorAddress: %w", core.ErrInvalidAddress)
	}
	if md.TxHash == "" {
		return fmt.Errorf("txnHash is required: %w", core.ErrInvalidInput)
	}
	if err := validateQuantity("amount", md.Amount, true); err != nil {
		return err
	}
	if err := validateQuantity("quantity", md.Quantity, record.Kind != core.KindPremiumPayment); err != nil {
		return err
	}
	if record.Kind == core.KindPremiumPayment && md.PolicyID == "" {
		return fmt.Errorf("policyId is required: %w", core.ErrInvalidInput)
	}
	return nil
}

// Create stores one record for the caller. The transaction id is normalised to lower case
// so hex casing differences cannot produce two records for the same on-chain action.
func (s *SettlementService) Create(ctx context.Context, session *core.Session, record core.SettlementRecord) (*core.SettlementRecord, error) {
	record.TransactionID = strings.ToLower(strings.TrimSpace(record.TransactionID))
	record.Metadata.UserID = session.UserID
	record.ID = ""
	if record.Status == "" {
		record.Status = core.SettlementSuccessful
	}
	if record.Metadata.OccurredAt.IsZero() {
		record.Metadata.OccurredAt = s.now().UTC()
	}
	record.CreatedAt = s.now().UTC()

	if err := validateSettlement(&record); err != nil {
		return nil, err
	}

	if err := s.repo.CreateSettlement(ctx, &record); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			s.logger.Info("duplicate settlement rejected",
				zap.String("kind", string(record.Kind)),
				zap.String("transaction_id", record.TransactionID))
		}
		return nil, err
	}

	if err := s.eventPub.PublishSettlementRecorded(ctx, &record); err != nil {
		s.logger.Warn("failed to publish settlement event",
			zap.String("transaction_id", record.TransactionID), zap.Error(err))
	}
	return &record, nil
}

// List returns the caller's records of one kind
func (s *SettlementService) List(ctx context.Context, session *core.Session, kind core.SettlementKind) ([]core.SettlementRecord, error) {
	if !kind.Valid() {
		return nil, core.ErrInvalidInput
	}
	return s.repo.ListSettlements(ctx, kind, session.UserID)
}
