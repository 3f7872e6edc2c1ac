// Package recorder writes the off-chain settlement record of a confirmed on-chain action.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/ports"
	"github.com/layer-3/stindem/state"
	"go.uber.org/zap"
)

// Option configures a Recorder
type Option func(*Recorder)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Recorder) { r.metrics = rec }
}

// Recorder posts settlement records and keeps the cached lists in the state container current
type Recorder struct {
	api     ports.SettlementAPI
	journal ports.AttemptJournal
	state   *state.Container
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func New(api ports.SettlementAPI, journal ports.AttemptJournal, st *state.Container, opts ...Option) *Recorder {
	r := &Recorder{
		api:     api,
		journal: journal,
		state:   st,
		logger:  zap.NewNop(),
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("recorder")
	return r
}

// Record writes exactly one settlement for txID. The attempt is journaled as recording
// before the POST so a crash in between stays visible in Pending.
// A record the backend already holds counts as recorded.
func (r *Recorder) Record(ctx context.Context, kind core.SettlementKind, txID string, meta core.SettlementMetadata) (*core.SettlementRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: settlement kind %q", core.ErrInvalidInput, kind)
	}
	if txID == "" {
		return nil, fmt.Errorf("%w: empty transaction id", core.ErrInvalidInput)
	}
	labels := map[string]string{"kind": string(kind)}

	attempt := r.beginAttempt(ctx, kind, txID, meta)
	if attempt != nil {
		meta = attempt.Metadata
	}
	started := r.now()

	record := core.SettlementRecord{
		Kind:          kind,
		TransactionID: txID,
		Metadata:      meta,
		Status:        core.SettlementSuccessful,
	}
	created, err := r.api.CreateSettlement(ctx, record)
	switch {
	case errors.Is(err, core.ErrAlreadyRecorded):
		r.metrics.IncCounter(metrics.SettlementDuplicate, labels)
		r.logger.Info("settlement already recorded", zap.String("kind", string(kind)), zap.String("transaction_id", txID))
		created = r.lookup(ctx, kind, txID, record)
	case err != nil:
		r.metrics.IncCounter(metrics.ReconciliationFailed, labels)
		r.finishAttempt(ctx, attempt, core.PhaseRecordFailed, err)
		r.logger.Error("settlement not recorded after on-chain success",
			zap.String("kind", string(kind)),
			zap.String("transaction_id", txID),
			zap.String("tx_hash", meta.TxHash),
			zap.Error(err))
		return nil, &core.ReconciliationError{Kind: kind, TransactionID: txID, TxHash: meta.TxHash, Err: err}
	default:
		r.metrics.IncCounter(metrics.SettlementRecorded, labels)
		r.state.AppendSettlement(*created)
	}

	r.metrics.ObserveLatency(metrics.RecordLatency, r.now().Sub(started), labels)
	r.finishAttempt(ctx, attempt, core.PhaseRecorded, nil)
	return created, nil
}

// lookup refreshes the cached list and returns the stored record for txID.
// When the list cannot be read the submitted record stands in for it.
func (r *Recorder) lookup(ctx context.Context, kind core.SettlementKind, txID string, fallback core.SettlementRecord) *core.SettlementRecord {
	records, err := r.Refresh(ctx, kind)
	if err != nil {
		r.logger.Warn("refresh settlements", zap.String("kind", string(kind)), zap.Error(err))
		return &fallback
	}
	for i := range records {
		if strings.EqualFold(records[i].TransactionID, txID) {
			return &records[i]
		}
	}
	return &fallback
}

func (r *Recorder) beginAttempt(ctx context.Context, kind core.SettlementKind, txID string, meta core.SettlementMetadata) *core.Attempt {
	if meta.TxHash == "" {
		return nil
	}
	now := r.now().UTC()
	attempt, err := r.journal.GetAttempt(ctx, meta.TxHash)
	if err != nil {
		attempt = core.Attempt{TxHash: meta.TxHash, Kind: kind, CreatedAt: now}
	}
	attempt.TransactionID = txID
	attempt.Metadata = mergeMetadata(attempt.Metadata, meta)
	attempt.Phase = core.PhaseRecording
	attempt.LastError = ""
	attempt.UpdatedAt = now
	if err := r.journal.SaveAttempt(ctx, attempt); err != nil {
		r.logger.Error("journal attempt", zap.String("tx_hash", meta.TxHash), zap.Error(err))
	}
	return &attempt
}

// mergeMetadata keeps the journaled fields and takes only the non-empty ones from update
func mergeMetadata(journaled, update core.SettlementMetadata) core.SettlementMetadata {
	merged := journaled
	fill(&merged.UserID, update.UserID)
	fill(&merged.PolicyID, update.PolicyID)
	fill(&merged.ActorAddress, update.ActorAddress)
	fill(&merged.Quantity, update.Quantity)
	fill(&merged.Amount, update.Amount)
	fill(&merged.TxHash, update.TxHash)
	if !update.OccurredAt.IsZero() {
		merged.OccurredAt = update.OccurredAt
	}
	return merged
}

func fill(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (r *Recorder) finishAttempt(ctx context.Context, attempt *core.Attempt, phase core.AttemptPhase, cause error) {
	if attempt == nil {
		return
	}
	attempt.Phase = phase
	attempt.LastError = ""
	if cause != nil {
		attempt.LastError = cause.Error()
	}
	attempt.UpdatedAt = r.now().UTC()
	if err := r.journal.SaveAttempt(ctx, *attempt); err != nil {
		r.logger.Error("journal attempt", zap.String("tx_hash", attempt.TxHash), zap.String("phase", string(phase)), zap.Error(err))
	}
}

// Refresh reloads the records of kind for the authenticated user
func (r *Recorder) Refresh(ctx context.Context, kind core.SettlementKind) ([]core.SettlementRecord, error) {
	snap := r.state.Snapshot()
	if !snap.Authenticated || snap.User == nil {
		return nil, core.ErrNotAuthenticated
	}
	records, err := r.api.ListSettlements(ctx, kind, snap.User.ID)
	if err != nil {
		return nil, err
	}
	r.state.SetSettlements(kind, records)
	return records, nil
}

// Pending lists the attempts that still need attention
func (r *Recorder) Pending(ctx context.Context) ([]core.Attempt, error) {
	all, err := r.journal.ListAttempts(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]core.Attempt, 0, len(all))
	for _, a := range all {
		if !a.Phase.Settled() {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// RetryRecord replays the settlement POST of a journaled attempt. It is an explicit
// operator action for attempts that confirmed on-chain but were never recorded.
func (r *Recorder) RetryRecord(ctx context.Context, txHash string) (*core.SettlementRecord, error) {
	attempt, err := r.journal.GetAttempt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("load attempt %s: %w", txHash, err)
	}
	switch attempt.Phase {
	case core.PhaseConfirmed, core.PhaseRecording, core.PhaseRecordFailed:
	default:
		return nil, fmt.Errorf("attempt %s is %s, nothing to record", attempt.TxHash, attempt.Phase)
	}
	if attempt.TransactionID == "" {
		return nil, fmt.Errorf("attempt %s has no transaction id", attempt.TxHash)
	}
	meta := attempt.Metadata
	meta.TxHash = attempt.TxHash
	return r.Record(ctx, attempt.Kind, attempt.TransactionID, meta)
}
