// Package orchestrator submits contract calls and turns their receipts into canonical transaction ids.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/ports"
	"go.uber.org/zap"
)

// Executor submits a call through the connected account
type Executor interface {
	Execute(ctx context.Context, call core.ChainCall) (txHash string, err error)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = rec }
}

// Orchestrator runs execute, confirmation and event extraction for every action kind
type Orchestrator struct {
	executor Executor
	chain    ports.Chain
	journal  ports.AttemptJournal
	logger   *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

func New(executor Executor, chain ports.Chain, journal ports.AttemptJournal, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		chain:    chain,
		journal:  journal,
		logger:   zap.NewNop(),
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// Submit executes call and waits for the action's event. meta is journaled with the
// attempt so its settlement can be recorded later. There is no timeout besides ctx.
func (o *Orchestrator) Submit(ctx context.Context, action core.Action, call core.ChainCall, meta core.SettlementMetadata) (*core.Submission, error) {
	labels := map[string]string{"kind": string(action.Kind)}

	txHash, err := o.executor.Execute(ctx, call)
	if err != nil {
		o.metrics.IncCounter(metrics.TxExecutionFailed, labels)
		return nil, &core.ExecutionError{Entrypoint: action.Entrypoint, Err: err}
	}
	o.metrics.IncCounter(metrics.TxSubmitted, labels)
	o.logger.Info("transaction submitted",
		zap.String("kind", string(action.Kind)),
		zap.String("entrypoint", action.Entrypoint),
		zap.String("tx_hash", txHash))

	now := o.now().UTC()
	meta.TxHash = txHash
	attempt := core.Attempt{
		TxHash:     txHash,
		Kind:       action.Kind,
		Entrypoint: action.Entrypoint,
		EventName:  action.EventName,
		Metadata:   meta,
		Phase:      core.PhaseSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.save(ctx, &attempt)

	return o.confirm(ctx, action, &attempt)
}

// Resume polls again for an attempt whose confirmation was not resolved.
// Attempts that already carry a canonical id are returned as they are.
func (o *Orchestrator) Resume(ctx context.Context, txHash string) (*core.Submission, error) {
	attempt, err := o.journal.GetAttempt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("load attempt %s: %w", txHash, err)
	}
	action := core.Action{Kind: attempt.Kind, Entrypoint: attempt.Entrypoint, EventName: attempt.EventName}

	switch attempt.Phase {
	case core.PhaseSubmitted, core.PhaseConfirmationFailed:
		return o.confirm(ctx, action, &attempt)
	case core.PhaseConfirmed, core.PhaseRecording, core.PhaseRecordFailed, core.PhaseRecorded:
		return &core.Submission{Action: action, TxHash: attempt.TxHash, TransactionID: attempt.TransactionID}, nil
	default:
		return nil, fmt.Errorf("attempt %s ended as %s and cannot be resumed", attempt.TxHash, attempt.Phase)
	}
}

func (o *Orchestrator) confirm(ctx context.Context, action core.Action, attempt *core.Attempt) (*core.Submission, error) {
	labels := map[string]string{"kind": string(action.Kind)}
	started := o.now()

	status, err := o.chain.WaitForTransaction(ctx, attempt.TxHash)
	if err != nil {
		return nil, o.confirmationFailed(ctx, attempt, core.ConfirmationProviderFailed, core.PhaseConfirmationFailed, err)
	}
	if status == core.TxReverted {
		return nil, o.confirmationFailed(ctx, attempt, core.ConfirmationReverted, core.PhaseReverted, nil)
	}

	receipt, err := o.chain.TransactionReceipt(ctx, attempt.TxHash)
	if err != nil {
		return nil, o.confirmationFailed(ctx, attempt, core.ConfirmationReceiptUnavailable, core.PhaseConfirmationFailed, err)
	}
	if receipt.Status == core.TxReverted {
		return nil, o.confirmationFailed(ctx, attempt, core.ConfirmationReverted, core.PhaseReverted, nil)
	}
	o.metrics.ObserveLatency(metrics.ConfirmationLatency, o.now().Sub(started), labels)

	txID, err := extract(receipt, action.EventName)
	if err != nil {
		o.metrics.IncCounter(metrics.EventMissing, labels)
		attempt.Phase = core.PhaseEventMissing
		attempt.LastError = err.Error()
		o.save(ctx, attempt)
		o.logger.Error("transaction confirmed without expected event",
			zap.String("kind", string(action.Kind)),
			zap.String("tx_hash", attempt.TxHash),
			zap.String("event", action.EventName))
		return nil, &core.EventNotFoundError{
			TxHash:    attempt.TxHash,
			EventName: action.EventName,
			Selector:  eth.EventSelector(action.EventName),
		}
	}

	attempt.Phase = core.PhaseConfirmed
	attempt.TransactionID = txID
	attempt.LastError = ""
	o.save(ctx, attempt)
	o.metrics.IncCounter(metrics.TxConfirmed, labels)
	o.logger.Info("transaction confirmed",
		zap.String("kind", string(action.Kind)),
		zap.String("tx_hash", attempt.TxHash),
		zap.String("transaction_id", txID),
		zap.Uint64("block", receipt.BlockNumber))

	return &core.Submission{
		Action:        action,
		TxHash:        attempt.TxHash,
		TransactionID: txID,
		Receipt:       receipt,
		ConfirmedAt:   o.now().UTC(),
	}, nil
}

// extract returns the first data field of the first event matching eventName
func extract(receipt *core.TransactionReceipt, eventName string) (string, error) {
	ev, ok := eth.FindEvent(receipt.Events, eventName)
	if !ok {
		return "", fmt.Errorf("no %s event among %d", eventName, len(receipt.Events))
	}
	return eth.CanonicalTxID(ev)
}

func (o *Orchestrator) confirmationFailed(ctx context.Context, attempt *core.Attempt, reason core.ConfirmationReason, phase core.AttemptPhase, cause error) error {
	o.metrics.IncCounter(metrics.TxConfirmationFailed, map[string]string{"kind": string(attempt.Kind), "status": string(reason)})
	cerr := &core.ConfirmationError{TxHash: attempt.TxHash, Reason: reason, Err: cause}

	attempt.Phase = phase
	attempt.LastError = cerr.Error()
	o.save(ctx, attempt)

	o.logger.Warn("transaction confirmation failed",
		zap.String("kind", string(attempt.Kind)),
		zap.String("tx_hash", attempt.TxHash),
		zap.String("reason", string(reason)),
		zap.String("remedy", string(cerr.Remedy())),
		zap.Error(cause))
	return cerr
}

// save journals the attempt. The transaction is already on its way, so a journal
// failure is logged and does not abort the attempt.
func (o *Orchestrator) save(ctx context.Context, attempt *core.Attempt) {
	attempt.UpdatedAt = o.now().UTC()
	if err := o.journal.SaveAttempt(ctx, *attempt); err != nil {
		o.logger.Error("journal attempt",
			zap.String("tx_hash", attempt.TxHash),
			zap.String("phase", string(attempt.Phase)),
			zap.Error(err))
	}
}
