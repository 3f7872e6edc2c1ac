package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	txHash = "0x00000000000000000000000000000000000000000000000000000000000000f1"
	txID   = "0x00000000000000000000000000000000000000000000000000000000000000AA"
)

type fakeExecutor struct {
	err   error
	calls int
}

func (f *fakeExecutor) Execute(context.Context, core.ChainCall) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return txHash, nil
}

type fakeChain struct {
	waitErr    error
	status     core.TxStatus
	receiptErr error
	receipt    *core.TransactionReceipt
}

func (f *fakeChain) WaitForTransaction(context.Context, string) (core.TxStatus, error) {
	if f.waitErr != nil {
		return "", f.waitErr
	}
	return f.status, nil
}

func (f *fakeChain) TransactionReceipt(context.Context, string) (*core.TransactionReceipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

type memJournal struct {
	mu       sync.Mutex
	attempts map[string]core.Attempt
	phases   []core.AttemptPhase
}

func newMemJournal() *memJournal {
	return &memJournal{attempts: map[string]core.Attempt{}}
}

func (j *memJournal) SaveAttempt(_ context.Context, a core.Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[strings.ToLower(a.TxHash)] = a
	j.phases = append(j.phases, a.Phase)
	return nil
}

func (j *memJournal) GetAttempt(_ context.Context, hash string) (core.Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	a, ok := j.attempts[strings.ToLower(hash)]
	if !ok {
		return core.Attempt{}, core.ErrNotFound
	}
	return a, nil
}

func (j *memJournal) ListAttempts(context.Context) ([]core.Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]core.Attempt, 0, len(j.attempts))
	for _, a := range j.attempts {
		out = append(out, a)
	}
	return out, nil
}

var premium = core.Action{
	Kind:       core.KindPremiumPayment,
	Entrypoint: eth.EntrypointPayPremium,
	EventName:  eth.EventPremiumPaymentRecorded,
}

func receiptWith(events ...core.Event) *core.TransactionReceipt {
	return &core.TransactionReceipt{TxHash: txHash, Status: core.TxAccepted, BlockNumber: 10, Events: events}
}

func premiumEvent() core.Event {
	return core.Event{
		Keys: []string{strings.ToUpper(eth.EventSelector(eth.EventPremiumPaymentRecorded))},
		Data: []string{txID, "0x01"},
	}
}

func TestSubmitExtractsCanonicalID(t *testing.T) {
	journal := newMemJournal()
	other := core.Event{Keys: []string{eth.EventSelector("Transfer")}, Data: []string{"0xdead"}}
	chain := &fakeChain{status: core.TxAccepted, receipt: receiptWith(other, premiumEvent())}
	o := New(&fakeExecutor{}, chain, journal)

	sub, err := o.Submit(context.Background(), premium, core.ChainCall{}, core.SettlementMetadata{Amount: "5"})
	require.NoError(t, err)
	assert.Equal(t, txID, sub.TransactionID)
	assert.Equal(t, txHash, sub.TxHash)
	assert.Equal(t, premium, sub.Action)

	assert.Equal(t, []core.AttemptPhase{core.PhaseSubmitted, core.PhaseConfirmed}, journal.phases)
	attempt, err := journal.GetAttempt(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, sub.TransactionID, attempt.TransactionID)
	assert.Equal(t, txHash, attempt.Metadata.TxHash)
	assert.Equal(t, "5", attempt.Metadata.Amount)
}

func TestExecutionFailureHasNoSideEffects(t *testing.T) {
	journal := newMemJournal()
	o := New(&fakeExecutor{err: core.ErrUserRejected}, &fakeChain{}, journal)

	_, err := o.Submit(context.Background(), premium, core.ChainCall{}, core.SettlementMetadata{})
	var eerr *core.ExecutionError
	require.ErrorAs(t, err, &eerr)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.ErrorIs(t, err, core.ErrUserRejected)
	assert.Empty(t, journal.phases)
}

func TestConfirmationFailureReasons(t *testing.T) {
	boom := errors.New("rpc unavailable")
	tests := []struct {
		name   string
		chain  *fakeChain
		reason core.ConfirmationReason
		remedy core.Remedy
		phase  core.AttemptPhase
	}{
		{"provider", &fakeChain{waitErr: boom}, core.ConfirmationProviderFailed, core.RemedyDoNotRetry, core.PhaseConfirmationFailed},
		{"reverted", &fakeChain{status: core.TxReverted}, core.ConfirmationReverted, core.RemedyRetry, core.PhaseReverted},
		{"receipt", &fakeChain{status: core.TxAccepted, receiptErr: boom}, core.ConfirmationReceiptUnavailable, core.RemedyPollAgain, core.PhaseConfirmationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := newMemJournal()
			o := New(&fakeExecutor{}, tt.chain, journal)

			_, err := o.Submit(context.Background(), premium, core.ChainCall{}, core.SettlementMetadata{})
			var cerr *core.ConfirmationError
			require.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, core.ErrConfirmation)
			assert.Equal(t, tt.reason, cerr.Reason)
			assert.Equal(t, tt.remedy, cerr.Remedy())

			attempt, err := journal.GetAttempt(context.Background(), txHash)
			require.NoError(t, err)
			assert.Equal(t, tt.phase, attempt.Phase)
			assert.NotEmpty(t, attempt.LastError)
		})
	}
}

func TestEventMissing(t *testing.T) {
	journal := newMemJournal()
	chain := &fakeChain{status: core.TxAccepted, receipt: receiptWith(core.Event{Keys: []string{"0x01"}, Data: []string{"0x02"}})}
	o := New(&fakeExecutor{}, chain, journal)

	_, err := o.Submit(context.Background(), premium, core.ChainCall{}, core.SettlementMetadata{})
	var nerr *core.EventNotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.ErrorIs(t, err, core.ErrEventNotFound)
	assert.Equal(t, eth.EventSelector(eth.EventPremiumPaymentRecorded), nerr.Selector)

	attempt, err := journal.GetAttempt(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseEventMissing, attempt.Phase)
	assert.Empty(t, attempt.TransactionID)
}

func TestResumeAfterProviderFailure(t *testing.T) {
	ctx := context.Background()
	journal := newMemJournal()
	chain := &fakeChain{waitErr: errors.New("timeout")}
	exec := &fakeExecutor{}
	o := New(exec, chain, journal)

	_, err := o.Submit(ctx, premium, core.ChainCall{}, core.SettlementMetadata{})
	require.ErrorIs(t, err, core.ErrConfirmation)

	chain.waitErr = nil
	chain.status = core.TxAccepted
	chain.receipt = receiptWith(premiumEvent())

	sub, err := o.Resume(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, txID, sub.TransactionID)
	assert.Equal(t, 1, exec.calls)

	again, err := o.Resume(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, sub.TransactionID, again.TransactionID)

	_, err = o.Resume(ctx, "0xunknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestResumeRefusesTerminalAttempts(t *testing.T) {
	ctx := context.Background()
	journal := newMemJournal()
	o := New(&fakeExecutor{}, &fakeChain{status: core.TxReverted}, journal)

	_, err := o.Submit(ctx, premium, core.ChainCall{}, core.SettlementMetadata{})
	require.ErrorIs(t, err, core.ErrConfirmation)

	_, err = o.Resume(ctx, txHash)
	assert.Error(t, err)
}
