package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	txHash = "0xf1"
	txID   = "0xtx1"
)

// fakeAPI enforces one record per (kind, transaction id) like the backend
type fakeAPI struct {
	mu      sync.Mutex
	posts   int
	err     error
	records map[core.SettlementKind][]core.SettlementRecord
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{records: map[core.SettlementKind][]core.SettlementRecord{}}
}

func (f *fakeAPI) CreateSettlement(_ context.Context, record core.SettlementRecord) (*core.SettlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records[record.Kind] {
		if strings.EqualFold(r.TransactionID, record.TransactionID) {
			return nil, core.ErrAlreadyRecorded
		}
	}
	record.ID = "rec-" + record.TransactionID
	record.Metadata.UserID = "u1"
	f.records[record.Kind] = append(f.records[record.Kind], record)
	return &record, nil
}

func (f *fakeAPI) ListSettlements(_ context.Context, kind core.SettlementKind, _ string) ([]core.SettlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.SettlementRecord(nil), f.records[kind]...), nil
}

type memJournal struct {
	mu       sync.Mutex
	attempts map[string]core.Attempt
}

func newMemJournal() *memJournal { return &memJournal{attempts: map[string]core.Attempt{}} }

func (j *memJournal) SaveAttempt(_ context.Context, a core.Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[a.TxHash] = a
	return nil
}

func (j *memJournal) GetAttempt(_ context.Context, hash string) (core.Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	a, ok := j.attempts[hash]
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

func authenticatedState() *state.Container {
	st := state.New(nil, nil)
	st.AuthSucceeded(core.AuthenticatedUser{ID: "u1"})
	return st
}

func confirmedAttempt(j *memJournal) {
	_ = j.SaveAttempt(context.Background(), core.Attempt{
		TxHash:        txHash,
		Kind:          core.KindPremiumPayment,
		TransactionID: txID,
		Metadata:      core.SettlementMetadata{TxHash: txHash, Amount: "10", PolicyID: "7"},
		Phase:         core.PhaseConfirmed,
	})
}

func TestRecordOnce(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	journal := newMemJournal()
	confirmedAttempt(journal)
	st := authenticatedState()
	r := New(api, journal, st)

	meta := core.SettlementMetadata{TxHash: txHash, Amount: "10", PolicyID: "7"}
	rec, err := r.Record(ctx, core.KindPremiumPayment, txID, meta)
	require.NoError(t, err)
	assert.Equal(t, txID, rec.TransactionID)
	assert.Equal(t, 1, api.posts)

	attempt, err := journal.GetAttempt(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRecorded, attempt.Phase)
	assert.Len(t, st.Snapshot().Settlements[core.KindPremiumPayment], 1)

	again, err := r.Record(ctx, core.KindPremiumPayment, txID, meta)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Len(t, api.records[core.KindPremiumPayment], 1)
	assert.Len(t, st.Snapshot().Settlements[core.KindPremiumPayment], 1)
}

func TestSameIDDifferentKinds(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	r := New(api, newMemJournal(), authenticatedState())

	_, err := r.Record(ctx, core.KindTokenPurchase, txID, core.SettlementMetadata{})
	require.NoError(t, err)
	_, err = r.Record(ctx, core.KindTokenRecovery, txID, core.SettlementMetadata{})
	require.NoError(t, err)
	assert.Len(t, api.records[core.KindTokenPurchase], 1)
	assert.Len(t, api.records[core.KindTokenRecovery], 1)
}

func TestRecordFailureIsReconciliationError(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.err = errors.New("502 bad gateway")
	journal := newMemJournal()
	confirmedAttempt(journal)
	r := New(api, journal, authenticatedState())

	_, err := r.Record(ctx, core.KindPremiumPayment, txID, core.SettlementMetadata{TxHash: txHash})
	var rerr *core.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, core.ErrReconciliation)
	assert.Equal(t, txID, rerr.TransactionID)
	assert.Equal(t, txHash, rerr.TxHash)

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, core.PhaseRecordFailed, pending[0].Phase)

	api.err = nil
	rec, err := r.RetryRecord(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, "10", rec.Metadata.Amount)

	pending, err = r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = r.RetryRecord(ctx, txHash)
	assert.Error(t, err)
}

func TestRecordKeepsJournaledMetadata(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.err = errors.New("502 bad gateway")
	journal := newMemJournal()
	confirmedAttempt(journal)
	r := New(api, journal, authenticatedState())

	_, err := r.Record(ctx, core.KindPremiumPayment, txID, core.SettlementMetadata{TxHash: txHash, UserID: "u1"})
	require.Error(t, err)

	attempt, err := journal.GetAttempt(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRecordFailed, attempt.Phase)
	assert.Equal(t, "10", attempt.Metadata.Amount)
	assert.Equal(t, "7", attempt.Metadata.PolicyID)
	assert.Equal(t, "u1", attempt.Metadata.UserID)

	api.err = nil
	_, err = r.RetryRecord(ctx, txHash)
	require.NoError(t, err)
	require.Len(t, api.records[core.KindPremiumPayment], 1)
	posted := api.records[core.KindPremiumPayment][0].Metadata
	assert.Equal(t, "10", posted.Amount)
	assert.Equal(t, "7", posted.PolicyID)
}

func TestRefreshRequiresAuthentication(t *testing.T) {
	r := New(newFakeAPI(), newMemJournal(), state.New(nil, nil))
	_, err := r.Refresh(context.Background(), core.KindPremiumPayment)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	api := newFakeAPI()
	r := New(api, newMemJournal(), authenticatedState())

	_, err := r.Record(context.Background(), "loans", txID, core.SettlementMetadata{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = r.Record(context.Background(), core.KindPremiumPayment, "", core.SettlementMetadata{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Zero(t, api.posts)
}
