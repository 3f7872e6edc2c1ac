package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/layer-3/stindem/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	empty, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, empty.CanRestore())

	st := core.PersistedState{
		WalletKind:      core.WalletKeystore,
		ChainID:         "11155111",
		LastConnectedAt: time.Now().UTC().Truncate(time.Second),
		User:            &core.AuthenticatedUser{ID: "u1", Address: "0xabc"},
		Authenticated:   true,
	}
	require.NoError(t, s.SaveState(ctx, st))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, got.CanRestore())
	assert.Equal(t, st.WalletKind, got.WalletKind)
	assert.True(t, st.LastConnectedAt.Equal(got.LastConnectedAt))
	require.NotNil(t, got.User)
	assert.Equal(t, "u1", got.User.ID)
	assert.True(t, got.Authenticated)
}

func TestAttemptJournal(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	base := time.Now().UTC()
	require.NoError(t, s.SaveAttempt(ctx, core.Attempt{TxHash: "0xB", Phase: core.PhaseSubmitted, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.SaveAttempt(ctx, core.Attempt{TxHash: "0xA", Phase: core.PhaseSubmitted, CreatedAt: base}))

	a := core.Attempt{TxHash: "0xA", Phase: core.PhaseConfirmed, TransactionID: "0xTX1", CreatedAt: base}
	require.NoError(t, s.SaveAttempt(ctx, a))

	got, err := s.GetAttempt(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseConfirmed, got.Phase)
	assert.Equal(t, "0xTX1", got.TransactionID)

	_, err = s.GetAttempt(ctx, "0xmissing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := s.ListAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0xA", list[0].TxHash)

	assert.ErrorIs(t, s.SaveAttempt(ctx, core.Attempt{}), core.ErrInvalidInput)
}
