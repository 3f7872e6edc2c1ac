package service

import (
	"context"
	"testing"

	"github.com/layer-3/stindem/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumRecord(txID string) core.SettlementRecord {
	return core.SettlementRecord{
		Kind:          core.KindPremiumPayment,
		TransactionID: txID,
		Metadata: core.SettlementMetadata{
			PolicyID:     "7",
			ActorAddress: "0x00000000000000000000000000000000000000bb",
			Amount:       "100",
			TxHash:       "0xhash",
		},
	}
}

func TestSettlementCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := &fakeSettlements{}
	pub := &fakePublisher{}
	svc := NewSettlementService(repo, pub, nil)
	session := &core.Session{UserID: "u1"}

	rec, err := svc.Create(ctx, session, premiumRecord("0xTX1"))
	require.NoError(t, err)
	assert.Equal(t, "0xtx1", rec.TransactionID)
	assert.Equal(t, "u1", rec.Metadata.UserID)
	assert.Equal(t, core.SettlementSuccessful, rec.Status)

	_, err = svc.Create(ctx, session, premiumRecord("0xtx1"))
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	assert.Len(t, repo.records, 1)
	assert.Len(t, pub.settlements, 1)

	list, err := svc.List(ctx, session, core.KindPremiumPayment)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSettlementCreateValidates(t *testing.T) {
	ctx := context.Background()
	svc := NewSettlementService(&fakeSettlements{}, &fakePublisher{}, nil)
	session := &core.Session{UserID: "u1"}

	rec := premiumRecord("")
	_, err := svc.Create(ctx, session, rec)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	rec = premiumRecord("0x1")
	rec.Metadata.ActorAddress = "nope"
	_, err = svc.Create(ctx, session, rec)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	rec = premiumRecord("0x1")
	rec.Metadata.Amount = "-5"
	_, err = svc.Create(ctx, session, rec)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	rec = premiumRecord("0x1")
	rec.Kind = core.KindTokenPurchase
	_, err = svc.Create(ctx, session, rec)
	assert.ErrorIs(t, err, core.ErrInvalidInput, "purchase requires a quantity")
}
