package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/stindem/adapters/store"
	"github.com/layer-3/stindem/adapters/tokenizer"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDomain = tokenizer.Domain{AppName: "X", ChainID: "SN_SEPOLIA"}

type authFixture struct {
	svc   *AuthService
	users *fakeUsers
	pub   *fakePublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	users := newFakeUsers()
	pub := &fakePublisher{}
	svc := NewAuthService(tokenizer.NewJWTTokenizer(key, testDomain), store.NewMemoryStore(), pub, users)
	return &authFixture{svc: svc, users: users, pub: pub}
}

func signNonce(t *testing.T, key *ecdsa.PrivateKey, nonce string) string {
	t.Helper()
	sig, err := eth.SignTypedMessage(eth.NonceMessage(testDomain.AppName, testDomain.ChainID, nonce), key)
	require.NoError(t, err)
	return sig
}

func TestNonceIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := f.svc.RequestNonce(ctx, addr)
	require.NoError(t, err)
	proof := core.SignatureProof{Address: addr, Signature: signNonce(t, key, nonce), Nonce: nonce, WalletKind: core.WalletKeystore}

	user, tokens, err := f.svc.VerifySignature(ctx, proof)
	require.NoError(t, err)
	assert.Equal(t, addr, user.Address)
	assert.NotEmpty(t, tokens.AccessToken)

	_, _, err = f.svc.VerifySignature(ctx, proof)
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestFailedVerificationBurnsNonce(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := f.svc.RequestNonce(ctx, addr)
	require.NoError(t, err)

	_, _, err = f.svc.VerifySignature(ctx, core.SignatureProof{Address: addr, Signature: "0x00", Nonce: nonce})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, _, err = f.svc.VerifySignature(ctx, core.SignatureProof{Address: addr, Signature: signNonce(t, key, nonce), Nonce: nonce})
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestAccountSwitchMidFlowIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	first, err := crypto.GenerateKey()
	require.NoError(t, err)
	second, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce, err := f.svc.RequestNonce(ctx, crypto.PubkeyToAddress(first.PublicKey).Hex())
	require.NoError(t, err)

	secondAddr := crypto.PubkeyToAddress(second.PublicKey).Hex()
	_, _, err = f.svc.VerifySignature(ctx, core.SignatureProof{
		Address: secondAddr, Signature: signNonce(t, second, nonce), Nonce: nonce,
	})
	assert.ErrorIs(t, err, core.ErrAddressMismatch)
}

func TestRequestNonceRejectsBadAddress(t *testing.T) {
	_, err := newAuthFixture(t).svc.RequestNonce(context.Background(), "0xnope")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.RegisterEmail(ctx, "ann@example.com", "correct-horse", "Ann")
	require.NoError(t, err)
	user, tokens, err := f.svc.LoginEmail(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)

	session, err := f.svc.ValidateAccessToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	me, err := f.svc.Me(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	rotated, err := f.svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// the old access token is bound to the rotated refresh id
	_, err = f.svc.ValidateAccessToken(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	require.NoError(t, f.svc.Logout(ctx, rotated.RefreshToken))
	_, err = f.svc.ValidateAccessToken(ctx, rotated.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	assert.Len(t, f.pub.logouts, 1)
}

func TestLogoutSurvivesPublisherFailure(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.pub.err = errors.New("broker down")

	_, err := f.svc.RegisterEmail(ctx, "bob@example.com", "password1", "")
	require.NoError(t, err)
	_, tokens, err := f.svc.LoginEmail(ctx, "bob@example.com", "password1")
	require.NoError(t, err)

	assert.NoError(t, f.svc.Logout(ctx, tokens.RefreshToken))
}

func TestLoginEmailRejectsBadPassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.RegisterEmail(ctx, "ann@example.com", "correct-horse", "Ann")
	require.NoError(t, err)
	_, err = f.svc.RegisterEmail(ctx, "ann@example.com", "correct-horse", "Ann")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
	_, err = f.svc.RegisterEmail(ctx, "short@example.com", "123", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, _, err = f.svc.LoginEmail(ctx, "ann@example.com", "wrong-horse")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	_, _, err = f.svc.LoginEmail(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
}

func TestExpiredRefreshRejected(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.RegisterEmail(ctx, "ann@example.com", "correct-horse", "")
	require.NoError(t, err)
	_, tokens, err := f.svc.LoginEmail(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(6 * 24 * time.Hour) }
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.NoError(t, f.svc.Logout(ctx, tokens.RefreshToken))
}
