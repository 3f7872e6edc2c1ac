package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDomain = Domain{AppName: "X", ChainID: "SN_SEPOLIA"}

func newTestTokenizer(t *testing.T) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key, testDomain).(*JWTTokenizer)
}

func TestSessionTokensRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	now := time.Now().Truncate(time.Second)
	session := &core.Session{
		ID:            "s1",
		UserID:        "u1",
		Address:       "0xabc",
		IssuedAt:      now,
		AccessExpiry:  now.Add(5 * time.Minute),
		RefreshExpiry: now.Add(time.Hour),
		RefreshID:     "r1",
	}

	access, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)
	got, err := tk.AccessTokenToSession(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "0xabc", got.Address)
	assert.Equal(t, "r1", got.RefreshID)
	assert.True(t, got.AccessExpiry.Equal(session.AccessExpiry))

	refresh, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)
	got, err = tk.RefreshTokenToSession(refresh)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefreshID)
	assert.Equal(t, "u1", got.UserID)

	// audiences are not interchangeable
	_, err = tk.AccessTokenToSession(refresh)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	_, err = tk.RefreshTokenToSession(access)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredRefreshTokenStillParses(t *testing.T) {
	tk := newTestTokenizer(t)
	past := time.Now().Add(-2 * time.Hour)
	refresh, err := tk.SessionToRefreshToken(&core.Session{
		UserID: "u1", IssuedAt: past, RefreshExpiry: past.Add(time.Hour), RefreshID: "r1",
	})
	require.NoError(t, err)

	got, err := tk.RefreshTokenToSession(refresh)
	require.NoError(t, err)
	assert.True(t, time.Now().After(got.RefreshExpiry))
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	a, b := newTestTokenizer(t), newTestTokenizer(t)
	access, err := a.SessionToAccessToken(&core.Session{
		UserID: "u1", IssuedAt: time.Now(), AccessExpiry: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	_, err = b.AccessTokenToSession(access)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerifySignature(t *testing.T) {
	tk := newTestTokenizer(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge := &core.NonceChallenge{Address: addr, Nonce: "n1"}
	sig, err := eth.SignTypedMessage(eth.NonceMessage(testDomain.AppName, testDomain.ChainID, "n1"), key)
	require.NoError(t, err)

	require.NoError(t, tk.VerifySignature(challenge, sig, addr))

	// address comparison ignores checksum casing
	lower := strings.ToLower(addr)
	assert.NoError(t, tk.VerifySignature(challenge, sig, lower))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := crypto.PubkeyToAddress(other.PublicKey).Hex()
	assert.ErrorIs(t, tk.VerifySignature(challenge, sig, otherAddr), core.ErrAddressMismatch)

	// signed under another domain
	badSig, err := eth.SignTypedMessage(eth.NonceMessage("Y", testDomain.ChainID, "n1"), key)
	require.NoError(t, err)
	assert.ErrorIs(t, tk.VerifySignature(challenge, badSig, addr), core.ErrInvalidSignature)

	assert.ErrorIs(t, tk.VerifySignature(challenge, "0xzz", addr), core.ErrInvalidSignature)
}
