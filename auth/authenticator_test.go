package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI issues sequential nonces and verifies signatures the way the backend does:
// every verification attempt consumes the nonce
type fakeAPI struct {
	mu       sync.Mutex
	appName  string
	chainID  string
	issued   map[string]string
	counter  int
	nonceErr error
	logouts  int
	me       *core.AuthenticatedUser
	meErr    error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{appName: "X", chainID: "SN_SEPOLIA", issued: map[string]string{}}
}

func (f *fakeAPI) RequestNonce(_ context.Context, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nonceErr != nil {
		return "", f.nonceErr
	}
	f.counter++
	nonce := fmt.Sprintf("n%d", f.counter)
	f.issued[nonce] = address
	return nonce, nil
}

func (f *fakeAPI) VerifySignature(_ context.Context, proof core.SignatureProof) (*core.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subject, ok := f.issued[proof.Nonce]
	delete(f.issued, proof.Nonce)
	if !ok || !state.SameAddress(subject, proof.Address) {
		return nil, &core.VerificationError{Address: proof.Address, Status: 401, Message: "invalid nonce"}
	}
	sig, err := hexutil.Decode(proof.Signature)
	if err != nil {
		return nil, &core.VerificationError{Address: proof.Address, Status: 401}
	}
	signer, err := eth.RecoverSigner(eth.NonceMessage(f.appName, f.chainID, proof.Nonce), sig)
	if err != nil || !state.SameAddress(signer.Hex(), proof.Address) {
		return nil, &core.VerificationError{Address: proof.Address, Status: 401, Message: "invalid signature"}
	}
	return &core.AuthenticatedUser{ID: "u1", Address: proof.Address}, nil
}

func (f *fakeAPI) LoginEmail(_ context.Context, email, password string) (*core.AuthenticatedUser, error) {
	if password != "secret-password" {
		return nil, core.ErrInvalidCredentials
	}
	return &core.AuthenticatedUser{ID: "u2", Email: email}, nil
}

func (f *fakeAPI) Me(context.Context) (*core.AuthenticatedUser, error) { return f.me, f.meErr }

func (f *fakeAPI) Logout(context.Context) error {
	f.logouts++
	return nil
}

type keyWallet struct {
	session core.WalletSession
	sign    func(core.TypedMessage) (string, error)
	signed  []core.TypedMessage
}

func (w *keyWallet) Session() (core.WalletSession, error) {
	if w.session.Address == "" {
		return core.WalletSession{}, core.ErrNotConnected
	}
	return w.session, nil
}

func (w *keyWallet) SignTypedMessage(_ context.Context, msg core.TypedMessage) (string, error) {
	w.signed = append(w.signed, msg)
	return w.sign(msg)
}

func newKeyWallet(t *testing.T) *keyWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keyWallet{
		session: core.WalletSession{ID: "s1", Kind: core.WalletKeystore, Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), ChainID: "SN_SEPOLIA"},
		sign:    func(msg core.TypedMessage) (string, error) { return eth.SignTypedMessage(msg, key) },
	}
}

func TestLogin(t *testing.T) {
	st := state.New(nil, nil)
	a := New(newFakeAPI(), st, "X", "SN_SEPOLIA")
	w := newKeyWallet(t)

	user, err := a.Login(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	require.Len(t, w.signed, 1)
	msg := w.signed[0]
	assert.Equal(t, core.TypedDomain{Name: "X", Version: "1", ChainID: "SN_SEPOLIA"}, msg.Domain)
	assert.Equal(t, "Message", msg.PrimaryType)
	assert.Equal(t, "n1", msg.Nonce())

	snap := st.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.False(t, snap.Auth.Busy)
}

func TestLoginUsesCachedNonceOnce(t *testing.T) {
	ctx := context.Background()
	a := New(newFakeAPI(), state.New(nil, nil), "X", "SN_SEPOLIA")
	w := newKeyWallet(t)

	nonce, err := a.RequestNonce(ctx, w.session.Address)
	require.NoError(t, err)

	_, err = a.Login(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, nonce, w.signed[0].Nonce())

	_, err = a.Login(ctx, w)
	require.NoError(t, err)
	assert.NotEqual(t, nonce, w.signed[1].Nonce())
}

func TestFailedLoginBurnsNonce(t *testing.T) {
	ctx := context.Background()
	st := state.New(nil, nil)
	a := New(newFakeAPI(), st, "X", "SN_SEPOLIA")
	w := newKeyWallet(t)

	sign := w.sign
	w.sign = func(core.TypedMessage) (string, error) { return "", core.ErrUserRejected }
	_, err := a.Login(ctx, w)
	assert.ErrorIs(t, err, core.ErrUserRejected)
	assert.ErrorIs(t, st.Snapshot().Auth.Err, core.ErrUserRejected)

	w.sign = sign
	_, err = a.Login(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, "n1", w.signed[0].Nonce())
	assert.Equal(t, "n2", w.signed[1].Nonce())
}

func TestVerificationRejectionPropagates(t *testing.T) {
	ctx := context.Background()
	st := state.New(nil, nil)
	api := newFakeAPI()
	a := New(api, st, "X", "SN_SEPOLIA")
	w := newKeyWallet(t)
	other := newKeyWallet(t)

	// account switched between nonce issuance and signing
	w.sign = other.sign
	_, err := a.Login(ctx, w)
	var verr *core.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, core.ErrVerification)

	snap := st.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.User)
}

func TestNonceErrors(t *testing.T) {
	api := newFakeAPI()
	api.nonceErr = errors.New("connection refused")
	a := New(api, state.New(nil, nil), "X", "SN_SEPOLIA")

	_, err := a.Login(context.Background(), newKeyWallet(t))
	var nerr *core.NonceError
	require.ErrorAs(t, err, &nerr)
	assert.ErrorIs(t, err, core.ErrNonce)
}

func TestLoginRequiresConnectedWallet(t *testing.T) {
	a := New(newFakeAPI(), state.New(nil, nil), "X", "SN_SEPOLIA")
	_, err := a.Login(context.Background(), &keyWallet{})
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestEmailLoginMeAndLogout(t *testing.T) {
	ctx := context.Background()
	st := state.New(nil, nil)
	api := newFakeAPI()
	a := New(api, st, "X", "SN_SEPOLIA")

	_, err := a.LoginEmail(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	user, err := a.LoginEmail(ctx, "a@example.com", "secret-password")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)

	api.meErr = core.ErrNotAuthenticated
	_, err = a.Me(ctx)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.False(t, st.Snapshot().Authenticated)

	api.meErr = nil
	api.me = &core.AuthenticatedUser{ID: "u2"}
	_, err = a.Me(ctx)
	require.NoError(t, err)
	assert.True(t, st.Snapshot().Authenticated)

	require.NoError(t, a.Logout(ctx))
	assert.Equal(t, 1, api.logouts)
	assert.False(t, st.Snapshot().Authenticated)
}
