package eth

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainIDValue(t *testing.T) {
	sepolia, ok := new(big.Int).SetString("534e5f5345504f4c4941", 16)
	require.True(t, ok)

	cases := []struct {
		in   string
		want *big.Int
	}{
		{"1", big.NewInt(1)},
		{"11155111", big.NewInt(11155111)},
		{"0xaa36a7", big.NewInt(11155111)},
		{"0x0001", big.NewInt(1)},
		{"SN_SEPOLIA", sepolia},
	}
	for _, tc := range cases {
		got, err := ChainIDValue(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, 0, tc.want.Cmp(got), tc.in)
	}

	_, err := ChainIDValue("")
	assert.Error(t, err)
	_, err = ChainIDValue("0xzz")
	assert.Error(t, err)
	_, err = ChainIDValue(strings.Repeat("A", 32))
	assert.Error(t, err)
}

func TestSignTypedMessageRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg := NonceMessage("X", "SN_SEPOLIA", "n1")
	assert.Equal(t, "n1", msg.Nonce())
	assert.Equal(t, DomainVersion, msg.Domain.Version)

	sigHex, err := SignTypedMessage(msg, key)
	require.NoError(t, err)
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[crypto.RecoveryIDOffset])

	signer, err := RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, signer)

	// raw recovery id is accepted as well
	raw := append([]byte(nil), sig...)
	raw[crypto.RecoveryIDOffset] -= 27
	ok, err := VerifySignatureAgainstAddress(msg, raw, addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDomainMismatchInvalidatesSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sigHex, err := SignTypedMessage(NonceMessage("X", "SN_SEPOLIA", "n1"), key)
	require.NoError(t, err)
	sig := hexutil.MustDecode(sigHex)

	for _, other := range []struct{ name, chain, nonce string }{
		{"Y", "SN_SEPOLIA", "n1"},
		{"X", "SN_MAIN", "n1"},
		{"X", "SN_SEPOLIA", "n2"},
	} {
		ok, err := VerifySignatureAgainstAddress(NonceMessage(other.name, other.chain, other.nonce), sig, addr)
		require.NoError(t, err)
		assert.False(t, ok, "%+v", other)
	}
}

func TestToTypedDataRejectsIncompleteDomain(t *testing.T) {
	msg := NonceMessage("", "1", "n1")
	_, err := ToTypedData(msg)
	assert.ErrorIs(t, err, ErrIncompleteDomain)

	msg = NonceMessage("X", "1", "n1")
	msg.PrimaryType = "Other"
	_, err = ToTypedData(msg)
	assert.Error(t, err)
}

func TestRecoverSignerRejectsShortSignature(t *testing.T) {
	_, err := RecoverSigner(NonceMessage("X", "1", "n1"), make([]byte, 64))
	assert.Error(t, err)
}
