package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/stindem/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x00000000000000000000000000000000000000aa"

func TestPayPremiumCall(t *testing.T) {
	payer := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	call, err := PayPremiumCall(testContract, big.NewInt(7), payer, big.NewInt(1000))
	require.NoError(t, err)

	assert.Equal(t, EntrypointPayPremium, call.Entrypoint)
	assert.Equal(t, common.HexToAddress(testContract).Hex(), call.Contract)
	require.Len(t, call.Calldata, 4+3*32)
	assert.Equal(t, contractABI.Methods[EntrypointPayPremium].ID, call.Calldata[:4])

	args, err := contractABI.Methods[EntrypointPayPremium].Inputs.Unpack(call.Calldata[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(7).Cmp(args[0].(*big.Int)))
	assert.Equal(t, payer, args[1].(common.Address))
}

func TestBuildCallRejectsInvalidInput(t *testing.T) {
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	_, err := PurchaseCall("not-an-address", buyer, big.NewInt(1), big.NewInt(1))
	assert.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = PurchaseCall(testContract, buyer, tooBig, big.NewInt(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = RecoveryCall(testContract, buyer, big.NewInt(1), big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestDefaultActions(t *testing.T) {
	actions := DefaultActions()
	require.Len(t, actions, len(core.SettlementKinds))
	for _, kind := range core.SettlementKinds {
		a := actions[kind]
		assert.Equal(t, kind, a.Kind)
		_, ok := contractABI.Methods[a.Entrypoint]
		assert.True(t, ok, a.Entrypoint)
		ev, ok := contractABI.Events[a.EventName]
		require.True(t, ok, a.EventName)
		assert.Equal(t, "transactionId", ev.Inputs[0].Name)
		assert.Equal(t, ev.ID.Hex(), EventSelector(a.EventName))
		assert.Equal(t, ev.ID.Hex(), EventSelector(ev.Sig))
	}
}
