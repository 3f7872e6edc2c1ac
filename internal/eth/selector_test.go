package eth

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/stindem/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSelector(t *testing.T) {
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		EventSelector("Transfer(address,address,uint256)"))
	sel := EventSelector(EventPremiumPaymentRecorded)
	assert.Equal(t, strings.ToLower(sel), sel)
}

func TestSelectorMatchesIgnoresCase(t *testing.T) {
	sel := EventSelector(EventStindemPurchased)
	assert.True(t, SelectorMatches(strings.ToUpper(sel), sel))
	assert.True(t, SelectorMatches("0xABCDEF", "0xabcdef"))
	assert.False(t, SelectorMatches(EventSelector(EventStindemRecovered), sel))
}

func TestFindEvent(t *testing.T) {
	sel := EventSelector(EventPremiumPaymentRecorded)
	events := []core.Event{
		{Keys: nil, Data: []string{"0xignored"}},
		{Keys: []string{EventSelector("Other")}, Data: []string{"0xother"}},
		{Keys: []string{strings.ToUpper(sel)}, Data: []string{"0xTX1", "0x02"}},
		{Keys: []string{sel}, Data: []string{"0xTX2"}},
	}

	ev, ok := FindEvent(events, EventPremiumPaymentRecorded)
	require.True(t, ok)
	id, err := CanonicalTxID(ev)
	require.NoError(t, err)
	assert.Equal(t, "0xTX1", id)

	_, ok = FindEvent(events, EventStindemRecovered)
	assert.False(t, ok)

	_, err = CanonicalTxID(core.Event{Keys: []string{sel}})
	assert.Error(t, err)
}

func TestEventsFromLogs(t *testing.T) {
	txID := common.HexToHash("0x01")
	amount := common.BigToHash(common.Big3)
	topic := common.HexToHash(EventSelector(EventStindemPurchased))

	logs := []*types.Log{
		nil,
		{
			Address: common.HexToAddress("0x1000000000000000000000000000000000000001"),
			Topics:  []common.Hash{topic},
			Data:    append(txID.Bytes(), amount.Bytes()...),
		},
	}

	events := EventsFromLogs(logs)
	require.Len(t, events, 1)
	assert.Equal(t, []string{topic.Hex()}, events[0].Keys)
	assert.Equal(t, []string{txID.Hex(), amount.Hex()}, events[0].Data)

	ev, ok := FindEvent(events, EventStindemPurchased)
	require.True(t, ok)
	id, err := CanonicalTxID(ev)
	require.NoError(t, err)
	assert.Equal(t, txID.Hex(), id)
}
