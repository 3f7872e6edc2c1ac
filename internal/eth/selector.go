package eth

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/stindem/core"
)

const wordSize = 32

// EventSelector returns the lower-case hex selector for an event. Names declared in
// ContractABI resolve to their full signature; anything else is hashed as given.
func EventSelector(name string) string {
	if ev, ok := contractABI.Events[name]; ok {
		name = ev.Sig
	}
	return strings.ToLower(crypto.Keccak256Hash([]byte(name)).Hex())
}

// SelectorMatches compares an event key with a selector. Providers differ in hex
// casing, so both sides are lower-cased before comparing.
func SelectorMatches(key, selector string) bool {
	return strings.ToLower(key) == strings.ToLower(selector)
}

// FindEvent returns the first event whose primary key matches the selector of eventName
func FindEvent(events []core.Event, eventName string) (core.Event, bool) {
	selector := EventSelector(eventName)
	for _, ev := range events {
		if len(ev.Keys) == 0 {
			continue
		}
		if SelectorMatches(ev.Keys[0], selector) {
			return ev, true
		}
	}
	return core.Event{}, false
}

// CanonicalTxID returns the first data field of ev
func CanonicalTxID(ev core.Event) (string, error) {
	if len(ev.Data) == 0 || ev.Data[0] == "" {
		return "", errors.New("event carries no data fields")
	}
	return ev.Data[0], nil
}

// EventsFromLogs converts receipt logs into provider-neutral events.
// Topics become keys and the data section is split into 32-byte fields.
func EventsFromLogs(logs []*types.Log) []core.Event {
	events := make([]core.Event, 0, len(logs))
	for _, l := range logs {
		if l == nil {
			continue
		}
		ev := core.Event{
			FromAddress: l.Address.Hex(),
			Keys:        make([]string, 0, len(l.Topics)),
		}
		for _, topic := range l.Topics {
			ev.Keys = append(ev.Keys, topic.Hex())
		}
		for off := 0; off < len(l.Data); off += wordSize {
			end := off + wordSize
			if end > len(l.Data) {
				end = len(l.Data)
			}
			ev.Data = append(ev.Data, hexutil.Encode(l.Data[off:end]))
		}
		events = append(events, ev)
	}
	return events
}
