package eth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/stindem/core"
)

// Entrypoints of the insurance contract
const (
	EntrypointPayPremium     = "pay_premium"
	EntrypointPurchase       = "purchase_stindem"
	EntrypointRecoverFromMkt = "recover_stindem_from_market"
)

// Events emitted by the insurance contract
const (
	EventPremiumPaymentRecorded = "PremiumPaymentRecorded"
	EventStindemPurchased       = "StindemPurchased"
	EventStindemRecovered       = "StindemRecovered"
)

// ContractABI describes the entrypoints and events used by the client.
// Every event carries the canonical transaction id as its first data field.
const ContractABI = `[
  {"type":"function","name":"pay_premium","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"policyId","type":"uint256"},{"name":"payer","type":"address"},{"name":"amount","type":"uint256"}]},
  {"type":"function","name":"purchase_stindem","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"buyer","type":"address"},{"name":"quantity","type":"uint256"},{"name":"totalPrice","type":"uint256"}]},
  {"type":"function","name":"recover_stindem_from_market","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"seller","type":"address"},{"name":"quantity","type":"uint256"},{"name":"totalValue","type":"uint256"}]},
  {"type":"event","name":"PremiumPaymentRecorded","anonymous":false,
   "inputs":[{"name":"transactionId","type":"bytes32","indexed":false},{"name":"policyId","type":"uint256","indexed":false},
             {"name":"payer","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"StindemPurchased","anonymous":false,
   "inputs":[{"name":"transactionId","type":"bytes32","indexed":false},{"name":"buyer","type":"address","indexed":false},
             {"name":"quantity","type":"uint256","indexed":false},{"name":"totalPrice","type":"uint256","indexed":false}]},
  {"type":"event","name":"StindemRecovered","anonymous":false,
   "inputs":[{"name":"transactionId","type":"bytes32","indexed":false},{"name":"seller","type":"address","indexed":false},
             {"name":"quantity","type":"uint256","indexed":false},{"name":"totalValue","type":"uint256","indexed":false}]}
]`

var contractABI = mustParseABI(ContractABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return parsed
}

// DefaultActions returns the three actions with their default event names
func DefaultActions() map[core.SettlementKind]core.Action {
	return map[core.SettlementKind]core.Action{
		core.KindPremiumPayment: {Kind: core.KindPremiumPayment, Entrypoint: EntrypointPayPremium, EventName: EventPremiumPaymentRecorded},
		core.KindTokenPurchase:  {Kind: core.KindTokenPurchase, Entrypoint: EntrypointPurchase, EventName: EventStindemPurchased},
		core.KindTokenRecovery:  {Kind: core.KindTokenRecovery, Entrypoint: EntrypointRecoverFromMkt, EventName: EventStindemRecovered},
	}
}

// BuildCall encodes an entrypoint invocation against contract
func BuildCall(contract, entrypoint string, args ...interface{}) (core.ChainCall, error) {
	if !common.IsHexAddress(contract) {
		return core.ChainCall{}, fmt.Errorf("invalid contract address %q", contract)
	}
	for i, arg := range args {
		if v, ok := arg.(*big.Int); ok {
			if err := ValidateUint256(v); err != nil {
				return core.ChainCall{}, fmt.Errorf("%s argument %d: %w", entrypoint, i, err)
			}
		}
	}
	data, err := contractABI.Pack(entrypoint, args...)
	if err != nil {
		return core.ChainCall{}, fmt.Errorf("pack %s: %w", entrypoint, err)
	}
	return core.ChainCall{
		Contract:   common.HexToAddress(contract).Hex(),
		Entrypoint: entrypoint,
		Calldata:   data,
	}, nil
}

// PayPremiumCall encodes pay_premium(policyId, payer, amount)
func PayPremiumCall(contract string, policyID *big.Int, payer common.Address, amount *big.Int) (core.ChainCall, error) {
	return BuildCall(contract, EntrypointPayPremium, policyID, payer, amount)
}

// PurchaseCall encodes purchase_stindem(buyer, quantity, totalPrice)
func PurchaseCall(contract string, buyer common.Address, quantity, totalPrice *big.Int) (core.ChainCall, error) {
	return BuildCall(contract, EntrypointPurchase, buyer, quantity, totalPrice)
}

// RecoveryCall encodes recover_stindem_from_market(seller, quantity, totalValue)
func RecoveryCall(contract string, seller common.Address, quantity, totalValue *big.Int) (core.ChainCall, error) {
	return BuildCall(contract, EntrypointRecoverFromMkt, seller, quantity, totalValue)
}
