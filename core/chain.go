package core

import "time"

// ChainCall is a contract invocation built for a single action
type ChainCall struct {
	Contract   string
	Entrypoint string
	Calldata   []byte
}

// Action binds an entrypoint to the event it must emit and the settlement it produces
type Action struct {
	Kind       SettlementKind
	Entrypoint string
	EventName  string
}

// TxStatus is the final execution status of a transaction
type TxStatus string

const (
	TxAccepted TxStatus = "accepted"
	TxReverted TxStatus = "reverted"
)

// Event is a log emitted during execution. Keys hold selectors and indexed values,
// Data holds the ordered data fields.
type Event struct {
	FromAddress string   `json:"fromAddress"`
	Keys        []string `json:"keys"`
	Data        []string `json:"data"`
}

// TransactionReceipt is the immutable result of a confirmed transaction
type TransactionReceipt struct {
	TxHash      string   `json:"txHash"`
	Status      TxStatus `json:"status"`
	BlockNumber uint64   `json:"blockNumber"`
	Events      []Event  `json:"events"`
}

// Submission is the outcome of a successfully reconciled on-chain action
type Submission struct {
	Action        Action
	TxHash        string
	TransactionID string
	Receipt       *TransactionReceipt
	ConfirmedAt   time.Time
}
