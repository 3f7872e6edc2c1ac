package core

import (
	"fmt"
	"time"
)

// SettlementKind distinguishes the three off-chain ledgers
type SettlementKind string

const (
	KindPremiumPayment SettlementKind = "premium"
	KindTokenPurchase  SettlementKind = "purchase"
	KindTokenRecovery  SettlementKind = "recovery"
)

// SettlementKinds lists every kind in a stable order
var SettlementKinds = []SettlementKind{KindPremiumPayment, KindTokenPurchase, KindTokenRecovery}

// Collection returns the backend collection path for the kind
func (k SettlementKind) Collection() string {
	switch k {
	case KindPremiumPayment:
		return "/premium-payments"
	case KindTokenPurchase:
		return "/native-token-purchases"
	case KindTokenRecovery:
		return "/native-token-recoveries"
	default:
		return ""
	}
}

// Valid reports whether k is a known kind
func (k SettlementKind) Valid() bool {
	return k.Collection() != ""
}

// ParseSettlementKind accepts a kind name or its collection path
func ParseSettlementKind(s string) (SettlementKind, error) {
	for _, k := range SettlementKinds {
		if s == string(k) || s == k.Collection() || "/"+s == k.Collection() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown settlement kind %q", s)
}

// SettlementStatus is the reconciliation state of an off-chain record
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementSuccessful SettlementStatus = "successful"
	SettlementFailed     SettlementStatus = "failed"
)

// SettlementMetadata is the contextual data recorded alongside a canonical id
type SettlementMetadata struct {
	UserID       string    `json:"userId,omitempty"`
	PolicyID     string    `json:"policyId,omitempty"`
	ActorAddress string    `json:"actorAddress"`
	Quantity     string    `json:"quantity,omitempty"`
	Amount       string    `json:"amount"`
	TxHash       string    `json:"txnHash"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// SettlementRecord is the off-chain ledger entry mirroring one confirmed on-chain action.
// At most one record of a given kind exists per TransactionID.
type SettlementRecord struct {
	ID            string             `json:"id"`
	Kind          SettlementKind     `json:"kind"`
	TransactionID string             `json:"transactionId"`
	Metadata      SettlementMetadata `json:"metadata"`
	Status        SettlementStatus   `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// AttemptPhase tracks how far an on-chain action progressed
type AttemptPhase string

const (
	PhaseSubmitted          AttemptPhase = "submitted"
	PhaseConfirmed          AttemptPhase = "confirmed"
	PhaseRecording          AttemptPhase = "recording"
	PhaseRecorded           AttemptPhase = "recorded"
	PhaseReverted           AttemptPhase = "reverted"
	PhaseConfirmationFailed AttemptPhase = "confirmation_failed"
	PhaseEventMissing       AttemptPhase = "event_missing"
	PhaseRecordFailed       AttemptPhase = "record_failed"
)

// Settled reports whether nothing is left to reconcile for the phase
func (p AttemptPhase) Settled() bool {
	return p == PhaseRecorded || p == PhaseReverted
}

// Attempt is the client-side journal entry for one on-chain action, keyed by TxHash
type Attempt struct {
	TxHash        string             `json:"txHash"`
	Kind          SettlementKind     `json:"kind"`
	Entrypoint    string             `json:"entrypoint"`
	EventName     string             `json:"eventName"`
	TransactionID string             `json:"transactionId,omitempty"`
	Metadata      SettlementMetadata `json:"metadata"`
	Phase         AttemptPhase       `json:"phase"`
	LastError     string             `json:"lastError,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}
