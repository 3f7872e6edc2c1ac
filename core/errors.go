package core

import (
	"errors"
	"fmt"
)

// Backend-side sentinels
var (
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalidated   = errors.New("token has been invalidated")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidNonce       = errors.New("invalid or already used nonce")
	ErrAddressMismatch    = errors.New("address does not match nonce subject")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidAddress     = errors.New("invalid wallet address")
	ErrInvalidInput       = errors.New("invalid input")
)

// Client-side taxonomy. Typed errors below match these with errors.Is.
var (
	ErrProviderUnavailable = errors.New("no wallet provider available")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrNotAuthorized       = errors.New("wallet has not authorized this application")
	ErrProvider            = errors.New("wallet provider error")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrActionInFlight      = errors.New("an attempt of this action is already in flight")
	ErrNonce               = errors.New("nonce error")
	ErrVerification        = errors.New("signature verification failed")
	ErrExecution           = errors.New("transaction execution failed")
	ErrConfirmation        = errors.New("transaction confirmation failed")
	ErrEventNotFound       = errors.New("expected event not found in receipt")
	ErrReconciliation      = errors.New("off-chain settlement record could not be written")
	ErrAlreadyRecorded     = errors.New("settlement already recorded")
)

// ProviderError wraps a wallet RPC failure that is neither a rejection nor missing provider
type ProviderError struct {
	Kind WalletKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s wallet: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// NonceError reports a failed nonce request. The login flow must restart with a fresh nonce.
type NonceError struct {
	Address string
	Err     error
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("request nonce for %s: %v", e.Address, e.Err)
}

func (e *NonceError) Unwrap() error { return e.Err }

func (e *NonceError) Is(target error) bool { return target == ErrNonce }

// VerificationError is the backend's rejection of a signed challenge
type VerificationError struct {
	Address string
	Status  int
	Message string
}

func (e *VerificationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("verify signature for %s: status %d", e.Address, e.Status)
	}
	return fmt.Sprintf("verify signature for %s: %s (status %d)", e.Address, e.Message, e.Status)
}

func (e *VerificationError) Is(target error) bool { return target == ErrVerification }

// ExecutionError means the call was rejected before it reached the network.
// No side effects exist, so a fresh attempt is always safe.
type ExecutionError struct {
	Entrypoint string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Entrypoint, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// ConfirmationReason separates the three ways waiting for a transaction can fail
type ConfirmationReason string

const (
	// ConfirmationProviderFailed: the node call failed, the transaction may still land
	ConfirmationProviderFailed ConfirmationReason = "provider_failed"
	// ConfirmationReverted: the transaction executed and reverted, nothing changed on-chain
	ConfirmationReverted ConfirmationReason = "reverted"
	// ConfirmationReceiptUnavailable: the transaction landed but its receipt could not be read
	ConfirmationReceiptUnavailable ConfirmationReason = "receipt_unavailable"
)

// Remedy is the recovery a caller must choose explicitly
type Remedy string

const (
	RemedyDoNotRetry Remedy = "do_not_retry"
	RemedyRetry      Remedy = "retry"
	RemedyPollAgain  Remedy = "poll_again"
)

// ConfirmationError reports an unresolved wait for a submitted transaction
type ConfirmationError struct {
	TxHash string
	Reason ConfirmationReason
	Err    error
}

func (e *ConfirmationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transaction %s: %s", e.TxHash, e.Reason)
	}
	return fmt.Sprintf("transaction %s: %s: %v", e.TxHash, e.Reason, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

func (e *ConfirmationError) Is(target error) bool { return target == ErrConfirmation }

// Remedy maps the reason onto the only safe recovery
func (e *ConfirmationError) Remedy() Remedy {
	switch e.Reason {
	case ConfirmationReverted:
		return RemedyRetry
	case ConfirmationReceiptUnavailable:
		return RemedyPollAgain
	default:
		return RemedyDoNotRetry
	}
}

// EventNotFoundError means the transaction confirmed without the expected event,
// so no canonical transaction id can be derived
type EventNotFoundError struct {
	TxHash    string
	EventName string
	Selector  string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("transaction %s confirmed without %s event (selector %s)", e.TxHash, e.EventName, e.Selector)
}

func (e *EventNotFoundError) Is(target error) bool { return target == ErrEventNotFound }

// ReconciliationError means the on-chain action succeeded but its off-chain record was not written
type ReconciliationError struct {
	Kind          SettlementKind
	TransactionID string
	TxHash        string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("record %s settlement %s (tx %s): %v", e.Kind, e.TransactionID, e.TxHash, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

func (e *ReconciliationError) Is(target error) bool { return target == ErrReconciliation }
