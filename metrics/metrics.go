// Package metrics records counters and latencies for the client pipeline and the backend.
package metrics

import "time"

// Counter and latency names
const (
	TxSubmitted          = "tx_submitted"
	TxExecutionFailed    = "tx_execution_failed"
	TxConfirmed          = "tx_confirmed"
	TxConfirmationFailed = "tx_confirmation_failed"
	EventMissing         = "event_missing"
	SettlementRecorded   = "settlement_recorded"
	SettlementDuplicate  = "settlement_duplicate"
	ReconciliationFailed = "reconciliation_failed"
	LoginSucceeded       = "login_succeeded"
	LoginFailed          = "login_failed"
	HTTPRequest          = "http_request"

	ConfirmationLatency = "confirmation"
	RecordLatency       = "record"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
