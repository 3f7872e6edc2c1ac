package core

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionStatus is the lifecycle state of the wallet connection
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// WalletKind identifies a supported wallet adapter
type WalletKind string

const (
	WalletKeystore WalletKind = "keystore"
	WalletClef     WalletKind = "clef"
)

// ParseWalletKind validates a wallet kind name
func ParseWalletKind(s string) (WalletKind, error) {
	switch k := WalletKind(strings.ToLower(strings.TrimSpace(s))); k {
	case WalletKeystore, WalletClef:
		return k, nil
	default:
		return "", fmt.Errorf("unknown wallet kind %q", s)
	}
}

// WalletSession is one established connection to a wallet.
// Address and ChainID never change for the lifetime of a session.
type WalletSession struct {
	ID          string
	Kind        WalletKind
	Address     string
	ChainID     string
	ConnectedAt time.Time
}

// ProviderEventType is the kind of change a wallet reports
type ProviderEventType string

const (
	AccountsChanged ProviderEventType = "accountsChanged"
	NetworkChanged  ProviderEventType = "networkChanged"
)

// ProviderEvent is a change notification emitted by a wallet provider
type ProviderEvent struct {
	Type  ProviderEventType
	Value string
}
