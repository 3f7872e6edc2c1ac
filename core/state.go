package core

import "time"

// PersistedState is the subset of session state that survives a restart.
// Nonces, signatures, tokens and provider handles are never part of it.
type PersistedState struct {
	WalletKind      WalletKind         `json:"walletKind,omitempty"`
	ChainID         string             `json:"chainId,omitempty"`
	LastConnectedAt time.Time          `json:"lastConnectedAt,omitempty"`
	User            *AuthenticatedUser `json:"user,omitempty"`
	Authenticated   bool               `json:"authenticated"`
}

// CanRestore reports whether a previous wallet session is recorded
func (s PersistedState) CanRestore() bool {
	return s.WalletKind != "" && !s.LastConnectedAt.IsZero()
}
