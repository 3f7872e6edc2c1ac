package core

import "time"

// NonceChallenge is a single-use nonce issued for one login attempt
type NonceChallenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Wallet address the nonce was issued for
	Nonce     string    // Random nonce to be signed
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// TypedDomain tags a typed message with the application and network it belongs to
type TypedDomain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ChainID string `json:"chainId"`
}

// TypedMessage is the structured payload a wallet signs to prove control of an address
type TypedMessage struct {
	Domain      TypedDomain       `json:"domain"`
	PrimaryType string            `json:"primaryType"`
	Message     map[string]string `json:"message"`
}

// Nonce returns the nonce bound into the message
func (m TypedMessage) Nonce() string {
	return m.Message["nonce"]
}

// AuthenticatedUser is the identity the backend returned after a successful login
type AuthenticatedUser struct {
	ID        string    `json:"id"`
	Address   string    `json:"walletAddress,omitempty"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Session represents an authenticated backend session
type Session struct {
	ID            string    // Unique session identifier
	UserID        string    // Identifier of the authenticated user
	Address       string    // Wallet address of the user, empty for email sessions
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// Tokens carries the bearer credentials issued for a session
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SignatureProof is what the client submits to have a signed nonce verified
type SignatureProof struct {
	Address    string     `json:"walletAddress"`
	Signature  string     `json:"signature"`
	Nonce      string     `json:"nonce"`
	WalletKind WalletKind `json:"walletType"`
}
