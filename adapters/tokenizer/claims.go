package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones.
// Subject carries the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid"`
	Address   string `json:"addr,omitempty"`
}

// RefreshClaims are the standard claims plus the wallet address
type RefreshClaims struct {
	jwt.RegisteredClaims
	Address string `json:"addr,omitempty"`
}
