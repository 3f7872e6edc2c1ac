package ports

import "github.com/layer-3/stindem/core"

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Session tokens operations
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)

	// Verification helpers
	VerifySignature(challenge *core.NonceChallenge, signature string, address string) error
}
