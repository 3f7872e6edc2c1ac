package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"github.com/layer-3/stindem/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// Domain is the typed-message domain the backend expects wallets to sign under
type Domain struct {
	AppName string
	ChainID string
}

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	domain  Domain
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, domain Domain) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey, domain: domain}
}

func (j *JWTTokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &j.signKey.PublicKey, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(j.signKey)
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	signed, err := j.sign(AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID: session.RefreshID,
		Address:   session.Address,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	signed, err := j.sign(RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.RefreshID,
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		Address: session.Address,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFunc, jwt.WithAudience(AudienceAccess))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, core.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", core.ErrInvalidToken)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		ID:           claims.ID,
		UserID:       claims.Subject,
		Address:      claims.Address,
		IssuedAt:     claims.IssuedAt.Time,
		AccessExpiry: claims.ExpiresAt.Time,
		RefreshID:    claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token. Only the refresh half of the session is populated.
// Expiry is left to the caller so logout can still revoke an expired token.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RefreshClaims{}, j.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", core.ErrInvalidToken)
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid || !slices.Contains(claims.Audience, AudienceRefresh) || claims.ExpiresAt == nil {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		UserID:        claims.Subject,
		Address:       claims.Address,
		IssuedAt:      claims.IssuedAt.Time,
		RefreshExpiry: claims.ExpiresAt.Time,
		RefreshID:     claims.ID,
	}, nil
}

// VerifySignature checks that signature is the challenge's typed message signed by address
func (j *JWTTokenizer) VerifySignature(challenge *core.NonceChallenge, signatureStr string, addressStr string) error {
	if !common.IsHexAddress(addressStr) {
		return fmt.Errorf("malformed address: %w", core.ErrInvalidSignature)
	}
	expected := common.HexToAddress(addressStr)
	if common.HexToAddress(challenge.Address) != expected {
		return core.ErrAddressMismatch
	}

	decodedSig, err := hexutil.Decode(signatureStr)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}

	msg := eth.NonceMessage(j.domain.AppName, j.domain.ChainID, challenge.Nonce)
	verified, err := eth.VerifySignatureAgainstAddress(msg, decodedSig, expected)
	if err != nil {
		return fmt.Errorf("EIP-712 signature verification failed: %w", err)
	}
	if !verified {
		return core.ErrInvalidSignature
	}
	return nil
}
