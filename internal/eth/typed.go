// Package eth holds the EIP-712, selector and ABI helpers shared by the client and the backend.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/stindem/core"
)

const (
	// DomainVersion is the only typed-message version the backend accepts
	DomainVersion = "1"
	// PrimaryType is the primary type of the login message
	PrimaryType = "Message"
)

var ErrIncompleteDomain = errors.New("typed message domain requires name, version and chain id")

var nonceTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	PrimaryType: {
		{Name: "nonce", Type: "string"},
	},
}

// NonceMessage builds the login message binding nonce to the given application and chain
func NonceMessage(appName, chainID, nonce string) core.TypedMessage {
	return core.TypedMessage{
		Domain: core.TypedDomain{
			Name:    appName,
			Version: DomainVersion,
			ChainID: chainID,
		},
		PrimaryType: PrimaryType,
		Message:     map[string]string{"nonce": nonce},
	}
}

// ChainIDValue converts a chain identifier into the uint256 used in the domain.
// Decimal and 0x-hex identifiers are parsed as numbers; anything else is read as
// an ASCII short string, so "SN_SEPOLIA" becomes 0x534e5f5345504f4c4941.
func ChainIDValue(id string) (*big.Int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("empty chain id")
	}
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		v, ok := new(big.Int).SetString(id[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex chain id %q", id)
		}
		return v, nil
	}
	if v, ok := new(big.Int).SetString(id, 10); ok {
		return v, nil
	}
	if len(id) > 31 {
		return nil, fmt.Errorf("chain id %q longer than 31 characters", id)
	}
	for _, r := range id {
		if r > 0x7f {
			return nil, fmt.Errorf("chain id %q is not ascii", id)
		}
	}
	return new(big.Int).SetBytes([]byte(id)), nil
}

// ToTypedData converts a typed message into its EIP-712 representation
func ToTypedData(msg core.TypedMessage) (apitypes.TypedData, error) {
	if msg.Domain.Name == "" || msg.Domain.Version == "" || msg.Domain.ChainID == "" {
		return apitypes.TypedData{}, ErrIncompleteDomain
	}
	if msg.PrimaryType != PrimaryType {
		return apitypes.TypedData{}, fmt.Errorf("unsupported primary type %q", msg.PrimaryType)
	}
	chainID, err := ChainIDValue(msg.Domain.ChainID)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	message := make(apitypes.TypedDataMessage, len(msg.Message))
	for k, v := range msg.Message {
		message[k] = v
	}

	return apitypes.TypedData{
		Types:       nonceTypes,
		PrimaryType: msg.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    msg.Domain.Name,
			Version: msg.Domain.Version,
			ChainId: (*math.HexOrDecimal256)(chainID),
		},
		Message: message,
	}, nil
}

// Digest returns the EIP-712 hash a wallet signs for msg
func Digest(msg core.TypedMessage) ([]byte, error) {
	td, err := ToTypedData(msg)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

// SignDigest signs a digest with key and returns the 0x signature with V in {27, 28}
func SignDigest(digest []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignTypedMessage signs msg with key
func SignTypedMessage(msg core.TypedMessage, key *ecdsa.PrivateKey) (string, error) {
	digest, err := Digest(msg)
	if err != nil {
		return "", err
	}
	return SignDigest(digest, key)
}

// RecoverSigner returns the address that produced sig over msg
func RecoverSigner(msg core.TypedMessage, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}
	digest, err := Digest(msg)
	if err != nil {
		return common.Address{}, err
	}

	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", core.ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignatureAgainstAddress reports whether sig over msg was produced by expected
func VerifySignatureAgainstAddress(msg core.TypedMessage, sig []byte, expected common.Address) (bool, error) {
	signer, err := RecoverSigner(msg, sig)
	if err != nil {
		return false, err
	}
	return signer == expected, nil
}
