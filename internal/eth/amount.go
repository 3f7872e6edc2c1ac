package eth

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountOverflow  = errors.New("amount exceeds 256 bits")
	ErrAmountPrecision = errors.New("amount has more decimals than the token supports")
)

// ValidateUint256 checks that v fits an unsigned 256-bit quantity
func ValidateUint256(v *big.Int) error {
	if v == nil {
		return errors.New("amount required")
	}
	if v.Sign() < 0 {
		return ErrNegativeAmount
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrAmountOverflow
	}
	return nil
}

// ParseAmount converts a human readable amount into base units
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrAmountPrecision
	}
	v := scaled.BigInt()
	if err := ValidateUint256(v); err != nil {
		return nil, err
	}
	return v, nil
}

// FormatAmount renders base units as a human readable amount
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
