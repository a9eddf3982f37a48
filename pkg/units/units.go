// Package units converts between ether, gwei and wei amounts.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	EtherDecimals = 18
	GweiDecimals  = 9
)

var (
	weiPerEther = decimal.New(1, EtherDecimals)
	weiPerGwei  = decimal.New(1, GweiDecimals)
)

var ErrBelowOneWei = errors.New("amount has a fraction below one wei")

// EtherToWei converts an ether amount to wei. Fractions below one wei are
// truncated; ParseEther rejects them.
func EtherToWei(eth decimal.Decimal) *big.Int {
	return eth.Mul(weiPerEther).Truncate(0).BigInt()
}

// GweiToWei converts a gwei amount to wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Mul(weiPerGwei).Truncate(0).BigInt()
}

func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
}

func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
}

// ParseAmount parses a non-negative decimal amount of a unit with the given
// number of decimals. Amounts that do not convert to a whole number of wei
// fail with ErrBelowOneWei.
func ParseAmount(s string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	if !d.Shift(decimals).IsInteger() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, ErrBelowOneWei)
	}
	return d, nil
}

// ParseEther parses a user supplied ether amount such as "1.5".
func ParseEther(s string) (decimal.Decimal, error) {
	return ParseAmount(s, EtherDecimals)
}

// FormatEther renders wei as ether with trailing zeros removed.
func FormatEther(wei *big.Int) string {
	return WeiToEther(wei).String()
}

func FormatGwei(wei *big.Int) string {
	return WeiToGwei(wei).String()
}
