package eip1559

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Policy selects how transaction fee caps are derived.
type Policy string

const (
	// PolicyGasPrice uses eth_gasPrice for both caps. This is what a local
	// dev node expects and the console default.
	PolicyGasPrice Policy = "gas_price"
	// PolicyDynamic derives caps from the latest base fee plus a buffered tip.
	PolicyDynamic Policy = "eip1559"
)

// FeeSource is the subset of an ethclient needed to price a transaction.
type FeeSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyGasPrice:
		return PolicyGasPrice, nil
	case PolicyDynamic:
		return PolicyDynamic, nil
	}
	return "", fmt.Errorf("unknown fee policy %q", s)
}

// Caps returns maxFeePerGas and maxPriorityFeePerGas according to policy.
func Caps(ctx context.Context, client FeeSource, policy Policy) (*big.Int, *big.Int, error) {
	if policy == PolicyDynamic {
		return SuggestFee(ctx, client)
	}
	return GasPriceCaps(ctx, client)
}

// GasPriceCaps sets both fee caps to the node's current gas price.
func GasPriceCaps(ctx context.Context, client FeeSource) (*big.Int, *big.Int, error) {
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(gasPrice), new(big.Int).Set(gasPrice), nil
}

func SuggestFee(ctx context.Context, client FeeSource) (*big.Int, *big.Int, error) {
	// Get suggested gas tip cap (maxPriorityFeePerGas)
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	// Add 13% buffer to tip for safety
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer = new(big.Int).Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)

	var maxFeePerGas *big.Int

	baseFee := header.BaseFee
	if baseFee != nil {
		// maxFeePerGas must be >= baseFee + maxPriorityFeePerGas. Use 2x baseFee so the
		// transaction still fits if the base fee doubles before inclusion.
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(baseFee, big.NewInt(2)),
			maxPriorityFeePerGas,
		)
	} else {
		// Legacy (pre-EIP-1559) chain - use maxPriorityFeePerGas as maxFeePerGas
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}
