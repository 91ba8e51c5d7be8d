package eip1559

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

var (
	// MinPriorityFee keeps the tip attractive to bundlers on quiet chains.
	MinPriorityFee = big.NewInt(2_000_000_000)
	// MinMaxFee covers high base fee chains such as Base.
	MinMaxFee = big.NewInt(20_000_000_000)

	tipBuffer = decimal.RequireFromString("1.13")
	gwei      = decimal.New(1, 9)
)

// FeeSource is the subset of ethclient.Client needed to suggest fees.
type FeeSource interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// SuggestFee returns maxFeePerGas and maxPriorityFeePerGas for the next block.
//
// The tip is the node suggestion plus 13%, floored at MinPriorityFee. The max
// fee is 2 * baseFee + tip so the operation survives a doubling of the base
// fee, floored at MinMaxFee. Pre-London chains without a base fee use the tip
// for both.
func SuggestFee(ctx context.Context, client FeeSource) (*big.Int, *big.Int, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch latest header: %w", err)
	}

	maxPriorityFeePerGas := decimal.NewFromBigInt(tipCap, 0).Mul(tipBuffer).Floor().BigInt()
	if maxPriorityFeePerGas.Cmp(MinPriorityFee) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(MinPriorityFee)
	}

	if header.BaseFee == nil {
		return new(big.Int).Set(maxPriorityFeePerGas), maxPriorityFeePerGas, nil
	}

	maxFeePerGas := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), maxPriorityFeePerGas)
	if maxFeePerGas.Cmp(MinMaxFee) < 0 {
		maxFeePerGas = new(big.Int).Set(MinMaxFee)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

// FormatGwei renders a wei amount in gwei for log lines.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "<nil>"
	}
	return decimal.NewFromBigInt(wei, 0).Div(gwei).String() + " gwei"
}
