package bundler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimation is the result of eth_estimateUserOperationGas. Paymaster
// limits are only returned for packed revisions with a paymaster.
type GasEstimation struct {
	PreVerificationGas            *big.Int
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

type gasEstimationResult struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

func (r *gasEstimationResult) toEstimation() *GasEstimation {
	return &GasEstimation{
		PreVerificationGas:            fromHexBig(r.PreVerificationGas),
		VerificationGasLimit:          fromHexBig(r.VerificationGasLimit),
		CallGasLimit:                  fromHexBig(r.CallGasLimit),
		PaymasterVerificationGasLimit: fromHexBig(r.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(r.PaymasterPostOpGasLimit),
	}
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}
