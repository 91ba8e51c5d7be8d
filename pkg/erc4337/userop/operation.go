package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
)

// UserOperation is the v0.6 layout, with initCode and paymasterAndData folded
// into single blobs.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PackedUserOperation is the v0.7/v0.8 layout. Gas pairs are packed as two
// 128-bit halves of a bytes32.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Operation is an unsigned or signed operation bound to one EntryPoint and
// revision. It is produced by Builder.Build and owned by the caller.
type Operation struct {
	Version    Version
	EntryPoint common.Address

	Sender        common.Address
	Nonce         *big.Int
	CallData      []byte
	Gas           GasParameters
	Factory       *Factory
	Paymaster     *Paymaster
	Authorization *eip7702.Authorization
	Signature     []byte
}

// InitCode is factory || factoryData, or empty without a factory.
func (op *Operation) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	return concat(op.Factory.Address.Bytes(), op.Factory.Data)
}

// Unpacked returns the v0.6 layout. v0.6 paymasterAndData is paymaster || data.
func (op *Operation) Unpacked() *UserOperation {
	pmAndData := []byte{}
	if op.Paymaster != nil {
		pmAndData = concat(op.Paymaster.Address.Bytes(), op.Paymaster.Data)
	}
	return &UserOperation{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             op.InitCode(),
		CallData:             common.CopyBytes(op.CallData),
		CallGasLimit:         copyBig(op.Gas.CallGasLimit),
		VerificationGasLimit: copyBig(op.Gas.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.Gas.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.Gas.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.Gas.MaxPriorityFeePerGas),
		PaymasterAndData:     pmAndData,
		Signature:            common.CopyBytes(op.Signature),
	}
}

// Packed returns the v0.7/v0.8 layout. Any gas value wider than 128 bits
// fails with ErrMalformedDraft.
func (op *Operation) Packed() (*PackedUserOperation, error) {
	accountGasLimits, err := packUint128Pair(op.Gas.VerificationGasLimit, op.Gas.CallGasLimit)
	if err != nil {
		return nil, err
	}
	gasFees, err := packUint128Pair(op.Gas.MaxPriorityFeePerGas, op.Gas.MaxFeePerGas)
	if err != nil {
		return nil, err
	}
	pmAndData, err := op.packedPaymasterAndData()
	if err != nil {
		return nil, err
	}
	return &PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              copyBig(op.Nonce),
		InitCode:           op.InitCode(),
		CallData:           common.CopyBytes(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: copyBig(op.Gas.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   pmAndData,
		Signature:          common.CopyBytes(op.Signature),
	}, nil
}

// packedPaymasterAndData is paymaster || verificationGas(16) || postOpGas(16) || data,
// or empty without a paymaster.
func (op *Operation) packedPaymasterAndData() ([]byte, error) {
	if op.Paymaster == nil {
		return []byte{}, nil
	}
	verification, err := uint128Bytes(op.Paymaster.VerificationGasLimit)
	if err != nil {
		return nil, err
	}
	postOp, err := uint128Bytes(op.Paymaster.PostOpGasLimit)
	if err != nil {
		return nil, err
	}
	return concat(op.Paymaster.Address.Bytes(), verification, postOp, op.Paymaster.Data), nil
}

func packUint128Pair(high, low *big.Int) ([32]byte, error) {
	var out [32]byte
	hi, err := uint128Bytes(high)
	if err != nil {
		return out, err
	}
	lo, err := uint128Bytes(low)
	if err != nil {
		return out, err
	}
	copy(out[:16], hi)
	copy(out[16:], lo)
	return out, nil
}

func uint128Bytes(v *big.Int) ([]byte, error) {
	out := make([]byte, 16)
	if v == nil {
		return out, nil
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return nil, malformed("value %s does not fit in 128 bits", v)
	}
	return v.FillBytes(out), nil
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
