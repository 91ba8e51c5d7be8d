package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
)

// RPCUserOperationV06 is the eth_sendUserOperation payload for v0.6. initCode
// and paymasterAndData are always present and encode as "0x" when empty.
type RPCUserOperationV06 struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// RPCUserOperationV07 is the eth_sendUserOperation payload for v0.7 and v0.8.
// Factory and paymaster keys are omitted entirely when absent.
type RPCUserOperationV07 struct {
	Sender                        common.Address    `json:"sender"`
	Nonce                         *hexutil.Big      `json:"nonce"`
	Factory                       *common.Address   `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes    `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes     `json:"callData"`
	CallGasLimit                  *hexutil.Big      `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big      `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big      `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big      `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address   `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big      `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big      `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes    `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes     `json:"signature"`
	Eip7702Auth                   *RPCAuthorization `json:"eip7702Auth,omitempty"`
}

// RPCAuthorization is the eip7702Auth object accepted by v0.8 relayers.
type RPCAuthorization struct {
	ChainID *hexutil.Big   `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	YParity hexutil.Uint64 `json:"yParity"`
	R       *hexutil.Big   `json:"r"`
	S       *hexutil.Big   `json:"s"`
}

// NewRPCAuthorization converts a signed authorization to its wire form.
func NewRPCAuthorization(a *eip7702.Authorization) *RPCAuthorization {
	if a == nil {
		return nil
	}
	return &RPCAuthorization{
		ChainID: toHexBig(a.ChainID),
		Address: a.Address,
		Nonce:   hexutil.Uint64(a.Nonce),
		YParity: hexutil.Uint64(a.YParity),
		R:       toHexBig(a.R),
		S:       toHexBig(a.S),
	}
}

// RPC returns the relayer payload for op.Version: *RPCUserOperationV06 or
// *RPCUserOperationV07.
func (op *Operation) RPC() (interface{}, error) {
	switch op.Version {
	case V06:
		return op.rpcV06(), nil
	case V07, V08:
		return op.rpcV07()
	}
	return nil, malformed("no wire format for revision %s", op.Version)
}

func (op *Operation) rpcV06() *RPCUserOperationV06 {
	u := op.Unpacked()
	return &RPCUserOperationV06{
		Sender:               u.Sender,
		Nonce:                toHexBig(u.Nonce),
		InitCode:             u.InitCode,
		CallData:             u.CallData,
		CallGasLimit:         toHexBig(u.CallGasLimit),
		VerificationGasLimit: toHexBig(u.VerificationGasLimit),
		PreVerificationGas:   toHexBig(u.PreVerificationGas),
		MaxFeePerGas:         toHexBig(u.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(u.MaxPriorityFeePerGas),
		PaymasterAndData:     u.PaymasterAndData,
		Signature:            u.Signature,
	}
}

func (op *Operation) rpcV07() (*RPCUserOperationV07, error) {
	// Packing validates the 128-bit ranges the EntryPoint will enforce.
	if _, err := op.Packed(); err != nil {
		return nil, err
	}
	out := &RPCUserOperationV07{
		Sender:               op.Sender,
		Nonce:                toHexBig(op.Nonce),
		CallData:             hexutil.Bytes(common.CopyBytes(op.CallData)),
		CallGasLimit:         toHexBig(op.Gas.CallGasLimit),
		VerificationGasLimit: toHexBig(op.Gas.VerificationGasLimit),
		PreVerificationGas:   toHexBig(op.Gas.PreVerificationGas),
		MaxFeePerGas:         toHexBig(op.Gas.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(op.Gas.MaxPriorityFeePerGas),
		Signature:            hexutil.Bytes(common.CopyBytes(op.Signature)),
	}
	if op.Factory != nil {
		factory := op.Factory.Address
		data := hexutil.Bytes(common.CopyBytes(op.Factory.Data))
		out.Factory = &factory
		out.FactoryData = &data
	}
	if op.Paymaster != nil {
		pm := op.Paymaster.Address
		data := hexutil.Bytes(common.CopyBytes(op.Paymaster.Data))
		out.Paymaster = &pm
		out.PaymasterVerificationGasLimit = toHexBig(op.Paymaster.VerificationGasLimit)
		out.PaymasterPostOpGasLimit = toHexBig(op.Paymaster.PostOpGasLimit)
		out.PaymasterData = &data
	}
	if op.Version == V08 && op.Factory.IsEip7702Marker() {
		out.Eip7702Auth = NewRPCAuthorization(op.Authorization)
	}
	return out, nil
}

func toHexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(bigOrZero(v))
}
