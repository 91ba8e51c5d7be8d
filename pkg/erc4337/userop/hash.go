package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	bytes32T = mustType("bytes32")

	// Outer wrapper shared by v0.6 and v0.7: (keccak(inner), entryPoint, chainId).
	outerArgs = abi.Arguments{
		{Name: "userOpHash", Type: bytes32T},
		{Name: "entryPoint", Type: addressT},
		{Name: "chainId", Type: uint256T},
	}

	v06Args = abi.Arguments{
		{Name: "sender", Type: addressT},
		{Name: "nonce", Type: uint256T},
		{Name: "hashInitCode", Type: bytes32T},
		{Name: "hashCallData", Type: bytes32T},
		{Name: "callGasLimit", Type: uint256T},
		{Name: "verificationGasLimit", Type: uint256T},
		{Name: "preVerificationGas", Type: uint256T},
		{Name: "maxFeePerGas", Type: uint256T},
		{Name: "maxPriorityFeePerGas", Type: uint256T},
		{Name: "hashPaymasterAndData", Type: bytes32T},
	}

	packedArgs = abi.Arguments{
		{Name: "sender", Type: addressT},
		{Name: "nonce", Type: uint256T},
		{Name: "hashInitCode", Type: bytes32T},
		{Name: "hashCallData", Type: bytes32T},
		{Name: "accountGasLimits", Type: bytes32T},
		{Name: "preVerificationGas", Type: uint256T},
		{Name: "gasFees", Type: bytes32T},
		{Name: "hashPaymasterAndData", Type: bytes32T},
	}

	// v0.8 EIP-712 struct: the type hash followed by packedArgs.
	typedPackedArgs = append(abi.Arguments{{Name: "typeHash", Type: bytes32T}}, packedArgs...)

	domainArgs = abi.Arguments{
		{Name: "typeHash", Type: bytes32T},
		{Name: "name", Type: bytes32T},
		{Name: "version", Type: bytes32T},
		{Name: "chainId", Type: uint256T},
		{Name: "verifyingContract", Type: addressT},
	}

	PACKED_USEROP_TYPEHASH = crypto.Keccak256Hash([]byte(
		"PackedUserOperation(address sender,uint256 nonce,bytes initCode,bytes callData,bytes32 accountGasLimits,uint256 preVerificationGas,bytes32 gasFees,bytes paymasterAndData)"))
	EIP712_DOMAIN_TYPEHASH = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	domainName    = crypto.Keccak256Hash([]byte("ERC4337"))
	domainVersion = crypto.Keccak256Hash([]byte("1"))
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// hashStrategy computes the EntryPoint's getUserOpHash for one revision.
type hashStrategy func(op *Operation, chainID *big.Int) (common.Hash, error)

var hashStrategies = map[Version]hashStrategy{
	V06: hashV06,
	V07: hashV07,
	V08: hashV08,
}

// Hash returns the operation hash the EntryPoint computes for op.Version.
// The signature is never part of the pre-image.
func (op *Operation) Hash(chainID *big.Int) (common.Hash, error) {
	strategy, ok := hashStrategies[op.Version]
	if !ok {
		return common.Hash{}, malformed("no hash strategy for revision %s", op.Version)
	}
	if chainID == nil {
		return common.Hash{}, fmt.Errorf("chain id is required to hash a user operation")
	}
	return strategy(op, chainID)
}

func hashV06(op *Operation, chainID *big.Int) (common.Hash, error) {
	u := op.Unpacked()
	inner, err := v06Args.Pack(
		u.Sender,
		bigOrZero(u.Nonce),
		crypto.Keccak256Hash(u.InitCode),
		crypto.Keccak256Hash(u.CallData),
		bigOrZero(u.CallGasLimit),
		bigOrZero(u.VerificationGasLimit),
		bigOrZero(u.PreVerificationGas),
		bigOrZero(u.MaxFeePerGas),
		bigOrZero(u.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(u.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode v0.6 user operation: %w", err)
	}
	return wrapWithEntryPoint(crypto.Keccak256Hash(inner), op.EntryPoint, chainID)
}

func hashV07(op *Operation, chainID *big.Int) (common.Hash, error) {
	p, err := op.Packed()
	if err != nil {
		return common.Hash{}, err
	}
	inner, err := packedArgs.Pack(packedFields(p, p.InitCode)...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode v0.7 user operation: %w", err)
	}
	return wrapWithEntryPoint(crypto.Keccak256Hash(inner), op.EntryPoint, chainID)
}

func hashV08(op *Operation, chainID *big.Int) (common.Hash, error) {
	p, err := op.Packed()
	if err != nil {
		return common.Hash{}, err
	}

	// With the 7702 marker the EntryPoint hashes the delegate in place of the marker.
	initCode := p.InitCode
	if op.Factory.IsEip7702Marker() {
		if op.Authorization == nil {
			return common.Hash{}, malformed("eip-7702 factory marker requires an authorization")
		}
		initCode = concat(op.Authorization.Address.Bytes(), op.Factory.Data)
	}

	structEnc, err := typedPackedArgs.Pack(append([]interface{}{PACKED_USEROP_TYPEHASH}, packedFields(p, initCode)...)...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode v0.8 user operation: %w", err)
	}
	domain, err := DomainSeparator(op.EntryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), crypto.Keccak256(structEnc)), nil
}

// DomainSeparator is the EIP-712 domain of a v0.8 EntryPoint.
func DomainSeparator(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	enc, err := domainArgs.Pack(EIP712_DOMAIN_TYPEHASH, domainName, domainVersion, chainID, entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode eip-712 domain: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func packedFields(p *PackedUserOperation, initCode []byte) []interface{} {
	return []interface{}{
		p.Sender,
		bigOrZero(p.Nonce),
		crypto.Keccak256Hash(initCode),
		crypto.Keccak256Hash(p.CallData),
		p.AccountGasLimits,
		bigOrZero(p.PreVerificationGas),
		p.GasFees,
		crypto.Keccak256Hash(p.PaymasterAndData),
	}
}

func wrapWithEntryPoint(inner common.Hash, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	enc, err := outerArgs.Pack(inner, entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
