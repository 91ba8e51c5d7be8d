package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
)

var ErrSignatureMismatch = errors.New("signature does not recover to the expected signer")

// DummySignature has the right length and a valid recovery byte; relayers only
// need that shape during gas estimation.
var DummySignature = dummySignature()

func dummySignature() []byte {
	sig := make([]byte, signer.SignatureLength)
	copy(sig[:32], crypto.Keccak256(common.FromHex("0xdead123")))
	copy(sig[32:64], crypto.Keccak256(common.FromHex("0xbeef")))
	sig[64] = 27
	return sig
}

// Sign hashes op for chainID and stores the normalized signature over the
// personal-message digest of that hash. It returns the operation hash.
func (op *Operation) Sign(s signer.Signer, chainID *big.Int) (common.Hash, error) {
	hash, err := op.Hash(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := signer.SignMessage(s, hash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign user operation: %w", err)
	}
	op.Signature = sig
	return hash, nil
}

// VerifySignature recovers the signer of op.Signature and compares it with
// expected.
func (op *Operation) VerifySignature(chainID *big.Int, expected common.Address) error {
	hash, err := op.Hash(chainID)
	if err != nil {
		return err
	}
	recovered, err := signer.RecoverMessageSigner(hash.Bytes(), op.Signature)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("%w: signature recovers to %s, expected %s", ErrSignatureMismatch, recovered.Hex(), expected.Hex())
	}
	return nil
}

var paymasterWindowArgs = abi.Arguments{
	{Name: "validUntil", Type: mustType("uint48")},
	{Name: "validAfter", Type: mustType("uint48")},
}

// PaymasterDataForWindow builds the paymaster data a verifying paymaster
// expects: abi.encode(uint48 validUntil, uint48 validAfter) || signature.
func PaymasterDataForWindow(validUntil, validAfter uint64, sig []byte) ([]byte, error) {
	const maxUint48 = 1<<48 - 1
	if validUntil > maxUint48 || validAfter > maxUint48 {
		return nil, malformed("paymaster validity window exceeds uint48")
	}
	enc, err := paymasterWindowArgs.Pack(new(big.Int).SetUint64(validUntil), new(big.Int).SetUint64(validAfter))
	if err != nil {
		return nil, err
	}
	return concat(enc, sig), nil
}
