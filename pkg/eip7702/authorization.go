// Package eip7702 builds EIP-7702 set-code authorizations and the raw type 0x04
// transaction that carries them when the relayer is bypassed.
package eip7702

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
)

// AuthorizationMagic prefixes the RLP payload an authority signs.
const AuthorizationMagic byte = 0x05

var (
	ErrUnexpectedSender     = errors.New("authorization signer does not match sender")
	ErrMissingAuthorization = errors.New("missing eip-7702 authorization")
)

// Authorization lets an EOA delegate its code to Address. Nonce is the
// authority's plain account nonce, unrelated to any EntryPoint nonce.
type Authorization struct {
	ChainID *big.Int
	Address common.Address
	Nonce   uint64
	YParity uint8
	R       *big.Int
	S       *big.Int
}

// SigningHash is keccak256(0x05 || rlp([chain_id, address, nonce])).
func (a *Authorization) SigningHash() (common.Hash, error) {
	payload, err := rlp.EncodeToBytes([]interface{}{bigOrZero(a.ChainID), a.Address, a.Nonce})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{AuthorizationMagic}, payload), nil
}

// Authority recovers the account that signed the authorization.
func (a *Authorization) Authority() (common.Address, error) {
	if a.R == nil || a.S == nil {
		return common.Address{}, fmt.Errorf("%w: authorization is unsigned", signer.ErrInvalidSignatureEncoding)
	}
	if !crypto.ValidateSignatureValues(a.YParity, a.R, a.S, true) {
		return common.Address{}, signer.ErrInvalidSignatureEncoding
	}
	hash, err := a.SigningHash()
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, signer.SignatureLength)
	a.R.FillBytes(sig[:32])
	a.S.FillBytes(sig[32:64])
	sig[64] = a.YParity

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// BuildAuthorization signs a delegation of sender's code to delegate. The
// signer must be the sender itself; anything else fails with
// ErrUnexpectedSender and nothing is signed.
func BuildAuthorization(s signer.Signer, sender, delegate common.Address, chainID *big.Int, nonce uint64) (*Authorization, error) {
	if s.Address() != sender {
		return nil, fmt.Errorf("%w: signer %s, sender %s", ErrUnexpectedSender, s.Address().Hex(), sender.Hex())
	}

	auth := &Authorization{
		ChainID: new(big.Int).Set(bigOrZero(chainID)),
		Address: delegate,
		Nonce:   nonce,
	}
	hash, err := auth.SigningHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}

	v, r, sv, err := signer.SignDigest(s, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	auth.YParity = v
	auth.R = new(big.Int).SetBytes(r)
	auth.S = new(big.Int).SetBytes(sv)
	return auth, nil
}

func (a *Authorization) rlpTuple() rlpAuthorization {
	return rlpAuthorization{
		ChainID: bigOrZero(a.ChainID),
		Address: a.Address,
		Nonce:   a.Nonce,
		YParity: a.YParity,
		R:       bigOrZero(a.R),
		S:       bigOrZero(a.S),
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
