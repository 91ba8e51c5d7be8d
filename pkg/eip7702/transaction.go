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

// SetCodeTxType is the EIP-2718 type byte of a delegated transaction.
const SetCodeTxType byte = 0x04

var ErrInvalidTxType = errors.New("not a set-code transaction")

type rlpAuthorization struct {
	ChainID *big.Int
	Address common.Address
	Nonce   uint64
	YParity uint8
	R       *big.Int
	S       *big.Int
}

type accessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// UnsignedTransaction is the pre-signature tuple of a type 0x04 transaction.
// The access list is always empty and the authorization list holds exactly
// one entry.
//
// Integers are RLP encoded as minimal big-endian strings, so a zero value
// encodes as the empty string (0x80).
type UnsignedTransaction struct {
	ChainID              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             uint64
	Destination          common.Address
	Value                *big.Int
	Data                 []byte
	AccessList           []accessTuple
	AuthorizationList    []rlpAuthorization
}

// signedTransactionRLP is UnsignedTransaction followed by the outer signature.
type signedTransactionRLP struct {
	ChainID              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             uint64
	Destination          common.Address
	Value                *big.Int
	Data                 []byte
	AccessList           []accessTuple
	AuthorizationList    []rlpAuthorization
	YParity              uint8
	R                    *big.Int
	S                    *big.Int
}

// SignedTransaction is a fully signed, self-contained delegated transaction.
type SignedTransaction struct {
	Tx      UnsignedTransaction
	YParity uint8
	R       *big.Int
	S       *big.Int
}

func newUnsignedTransaction(req *DelegatedTxRequest, nonce uint64, auth *Authorization) *UnsignedTransaction {
	tx := &UnsignedTransaction{
		ChainID:              new(big.Int).Set(bigOrZero(req.ChainID)),
		Nonce:                nonce,
		MaxPriorityFeePerGas: new(big.Int).Set(bigOrZero(req.MaxPriorityFeePerGas)),
		MaxFeePerGas:         new(big.Int).Set(bigOrZero(req.MaxFeePerGas)),
		GasLimit:             req.GasLimit,
		Destination:          req.destination(),
		Value:                new(big.Int).Set(bigOrZero(req.Value)),
		Data:                 common.CopyBytes(req.Data),
		AccessList:           []accessTuple{},
		AuthorizationList:    []rlpAuthorization{auth.rlpTuple()},
	}
	return tx
}

// SigningPayload returns 0x04 || rlp(tuple).
func (tx *UnsignedTransaction) SigningPayload() ([]byte, error) {
	if len(tx.AuthorizationList) != 1 {
		return nil, fmt.Errorf("%w: want exactly one authorization, got %d", ErrMissingAuthorization, len(tx.AuthorizationList))
	}
	enc, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return nil, err
	}
	return append([]byte{SetCodeTxType}, enc...), nil
}

// SigningHash is keccak256 of SigningPayload. It is signed as a raw digest.
func (tx *UnsignedTransaction) SigningHash() (common.Hash, error) {
	payload, err := tx.SigningPayload()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

// Authorization returns the single authorization carried by the tuple.
func (tx *UnsignedTransaction) Authorization() *Authorization {
	if len(tx.AuthorizationList) == 0 {
		return nil
	}
	a := tx.AuthorizationList[0]
	return &Authorization{ChainID: a.ChainID, Address: a.Address, Nonce: a.Nonce, YParity: a.YParity, R: a.R, S: a.S}
}

// Sign signs the tuple with s. No message prefix is applied.
func (tx *UnsignedTransaction) Sign(s signer.Signer) (*SignedTransaction, error) {
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, err
	}
	v, r, sv, err := signer.SignDigest(s, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign delegated transaction: %w", err)
	}
	return &SignedTransaction{
		Tx:      *tx,
		YParity: v,
		R:       new(big.Int).SetBytes(r),
		S:       new(big.Int).SetBytes(sv),
	}, nil
}

// DecodeUnsignedTransaction parses a SigningPayload.
func DecodeUnsignedTransaction(payload []byte) (*UnsignedTransaction, error) {
	if len(payload) == 0 || payload[0] != SetCodeTxType {
		return nil, ErrInvalidTxType
	}
	var tx UnsignedTransaction
	if err := rlp.DecodeBytes(payload[1:], &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarshalBinary returns the EIP-2718 envelope 0x04 || rlp(tuple ++ [y_parity, r, s]).
func (stx *SignedTransaction) MarshalBinary() ([]byte, error) {
	tx := stx.Tx
	enc, err := rlp.EncodeToBytes(&signedTransactionRLP{
		ChainID:              bigOrZero(tx.ChainID),
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: bigOrZero(tx.MaxPriorityFeePerGas),
		MaxFeePerGas:         bigOrZero(tx.MaxFeePerGas),
		GasLimit:             tx.GasLimit,
		Destination:          tx.Destination,
		Value:                bigOrZero(tx.Value),
		Data:                 tx.Data,
		AccessList:           tx.AccessList,
		AuthorizationList:    tx.AuthorizationList,
		YParity:              stx.YParity,
		R:                    bigOrZero(stx.R),
		S:                    bigOrZero(stx.S),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{SetCodeTxType}, enc...), nil
}

// Hash is the transaction hash a node reports for the envelope.
func (stx *SignedTransaction) Hash() (common.Hash, error) {
	raw, err := stx.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw), nil
}

// Sender recovers the address that signed the envelope.
func (stx *SignedTransaction) Sender() (common.Address, error) {
	hash, err := stx.Tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, signer.SignatureLength)
	bigOrZero(stx.R).FillBytes(sig[:32])
	bigOrZero(stx.S).FillBytes(sig[32:64])
	sig[64] = stx.YParity

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DecodeSignedTransaction parses a MarshalBinary envelope.
func DecodeSignedTransaction(raw []byte) (*SignedTransaction, error) {
	if len(raw) == 0 || raw[0] != SetCodeTxType {
		return nil, ErrInvalidTxType
	}
	var dec signedTransactionRLP
	if err := rlp.DecodeBytes(raw[1:], &dec); err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Tx: UnsignedTransaction{
			ChainID:              dec.ChainID,
			Nonce:                dec.Nonce,
			MaxPriorityFeePerGas: dec.MaxPriorityFeePerGas,
			MaxFeePerGas:         dec.MaxFeePerGas,
			GasLimit:             dec.GasLimit,
			Destination:          dec.Destination,
			Value:                dec.Value,
			Data:                 dec.Data,
			AccessList:           dec.AccessList,
			AuthorizationList:    dec.AuthorizationList,
		},
		YParity: dec.YParity,
		R:       dec.R,
		S:       dec.S,
	}, nil
}
