package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"

	// SignatureLength is the serialized r || s || v length.
	SignatureLength = crypto.SignatureLength
)

var (
	ErrInvalidSignatureLength   = errors.New("invalid signature length")
	ErrInvalidSignatureEncoding = errors.New("invalid signature recovery byte")
	ErrUnknownSigner            = errors.New("no credential for address")
)

// Signer produces raw secp256k1 signatures over a 32 byte digest. The
// returned signature is r || s || v with v in {0, 1}, the go-ethereum
// convention. Implementations may be backed by a local key, a KMS or a
// remote signer.
type Signer interface {
	Address() common.Address
	SignHash(digest []byte) ([]byte, error)
}

// KeyResolver hands out the Signer that controls an account. It is injected
// per call so there is never a process wide key table.
type KeyResolver interface {
	Resolve(ctx context.Context, account common.Address) (Signer, error)
}

// PrivateKeySigner signs with an in-memory ECDSA key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func FromPrivateKeyHex(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return NewPrivateKeySigner(privateKey), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// SignHash uses RFC6979 deterministic nonces, so the same digest always yields
// the same signature.
func (s *PrivateKeySigner) SignHash(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

// StaticKeyResolver maps accounts to signers. A signer is always reachable
// through its own EOA address; smart accounts it owns are added with Bind.
type StaticKeyResolver struct {
	signers map[common.Address]Signer
}

func NewStaticKeyResolver(signers ...Signer) *StaticKeyResolver {
	r := &StaticKeyResolver{signers: make(map[common.Address]Signer, len(signers))}
	for _, s := range signers {
		r.signers[s.Address()] = s
	}
	return r
}

// Bind registers owner as the controller of a smart account.
func (r *StaticKeyResolver) Bind(account common.Address, owner Signer) {
	r.signers[account] = owner
}

func (r *StaticKeyResolver) Resolve(_ context.Context, account common.Address) (Signer, error) {
	s, ok := r.signers[account]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownSigner, account.Hex())
	}
	return s, nil
}

// PersonalDigest returns the EIP-191 "personal message" digest of data.
func PersonalDigest(data []byte) common.Hash {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	return crypto.Keccak256Hash(prefix, data)
}

// SignMessage generates an EIP-191 signature over data with v normalized to {27, 28}.
func SignMessage(s Signer, data []byte) ([]byte, error) {
	hash := PersonalDigest(data)
	sig, err := s.SignHash(hash.Bytes())
	if err != nil {
		return nil, err
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	return NormalizeSignature(sig)
}

// SignDigest signs a digest as is, without the message prefix, and returns
// the signature parts with yParity in {0, 1}.
func SignDigest(s Signer, digest common.Hash) (yParity uint8, r, sv []byte, err error) {
	sig, err := s.SignHash(digest.Bytes())
	if err != nil {
		return 0, nil, nil, err
	}
	if len(sig) != SignatureLength {
		return 0, nil, nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSignatureLength, len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return 0, nil, nil, fmt.Errorf("%w: %d", ErrInvalidSignatureEncoding, sig[64])
	}
	return v, sig[:32], sig[32:64], nil
}

// NormalizeSignature returns a copy of sig whose recovery byte is 27 or 28.
// Signatures already using 27/28 are returned unchanged.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignatureLength, len(sig), SignatureLength)
	}

	out := make([]byte, SignatureLength)
	copy(out, sig)
	switch out[64] {
	case 0, 1:
		out[64] += 27
	case 27, 28:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSignatureEncoding, sig[64])
	}
	return out, nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 signature over data.
func RecoverMessageSigner(data, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: got %d bytes", ErrInvalidSignatureLength, len(sig))
	}
	raw := make([]byte, SignatureLength)
	copy(raw, sig)
	if raw[64] >= 27 {
		raw[64] -= 27
	}

	pub, err := crypto.SigToPub(PersonalDigest(data).Bytes(), raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
