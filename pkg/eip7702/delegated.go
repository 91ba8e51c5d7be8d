package eip7702

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

// DEFAULT_DELEGATION_GAS_LIMIT covers the base cost plus one authorization
// against an empty account and a short call into the delegate.
const DEFAULT_DELEGATION_GAS_LIMIT = uint64(100_000)

// NonceReader reads an EOA's current transaction nonce, pending included.
type NonceReader interface {
	AccountNonce(ctx context.Context, account common.Address) (uint64, error)
}

// DelegatedTxRequest describes a self-sponsored type 0x04 transaction. The
// sender authorizes Delegate and pays for the transaction. Destination
// defaults to the sender, Value to zero and Data to empty, which posts only
// the authorization.
type DelegatedTxRequest struct {
	ChainID              *big.Int
	Sender               common.Address
	Delegate             common.Address
	Destination          *common.Address
	Value                *big.Int
	Data                 []byte
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (r *DelegatedTxRequest) destination() common.Address {
	if r.Destination != nil {
		return *r.Destination
	}
	return r.Sender
}

func (r *DelegatedTxRequest) validate() error {
	if r.ChainID == nil || r.ChainID.Sign() <= 0 {
		return fmt.Errorf("delegated transaction: chain id is required")
	}
	if r.MaxFeePerGas == nil || r.MaxPriorityFeePerGas == nil {
		return fmt.Errorf("delegated transaction: fee parameters are required")
	}
	if r.MaxFeePerGas.Cmp(r.MaxPriorityFeePerGas) < 0 {
		return fmt.Errorf("delegated transaction: maxFeePerGas %s below maxPriorityFeePerGas %s", r.MaxFeePerGas, r.MaxPriorityFeePerGas)
	}
	if r.Value != nil && r.Value.Sign() < 0 {
		return fmt.Errorf("delegated transaction: negative value")
	}
	return nil
}

// nonceTracker remembers the nonce observed for a sender during one build so
// the value can be checked again right before signing.
type nonceTracker struct {
	reader NonceReader
	seen   map[common.Address]uint64
}

func newNonceTracker(reader NonceReader) *nonceTracker {
	return &nonceTracker{reader: reader, seen: make(map[common.Address]uint64)}
}

func (t *nonceTracker) read(ctx context.Context, sender common.Address) (uint64, error) {
	nonce, err := t.reader.AccountNonce(ctx, sender)
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce of %s: %w", sender.Hex(), err)
	}
	t.seen[sender] = nonce
	return nonce, nil
}

// refresh re-reads the nonce and reports whether it moved since the last read.
func (t *nonceTracker) refresh(ctx context.Context, sender common.Address) (uint64, bool, error) {
	previous, hadPrevious := t.seen[sender]
	nonce, err := t.read(ctx, sender)
	if err != nil {
		return 0, false, err
	}
	return nonce, hadPrevious && previous != nonce, nil
}

// BuildDelegatedTransaction signs the authorization and the envelope that
// carries it. Because the sender executes its own authorization, the
// authorization nonce is the transaction nonce + 1.
//
// The sender's nonce is read once to build the tuple and again immediately
// before the envelope is signed; if it moved in between, the authorization
// and tuple are rebuilt with the fresh value.
func BuildDelegatedTransaction(
	ctx context.Context,
	nonces NonceReader,
	s signer.Signer,
	req DelegatedTxRequest,
	lgr logger.Logger,
) (*SignedTransaction, error) {
	log := logger.EnsureLogger(lgr)

	if s.Address() != req.Sender {
		return nil, fmt.Errorf("%w: signer %s, sender %s", ErrUnexpectedSender, s.Address().Hex(), req.Sender.Hex())
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.GasLimit == 0 {
		req.GasLimit = DEFAULT_DELEGATION_GAS_LIMIT
	}

	tracker := newNonceTracker(nonces)
	nonce, err := tracker.read(ctx, req.Sender)
	if err != nil {
		return nil, err
	}

	tx, err := buildTuple(s, &req, nonce)
	if err != nil {
		return nil, err
	}

	fresh, changed, err := tracker.refresh(ctx, req.Sender)
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info("sender nonce moved before signing, rebuilding delegated transaction",
			"sender", req.Sender.Hex(), "previous", nonce, "current", fresh)
		tx, err = buildTuple(s, &req, fresh)
		if err != nil {
			return nil, err
		}
	}

	signed, err := tx.Sign(s)
	if err != nil {
		return nil, err
	}
	log.Debug("delegated transaction signed",
		"sender", req.Sender.Hex(), "delegate", req.Delegate.Hex(), "nonce", signed.Tx.Nonce)
	return signed, nil
}

func buildTuple(s signer.Signer, req *DelegatedTxRequest, nonce uint64) (*UnsignedTransaction, error) {
	auth, err := BuildAuthorization(s, req.Sender, req.Delegate, req.ChainID, nonce+1)
	if err != nil {
		return nil, err
	}
	return newUnsignedTransaction(req, nonce, auth), nil
}
