package userop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

// NonceReader reads an account's nonce as tracked by an EntryPoint.
type NonceReader interface {
	EntryPointNonce(ctx context.Context, entryPoint, sender common.Address, key *big.Int) (*big.Int, error)
}

// Builder turns drafts into revision-specific operations.
type Builder struct {
	Policy *GasPolicy
	Nonces NonceReader

	// NonceKey selects the EntryPoint nonce sequence. Nil means key 0.
	NonceKey *big.Int

	logger logger.Logger
}

func NewBuilder(policy *GasPolicy, nonces NonceReader, lgr logger.Logger) *Builder {
	if policy == nil {
		policy = DefaultGasPolicy()
	}
	return &Builder{
		Policy: policy,
		Nonces: nonces,
		logger: logger.EnsureLogger(lgr),
	}
}

// Build validates draft for version and returns the unsigned operation. The
// sender's EntryPoint nonce is read unless the draft carries one; a failed
// read aborts the build.
func (b *Builder) Build(ctx context.Context, draft *Draft, entryPoint common.Address, version Version) (*Operation, error) {
	if draft == nil {
		return nil, malformed("nil draft")
	}
	if err := draft.Validate(version); err != nil {
		return nil, err
	}

	op := &Operation{
		Version:       version,
		EntryPoint:    entryPoint,
		Sender:        draft.Sender,
		Nonce:         copyBig(draft.Nonce),
		CallData:      common.CopyBytes(draft.CallData),
		Authorization: draft.Authorization,
	}
	if op.CallData == nil {
		op.CallData = []byte{}
	}

	deploying := false
	switch {
	case draft.Delegated():
		data := []byte{}
		if draft.Factory != nil {
			data = common.CopyBytes(draft.Factory.Data)
		}
		op.Factory = &Factory{Address: Eip7702FactoryMarker, Data: data}
	case draft.Factory != nil:
		op.Factory = &Factory{Address: draft.Factory.Address, Data: common.CopyBytes(draft.Factory.Data)}
		deploying = true
	}

	op.Gas = b.Policy.Apply(draft.Gas, deploying)

	if pm := draft.Paymaster; pm != nil {
		verification, postOp := b.Policy.PaymasterLimits(pm.VerificationGasLimit, pm.PostOpGasLimit)
		op.Paymaster = &Paymaster{
			Address:              pm.Address,
			VerificationGasLimit: verification,
			PostOpGasLimit:       postOp,
			Data:                 common.CopyBytes(pm.Data),
		}
	}

	if op.Nonce == nil {
		nonce, err := b.readNonce(ctx, op)
		if err != nil {
			return nil, err
		}
		op.Nonce = nonce
	}

	b.logger.Debug("user operation built",
		"sender", op.Sender.Hex(),
		"entryPoint", op.EntryPoint.Hex(),
		"version", op.Version.String(),
		"nonce", op.Nonce.String(),
		"deploying", deploying,
		"delegated", draft.Delegated(),
		"sponsored", op.Paymaster != nil)
	return op, nil
}

// RefreshNonce re-reads the EntryPoint nonce right before signing and reports
// whether it moved. Any signature already on op is dropped when it did.
func (b *Builder) RefreshNonce(ctx context.Context, op *Operation) (bool, error) {
	nonce, err := b.readNonce(ctx, op)
	if err != nil {
		return false, err
	}
	if op.Nonce != nil && op.Nonce.Cmp(nonce) == 0 {
		return false, nil
	}
	b.logger.Info("entrypoint nonce changed before signing",
		"sender", op.Sender.Hex(), "previous", fmt.Sprint(op.Nonce), "current", nonce.String())
	op.Nonce = nonce
	op.Signature = nil
	return true, nil
}

func (b *Builder) readNonce(ctx context.Context, op *Operation) (*big.Int, error) {
	if b.Nonces == nil {
		return nil, fmt.Errorf("no nonce reader configured and draft has no nonce")
	}
	key := b.NonceKey
	if key == nil {
		key = new(big.Int)
	}
	nonce, err := b.Nonces.EntryPointNonce(ctx, op.EntryPoint, op.Sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read entrypoint nonce of %s: %w", op.Sender.Hex(), err)
	}
	return nonce, nil
}
