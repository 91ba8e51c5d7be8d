// Package preset wires the builder, signer, bundler client and receipt poller
// into the two calls callers need: SendUserOp and SendDelegatedTransaction.
package preset

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/AvaProtocol/aa-relay/core/chainio"
	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
	"github.com/AvaProtocol/aa-relay/metrics"
	"github.com/AvaProtocol/aa-relay/pkg/eip1559"
	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

const (
	submissionAccepted     = "accepted"
	submissionAlreadyKnown = "already_known"
	submissionRejected     = "rejected"
)

// Options tune a Client. The zero value submits against the v0.6 EntryPoint,
// reads the chain id from the node and does not wait for receipts.
type Options struct {
	EntryPoint common.Address
	// Version pins the EntryPoint revision. VersionUnset resolves it from the address.
	Version  userop.Version
	Resolver *userop.Resolver
	// ChainID skips the chain id lookup when set.
	ChainID     *big.Int
	GasPolicy   *userop.GasPolicy
	EstimateGas bool
	ForceBundle bool
	// Poller, when set, is used by requests that ask to wait for a receipt.
	Poller *bundler.ReceiptPoller
}

// Client builds, signs and submits operations for the accounts its
// KeyResolver knows about. It holds no per-call state and is safe for
// concurrent use.
type Client struct {
	bundler *bundler.BundlerClient
	state   chainio.StateProvider
	keys    signer.KeyResolver
	builder *userop.Builder
	opts    Options

	metrics metrics.RelayMetrics
	logger  logger.Logger
}

func NewClient(bc *bundler.BundlerClient, state chainio.StateProvider, keys signer.KeyResolver, opts Options, m metrics.RelayMetrics, lgr logger.Logger) (*Client, error) {
	if bc == nil {
		return nil, errors.New("preset: bundler client is required")
	}
	if state == nil {
		return nil, errors.New("preset: state provider is required")
	}
	if keys == nil {
		return nil, errors.New("preset: key resolver is required")
	}
	if opts.EntryPoint == (common.Address{}) {
		opts.EntryPoint = userop.EntryPointV06
	}
	if opts.Resolver == nil {
		opts.Resolver = userop.DefaultResolver()
	}

	lgr = logger.EnsureLogger(lgr)
	return &Client{
		bundler: bc,
		state:   state,
		keys:    keys,
		builder: userop.NewBuilder(opts.GasPolicy, state, lgr),
		opts:    opts,
		metrics: metrics.EnsureMetrics(m),
		logger:  lgr,
	}, nil
}

// UserOpRequest describes one user operation. Zero values fall back to the
// client options and the gas policy.
type UserOpRequest struct {
	Sender   common.Address
	CallData []byte
	Nonce    *big.Int
	Gas      *userop.GasParameters
	// Factory deploys the sender. Mutually exclusive with Delegate.
	Factory   *userop.Factory
	Paymaster *userop.Paymaster
	// Delegate, when set, signs an EIP-7702 authorization from Sender to this
	// implementation and sends the operation through the v0.8 marker factory.
	Delegate *common.Address

	EntryPoint *common.Address
	Version    userop.Version

	WaitForReceipt bool
}

// UserOpResult reports what happened to a user operation. Outcome is set only
// when the request waited for a receipt.
type UserOpResult struct {
	Operation    *userop.Operation
	UserOpHash   common.Hash
	AlreadyKnown bool
	Bundled      bool
	Outcome      *bundler.Outcome
}

// SendUserOp builds, signs and submits req. A relayer that already holds the
// operation is not an error: the local hash is returned with AlreadyKnown set
// so the caller can poll for it. Submission failures are never retried.
func (c *Client) SendUserOp(ctx context.Context, req UserOpRequest) (*UserOpResult, error) {
	entryPoint := c.opts.EntryPoint
	if req.EntryPoint != nil {
		entryPoint = *req.EntryPoint
	}
	explicit := req.Version
	if explicit == userop.VersionUnset {
		explicit = c.opts.Version
	}
	version := c.opts.Resolver.ResolveWith(entryPoint, explicit, req.Delegate != nil)

	chainID, err := c.chainID(ctx)
	if err != nil {
		return nil, err
	}

	s, err := c.keys.Resolve(ctx, req.Sender)
	if err != nil {
		return nil, err
	}

	gas, err := c.withFees(ctx, req.Gas)
	if err != nil {
		return nil, err
	}

	draft := &userop.Draft{
		Sender:    req.Sender,
		Nonce:     req.Nonce,
		CallData:  req.CallData,
		Gas:       gas,
		Factory:   req.Factory,
		Paymaster: req.Paymaster,
	}

	if req.Delegate != nil {
		accountNonce, err := c.state.AccountNonce(ctx, req.Sender)
		if err != nil {
			return nil, err
		}
		auth, err := eip7702.BuildAuthorization(s, req.Sender, *req.Delegate, chainID, accountNonce)
		if err != nil {
			return nil, err
		}
		c.metrics.IncSignature("authorization")
		draft.Authorization = auth
	}

	op, err := c.builder.Build(ctx, draft, entryPoint, version)
	if err != nil {
		return nil, err
	}

	if c.opts.EstimateGas {
		c.applyEstimate(ctx, op, req.Gas, req.Paymaster)
	}

	if req.Nonce == nil {
		if _, err := c.builder.RefreshNonce(ctx, op); err != nil {
			return nil, err
		}
	}

	hash, err := op.Sign(s, chainID)
	if err != nil {
		return nil, err
	}
	if err := op.VerifySignature(chainID, s.Address()); err != nil {
		return nil, err
	}
	c.metrics.IncSignature("userop")

	payload, err := op.RPC()
	if err != nil {
		return nil, err
	}

	result := &UserOpResult{Operation: op, UserOpHash: hash}
	relayerHash, err := c.bundler.SendUserOperation(ctx, payload, entryPoint)
	switch {
	case errors.Is(err, bundler.ErrAlreadyKnown):
		c.logger.Info("relayer already holds user operation", "userOpHash", hash.Hex(), "sender", op.Sender.Hex())
		c.metrics.IncSubmission(version.String(), submissionAlreadyKnown)
		result.AlreadyKnown = true
	case err != nil:
		c.metrics.IncSubmission(version.String(), submissionRejected)
		return result, err
	default:
		c.metrics.IncSubmission(version.String(), submissionAccepted)
		if relayerHash != hash {
			c.logger.Warn("relayer returned a different user operation hash",
				"local", hash.Hex(), "relayer", relayerHash.Hex(), "entryPoint", entryPoint.Hex(), "version", version.String())
		}
		c.logger.Info("user operation submitted",
			"userOpHash", hash.Hex(), "sender", op.Sender.Hex(), "nonce", op.Nonce.String(), "entryPoint", entryPoint.Hex())
	}

	if c.opts.ForceBundle {
		result.Bundled = c.bundler.SendBundleNow(ctx)
	}

	if req.WaitForReceipt {
		outcome, err := c.waitFor(ctx, hash)
		if err != nil {
			return result, err
		}
		result.Outcome = outcome
	}

	return result, nil
}

// DelegatedTxRequest describes a self-sponsored EIP-7702 transaction. Fees
// and the chain id are filled in when zero.
type DelegatedTxRequest = eip7702.DelegatedTxRequest

type DelegatedTxResult struct {
	Transaction  *eip7702.SignedTransaction
	TxHash       common.Hash
	AlreadyKnown bool
}

// SendDelegatedTransaction signs and broadcasts a type 0x04 transaction that
// delegates req.Sender to req.Delegate.
func (c *Client) SendDelegatedTransaction(ctx context.Context, req DelegatedTxRequest) (*DelegatedTxResult, error) {
	if req.ChainID == nil {
		chainID, err := c.chainID(ctx)
		if err != nil {
			return nil, err
		}
		req.ChainID = chainID
	}
	maxFee, prio, err := c.fillFees(ctx, req.MaxFeePerGas, req.MaxPriorityFeePerGas)
	if err != nil {
		return nil, err
	}
	req.MaxFeePerGas, req.MaxPriorityFeePerGas = maxFee, prio

	s, err := c.keys.Resolve(ctx, req.Sender)
	if err != nil {
		return nil, err
	}

	stx, err := eip7702.BuildDelegatedTransaction(ctx, c.state, s, req, c.logger)
	if err != nil {
		return nil, err
	}
	c.metrics.IncSignature("delegated_tx")

	raw, err := stx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	hash, err := stx.Hash()
	if err != nil {
		return nil, err
	}

	result := &DelegatedTxResult{Transaction: stx, TxHash: hash}
	if _, err := c.bundler.SendRawTransaction(ctx, raw); err != nil {
		if !errors.Is(err, bundler.ErrAlreadyKnown) {
			c.metrics.IncSubmission("eip7702", submissionRejected)
			return result, err
		}
		c.metrics.IncSubmission("eip7702", submissionAlreadyKnown)
		result.AlreadyKnown = true
		return result, nil
	}

	c.metrics.IncSubmission("eip7702", submissionAccepted)
	c.logger.Info("delegated transaction submitted",
		"txHash", hash.Hex(), "sender", req.Sender.Hex(), "delegate", req.Delegate.Hex(),
		"maxFeePerGas", eip1559.FormatGwei(req.MaxFeePerGas))
	return result, nil
}

// WaitForReceipt polls for a previously submitted operation.
func (c *Client) WaitForReceipt(ctx context.Context, userOpHash common.Hash) (*bundler.Outcome, error) {
	return c.waitFor(ctx, userOpHash)
}

// Preflight compares the relayer with the configuration and logs any
// mismatch. It returns false when something looks wrong.
func (c *Client) Preflight(ctx context.Context) bool {
	ok := true

	supported, err := c.bundler.SupportedEntryPoints(ctx)
	if err != nil {
		c.logger.Warn("cannot list relayer entry points", "error", err)
		ok = false
	} else if !lo.Contains(supported, c.opts.EntryPoint) {
		c.logger.Warn("relayer does not advertise the configured entry point",
			"entryPoint", c.opts.EntryPoint.Hex(), "supported", supported)
		ok = false
	}

	relayerChain, err := c.bundler.ChainID(ctx)
	if err != nil {
		c.logger.Warn("cannot read relayer chain id", "error", err)
		return false
	}
	chainID, err := c.chainID(ctx)
	if err != nil {
		c.logger.Warn("cannot read chain id", "error", err)
		return false
	}
	if relayerChain.Cmp(chainID) != 0 {
		c.logger.Warn("relayer serves a different chain", "relayer", relayerChain.String(), "chain", chainID.String())
		ok = false
	}
	return ok
}

func (c *Client) waitFor(ctx context.Context, userOpHash common.Hash) (*bundler.Outcome, error) {
	poller := c.opts.Poller
	if poller == nil {
		poller = bundler.NewReceiptPoller(c.bundler, 0, 0, c.logger, c.metrics)
	}
	return poller.Poll(ctx, userOpHash)
}

func (c *Client) chainID(ctx context.Context) (*big.Int, error) {
	if c.opts.ChainID != nil {
		return c.opts.ChainID, nil
	}
	return c.state.ChainID(ctx)
}

// withFees fills missing fee fields from the node. Caller values are sent
// as given.
func (c *Client) withFees(ctx context.Context, overrides *userop.GasParameters) (*userop.GasParameters, error) {
	gas := &userop.GasParameters{}
	if overrides != nil {
		gas = overrides.Copy()
	}
	maxFee, prio, err := c.fillFees(ctx, gas.MaxFeePerGas, gas.MaxPriorityFeePerGas)
	if err != nil {
		return nil, err
	}
	gas.MaxFeePerGas, gas.MaxPriorityFeePerGas = maxFee, prio
	return gas, nil
}

// fillFees asks the node for whichever fee is missing. Only a suggested
// maxFee is raised above the tip; a caller maxFee is never rewritten.
func (c *Client) fillFees(ctx context.Context, maxFee, prio *big.Int) (*big.Int, *big.Int, error) {
	if maxFee != nil && prio != nil {
		return maxFee, prio, nil
	}
	suggestedMax, suggestedPrio, err := c.state.SuggestFees(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest fees: %w", err)
	}
	if prio == nil {
		prio = suggestedPrio
	}
	if maxFee == nil {
		maxFee = userop.EnsureFeeHeadroom(suggestedMax, prio)
	}
	return maxFee, prio, nil
}

// applyEstimate asks the relayer for gas limits using a placeholder signature.
// Caller overrides are kept; a failed estimate leaves the policy defaults.
func (c *Client) applyEstimate(ctx context.Context, op *userop.Operation, overrides *userop.GasParameters, pmOverrides *userop.Paymaster) {
	if overrides == nil {
		overrides = &userop.GasParameters{}
	}

	op.Signature = userop.DummySignature
	defer func() { op.Signature = nil }()

	payload, err := op.RPC()
	if err != nil {
		c.logger.Warn("cannot encode operation for estimation", "error", err)
		return
	}
	est, err := c.bundler.EstimateUserOperationGas(ctx, payload, op.EntryPoint)
	if err != nil {
		c.logger.Warn("gas estimation failed, keeping defaults", "sender", op.Sender.Hex(), "error", err)
		return
	}

	if overrides.CallGasLimit == nil && est.CallGasLimit != nil {
		op.Gas.CallGasLimit = est.CallGasLimit
	}
	if overrides.VerificationGasLimit == nil && est.VerificationGasLimit != nil {
		op.Gas.VerificationGasLimit = est.VerificationGasLimit
	}
	if overrides.PreVerificationGas == nil && est.PreVerificationGas != nil {
		op.Gas.PreVerificationGas = est.PreVerificationGas
	}
	if pm := op.Paymaster; pm != nil && op.Version.Packed() {
		if pmOverrides == nil {
			pmOverrides = &userop.Paymaster{}
		}
		if pmOverrides.VerificationGasLimit == nil && est.PaymasterVerificationGasLimit != nil {
			pm.VerificationGasLimit = est.PaymasterVerificationGasLimit
		}
		if pmOverrides.PostOpGasLimit == nil && est.PaymasterPostOpGasLimit != nil {
			pm.PostOpGasLimit = est.PaymasterPostOpGasLimit
		}
	}
	c.logger.Debug("applied gas estimate",
		"callGasLimit", op.Gas.CallGasLimit.String(),
		"verificationGasLimit", op.Gas.VerificationGasLimit.String(),
		"preVerificationGas", op.Gas.PreVerificationGas.String())
}
