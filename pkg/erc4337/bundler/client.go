// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/aa-relay/metrics"
	"github.com/AvaProtocol/aa-relay/pkg/logger"
	"github.com/AvaProtocol/aa-relay/version"
)

const (
	DefaultRequestTimeout = 30 * time.Second

	MethodSendUserOperation       = "eth_sendUserOperation"
	MethodEstimateUserOperation   = "eth_estimateUserOperationGas"
	MethodGetUserOperationReceipt = "eth_getUserOperationReceipt"
	MethodSendRawTransaction      = "eth_sendRawTransaction"
	MethodSupportedEntryPoints    = "eth_supportedEntryPoints"
	MethodChainID                 = "eth_chainId"
	MethodSendBundleNow           = "debug_bundler_sendBundleNow"
)

// BundlerClient talks JSON-RPC over HTTP POST to an EIP-4337 bundler.
type BundlerClient struct {
	http    *resty.Client
	url     string
	logger  logger.Logger
	metrics metrics.RelayMetrics
	nextID  atomic.Uint64
}

type Option func(*BundlerClient)

func WithLogger(l logger.Logger) Option {
	return func(bc *BundlerClient) { bc.logger = logger.EnsureLogger(l) }
}

func WithMetrics(m metrics.RelayMetrics) Option {
	return func(bc *BundlerClient) { bc.metrics = metrics.EnsureMetrics(m) }
}

// WithTimeout bounds every request. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(bc *BundlerClient) {
		if d > 0 {
			bc.http.SetTimeout(d)
		}
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(bc *BundlerClient) { bc.http.SetHeader(key, value) }
}

// NewBundlerClient creates a new BundlerClient for the given URL.
func NewBundlerClient(url string, opts ...Option) (*BundlerClient, error) {
	if url == "" {
		return nil, fmt.Errorf("bundler url is required")
	}
	client := resty.New()
	client.SetTimeout(DefaultRequestTimeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", version.UserAgent())

	bc := &BundlerClient{
		http:    client,
		url:     url,
		logger:  logger.NewNoOpLogger(),
		metrics: metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc, nil
}

func (bc *BundlerClient) URL() string {
	return bc.url
}

// call performs one JSON-RPC round trip. A JSON-RPC error is classified with
// ClassifyRelayerError. Everything else that goes wrong is wrapped in
// ErrTransport. found is false when the result is null.
func (bc *BundlerClient) call(ctx context.Context, method string, result interface{}, params ...interface{}) (found bool, err error) {
	if params == nil {
		params = []interface{}{}
	}
	req := JSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		Id:      bc.nextID.Add(1),
	}
	traceID := ulid.Make().String()
	started := time.Now()
	status := "ok"
	defer func() {
		bc.metrics.ObserveBundlerRequest(method, status, time.Since(started))
	}()

	bc.logger.Debug("bundler request", "method", method, "trace", traceID, "id", req.Id)

	resp, err := bc.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(bc.url)
	if err != nil {
		status = "transport_error"
		return false, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		status = "transport_error"
		if resp.IsError() {
			return false, fmt.Errorf("%w: %s: http %d: %s", ErrTransport, method, resp.StatusCode(), http.StatusText(resp.StatusCode()))
		}
		return false, fmt.Errorf("%w: %s: invalid response body: %w", ErrTransport, method, err)
	}

	if rpcResp.Error != nil {
		classified := ClassifyRelayerError(method, rpcResp.Error)
		status = "rejected"
		if IsAlreadyKnownMessage(rpcResp.Error.Message) {
			status = "already_known"
		}
		bc.logger.Debug("bundler returned error", "method", method, "trace", traceID,
			"code", rpcResp.Error.Code, "message", rpcResp.Error.Message)
		return false, classified
	}
	if resp.IsError() {
		status = "transport_error"
		return false, fmt.Errorf("%w: %s: http %d: %s", ErrTransport, method, resp.StatusCode(), http.StatusText(resp.StatusCode()))
	}

	if !rpcResp.hasResult() {
		return false, nil
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			status = "transport_error"
			return false, fmt.Errorf("%w: %s: cannot decode result: %w", ErrTransport, method, err)
		}
	}
	return true, nil
}

// SendUserOperation submits a signed operation and returns the relayer's
// userOpHash. payload is the revision-specific wire struct.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, payload interface{}, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	found, err := bc.call(ctx, MethodSendUserOperation, &hash, payload, entryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	if !found {
		return common.Hash{}, fmt.Errorf("%w: %s returned no hash", ErrTransport, MethodSendUserOperation)
	}
	bc.logger.Info("user operation submitted", "userOpHash", hash.Hex(), "entryPoint", entryPoint.Hex())
	return hash, nil
}

// SendRawTransaction posts a signed transaction envelope and returns its hash.
func (bc *BundlerClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	found, err := bc.call(ctx, MethodSendRawTransaction, &hash, hexutil.Encode(raw))
	if err != nil {
		return common.Hash{}, err
	}
	if !found {
		return common.Hash{}, fmt.Errorf("%w: %s returned no hash", ErrTransport, MethodSendRawTransaction)
	}
	bc.logger.Info("raw transaction submitted", "txHash", hash.Hex())
	return hash, nil
}

// EstimateUserOperationGas estimates the gas required for an operation.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
// The signature is not checked but must have the right length, see
// userop.DummySignature.
func (bc *BundlerClient) EstimateUserOperationGas(ctx context.Context, payload interface{}, entryPoint common.Address) (*GasEstimation, error) {
	var result gasEstimationResult
	found, err := bc.call(ctx, MethodEstimateUserOperation, &result, payload, entryPoint.Hex())
	if err != nil {
		return nil, err
	}
	if !found || result.CallGasLimit == nil || result.VerificationGasLimit == nil || result.PreVerificationGas == nil {
		return nil, fmt.Errorf("%w: %s returned an incomplete estimate", ErrTransport, MethodEstimateUserOperation)
	}
	return result.toEstimation(), nil
}

// GetUserOperationReceipt returns nil, nil while the operation is not mined.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var receipt UserOperationReceipt
	found, err := bc.call(ctx, MethodGetUserOperationReceipt, &receipt, userOpHash.Hex())
	if err != nil || !found {
		return nil, err
	}
	return &receipt, nil
}

func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entryPoints []common.Address
	if _, err := bc.call(ctx, MethodSupportedEntryPoints, &entryPoints); err != nil {
		return nil, err
	}
	return entryPoints, nil
}

func (bc *BundlerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	found, err := bc.call(ctx, MethodChainID, &id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s returned no chain id", ErrTransport, MethodChainID)
	}
	return id.ToInt(), nil
}

// SendBundleNow asks the relayer to bundle immediately. It only shortens
// latency, so failures are logged and reported as false, never returned.
func (bc *BundlerClient) SendBundleNow(ctx context.Context) bool {
	if _, err := bc.call(ctx, MethodSendBundleNow, nil); err != nil {
		bc.logger.Warn("bundler did not accept bundling hint", "error", err)
		return false
	}
	return true
}
