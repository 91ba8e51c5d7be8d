// Package chainio reads the chain state the relayer needs: account and
// EntryPoint nonces, the chain id, fee suggestions and counterfactual
// account addresses.
package chainio

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/AvaProtocol/aa-relay/core/chainio/aa"
	"github.com/AvaProtocol/aa-relay/pkg/eip1559"
	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

const (
	chainIDCacheKey = "chain_id"
	// DefaultCacheLifeWindow bounds how long the chain id and counterfactual
	// addresses are reused before being read again.
	DefaultCacheLifeWindow = 30 * time.Minute
)

// ErrNoCode is returned when an address expected to be a contract has no code.
var ErrNoCode = errors.New("no contract code at address")

// ChainReader is the part of ethclient.Client the provider depends on.
type ChainReader interface {
	ethereum.ContractCaller
	eip1559.FeeSource
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// StateProvider is everything the transaction builders read from a node.
type StateProvider interface {
	AccountNonce(ctx context.Context, account common.Address) (uint64, error)
	EntryPointNonce(ctx context.Context, entryPoint, sender common.Address, key *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestFees(ctx context.Context) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error)
}

// EthStateProvider implements StateProvider on top of an RPC node.
type EthStateProvider struct {
	client ChainReader
	cache  *bigcache.BigCache
	logger logger.Logger
}

func NewEthStateProvider(client ChainReader, lifeWindow time.Duration, lgr logger.Logger) (*EthStateProvider, error) {
	if lifeWindow <= 0 {
		lifeWindow = DefaultCacheLifeWindow
	}
	cache, err := bigcache.New(context.Background(), bigcache.Config{
		// number of shards (must be a power of 2)
		Shards:             16,
		LifeWindow:         lifeWindow,
		CleanWindow:        5 * time.Minute,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64,
		HardMaxCacheSize:   8,
	})
	if err != nil {
		return nil, fmt.Errorf("create state cache: %w", err)
	}

	return &EthStateProvider{
		client: client,
		cache:  cache,
		logger: logger.EnsureLogger(lgr),
	}, nil
}

// DialStateProvider connects to rpcURL and wraps the client.
func DialStateProvider(ctx context.Context, rpcURL string, lgr logger.Logger) (*EthStateProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return NewEthStateProvider(client, DefaultCacheLifeWindow, lgr)
}

// AccountNonce returns the pending transaction count of an EOA.
func (p *EthStateProvider) AccountNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := p.client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("read nonce of %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

// EntryPointNonce calls EntryPoint.getNonce(sender, key).
func (p *EthStateProvider) EntryPointNonce(ctx context.Context, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	input, err := aa.PackGetNonce(sender, key)
	if err != nil {
		return nil, err
	}

	output, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("getNonce on %s: %w", entryPoint.Hex(), err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("getNonce on %s: %w", entryPoint.Hex(), ErrNoCode)
	}
	return aa.UnpackGetNonce(output)
}

// ChainID is read once and served from the cache afterwards.
func (p *EthStateProvider) ChainID(ctx context.Context) (*big.Int, error) {
	if data, err := p.cache.Get(chainIDCacheKey); err == nil {
		return new(big.Int).SetBytes(data), nil
	}

	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if err := p.cache.Set(chainIDCacheKey, chainID.Bytes()); err != nil {
		p.logger.Warn("cannot cache chain id", "error", err)
	}
	return chainID, nil
}

func (p *EthStateProvider) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	maxFee, prio, err := eip1559.SuggestFee(ctx, p.client)
	if err != nil {
		return nil, nil, err
	}
	p.logger.Debug("suggested fees", "maxFeePerGas", eip1559.FormatGwei(maxFee), "maxPriorityFeePerGas", eip1559.FormatGwei(prio))
	return maxFee, prio, nil
}

// CounterfactualAddress asks factory where owner's account with salt lives.
// The answer never changes for a given factory, so it is cached.
func (p *EthStateProvider) CounterfactualAddress(ctx context.Context, factory, owner common.Address, salt *big.Int) (common.Address, error) {
	if salt == nil {
		salt = aa.DefaultSalt
	}
	cacheKey := fmt.Sprintf("sender:%s:%s:%s", factory.Hex(), owner.Hex(), salt.String())
	if data, err := p.cache.Get(cacheKey); err == nil {
		return common.BytesToAddress(data), nil
	}

	input, err := aa.PackGetAddress(owner, salt)
	if err != nil {
		return common.Address{}, err
	}
	output, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: input}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("getAddress on %s: %w", factory.Hex(), err)
	}
	if len(output) == 0 {
		return common.Address{}, fmt.Errorf("getAddress on %s: %w", factory.Hex(), ErrNoCode)
	}

	sender, err := aa.UnpackGetAddress(output)
	if err != nil {
		return common.Address{}, err
	}
	if err := p.cache.Set(cacheKey, sender.Bytes()); err != nil {
		p.logger.Warn("cannot cache counterfactual address", "error", err)
	}
	return sender, nil
}

// Close releases the cache.
func (p *EthStateProvider) Close() error {
	return p.cache.Close()
}

var _ StateProvider = (*EthStateProvider)(nil)
var _ ChainReader = (*ethclient.Client)(nil)
