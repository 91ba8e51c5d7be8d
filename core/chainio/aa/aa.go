// Package aa packs and unpacks the account, factory and EntryPoint calls the
// relayer needs. Any other call data is carried through as opaque bytes.
package aa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const accountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}]},
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}]}
]`

const factoryABIJSON = `[
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	AccountABI    = mustParse("account", accountABIJSON)
	FactoryABI    = mustParse("factory", factoryABIJSON)
	EntryPointABI = mustParse("entrypoint", entryPointABIJSON)

	maxNonceKey = new(big.Int).Sub(new(big.Int).Lsh(common.Big1, 192), common.Big1)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Errorf("invalid %s ABI: %w", name, err))
	}
	return parsed
}

// PackExecute wraps a single call in the account's execute(address,uint256,bytes).
func PackExecute(target common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	if value == nil {
		value = common.Big0
	}
	if calldata == nil {
		calldata = []byte{}
	}
	return AccountABI.Pack("execute", target, value, calldata)
}

// PackExecuteBatch wraps several calls in executeBatch(address[],uint256[],bytes[]).
// A nil values slice means no value on any call.
func PackExecuteBatch(targets []common.Address, values []*big.Int, calldata [][]byte) ([]byte, error) {
	if values == nil {
		values = make([]*big.Int, len(targets))
	}
	if len(targets) != len(values) || len(targets) != len(calldata) {
		return nil, fmt.Errorf("executeBatch length mismatch: %d targets, %d values, %d calls", len(targets), len(values), len(calldata))
	}
	vals := make([]*big.Int, len(values))
	for i, v := range values {
		if v == nil {
			v = common.Big0
		}
		vals[i] = v
	}
	return AccountABI.Pack("executeBatch", targets, vals, calldata)
}

// CreateAccountData is the factory calldata that deploys owner's account.
func CreateAccountData(owner common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		salt = DefaultSalt
	}
	return FactoryABI.Pack("createAccount", owner, salt)
}

func PackGetAddress(owner common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		salt = DefaultSalt
	}
	return FactoryABI.Pack("getAddress", owner, salt)
}

func UnpackGetAddress(output []byte) (common.Address, error) {
	out, err := FactoryABI.Unpack("getAddress", output)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// PackGetNonce encodes EntryPoint.getNonce(sender, key). key must fit in 192 bits.
func PackGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	if key == nil {
		key = common.Big0
	}
	if key.Sign() < 0 || key.Cmp(maxNonceKey) > 0 {
		return nil, fmt.Errorf("nonce key %s does not fit in uint192", key)
	}
	return EntryPointABI.Pack("getNonce", sender, key)
}

func UnpackGetNonce(output []byte) (*big.Int, error) {
	out, err := EntryPointABI.Unpack("getNonce", output)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}
