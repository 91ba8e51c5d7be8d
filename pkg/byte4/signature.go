package byte4

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector returns the first four bytes of keccak256(signature), e.g.
// Selector("transfer(address,uint256)").
func Selector(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}

// FormatSelector renders the leading four bytes of data as 0x-prefixed hex.
func FormatSelector(data []byte) string {
	if len(data) < 4 {
		return hexutil.Encode(data)
	}
	return hexutil.Encode(data[:4])
}

// GetMethodFromCalldata finds the ABI method called by calldata. Only the first
// four bytes are inspected, so a bare selector works too.
func GetMethodFromCalldata(parsedABI abi.ABI, calldata []byte) (*abi.Method, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(calldata))
	}
	method, err := parsedABI.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("no matching method found for selector: %s", FormatSelector(calldata))
	}
	return method, nil
}
