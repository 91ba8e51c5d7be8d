package byte4

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute/executeBatch of the marketplace smart account
const accountABI = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}]},
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}]}
]`

func TestGetMethodFromCalldata(t *testing.T) {
	parsedABI, err := abi.JSON(strings.NewReader(accountABI))
	require.NoError(t, err)

	decodeHex := func(s string) []byte {
		b, err := hex.DecodeString(s)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name        string
		calldata    []byte
		wantMethod  string
		wantErr     bool
		errContains string
	}{
		{
			name:       "execute with arguments",
			calldata:   decodeHex("b61d27f6000000000000000000000000ce289bb9fb0a9591317981223cbe33d5dc42268d"),
			wantMethod: "execute",
		},
		{
			name:       "bare executeBatch selector",
			calldata:   decodeHex("47e1da2a"),
			wantMethod: "executeBatch",
		},
		{
			name:        "unknown selector",
			calldata:    decodeHex("12345678"),
			wantErr:     true,
			errContains: "0x12345678",
		},
		{
			name:        "too short",
			calldata:    decodeHex("1234"),
			wantErr:     true,
			errContains: "invalid selector length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := GetMethodFromCalldata(parsedABI, tt.calldata)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, method.Name)
		})
	}
}

func TestSelector(t *testing.T) {
	sel := Selector("transfer(address,uint256)")
	assert.Equal(t, "a9059cbb", hex.EncodeToString(sel[:]))
	assert.Equal(t, "0xa9059cbb", FormatSelector(sel[:]))
}
