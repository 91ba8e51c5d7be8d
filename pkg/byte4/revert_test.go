package byte4

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeError(t *testing.T, signature string, types []string, values ...interface{}) []byte {
	t.Helper()
	args := abi.Arguments{}
	for _, typ := range types {
		ty, err := abi.NewType(typ, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: ty})
	}
	enc, err := args.Pack(values...)
	require.NoError(t, err)
	sel := Selector(signature)
	return append(sel[:], enc...)
}

func TestDecodeRevert(t *testing.T) {
	tests := []struct {
		name      string
		reason    []byte
		wantName  string
		wantMsg   string
		wantKnown bool
	}{
		{
			name:      "error string",
			reason:    encodeError(t, "Error(string)", []string{"string"}, "insufficient escrow"),
			wantName:  "Error",
			wantMsg:   "insufficient escrow",
			wantKnown: true,
		},
		{
			name:      "arithmetic panic",
			reason:    encodeError(t, "Panic(uint256)", []string{"uint256"}, big.NewInt(0x11)),
			wantName:  "Panic",
			wantMsg:   "arithmetic overflow or underflow",
			wantKnown: true,
		},
		{
			name:      "unlisted panic code",
			reason:    encodeError(t, "Panic(uint256)", []string{"uint256"}, big.NewInt(0x99)),
			wantName:  "Panic",
			wantMsg:   "panic 0x99",
			wantKnown: true,
		},
		{
			name:      "account execution failed",
			reason:    encodeError(t, "ExecutionFailed()", nil),
			wantName:  "ExecutionFailed",
			wantMsg:   "internal call reverted",
			wantKnown: true,
		},
		{
			name:      "entrypoint failed op",
			reason:    encodeError(t, "FailedOp(uint256,string)", []string{"uint256", "string"}, big.NewInt(0), "AA21 didn't pay prefund"),
			wantName:  "FailedOp",
			wantMsg:   "entrypoint rejected the operation: AA21 didn't pay prefund",
			wantKnown: true,
		},
		{
			name:    "unknown selector falls back to raw selector",
			reason:  common.FromHex("0xdeadbeef0000000000000000000000000000000000000000000000000000000000000001"),
			wantMsg: "0xdeadbeef",
		},
		{
			name:    "empty reason",
			reason:  nil,
			wantMsg: "reverted without a reason",
		},
		{
			name:    "short reason",
			reason:  []byte{0x01, 0x02},
			wantMsg: "0x0102",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := DecodeRevert(tt.reason)
			assert.Equal(t, tt.wantName, hint.Name)
			assert.Equal(t, tt.wantMsg, hint.Message)
			assert.Equal(t, tt.wantKnown, hint.Known())
		})
	}
}

func TestDecodeRevertKeepsSelector(t *testing.T) {
	reason := encodeError(t, "ExecutionFailed()", nil)
	hint := DecodeRevert(reason)

	assert.Equal(t, hexutil.Encode(reason[:4]), hint.Selector)
	assert.Equal(t, "ExecutionFailed: internal call reverted", hint.String())
}
