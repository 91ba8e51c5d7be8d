package aa

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0xe272b72E51a5bF8cB720fc6D6DF164a4D5E321C5")
	target = common.HexToAddress("0x036cbd53842c5426634e7929541ec2318f3dcf7e")
)

func TestPackExecute(t *testing.T) {
	data, err := PackExecute(target, big.NewInt(5), []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "b61d27f6", common.Bytes2Hex(data[:4]))

	args, err := AccountABI.Methods["execute"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, target, args[0].(common.Address))
	assert.Equal(t, 0, args[1].(*big.Int).Cmp(big.NewInt(5)))
	assert.Equal(t, []byte{0xde, 0xad}, args[2].([]byte))
}

func TestPackExecuteNilValue(t *testing.T) {
	data, err := PackExecute(target, nil, nil)
	require.NoError(t, err)

	args, err := AccountABI.Methods["execute"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, args[1].(*big.Int).Sign())
	assert.Empty(t, args[2].([]byte))
}

func TestPackExecuteBatch(t *testing.T) {
	data, err := PackExecuteBatch(
		[]common.Address{target, owner},
		nil,
		[][]byte{{0x01}, {0x02}},
	)
	require.NoError(t, err)
	assert.Equal(t, "47e1da2a", common.Bytes2Hex(data[:4]))

	_, err = PackExecuteBatch([]common.Address{target}, nil, [][]byte{{0x01}, {0x02}})
	assert.ErrorContains(t, err, "length mismatch")
}

func TestGetNonceRoundTrip(t *testing.T) {
	input, err := PackGetNonce(owner, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "35567e1a", common.Bytes2Hex(input[:4]))

	output, err := EntryPointABI.Methods["getNonce"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	nonce, err := UnpackGetNonce(output)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())
}

func TestPackGetNonceRejectsWideKey(t *testing.T) {
	_, err := PackGetNonce(owner, new(big.Int).Lsh(common.Big1, 192))
	assert.Error(t, err)

	_, err = PackGetNonce(owner, big.NewInt(-1))
	assert.Error(t, err)
}

func TestGetAddressRoundTrip(t *testing.T) {
	input, err := PackGetAddress(owner, nil)
	require.NoError(t, err)
	assert.Equal(t, FactoryABI.Methods["getAddress"].ID, input[:4])

	output, err := FactoryABI.Methods["getAddress"].Outputs.Pack(target)
	require.NoError(t, err)
	addr, err := UnpackGetAddress(output)
	require.NoError(t, err)
	assert.Equal(t, target, addr)
}
