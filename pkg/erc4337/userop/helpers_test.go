package userop

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
)

var (
	testSender    = common.HexToAddress("0xAAAaAAaaaAaAAaAAaaaAAAaAaaaaaAAaaAaaaAAa")
	testChainID   = big.NewInt(11155111)
	testPaymaster = common.HexToAddress("0xd856f532F7C032e6b30d76F19187F25A068D6d92")
	testFactory   = common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7")
	testDelegate  = common.HexToAddress("0x63c0c19a282a1B52b07dD5a65b58948A07DAE32B")
)

type fixedNonces struct {
	nonce *big.Int
	err   error
	calls int
}

func (f *fixedNonces) EntryPointNonce(_ context.Context, _, _ common.Address, _ *big.Int) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.nonce), nil
}

func testSigner(t *testing.T) *signer.PrivateKeySigner {
	t.Helper()
	s, err := signer.FromPrivateKeyHex("0x4c0883a69102937d6231471b5decb208bf4a9c3a2e6f5e5f9d7b3a2c1e0f1a2b")
	require.NoError(t, err)
	return s
}

func entryPointFor(v Version) common.Address {
	switch v {
	case V07:
		return EntryPointV07
	case V08:
		return EntryPointV08
	}
	return EntryPointV06
}

func mustBuild(t *testing.T, draft *Draft, v Version) *Operation {
	t.Helper()
	b := NewBuilder(nil, &fixedNonces{nonce: big.NewInt(0)}, nil)
	op, err := b.Build(context.Background(), draft, entryPointFor(v), v)
	require.NoError(t, err)
	return op
}

func mustHash(t *testing.T, op *Operation) common.Hash {
	t.Helper()
	h, err := op.Hash(testChainID)
	require.NoError(t, err)
	return h
}

func delegatedDraft(t *testing.T, s signer.Signer) *Draft {
	t.Helper()
	auth, err := eip7702.BuildAuthorization(s, s.Address(), testDelegate, testChainID, 0)
	require.NoError(t, err)
	return &Draft{
		Sender:        s.Address(),
		Nonce:         big.NewInt(0),
		CallData:      common.FromHex("0xb61d27f6"),
		Authorization: auth,
	}
}
