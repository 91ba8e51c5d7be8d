package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
)

func TestSignProducesNormalizedSignature(t *testing.T) {
	s := testSigner(t)

	for _, v := range []Version{V06, V07, V08} {
		t.Run(v.String(), func(t *testing.T) {
			op := mustBuild(t, &Draft{Sender: s.Address(), Nonce: big.NewInt(0)}, v)

			hash, err := op.Sign(s, testChainID)
			require.NoError(t, err)
			assert.Equal(t, mustHash(t, op), hash)
			require.Len(t, op.Signature, 65)
			assert.Contains(t, []byte{27, 28}, op.Signature[64])

			recovered, err := signer.RecoverMessageSigner(hash.Bytes(), op.Signature)
			require.NoError(t, err)
			assert.Equal(t, s.Address(), recovered)
			assert.NoError(t, op.VerifySignature(testChainID, s.Address()))

			first := common.CopyBytes(op.Signature)
			_, err = op.Sign(s, testChainID)
			require.NoError(t, err)
			assert.Equal(t, first, op.Signature, "signing is deterministic")
		})
	}
}

func TestVerifySignatureRejectsOtherSigner(t *testing.T) {
	s := testSigner(t)
	op := mustBuild(t, &Draft{Sender: s.Address(), Nonce: big.NewInt(0)}, V06)
	_, err := op.Sign(s, testChainID)
	require.NoError(t, err)

	err = op.VerifySignature(testChainID, testSender)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	op.Signature = op.Signature[:64]
	err = op.VerifySignature(testChainID, s.Address())
	assert.ErrorIs(t, err, signer.ErrInvalidSignatureLength)
}

func TestDummySignatureShape(t *testing.T) {
	require.Len(t, DummySignature, 65)
	assert.Equal(t, byte(27), DummySignature[64])
}

func TestPaymasterDataForWindow(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 28

	data, err := PaymasterDataForWindow(1_700_000_600, 1_700_000_000, sig)
	require.NoError(t, err)
	require.Len(t, data, 64+65)
	assert.Equal(t, common.LeftPadBytes(big.NewInt(1_700_000_600).Bytes(), 32), data[:32])
	assert.Equal(t, common.LeftPadBytes(big.NewInt(1_700_000_000).Bytes(), 32), data[32:64])
	assert.Equal(t, sig, data[64:])

	_, err = PaymasterDataForWindow(1<<48, 0, sig)
	assert.ErrorIs(t, err, ErrMalformedDraft)
}
