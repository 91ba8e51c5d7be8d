package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "0x4c0883a69102937d6231471b5decb208bf4a9c3a2e6f5e5f9d7b3a2c1e0f1a2b"

func testSigner(t *testing.T) *PrivateKeySigner {
	t.Helper()
	s, err := FromPrivateKeyHex(testKeyHex)
	require.NoError(t, err)
	return s
}

func TestPersonalDigestMatchesTextHash(t *testing.T) {
	hash := crypto.Keccak256([]byte("marketplace"))
	assert.Equal(t, accounts.TextHash(hash), PersonalDigest(hash).Bytes())
}

func TestSignMessageNormalizesRecoveryByte(t *testing.T) {
	s := testSigner(t)

	for i := 0; i < 16; i++ {
		data := crypto.Keccak256([]byte{byte(i)})
		sig, err := SignMessage(s, data)
		require.NoError(t, err)
		require.Len(t, sig, SignatureLength)
		assert.Contains(t, []byte{27, 28}, sig[64])

		recovered, err := RecoverMessageSigner(data, sig)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), recovered)
	}
}

func TestSignMessageIsDeterministic(t *testing.T) {
	s := testSigner(t)
	data := crypto.Keccak256([]byte("same input"))

	a, err := SignMessage(s, data)
	require.NoError(t, err)
	b, err := SignMessage(s, data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeSignature(t *testing.T) {
	base := make([]byte, SignatureLength)
	for i := range base[:64] {
		base[i] = byte(i + 1)
	}

	tests := []struct {
		name    string
		v       byte
		length  int
		want    byte
		wantErr error
	}{
		{name: "zero becomes 27", v: 0, length: 65, want: 27},
		{name: "one becomes 28", v: 1, length: 65, want: 28},
		{name: "27 unchanged", v: 27, length: 65, want: 27},
		{name: "28 unchanged", v: 28, length: 65, want: 28},
		{name: "eip155 style v rejected", v: 37, length: 65, wantErr: ErrInvalidSignatureEncoding},
		{name: "short signature", v: 0, length: 64, wantErr: ErrInvalidSignatureLength},
		{name: "long signature", v: 0, length: 66, wantErr: ErrInvalidSignatureLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := make([]byte, tt.length)
			copy(sig, base)
			if tt.length >= SignatureLength {
				sig[64] = tt.v
			}

			out, err := NormalizeSignature(sig)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[64])
			assert.Equal(t, sig[:64], out[:64])
		})
	}
}

func TestSignDigestReturnsParity(t *testing.T) {
	s := testSigner(t)
	digest := crypto.Keccak256Hash([]byte("raw digest"))

	v, r, sv, err := SignDigest(s, digest)
	require.NoError(t, err)
	assert.LessOrEqual(t, v, uint8(1))

	sig := append(append(append([]byte{}, r...), sv...), v)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestStaticKeyResolver(t *testing.T) {
	owner := testSigner(t)
	account := common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")

	r := NewStaticKeyResolver(owner)
	r.Bind(account, owner)

	got, err := r.Resolve(context.Background(), owner.Address())
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), got.Address())

	got, err = r.Resolve(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), got.Address())

	_, err = r.Resolve(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrUnknownSigner)
}
