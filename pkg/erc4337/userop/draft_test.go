package userop

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
)

func TestDraftValidate(t *testing.T) {
	signed := &eip7702.Authorization{
		ChainID: big.NewInt(1),
		Address: testDelegate,
		R:       big.NewInt(1),
		S:       big.NewInt(1),
	}

	tests := []struct {
		name    string
		draft   Draft
		version Version
		wantErr bool
	}{
		{
			name:    "account call only",
			draft:   Draft{Sender: testSender},
			version: V06,
		},
		{
			name:    "missing sender",
			draft:   Draft{},
			version: V06,
			wantErr: true,
		},
		{
			name:    "creation factory",
			draft:   Draft{Sender: testSender, Factory: &Factory{Address: testFactory, Data: []byte{1}}},
			version: V07,
		},
		{
			name:    "creation factory with authorization",
			draft:   Draft{Sender: testSender, Factory: &Factory{Address: testFactory}, Authorization: signed},
			version: V08,
			wantErr: true,
		},
		{
			name:    "7702 marker without authorization",
			draft:   Draft{Sender: testSender, Factory: &Factory{Address: Eip7702FactoryMarker}},
			version: V08,
			wantErr: true,
		},
		{
			name:    "7702 delegation before v0.8",
			draft:   Draft{Sender: testSender, Authorization: signed},
			version: V07,
			wantErr: true,
		},
		{
			name:    "7702 delegation on v0.8",
			draft:   Draft{Sender: testSender, Authorization: signed},
			version: V08,
		},
		{
			name:    "unsigned authorization",
			draft:   Draft{Sender: testSender, Authorization: &eip7702.Authorization{ChainID: big.NewInt(1)}},
			version: V08,
			wantErr: true,
		},
		{
			name:    "paymaster without address",
			draft:   Draft{Sender: testSender, Paymaster: &Paymaster{Data: []byte{1}}},
			version: V07,
			wantErr: true,
		},
		{
			name: "paymaster with one gas limit",
			draft: Draft{Sender: testSender, Paymaster: &Paymaster{
				Address:              testPaymaster,
				VerificationGasLimit: big.NewInt(1),
			}},
			version: V07,
			wantErr: true,
		},
		{
			name:    "paymaster with defaults",
			draft:   Draft{Sender: testSender, Paymaster: &Paymaster{Address: testPaymaster}},
			version: V07,
		},
		{
			name:    "negative gas override",
			draft:   Draft{Sender: testSender, Gas: &GasParameters{CallGasLimit: big.NewInt(-1)}},
			version: V06,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate(tt.version)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedDraft)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFactoryMarker(t *testing.T) {
	assert.Equal(t, "0x7702000000000000000000000000000000000000", Eip7702FactoryMarker.Hex())
	assert.True(t, (&Factory{Address: Eip7702FactoryMarker}).IsEip7702Marker())
	assert.False(t, (&Factory{Address: testFactory}).IsEip7702Marker())

	var none *Factory
	assert.False(t, none.IsEip7702Marker())
}
