package userop

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGasPolicyApplyDefaults(t *testing.T) {
	p := DefaultGasPolicy()

	gas := p.Apply(nil, false)
	assert.Equal(t, DEFAULT_CALL_GAS_LIMIT, gas.CallGasLimit)
	assert.Equal(t, DEFAULT_VERIFICATION_GAS_LIMIT, gas.VerificationGasLimit)
	assert.Equal(t, DEFAULT_PREVERIFICATION_GAS, gas.PreVerificationGas)
	assert.Equal(t, DEFAULT_MAX_FEE_PER_GAS, gas.MaxFeePerGas)
	assert.Equal(t, DEFAULT_MAX_PRIORITY_FEE_PER_GAS, gas.MaxPriorityFeePerGas)

	deploying := p.Apply(nil, true)
	assert.Equal(t, DEPLOYMENT_VERIFICATION_GAS_LIMIT, deploying.VerificationGasLimit)
}

func TestGasPolicyApplyOverrides(t *testing.T) {
	p := DefaultGasPolicy()
	overrides := &GasParameters{
		CallGasLimit:         big.NewInt(123),
		VerificationGasLimit: big.NewInt(456),
	}

	gas := p.Apply(overrides, true)
	assert.Equal(t, big.NewInt(123), gas.CallGasLimit)
	assert.Equal(t, big.NewInt(456), gas.VerificationGasLimit, "explicit override beats deployment default")
	assert.Equal(t, DEFAULT_PREVERIFICATION_GAS, gas.PreVerificationGas)

	// results never alias inputs
	gas.CallGasLimit.SetInt64(1)
	gas.PreVerificationGas.SetInt64(1)
	assert.Equal(t, int64(123), overrides.CallGasLimit.Int64())
	assert.Equal(t, int64(50000), DEFAULT_PREVERIFICATION_GAS.Int64())
}

func TestPaymasterLimits(t *testing.T) {
	p := DefaultGasPolicy()

	v, post := p.PaymasterLimits(nil, nil)
	assert.Equal(t, DEFAULT_PAYMASTER_VERIFICATION_GAS_LIMIT, v)
	assert.Equal(t, DEFAULT_PAYMASTER_POSTOP_GAS_LIMIT, post)

	v, post = p.PaymasterLimits(big.NewInt(7), big.NewInt(8))
	assert.Equal(t, big.NewInt(7), v)
	assert.Equal(t, big.NewInt(8), post)
}

func TestEnsureFeeHeadroom(t *testing.T) {
	tip := big.NewInt(2_000_000_000)

	assert.Equal(t, big.NewInt(3_000_000_000), EnsureFeeHeadroom(big.NewInt(2_500_000_000), tip))
	assert.Equal(t, big.NewInt(3_000_000_000), EnsureFeeHeadroom(nil, tip))
	assert.Equal(t, big.NewInt(40_000_000_000), EnsureFeeHeadroom(big.NewInt(40_000_000_000), tip))
}
