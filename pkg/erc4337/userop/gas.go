package userop

import (
	"math/big"
)

var (
	// Gas limits used when neither the caller nor the relayer supplies one.
	// They are sized for an account execute() with a plain transfer or a
	// short contract call.
	DEFAULT_CALL_GAS_LIMIT         = big.NewInt(200000)
	DEFAULT_VERIFICATION_GAS_LIMIT = big.NewInt(1000000)
	DEFAULT_PREVERIFICATION_GAS    = big.NewInt(50000)

	// Account deployment through a creation factory runs inside validation.
	DEPLOYMENT_VERIFICATION_GAS_LIMIT = big.NewInt(3000000)

	DEFAULT_PAYMASTER_VERIFICATION_GAS_LIMIT = big.NewInt(100000)
	DEFAULT_PAYMASTER_POSTOP_GAS_LIMIT       = big.NewInt(50000)

	// Fee fallbacks match the floors of the EIP-1559 fee suggestion.
	DEFAULT_MAX_FEE_PER_GAS          = big.NewInt(20_000_000_000)
	DEFAULT_MAX_PRIORITY_FEE_PER_GAS = big.NewInt(2_000_000_000)

	// maxFeePerGas must leave at least this much over the tip.
	MIN_FEE_HEADROOM = big.NewInt(1_000_000_000)
)

// GasParameters holds the gas fields shared by every revision. A nil field in
// an override set means "use the policy value".
type GasParameters struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Copy returns a deep copy.
func (g *GasParameters) Copy() *GasParameters {
	if g == nil {
		return nil
	}
	return &GasParameters{
		CallGasLimit:         copyBig(g.CallGasLimit),
		VerificationGasLimit: copyBig(g.VerificationGasLimit),
		PreVerificationGas:   copyBig(g.PreVerificationGas),
		MaxFeePerGas:         copyBig(g.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(g.MaxPriorityFeePerGas),
	}
}

// GasPolicy supplies default gas limits and fees. The same defaults apply to
// every revision.
type GasPolicy struct {
	CallGasLimit                   *big.Int
	VerificationGasLimit           *big.Int
	PreVerificationGas             *big.Int
	DeploymentVerificationGasLimit *big.Int
	PaymasterVerificationGasLimit  *big.Int
	PaymasterPostOpGasLimit        *big.Int
	MaxFeePerGas                   *big.Int
	MaxPriorityFeePerGas           *big.Int
}

func DefaultGasPolicy() *GasPolicy {
	return &GasPolicy{
		CallGasLimit:                   DEFAULT_CALL_GAS_LIMIT,
		VerificationGasLimit:           DEFAULT_VERIFICATION_GAS_LIMIT,
		PreVerificationGas:             DEFAULT_PREVERIFICATION_GAS,
		DeploymentVerificationGasLimit: DEPLOYMENT_VERIFICATION_GAS_LIMIT,
		PaymasterVerificationGasLimit:  DEFAULT_PAYMASTER_VERIFICATION_GAS_LIMIT,
		PaymasterPostOpGasLimit:        DEFAULT_PAYMASTER_POSTOP_GAS_LIMIT,
		MaxFeePerGas:                   DEFAULT_MAX_FEE_PER_GAS,
		MaxPriorityFeePerGas:           DEFAULT_MAX_PRIORITY_FEE_PER_GAS,
	}
}

// Apply merges overrides onto the policy defaults. When deploying is set the
// verification limit defaults to the deployment limit instead. The result
// never aliases policy or override values.
func (p *GasPolicy) Apply(overrides *GasParameters, deploying bool) GasParameters {
	if overrides == nil {
		overrides = &GasParameters{}
	}
	verification := p.VerificationGasLimit
	if deploying {
		verification = p.DeploymentVerificationGasLimit
	}
	return GasParameters{
		CallGasLimit:         pick(overrides.CallGasLimit, p.CallGasLimit),
		VerificationGasLimit: pick(overrides.VerificationGasLimit, verification),
		PreVerificationGas:   pick(overrides.PreVerificationGas, p.PreVerificationGas),
		MaxFeePerGas:         pick(overrides.MaxFeePerGas, p.MaxFeePerGas),
		MaxPriorityFeePerGas: pick(overrides.MaxPriorityFeePerGas, p.MaxPriorityFeePerGas),
	}
}

// PaymasterLimits fills in the paymaster gas limits left unset.
func (p *GasPolicy) PaymasterLimits(verification, postOp *big.Int) (*big.Int, *big.Int) {
	return pick(verification, p.PaymasterVerificationGasLimit), pick(postOp, p.PaymasterPostOpGasLimit)
}

// EnsureFeeHeadroom raises maxFee so it exceeds the tip by at least
// MIN_FEE_HEADROOM.
func EnsureFeeHeadroom(maxFee, maxPriorityFee *big.Int) *big.Int {
	floor := new(big.Int).Add(maxPriorityFee, MIN_FEE_HEADROOM)
	if maxFee == nil || maxFee.Cmp(floor) < 0 {
		return floor
	}
	return maxFee
}

func pick(override, fallback *big.Int) *big.Int {
	if override != nil {
		return copyBig(override)
	}
	return copyBig(fallback)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
