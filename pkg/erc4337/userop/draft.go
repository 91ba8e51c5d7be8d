package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-relay/pkg/eip7702"
)

var ErrMalformedDraft = errors.New("malformed user operation draft")

// Eip7702FactoryMarker is placed in the factory slot of a v0.8 operation whose
// sender is an EOA delegated through EIP-7702.
var Eip7702FactoryMarker = common.HexToAddress("0x7702000000000000000000000000000000000000")

// Factory is either a creation factory with its calldata or the 7702 marker.
type Factory struct {
	Address common.Address
	Data    []byte
}

func (f *Factory) IsEip7702Marker() bool {
	return f != nil && f.Address == Eip7702FactoryMarker
}

// Paymaster sponsors an operation. Either both gas limits are set or neither,
// in which case the policy defaults apply. v0.6 ignores the gas limits.
type Paymaster struct {
	Address              common.Address
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
	Data                 []byte
}

// Draft is the caller's description of an operation before a revision has
// been applied. Nonce may be nil to read it from the EntryPoint. Gas holds
// overrides only.
//
// A draft with an Authorization is delegated: Factory must then be nil or the
// 7702 marker. A draft with a creation Factory must not carry an
// Authorization.
type Draft struct {
	Sender        common.Address
	Nonce         *big.Int
	CallData      []byte
	Gas           *GasParameters
	Factory       *Factory
	Paymaster     *Paymaster
	Authorization *eip7702.Authorization
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedDraft, fmt.Sprintf(format, args...))
}

// Delegated reports whether the draft targets an EIP-7702 delegated sender.
func (d *Draft) Delegated() bool {
	return d.Authorization != nil || d.Factory.IsEip7702Marker()
}

// Validate checks the draft against revision v.
func (d *Draft) Validate(v Version) error {
	if d.Sender == (common.Address{}) {
		return malformed("sender is required")
	}
	if d.Nonce != nil && d.Nonce.Sign() < 0 {
		return malformed("negative nonce")
	}

	switch {
	case d.Factory != nil && !d.Factory.IsEip7702Marker() && d.Authorization != nil:
		return malformed("creation factory %s cannot be combined with an eip-7702 authorization", d.Factory.Address.Hex())
	case d.Factory.IsEip7702Marker() && d.Authorization == nil:
		return malformed("eip-7702 factory marker requires an authorization")
	}

	if d.Delegated() {
		if v != V08 {
			return malformed("eip-7702 delegation requires entrypoint v0.8, resolved %s", v)
		}
		if d.Authorization.ChainID == nil || d.Authorization.R == nil || d.Authorization.S == nil {
			return malformed("eip-7702 authorization is not signed")
		}
	}

	if err := d.Paymaster.validate(); err != nil {
		return err
	}
	return validateGas(d.Gas)
}

func (p *Paymaster) validate() error {
	if p == nil {
		return nil
	}
	if p.Address == (common.Address{}) {
		return malformed("paymaster address is required when paymaster fields are set")
	}
	if (p.VerificationGasLimit == nil) != (p.PostOpGasLimit == nil) {
		return malformed("paymaster gas limits must be set together")
	}
	for _, v := range []*big.Int{p.VerificationGasLimit, p.PostOpGasLimit} {
		if v != nil && v.Sign() < 0 {
			return malformed("negative paymaster gas limit")
		}
	}
	return nil
}

func validateGas(g *GasParameters) error {
	if g == nil {
		return nil
	}
	for _, v := range []*big.Int{g.CallGasLimit, g.VerificationGasLimit, g.PreVerificationGas, g.MaxFeePerGas, g.MaxPriorityFeePerGas} {
		if v != nil && (v.Sign() < 0 || v.BitLen() > 256) {
			return malformed("gas value %s out of uint256 range", v)
		}
	}
	return nil
}
