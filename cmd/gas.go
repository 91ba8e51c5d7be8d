package cmd

import (
	"github.com/AvaProtocol/aa-relay/core/config"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
)

// userGasPolicy lays the configured gas limits over the defaults. Fee values
// from the config are applied per request instead.
func userGasPolicy(c *config.Config) *userop.GasPolicy {
	policy := userop.DefaultGasPolicy()
	if c.Gas.CallGasLimit != nil {
		policy.CallGasLimit = c.Gas.CallGasLimit
	}
	if c.Gas.VerificationGasLimit != nil {
		policy.VerificationGasLimit = c.Gas.VerificationGasLimit
	}
	if c.Gas.PreVerificationGas != nil {
		policy.PreVerificationGas = c.Gas.PreVerificationGas
	}
	return policy
}
