package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	path := writeConfig(t, `
environment: development
eth_rpc_url: https://sepolia.example.org
bundler_url: http://localhost:4337
entrypoint_address: "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
entrypoint_version: v0.7
chain_id: 11155111
paymaster_address: "0xd856f532F7C032e6b30d76F19187F25A068D6d92"
factory_address: "0xB99BC2E399e06CddCF5E725c0ea341E8f0322834"
gas:
  call_gas_limit: "300000"
  max_fee_per_gas: "30000000000"
entrypoints:
  v06:
    - "0x1111111111111111111111111111111111111111"
receipt_timeout: 90s
force_bundle: true
signers:
  - "0x`+testKey+`"
metrics_address: ":9090"
`)

	c, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4337", c.BundlerUrl)
	assert.Equal(t, userop.EntryPointV07, c.EntrypointAddress)
	assert.Equal(t, userop.V07, c.EntrypointVersion)
	assert.Equal(t, int64(11155111), c.ChainID.Int64())
	require.NotNil(t, c.Paymaster)
	assert.Equal(t, common.HexToAddress("0xd856f532F7C032e6b30d76F19187F25A068D6d92"), *c.Paymaster)
	assert.Equal(t, int64(300000), c.Gas.CallGasLimit.Int64())
	assert.Equal(t, int64(30_000_000_000), c.Gas.MaxFeePerGas.Int64())
	assert.Nil(t, c.Gas.VerificationGasLimit)
	assert.Equal(t, 90*time.Second, c.ReceiptTimeout)
	assert.Equal(t, DefaultReceiptPollInterval, c.ReceiptPollInterval)
	assert.True(t, c.ForceBundle)
	require.Len(t, c.Signers, 1)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), c.Signers[0].Address())

	assert.Equal(t, common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834"), c.FactoryAddress)

	assert.Equal(t, userop.V06, c.Resolver.Resolve(common.HexToAddress("0x1111111111111111111111111111111111111111")))
	// configured entries extend the built-in ones
	assert.Equal(t, userop.V07, c.Resolver.Resolve(userop.EntryPointV07))
	assert.Equal(t, userop.V06, c.Resolver.Resolve(userop.EntryPointV06))
}

func TestNewConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
eth_rpc_url: https://sepolia.example.org
bundler_url: http://localhost:4337
`)

	c, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, userop.EntryPointV06, c.EntrypointAddress)
	assert.Equal(t, userop.VersionUnset, c.EntrypointVersion)
	assert.Nil(t, c.ChainID)
	assert.Nil(t, c.Paymaster)
	assert.Equal(t, DefaultRequestTimeout, c.RequestTimeout)
	assert.Empty(t, c.Signers)
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing bundler", "eth_rpc_url: https://rpc.example.org\n"},
		{"bad entrypoint", "eth_rpc_url: https://rpc.example.org\nbundler_url: http://b\nentrypoint_address: nope\n"},
		{"bad version", "eth_rpc_url: https://rpc.example.org\nbundler_url: http://b\nentrypoint_version: v0.9\n"},
		{"bad gas", "eth_rpc_url: https://rpc.example.org\nbundler_url: http://b\ngas:\n  call_gas_limit: lots\n"},
		{"bad signer", "eth_rpc_url: https://rpc.example.org\nbundler_url: http://b\nsigners: [\"zz\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRpcUrl, "https://override.example.org")
	t.Setenv(EnvBundlerUrl, "http://bundler.example.org")
	t.Setenv(EnvSignerKey, testKey)

	c, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.org", c.EthRpcUrl)
	assert.Equal(t, "http://bundler.example.org", c.BundlerUrl)
	require.Len(t, c.Signers, 1)

	s, err := c.KeyResolver().Resolve(context.Background(), c.Signers[0].Address())
	require.NoError(t, err)
	assert.Equal(t, c.Signers[0].Address(), s.Address())
}
