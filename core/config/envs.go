package config

import (
	"os"
	"strings"
)

const (
	EnvRpcUrl     = "AA_RELAY_RPC_URL"
	EnvBundlerUrl = "AA_RELAY_BUNDLER_URL"
	// EnvSignerKey prepends one signer to the configured list.
	EnvSignerKey = "AA_RELAY_SIGNER_KEY"
)

func applyEnvOverrides(raw *ConfigRaw) {
	if v := lookupEnv(EnvRpcUrl); v != "" {
		raw.EthRpcUrl = v
	}
	if v := lookupEnv(EnvBundlerUrl); v != "" {
		raw.BundlerUrl = v
	}
	if v := lookupEnv(EnvSignerKey); v != "" {
		raw.Signers = append([]string{v}, raw.Signers...)
	}
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
