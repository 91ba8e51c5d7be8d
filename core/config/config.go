package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/aa-relay/core/chainio/signer"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
)

const (
	DefaultReceiptTimeout      = 60 * time.Second
	DefaultReceiptPollInterval = 2 * time.Second
	DefaultRequestTimeout      = 30 * time.Second
)

// Config is the resolved relayer configuration. Use NewConfig to build one.
type Config struct {
	Environment sdklogging.LogLevel
	Logger      sdklogging.Logger

	EthRpcUrl  string
	BundlerUrl string

	EntrypointAddress common.Address
	// EntrypointVersion is VersionUnset unless the file names a revision.
	EntrypointVersion userop.Version
	// ChainID is nil when it should be read from the chain.
	ChainID *big.Int

	Gas      userop.GasParameters
	Resolver userop.Resolver

	FactoryAddress common.Address
	Paymaster      *common.Address

	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	RequestTimeout      time.Duration
	ForceBundle         bool
	EstimateGas         bool

	Signers []signer.Signer `json:"-"`

	MetricsAddress string
}

// GasRaw holds optional decimal wei or gas values.
type GasRaw struct {
	CallGasLimit         string `yaml:"call_gas_limit" validate:"omitempty,numeric"`
	VerificationGasLimit string `yaml:"verification_gas_limit" validate:"omitempty,numeric"`
	PreVerificationGas   string `yaml:"pre_verification_gas" validate:"omitempty,numeric"`
	MaxFeePerGas         string `yaml:"max_fee_per_gas" validate:"omitempty,numeric"`
	MaxPriorityFeePerGas string `yaml:"max_priority_fee_per_gas" validate:"omitempty,numeric"`
}

// EntrypointsRaw lists extra addresses recognised as v0.6 or v0.7.
type EntrypointsRaw struct {
	V06 []string `yaml:"v06" validate:"dive,eth_addr"`
	V07 []string `yaml:"v07" validate:"dive,eth_addr"`
}

// These are read from configPath
type ConfigRaw struct {
	Environment         sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=production development"`
	EthRpcUrl           string              `yaml:"eth_rpc_url" validate:"required,url"`
	BundlerUrl          string              `yaml:"bundler_url" validate:"required,url"`
	EntrypointAddress   string              `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	EntrypointVersion   string              `yaml:"entrypoint_version" validate:"omitempty,oneof=v0.6 v0.7 v0.8 0.6 0.7 0.8 v06 v07 v08"`
	ChainID             uint64              `yaml:"chain_id"`
	FactoryAddress      string              `yaml:"factory_address" validate:"omitempty,eth_addr"`
	PaymasterAddress    string              `yaml:"paymaster_address" validate:"omitempty,eth_addr"`
	Gas                 GasRaw              `yaml:"gas"`
	Entrypoints         EntrypointsRaw      `yaml:"entrypoints"`
	ReceiptTimeout      time.Duration       `yaml:"receipt_timeout" validate:"gte=0"`
	ReceiptPollInterval time.Duration       `yaml:"receipt_poll_interval" validate:"gte=0"`
	RequestTimeout      time.Duration       `yaml:"request_timeout" validate:"gte=0"`
	ForceBundle         bool                `yaml:"force_bundle"`
	EstimateGas         bool                `yaml:"estimate_gas"`
	Signers             []string            `yaml:"signers" validate:"dive,hexadecimal"`
	MetricsAddress      string              `yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// NewConfig reads configFilePath, applies environment overrides and validates
// the result. An empty path builds the config from the environment alone.
func NewConfig(configFilePath string) (*Config, error) {
	var configRaw ConfigRaw
	if configFilePath != "" {
		data, err := os.ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFilePath, err)
		}
		if err := yaml.Unmarshal(data, &configRaw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configFilePath, err)
		}
	}
	applyEnvOverrides(&configRaw)

	return FromRaw(&configRaw)
}

// FromRaw validates configRaw and resolves it into a Config.
func FromRaw(configRaw *ConfigRaw) (*Config, error) {
	if err := validate.Struct(configRaw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if configRaw.Environment == "" {
		configRaw.Environment = sdklogging.Production
	}
	logger, err := sdklogging.NewZapLogger(configRaw.Environment)
	if err != nil {
		return nil, err
	}

	version, err := userop.ParseVersion(configRaw.EntrypointVersion)
	if err != nil {
		return nil, err
	}

	gas, err := configRaw.Gas.parse()
	if err != nil {
		return nil, err
	}

	signers := make([]signer.Signer, 0, len(configRaw.Signers))
	for i, key := range configRaw.Signers {
		s, err := signer.FromPrivateKeyHex(key)
		if err != nil {
			return nil, fmt.Errorf("signer #%d: %w", i, err)
		}
		signers = append(signers, s)
	}

	resolver := userop.DefaultResolver()
	resolver.V06 = append(resolver.V06, convertToAddressSlice(configRaw.Entrypoints.V06)...)
	resolver.V07 = append(resolver.V07, convertToAddressSlice(configRaw.Entrypoints.V07)...)

	config := &Config{
		Environment:         configRaw.Environment,
		Logger:              logger,
		EthRpcUrl:           configRaw.EthRpcUrl,
		BundlerUrl:          configRaw.BundlerUrl,
		EntrypointAddress:   userop.EntryPointV06,
		EntrypointVersion:   version,
		Gas:                 gas,
		Resolver:            *resolver,
		FactoryAddress:      common.HexToAddress(configRaw.FactoryAddress),
		ReceiptTimeout:      orDefault(configRaw.ReceiptTimeout, DefaultReceiptTimeout),
		ReceiptPollInterval: orDefault(configRaw.ReceiptPollInterval, DefaultReceiptPollInterval),
		RequestTimeout:      orDefault(configRaw.RequestTimeout, DefaultRequestTimeout),
		ForceBundle:         configRaw.ForceBundle,
		EstimateGas:         configRaw.EstimateGas,
		Signers:             signers,
		MetricsAddress:      configRaw.MetricsAddress,
	}
	if configRaw.EntrypointAddress != "" {
		config.EntrypointAddress = common.HexToAddress(configRaw.EntrypointAddress)
	}
	if configRaw.ChainID != 0 {
		config.ChainID = new(big.Int).SetUint64(configRaw.ChainID)
	}
	if configRaw.PaymasterAddress != "" {
		pm := common.HexToAddress(configRaw.PaymasterAddress)
		config.Paymaster = &pm
	}

	return config, nil
}

// KeyResolver exposes the configured signers by their EOA address.
func (c *Config) KeyResolver() *signer.StaticKeyResolver {
	return signer.NewStaticKeyResolver(c.Signers...)
}

func (g GasRaw) parse() (userop.GasParameters, error) {
	var gas userop.GasParameters
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"call_gas_limit", g.CallGasLimit, &gas.CallGasLimit},
		{"verification_gas_limit", g.VerificationGasLimit, &gas.VerificationGasLimit},
		{"pre_verification_gas", g.PreVerificationGas, &gas.PreVerificationGas},
		{"max_fee_per_gas", g.MaxFeePerGas, &gas.MaxFeePerGas},
		{"max_priority_fee_per_gas", g.MaxPriorityFeePerGas, &gas.MaxPriorityFeePerGas},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok || v.Sign() < 0 {
			return gas, fmt.Errorf("gas.%s: invalid value %q", f.name, f.raw)
		}
		*f.dst = v
	}
	return gas, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func convertToAddressSlice(addresses []string) []common.Address {
	result := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		result[i] = common.HexToAddress(addr)
	}
	return result
}
