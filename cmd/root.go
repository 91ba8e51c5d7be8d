package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-relay/core/chainio"
	"github.com/AvaProtocol/aa-relay/core/config"
	"github.com/AvaProtocol/aa-relay/metrics"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/preset"
)

// rootCmd represents the base command when called without any subcommands
var (
	configPath = "./config/relay.yaml"
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "aa-relay",
		Short: "Account abstraction relayer CLI",
		Long: `Build, sign and submit ERC-4337 user operations and EIP-7702
delegated transactions through a bundler.

Such as "aa-relay send-userop --sender 0x..." or "aa-relay receipt 0x..."
`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "pretty print relayer payloads")
}

// runtime is everything a command needs to talk to the chain and the relayer.
type runtime struct {
	config  *config.Config
	state   *chainio.EthStateProvider
	bundler *bundler.BundlerClient
	client  *preset.Client
	stop    context.CancelFunc
}

func (r *runtime) Close() {
	r.stop()
	_ = r.state.Close()
}

func loadRuntime(ctx context.Context) (*runtime, error) {
	c, err := config.NewConfig(configPath)
	if err != nil {
		return nil, err
	}

	var m metrics.RelayMetrics
	metricsCtx, stop := context.WithCancel(ctx)
	if c.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		m = metrics.NewRelayerMetrics(reg)
		go func() {
			if err := metrics.Serve(metricsCtx, c.MetricsAddress, reg, c.Logger); err != nil {
				c.Logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	state, err := chainio.DialStateProvider(ctx, c.EthRpcUrl, c.Logger)
	if err != nil {
		stop()
		return nil, err
	}

	bc, err := bundler.NewBundlerClient(c.BundlerUrl,
		bundler.WithLogger(c.Logger),
		bundler.WithMetrics(m),
		bundler.WithTimeout(c.RequestTimeout),
	)
	if err != nil {
		stop()
		return nil, err
	}

	policy := userGasPolicy(c)
	client, err := preset.NewClient(bc, state, c.KeyResolver(), preset.Options{
		EntryPoint:  c.EntrypointAddress,
		Version:     c.EntrypointVersion,
		Resolver:    &c.Resolver,
		ChainID:     c.ChainID,
		GasPolicy:   policy,
		EstimateGas: c.EstimateGas,
		ForceBundle: c.ForceBundle,
		Poller:      bundler.NewReceiptPoller(bc, c.ReceiptPollInterval, c.ReceiptTimeout, c.Logger, m),
	}, m, c.Logger)
	if err != nil {
		stop()
		return nil, err
	}

	return &runtime{config: c, state: state, bundler: bc, client: client, stop: stop}, nil
}

func dump(w io.Writer, label string, v interface{}) {
	if !verbose {
		return
	}
	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(false)
	fmt.Fprintf(w, "%s:\n", label)
	printer.Println(v)
}
