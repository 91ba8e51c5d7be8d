/*
Copyright © 2024 Ava Protocol
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "check the configured relayer",
	Long: `Compare the bundler with the configuration: the EntryPoint must be advertised
by eth_supportedEntryPoints and the bundler must serve the configured chain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bundler: %s\n", rt.bundler.URL())
		fmt.Fprintf(out, "entrypoint: %s (%s)\n", rt.config.EntrypointAddress.Hex(),
			rt.config.Resolver.ResolveWith(rt.config.EntrypointAddress, rt.config.EntrypointVersion, false))

		if !rt.client.Preflight(cmd.Context()) {
			fmt.Fprintln(out, "status: degraded")
			return fmt.Errorf("relayer does not match the configuration")
		}
		fmt.Fprintln(out, "status: ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
