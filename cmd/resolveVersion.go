package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
)

var (
	resolveDelegation bool
	resolvePinned     string

	resolveVersionCmd = &cobra.Command{
		Use:   "resolve-version <entrypoint>",
		Short: "show which EntryPoint revision an address is treated as",
		Long: `Print the revision used for an EntryPoint address. Resolution by address is a
best-effort heuristic over the well known deployments and the 0x4337 prefix;
unknown addresses are treated as v0.6 unless --delegation is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := parseAddress("entrypoint", args[0])
			if err != nil {
				return err
			}
			pinned, err := userop.ParseVersion(resolvePinned)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), userop.DefaultResolver().ResolveWith(ep, pinned, resolveDelegation))
			return nil
		},
	}
)

func init() {
	resolveVersionCmd.Flags().BoolVar(&resolveDelegation, "delegation", false, "the operation carries an EIP-7702 authorization")
	resolveVersionCmd.Flags().StringVar(&resolvePinned, "pin", "", "explicit revision, wins over the address")
	rootCmd.AddCommand(resolveVersionCmd)
}
