package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	waitForReceipt bool

	receiptCmd = &cobra.Command{
		Use:   "receipt <userOpHash>",
		Short: "look up or wait for a user operation receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexutil.Decode(args[0])
			if err != nil || len(raw) != common.HashLength {
				return fmt.Errorf("invalid user operation hash %q", args[0])
			}
			hash := common.BytesToHash(raw)

			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if !waitForReceipt {
				receipt, err := rt.bundler.GetUserOperationReceipt(cmd.Context(), hash)
				if err != nil {
					return err
				}
				if receipt == nil {
					fmt.Fprintln(out, "status: pending")
					return nil
				}
				dump(out, "receipt", receipt)
				fmt.Fprintf(out, "success: %t\n", receipt.Success)
				return nil
			}

			outcome, err := rt.client.WaitForReceipt(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if outcome.Receipt != nil {
				dump(out, "receipt", outcome.Receipt)
			}
			fmt.Fprintf(out, "status: %s (%d polls)\n", outcome.Status, outcome.Polls)
			if outcome.Hint.Message != "" {
				fmt.Fprintf(out, "reason: %s\n", outcome.Hint)
			}
			return outcome.Err()
		},
	}
)

func init() {
	receiptCmd.Flags().BoolVarP(&waitForReceipt, "wait", "w", false, "poll until the receipt appears or the timeout elapses")
	rootCmd.AddCommand(receiptCmd)
}
