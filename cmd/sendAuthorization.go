package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-relay/pkg/erc4337/preset"
)

var (
	authFlags struct {
		sender   string
		delegate string
		to       string
		value    string
		data     string
		gasLimit uint64
	}

	sendAuthorizationCmd = &cobra.Command{
		Use:   "send-authorization",
		Short: "delegate an EOA through a self-sponsored EIP-7702 transaction",
		Long: `Sign an authorization from --sender to --delegate and broadcast it in a
type 0x04 transaction paid by the sender. Without --to the transaction calls
the sender itself with --data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, err := parseAddress("sender", authFlags.sender)
			if err != nil {
				return err
			}
			delegate, err := parseAddress("delegate", authFlags.delegate)
			if err != nil {
				return err
			}
			value, err := parseBig("value", authFlags.value)
			if err != nil {
				return err
			}
			data, err := hexutil.Decode(authFlags.data)
			if err != nil {
				return fmt.Errorf("--data: %w", err)
			}
			req := preset.DelegatedTxRequest{
				Sender:   sender,
				Delegate: delegate,
				Value:    value,
				Data:     data,
				GasLimit: authFlags.gasLimit,
			}
			if authFlags.to != "" {
				to, err := parseAddress("to", authFlags.to)
				if err != nil {
					return err
				}
				req.Destination = &to
			}

			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			req.ChainID = rt.config.ChainID
			req.MaxFeePerGas = rt.config.Gas.MaxFeePerGas
			req.MaxPriorityFeePerGas = rt.config.Gas.MaxPriorityFeePerGas

			res, err := rt.client.SendDelegatedTransaction(cmd.Context(), req)
			if err != nil {
				return err
			}
			dump(cmd.OutOrStdout(), "delegated transaction", res.Transaction.Tx)

			fmt.Fprintf(cmd.OutOrStdout(), "txHash: %s\n", res.TxHash.Hex())
			if res.AlreadyKnown {
				fmt.Fprintln(cmd.OutOrStdout(), "relayer already knew this transaction")
			}
			return nil
		},
	}
)

func init() {
	flags := sendAuthorizationCmd.Flags()
	flags.StringVar(&authFlags.sender, "sender", "", "EOA to delegate")
	flags.StringVar(&authFlags.delegate, "delegate", "", "implementation contract")
	flags.StringVar(&authFlags.to, "to", "", "call destination, defaults to the sender")
	flags.StringVar(&authFlags.value, "value", "0", "wei sent with the call")
	flags.StringVar(&authFlags.data, "data", "0x", "hex call data")
	flags.Uint64Var(&authFlags.gasLimit, "gas-limit", 0, "gas limit, 0 uses the default")
	_ = sendAuthorizationCmd.MarkFlagRequired("sender")
	_ = sendAuthorizationCmd.MarkFlagRequired("delegate")

	rootCmd.AddCommand(sendAuthorizationCmd)
}
