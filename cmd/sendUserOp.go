package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-relay/core/chainio/aa"
	"github.com/AvaProtocol/aa-relay/pkg/byte4"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-relay/pkg/erc4337/userop"
)

type sendUserOpFlags struct {
	sender     string
	target     string
	value      string
	callData   string
	delegate   string
	entryPoint string
	version    string
	nonce      string
	owner      string
	salt       string
	paymaster  string
	wait       bool

	calls []string

	pmValidUntil uint64
	pmValidAfter uint64
	pmSignature  string
}

// counterfactualLookup finds the address a factory deploys for an owner.
type counterfactualLookup interface {
	CounterfactualAddress(ctx context.Context, factory, owner common.Address, salt *big.Int) (common.Address, error)
}

var (
	userOpFlags   sendUserOpFlags
	sendUserOpCmd = &cobra.Command{
		Use:   "send-userop",
		Short: "sign and submit a user operation",
		Long: `Build a user operation for --sender, sign it with the configured key
and submit it to the bundler.

With --target the call data is wrapped in the account's execute(target, value, data).
Each --call target,value,calldata adds one call to executeBatch instead.
With --owner the account is deployed through the configured factory on first use;
--sender may then be omitted and is read from the factory.
With --delegate the sender is an EOA delegated through EIP-7702 (EntryPoint v0.8).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := userOpFlags.validate(); err != nil {
				return err
			}

			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			req, err := userOpFlags.request(cmd.Context(), factoryAddress(rt.config.FactoryAddress), rt.state)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "call: %s\n", describeCall(req.CallData))
			}

			req.Gas = rt.config.Gas.Copy()
			if req.Paymaster == nil && rt.config.Paymaster != nil {
				req.Paymaster = &userop.Paymaster{Address: *rt.config.Paymaster}
			}
			res, err := rt.client.SendUserOp(cmd.Context(), req)
			if res != nil && res.Operation != nil {
				if payload, perr := res.Operation.RPC(); perr == nil {
					dump(cmd.OutOrStdout(), "user operation", payload)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "userOpHash: %s\n", res.UserOpHash.Hex())
			fmt.Fprintf(out, "version: %s\n", res.Operation.Version)
			if res.AlreadyKnown {
				fmt.Fprintln(out, "relayer already knew this operation")
			}
			if res.Outcome != nil {
				fmt.Fprintf(out, "status: %s\n", res.Outcome.Status)
				if tx, ok := res.Outcome.TransactionHash(); ok {
					fmt.Fprintf(out, "transactionHash: %s\n", tx.Hex())
				}
				return res.Outcome.Err()
			}
			return nil
		},
	}
)

// validate catches flag mistakes before any connection is made.
func (f *sendUserOpFlags) validate() error {
	if f.sender == "" && f.owner == "" {
		return errors.New("--sender is required unless --owner is given")
	}
	if f.target != "" && len(f.calls) > 0 {
		return errors.New("--target and --call are mutually exclusive")
	}
	if f.paymaster == "" && (f.pmValidUntil != 0 || f.pmValidAfter != 0 || f.pmSignature != "") {
		return errors.New("paymaster window flags need --paymaster")
	}
	return nil
}

// factoryAddress is the configured factory, or the default one when unset.
func factoryAddress(configured common.Address) common.Address {
	if configured == (common.Address{}) {
		return aa.DefaultFactoryAddress
	}
	return configured
}

// request turns the flags into a UserOpRequest. lookup is only used when
// --owner is given without --sender.
func (f *sendUserOpFlags) request(ctx context.Context, factory common.Address, lookup counterfactualLookup) (preset.UserOpRequest, error) {
	var req preset.UserOpRequest
	if err := f.validate(); err != nil {
		return req, err
	}
	req.WaitForReceipt = f.wait

	callData, err := f.buildCallData()
	if err != nil {
		return req, err
	}
	req.CallData = callData

	if req.Version, err = userop.ParseVersion(f.version); err != nil {
		return req, err
	}
	if f.entryPoint != "" {
		ep, err := parseAddress("entrypoint", f.entryPoint)
		if err != nil {
			return req, err
		}
		req.EntryPoint = &ep
	}
	if f.nonce != "" {
		if req.Nonce, err = parseBig("nonce", f.nonce); err != nil {
			return req, err
		}
	}
	if f.delegate != "" {
		delegate, err := parseAddress("delegate", f.delegate)
		if err != nil {
			return req, err
		}
		req.Delegate = &delegate
	}
	if f.sender != "" {
		if req.Sender, err = parseAddress("sender", f.sender); err != nil {
			return req, err
		}
	}
	if f.owner != "" {
		owner, err := parseAddress("owner", f.owner)
		if err != nil {
			return req, err
		}
		salt, err := parseBig("salt", f.salt)
		if err != nil {
			return req, err
		}
		data, err := aa.CreateAccountData(owner, salt)
		if err != nil {
			return req, err
		}
		req.Factory = &userop.Factory{Address: factory, Data: data}

		if f.sender == "" {
			if lookup == nil {
				return req, errors.New("--sender is required unless --owner is given")
			}
			if req.Sender, err = lookup.CounterfactualAddress(ctx, factory, owner, salt); err != nil {
				return req, fmt.Errorf("resolve sender: %w", err)
			}
		}
	}
	if f.paymaster != "" {
		pm, err := f.paymasterParams()
		if err != nil {
			return req, err
		}
		req.Paymaster = pm
	}
	return req, nil
}

func (f *sendUserOpFlags) buildCallData() ([]byte, error) {
	if len(f.calls) > 0 {
		targets := make([]common.Address, 0, len(f.calls))
		values := make([]*big.Int, 0, len(f.calls))
		payloads := make([][]byte, 0, len(f.calls))
		for _, c := range f.calls {
			target, value, data, err := parseCall(c)
			if err != nil {
				return nil, err
			}
			targets = append(targets, target)
			values = append(values, value)
			payloads = append(payloads, data)
		}
		return aa.PackExecuteBatch(targets, values, payloads)
	}

	callData, err := hexutil.Decode(f.callData)
	if err != nil {
		return nil, fmt.Errorf("--calldata: %w", err)
	}
	if f.target == "" {
		return callData, nil
	}
	target, err := parseAddress("target", f.target)
	if err != nil {
		return nil, err
	}
	value, err := parseBig("value", f.value)
	if err != nil {
		return nil, err
	}
	return aa.PackExecute(target, value, callData)
}

// parseCall reads target[,value[,calldata]].
func parseCall(s string) (common.Address, *big.Int, []byte, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return common.Address{}, nil, nil, fmt.Errorf("--call: want target,value,calldata, got %q", s)
	}
	target, err := parseAddress("call", strings.TrimSpace(parts[0]))
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	value := new(big.Int)
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		if value, err = parseBig("call", strings.TrimSpace(parts[1])); err != nil {
			return common.Address{}, nil, nil, err
		}
	}
	data := []byte{}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		if data, err = hexutil.Decode(strings.TrimSpace(parts[2])); err != nil {
			return common.Address{}, nil, nil, fmt.Errorf("--call: %w", err)
		}
	}
	return target, value, data, nil
}

func (f *sendUserOpFlags) paymasterParams() (*userop.Paymaster, error) {
	addr, err := parseAddress("paymaster", f.paymaster)
	if err != nil {
		return nil, err
	}
	pm := &userop.Paymaster{Address: addr}
	if f.pmValidUntil == 0 && f.pmValidAfter == 0 && f.pmSignature == "" {
		return pm, nil
	}

	sig := []byte{}
	if f.pmSignature != "" {
		if sig, err = hexutil.Decode(f.pmSignature); err != nil {
			return nil, fmt.Errorf("--paymaster-signature: %w", err)
		}
	}
	if pm.Data, err = userop.PaymasterDataForWindow(f.pmValidUntil, f.pmValidAfter, sig); err != nil {
		return nil, err
	}
	return pm, nil
}

// describeCall names the account method call data invokes, or prints its
// selector when the account ABI does not know it.
func describeCall(data []byte) string {
	if len(data) == 0 {
		return "none"
	}
	method, err := byte4.GetMethodFromCalldata(aa.AccountABI, data)
	if err != nil {
		return byte4.FormatSelector(data)
	}
	return method.Sig
}

func parseAddress(flag, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flag, s)
	}
	return common.HexToAddress(s), nil
}

// parseBig accepts decimal or 0x-prefixed hex.
func parseBig(flag, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("--%s: invalid number %q", flag, s)
	}
	return v, nil
}

func init() {
	flags := sendUserOpCmd.Flags()
	flags.StringVar(&userOpFlags.sender, "sender", "", "smart account or delegated EOA address")
	flags.StringVar(&userOpFlags.target, "target", "", "wrap --calldata in execute(target, value, calldata)")
	flags.StringVar(&userOpFlags.value, "value", "0", "wei sent with the wrapped call")
	flags.StringVar(&userOpFlags.callData, "calldata", "0x", "hex call data")
	flags.StringVar(&userOpFlags.delegate, "delegate", "", "EIP-7702 delegate implementation")
	flags.StringVar(&userOpFlags.entryPoint, "entrypoint", "", "override the configured EntryPoint")
	flags.StringVar(&userOpFlags.version, "ep-version", "", "pin the EntryPoint revision (v0.6, v0.7, v0.8)")
	flags.StringVar(&userOpFlags.nonce, "nonce", "", "use this nonce instead of reading it")
	flags.StringArrayVar(&userOpFlags.calls, "call", nil, "target,value,calldata added to executeBatch; repeatable")
	flags.StringVar(&userOpFlags.owner, "owner", "", "deploy the sender for this owner through the configured factory")
	flags.StringVar(&userOpFlags.salt, "salt", "0", "factory salt used with --owner")
	flags.StringVar(&userOpFlags.paymaster, "paymaster", "", "sponsor with this paymaster")
	flags.Uint64Var(&userOpFlags.pmValidUntil, "paymaster-valid-until", 0, "unix time the paymaster signature expires")
	flags.Uint64Var(&userOpFlags.pmValidAfter, "paymaster-valid-after", 0, "unix time the paymaster signature becomes valid")
	flags.StringVar(&userOpFlags.pmSignature, "paymaster-signature", "", "hex paymaster signature over the validity window")
	flags.BoolVar(&userOpFlags.wait, "wait", false, "wait for the receipt")

	rootCmd.AddCommand(sendUserOpCmd)
}
