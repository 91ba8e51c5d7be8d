package byte4

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Custom errors raised by EntryPoints and the marketplace accounts that we can
// name when they show up as a revert reason.
const knownErrorsABI = `[
	{"type":"error","name":"FailedOp","inputs":[{"name":"opIndex","type":"uint256"},{"name":"reason","type":"string"}]},
	{"type":"error","name":"FailedOpWithRevert","inputs":[{"name":"opIndex","type":"uint256"},{"name":"reason","type":"string"},{"name":"inner","type":"bytes"}]},
	{"type":"error","name":"ExecutionFailed","inputs":[]},
	{"type":"error","name":"CallFailed","inputs":[{"name":"index","type":"uint256"},{"name":"reason","type":"bytes"}]},
	{"type":"error","name":"NotAuthorized","inputs":[]},
	{"type":"error","name":"InvalidSignature","inputs":[]}
]`

var (
	errorSelector = Selector("Error(string)")
	panicSelector = Selector("Panic(uint256)")

	knownErrors = mustParseABI(knownErrorsABI)

	errorHints = map[string]string{
		"FailedOp":           "entrypoint rejected the operation",
		"FailedOpWithRevert": "entrypoint rejected the operation",
		"ExecutionFailed":    "internal call reverted",
		"CallFailed":         "batched call reverted",
		"NotAuthorized":      "caller is not authorized by the account",
		"InvalidSignature":   "account rejected the signature",
	}

	panicCodes = map[uint64]string{
		0x01: "assertion failed",
		0x11: "arithmetic overflow or underflow",
		0x12: "division or modulo by zero",
		0x21: "invalid enum value",
		0x22: "invalid storage byte array",
		0x31: "pop on empty array",
		0x32: "array index out of bounds",
		0x41: "out of memory",
		0x51: "call to uninitialized function",
	}
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RevertHint is a best-effort reading of a revert reason.
type RevertHint struct {
	// Selector is the 0x-prefixed first four bytes, empty when the reason is shorter.
	Selector string
	// Name is the decoded error name, empty when unrecognized.
	Name string
	// Message is human readable. For unrecognized reasons it is the selector.
	Message string
}

func (h RevertHint) Known() bool {
	return h.Name != ""
}

func (h RevertHint) String() string {
	if h.Name == "" {
		return h.Message
	}
	return fmt.Sprintf("%s: %s", h.Name, h.Message)
}

// DecodeRevert maps a revert reason through the known selector table.
// Error(string) and Panic(uint256) are decoded; unknown reasons fall back to
// the raw selector.
func DecodeRevert(reason []byte) RevertHint {
	if len(reason) < 4 {
		if len(reason) == 0 {
			return RevertHint{Message: "reverted without a reason"}
		}
		return RevertHint{Message: hexutil.Encode(reason)}
	}

	hint := RevertHint{Selector: FormatSelector(reason)}
	selector := reason[:4]

	switch {
	case bytes.Equal(selector, errorSelector[:]):
		if msg, err := abi.UnpackRevert(reason); err == nil {
			hint.Name = "Error"
			hint.Message = msg
			return hint
		}
	case bytes.Equal(selector, panicSelector[:]):
		if len(reason) == 4+32 {
			code := new(big.Int).SetBytes(reason[4:])
			hint.Name = "Panic"
			hint.Message = fmt.Sprintf("panic 0x%x", code)
			if code.IsUint64() {
				if text, ok := panicCodes[code.Uint64()]; ok {
					hint.Message = text
				}
			}
			return hint
		}
	}

	for _, e := range knownErrors.Errors {
		if !bytes.Equal(e.ID[:4], selector) {
			continue
		}
		hint.Name = e.Name
		hint.Message = errorHints[e.Name]
		if args, err := e.Inputs.Unpack(reason[4:]); err == nil {
			for i, in := range e.Inputs {
				if in.Name == "reason" && in.Type.T == abi.StringTy {
					hint.Message = fmt.Sprintf("%s: %v", hint.Message, args[i])
				}
			}
		}
		return hint
	}

	hint.Message = hint.Selector
	return hint
}
