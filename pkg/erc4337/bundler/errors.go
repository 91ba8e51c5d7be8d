package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

var (
	// ErrAlreadyKnown means the relayer already holds this operation. A prior
	// submission went through, so the caller should poll for the receipt
	// rather than resubmit.
	ErrAlreadyKnown = errors.New("operation already known to relayer")

	// ErrTransport wraps HTTP and decoding failures talking to the relayer.
	ErrTransport = errors.New("relayer transport error")
)

// alreadyKnownMarkers are matched case-insensitively as substrings of the
// JSON-RPC error message. They cover geth-style mempools ("already known",
// "known transaction") and the bundler dialects we talk to.
var alreadyKnownMarkers = []string{
	"already known",
	"already in mempool",
	"already in the mempool",
	"already in pool",
	"known transaction",
}

// ErrorDetail is the structured part of error.data some relayers return.
type ErrorDetail struct {
	Reason     string `mapstructure:"reason"`
	Paymaster  string `mapstructure:"paymaster"`
	Aggregator string `mapstructure:"aggregator"`
	RevertData string `mapstructure:"revertData"`
}

// RelayerError is a JSON-RPC error the relayer returned verbatim.
type RelayerError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}
	// Detail is decoded from Data when it is an object.
	Detail *ErrorDetail
}

func (e *RelayerError) Error() string {
	msg := fmt.Sprintf("%s rejected by relayer (code %d): %s", e.Method, e.Code, e.Message)
	if e.Detail != nil && e.Detail.Reason != "" && !strings.Contains(e.Message, e.Detail.Reason) {
		msg += " (" + e.Detail.Reason + ")"
	}
	return msg
}

// IsAlreadyKnownMessage applies the AlreadyKnown match rules to msg.
func IsAlreadyKnownMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return lo.SomeBy(alreadyKnownMarkers, func(marker string) bool {
		return strings.Contains(lower, marker)
	})
}

// ClassifyRelayerError turns a JSON-RPC error object into ErrAlreadyKnown
// (wrapped with the relayer message) or a *RelayerError. Nothing else is
// inferred from the message.
func ClassifyRelayerError(method string, rpcErr *RPCError) error {
	if rpcErr == nil {
		return nil
	}
	if IsAlreadyKnownMessage(rpcErr.Message) {
		return fmt.Errorf("%w: %s", ErrAlreadyKnown, rpcErr.Message)
	}
	return &RelayerError{
		Method:  method,
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Data:    rpcErr.Data,
		Detail:  decodeErrorDetail(rpcErr.Data),
	}
}

func decodeErrorDetail(data interface{}) *ErrorDetail {
	fields, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	var detail ErrorDetail
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &detail,
	})
	if err != nil {
		return nil
	}
	if err := decoder.Decode(fields); err != nil {
		return nil
	}
	return &detail
}
