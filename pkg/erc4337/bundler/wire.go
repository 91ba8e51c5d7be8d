package bundler

import (
	"encoding/json"
)

// JSONRPCRequest is the standard request envelope.
type JSONRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      uint64        `json:"id"`
}

// JSONRPCResponse carries either Result or Error.
type JSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// hasResult reports whether the result is present and not JSON null.
func (r *JSONRPCResponse) hasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}
