package bundler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/aa-relay/metrics"
	"github.com/AvaProtocol/aa-relay/pkg/byte4"
	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 60 * time.Second
)

// ErrTimedOut means no receipt appeared before the deadline. The operation
// may still be included later; this is not a failure verdict.
var ErrTimedOut = errors.New("timed out waiting for user operation receipt")

// TransactionRef identifies the bundle transaction that included an operation.
type TransactionRef struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockHash       common.Hash  `json:"blockHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
}

// UserOperationReceipt is the eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	EntryPoint    common.Address  `json:"entryPoint"`
	Sender        common.Address  `json:"sender"`
	Nonce         *hexutil.Big    `json:"nonce"`
	Paymaster     *common.Address `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big    `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big    `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	// Reason is the raw revert data as sent by the relayer, usually hex.
	Reason  string          `json:"reason,omitempty"`
	Receipt *TransactionRef `json:"receipt,omitempty"`
}

// ReasonBytes decodes Reason when it is hex, otherwise returns its text bytes.
func (r *UserOperationReceipt) ReasonBytes() []byte {
	if r.Reason == "" {
		return nil
	}
	if b, err := hexutil.Decode(r.Reason); err == nil {
		return b
	}
	return []byte(r.Reason)
}

type Status int

const (
	StatusSuccess Status = iota + 1
	StatusReverted
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusReverted:
		return "reverted"
	case StatusTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// RevertedError reports an operation that was included but failed.
type RevertedError struct {
	UserOpHash common.Hash
	Reason     []byte
	Hint       byte4.RevertHint
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("user operation %s reverted: %s", e.UserOpHash.Hex(), e.Hint.String())
}

// Outcome is the final state of a poll.
type Outcome struct {
	Status     Status
	UserOpHash common.Hash
	// Receipt is nil when timed out.
	Receipt *UserOperationReceipt
	// Hint is set when reverted.
	Hint    byte4.RevertHint
	Polls   int
	Elapsed time.Duration
}

// Err converts the outcome to an error for callers that only need a verdict:
// nil on success, *RevertedError on revert and ErrTimedOut on timeout.
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusSuccess:
		return nil
	case StatusReverted:
		var reason []byte
		if o.Receipt != nil {
			reason = o.Receipt.ReasonBytes()
		}
		return &RevertedError{UserOpHash: o.UserOpHash, Reason: reason, Hint: o.Hint}
	}
	return fmt.Errorf("%w: %s after %s", ErrTimedOut, o.UserOpHash.Hex(), o.Elapsed.Round(time.Millisecond))
}

// TransactionHash returns the bundle transaction hash when known.
func (o *Outcome) TransactionHash() (common.Hash, bool) {
	if o.Receipt == nil || o.Receipt.Receipt == nil {
		return common.Hash{}, false
	}
	return o.Receipt.Receipt.TransactionHash, true
}

type ReceiptSource interface {
	GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error)
}

// ReceiptPoller polls a relayer at a fixed interval until a receipt appears
// or Timeout elapses.
type ReceiptPoller struct {
	Source   ReceiptSource
	Interval time.Duration
	Timeout  time.Duration

	logger  logger.Logger
	metrics metrics.RelayMetrics
}

func NewReceiptPoller(source ReceiptSource, interval, timeout time.Duration, lgr logger.Logger, m metrics.RelayMetrics) *ReceiptPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	return &ReceiptPoller{
		Source:   source,
		Interval: interval,
		Timeout:  timeout,
		logger:   logger.EnsureLogger(lgr),
		metrics:  metrics.EnsureMetrics(m),
	}
}

// Poll waits for userOpHash. Reaching the timeout returns a StatusTimedOut
// outcome and a nil error. Lookup errors are logged and polling continues.
// An error is only returned when ctx itself is cancelled.
func (p *ReceiptPoller) Poll(ctx context.Context, userOpHash common.Hash) (*Outcome, error) {
	started := time.Now()
	deadlineCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	outcome := &Outcome{UserOpHash: userOpHash}
	for {
		outcome.Polls++
		receipt, err := p.Source.GetUserOperationReceipt(deadlineCtx, userOpHash)
		switch {
		case err != nil:
			p.logger.Warn("receipt lookup failed, retrying", "userOpHash", userOpHash.Hex(), "poll", outcome.Polls, "error", err)
		case receipt != nil:
			outcome.Elapsed = time.Since(started)
			p.found(outcome, receipt)
			return outcome, nil
		}

		select {
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			outcome.Status = StatusTimedOut
			outcome.Elapsed = time.Since(started)
			p.metrics.IncReceiptOutcome(outcome.Status.String())
			p.logger.Warn("no receipt before timeout, inclusion status unknown",
				"userOpHash", userOpHash.Hex(), "timeout", p.Timeout.String(), "polls", outcome.Polls)
			return outcome, nil
		case <-ticker.C:
		}
	}
}

func (p *ReceiptPoller) found(outcome *Outcome, receipt *UserOperationReceipt) {
	outcome.Receipt = receipt
	if receipt.Success {
		outcome.Status = StatusSuccess
		p.logger.Info("user operation included", "userOpHash", outcome.UserOpHash.Hex(), "polls", outcome.Polls)
	} else {
		outcome.Status = StatusReverted
		outcome.Hint = byte4.DecodeRevert(receipt.ReasonBytes())
		p.logger.Warn("user operation reverted", "userOpHash", outcome.UserOpHash.Hex(),
			"reason", strings.TrimSpace(receipt.Reason), "hint", outcome.Hint.String())
	}
	p.metrics.IncReceiptOutcome(outcome.Status.String())
}
