package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/pkg/utils"
)

const (
	// FunctionWithinChannel settles sender and recipient inside one identity
	// namespace; FunctionCrossChannel is the general path. The caller decides
	// which applies, the adapter only executes it.
	FunctionWithinChannel = "transfer_within_channel"
	FunctionCrossChannel  = "process_transfer"
)

// ErrTimeout marks an adapter call that exceeded its deadline. The external
// process may still complete afterwards; that late completion is ignored
// here and the transfer stays FAILED.
var ErrTimeout = errors.New("settlement adapter timed out")

// Request is the structured argument handed to the settlement process as a
// single line of JSON.
type Request struct {
	TransferID  uint   `json:"id" validate:"required"`
	FromChannel string `json:"from_channel" validate:"required"`
	FromUserID  string `json:"from_user_id" validate:"required"`
	ToChannel   string `json:"to_channel" validate:"required"`
	ToUserID    string `json:"to_user_id" validate:"required"`
	Amount      uint64 `json:"amount" validate:"required,gt=0"`
	Function    string `json:"function" validate:"required,oneof=transfer_within_channel process_transfer"`
}

type result struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Error   string `json:"error"`
}

// Executor performs the on-chain transfer and returns a transaction
// reference on success.
type Executor interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// ScriptExecutor shells out to the settlement executable. The adapter writes
// one JSON result object to stdout and exits zero on success; interleaved
// log lines are tolerated.
type ScriptExecutor struct {
	script  string
	timeout time.Duration
}

func NewScriptExecutor(script string, timeout time.Duration) *ScriptExecutor {
	return &ScriptExecutor{script: script, timeout: timeout}
}

func (e *ScriptExecutor) Execute(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal settlement request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log.Info().Uint("transferId", req.TransferID).Str("function", req.Function).
		Msg("[Settlement] [Execute] invoking settlement process")

	cmd := exec.CommandContext(ctx, "/bin/bash", e.script, string(payload))
	output, runErr := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", ErrTimeout
	}
	if runErr != nil {
		if ee, ok := runErr.(*exec.ExitError); ok {
			output = append(output, ee.Stderr...)
		}
		// A structured failure from the adapter beats the bare exit error.
		if res, perr := parseResult(output); perr == nil && res.Error != "" {
			return "", fmt.Errorf("settlement process failed: %s", res.Error)
		}
		return "", fmt.Errorf("settlement process failed: %w", runErr)
	}

	res, err := parseResult(output)
	if err != nil {
		return "", err
	}
	if !res.Success {
		if res.Error == "" {
			res.Error = "settlement process reported failure without detail"
		}
		return "", errors.New(res.Error)
	}
	if res.TxHash == "" {
		return "", errors.New("settlement process succeeded without a transaction reference")
	}
	return res.TxHash, nil
}

func parseResult(output []byte) (*result, error) {
	raw, err := utils.ExtractResultObject(output)
	if err != nil {
		return nil, fmt.Errorf("settlement output: %w", err)
	}
	var res result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("settlement output: %w", err)
	}
	return &res, nil
}
