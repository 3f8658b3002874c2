package settlement

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settle.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func testRequest() Request {
	return Request{
		TransferID:  7,
		FromChannel: "twitter",
		FromUserID:  "42",
		ToChannel:   "twitter",
		ToUserID:    "99",
		Amount:      150000000,
		Function:    FunctionWithinChannel,
	}
}

func TestExecuteSuccess(t *testing.T) {
	// The script echoes back the id it was handed so the test can verify the
	// request really arrives as the first argument.
	script := writeScript(t, `
id=$(echo "$1" | grep -o '"id":[0-9]*' | cut -d: -f2)
echo "[adapter] settling transfer $id"
echo "{\"success\": true, \"tx_hash\": \"0xhash$id\"}"
`)
	executor := NewScriptExecutor(script, 10*time.Second)

	txHash, err := executor.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "0xhash7", txHash)
}

func TestExecuteFailure(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "error": "insufficient balance"}'`)
	executor := NewScriptExecutor(script, 10*time.Second)

	_, err := executor.Execute(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient balance")
}

func TestExecuteFailureNonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo '{"success": false, "error": "node unreachable"}'
exit 1
`)
	executor := NewScriptExecutor(script, 10*time.Second)

	_, err := executor.Execute(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "node unreachable")
}

func TestExecuteSuccessWithoutTxHash(t *testing.T) {
	script := writeScript(t, `echo '{"success": true}'`)
	executor := NewScriptExecutor(script, 10*time.Second)

	_, err := executor.Execute(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "transaction reference")
}

func TestExecuteTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	executor := NewScriptExecutor(script, 100*time.Millisecond)

	_, err := executor.Execute(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestExecuteNoResultObject(t *testing.T) {
	script := writeScript(t, `echo "just some logs"`)
	executor := NewScriptExecutor(script, 10*time.Second)

	_, err := executor.Execute(context.Background(), testRequest())
	require.Error(t, err)
}
