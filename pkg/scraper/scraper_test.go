package scraper

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
	path := filepath.Join(t.TempDir(), "scrape.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func TestFetchTweets(t *testing.T) {
	script := writeScript(t, `
echo "[info] launching browser"
echo '{"success": true, "tweets": [{"id": "1001", "text": "#aptsend 1.5 APT @alice", "username": "bob", "userId": "42", "created_at": "2025-06-01T12:00:00Z"}]}'
`)
	source := NewScriptSource(script, 10*time.Second)

	tweets, err := source.FetchTweets(context.Background())
	require.NoError(t, err)
	require.Len(t, tweets, 1)
	require.Equal(t, "1001", tweets[0].ID)
	require.Equal(t, "bob", tweets[0].Username)
	require.Equal(t, "42", tweets[0].UserID)
	require.Equal(t, "#aptsend 1.5 APT @alice", tweets[0].Text)
}

func TestFetchTweetsRateLimited(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "error": "request failed with status 429"}'`)
	source := NewScriptSource(script, 10*time.Second)

	tweets, err := source.FetchTweets(context.Background())
	require.NoError(t, err)
	require.Empty(t, tweets)
}

func TestFetchTweetsRateLimitedFlag(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "rate_limited": true}'`)
	source := NewScriptSource(script, 10*time.Second)

	tweets, err := source.FetchTweets(context.Background())
	require.NoError(t, err)
	require.Empty(t, tweets)
}

func TestFetchTweetsFailure(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "error": "login challenge"}'`)
	source := NewScriptSource(script, 10*time.Second)

	_, err := source.FetchTweets(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "login challenge")
}

func TestFetchTweetsResultBeforeNonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo '{"success": true, "tweets": []}'
exit 3
`)
	source := NewScriptSource(script, 10*time.Second)

	tweets, err := source.FetchTweets(context.Background())
	require.NoError(t, err)
	require.Empty(t, tweets)
}

func TestFetchTweetsNoResultObject(t *testing.T) {
	script := writeScript(t, `echo "nothing structured here"`)
	source := NewScriptSource(script, 10*time.Second)

	_, err := source.FetchTweets(context.Background())
	require.Error(t, err)
}
