package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/pkg/utils"
)

// Tweet is one candidate post returned by the feed source.
type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Username  string    `json:"username"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"created_at"`
}

// Source fetches a bounded batch of candidate posts. Implementations must
// treat upstream rate limiting as an empty batch, not a failure.
type Source interface {
	FetchTweets(ctx context.Context) ([]Tweet, error)
}

type result struct {
	Success     bool    `json:"success"`
	Tweets      []Tweet `json:"tweets"`
	Error       string  `json:"error"`
	RateLimited bool    `json:"rate_limited"`
}

// ScriptSource runs the external scraper executable and parses its result
// object from a possibly noisy stdout stream.
type ScriptSource struct {
	script  string
	timeout time.Duration
}

func NewScriptSource(script string, timeout time.Duration) *ScriptSource {
	return &ScriptSource{script: script, timeout: timeout}
}

func (s *ScriptSource) FetchTweets(ctx context.Context) ([]Tweet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/bash", s.script)
	output, err := cmd.Output()
	if err != nil {
		// The script may still have printed a structured result before
		// exiting non-zero; prefer that over the raw exec error.
		if ee, ok := err.(*exec.ExitError); ok {
			output = append(output, ee.Stderr...)
		}
		if parsed, perr := parseResult(output); perr == nil {
			return parsed, nil
		}
		return nil, fmt.Errorf("scraper script failed: %w", err)
	}
	return parseResult(output)
}

func parseResult(output []byte) ([]Tweet, error) {
	raw, err := utils.ExtractResultObject(output)
	if err != nil {
		return nil, fmt.Errorf("scraper output: %w", err)
	}
	var res result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("scraper output: %w", err)
	}
	if !res.Success {
		if res.RateLimited || isRateLimitError(res.Error) {
			log.Info().Msg("[Scraper] [FetchTweets] feed source rate limited, treating as empty batch")
			return nil, nil
		}
		return nil, fmt.Errorf("scraper reported failure: %s", res.Error)
	}
	return res.Tweets, nil
}

func isRateLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") || strings.Contains(lower, "rate limit")
}
