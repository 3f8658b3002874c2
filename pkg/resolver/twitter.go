package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TwitterClient resolves handles through the platform's user lookup API.
type TwitterClient struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

func NewTwitterClient(baseURL, bearerToken string) *TwitterClient {
	return &TwitterClient{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type twitterUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

func (c *TwitterClient) LookupUserID(ctx context.Context, handle string) (string, error) {
	if c.bearerToken == "" {
		return "", errors.New("twitter bearer token not configured")
	}

	url := fmt.Sprintf("%s/users/by/username/%s", c.baseURL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitter user lookup returned status %d", resp.StatusCode)
	}

	var parsed twitterUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("twitter user lookup returned malformed body: %w", err)
	}
	if parsed.Data.ID == "" {
		return "", fmt.Errorf("twitter user %q not found", handle)
	}
	return parsed.Data.ID, nil
}
