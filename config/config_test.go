package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "test"), 0o755))
	configJSON := `{
		"database": {"url": "postgres://localhost:5432/test"},
		"redis": {"addr": "localhost:6379"},
		"scraper": {"script": "scrape.sh"},
		"settlement": {"script": "settle.sh"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "test", "config.json"), []byte(configJSON), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	viper.Reset()
	require.NoError(t, Load("test"))

	cfg := GlobalConfig
	require.Equal(t, "postgres://localhost:5432/test", cfg.Database.URL)
	require.Equal(t, "aptsend", cfg.Scraper.Tag)
	require.Equal(t, 120, cfg.Scraper.TimeoutSeconds)
	require.Equal(t, 900, cfg.Scraper.IntervalSeconds)
	require.Equal(t, 180, cfg.Scraper.DebounceSeconds)
	require.Equal(t, 120, cfg.Settlement.TimeoutSeconds)
	require.Equal(t, uint64(1000), cfg.Settlement.MinTransferAmount)
	require.Equal(t, 30, cfg.Settlement.IntervalSeconds)
	require.Equal(t, 45, cfg.Settlement.DebounceSeconds)
	require.Equal(t, "https://api.twitter.com/2", cfg.Twitter.APIBaseURL)
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "test"), 0o755))
	configJSON := `{
		"redis": {"addr": "localhost:6379"},
		"scraper": {"script": "scrape.sh"},
		"settlement": {"script": "settle.sh"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "test", "config.json"), []byte(configJSON), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	viper.Reset()
	require.Error(t, Load("test"))
}
