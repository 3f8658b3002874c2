package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TwitterConfig struct {
	APIBaseURL  string `mapstructure:"api_base_url"`
	BearerToken string `mapstructure:"bearer_token"`
}

type ScraperConfig struct {
	Script         string `mapstructure:"script" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Tag            string `mapstructure:"tag"`
	// IntervalSeconds is the scrape tick; DebounceSeconds must exceed the
	// expected run time so overlapping ticks skip dispatch.
	IntervalSeconds int `mapstructure:"interval_seconds"`
	DebounceSeconds int `mapstructure:"debounce_seconds"`
}

type SettlementConfig struct {
	Script            string `mapstructure:"script" validate:"required"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MinTransferAmount uint64 `mapstructure:"min_transfer_amount"`
	IntervalSeconds   int    `mapstructure:"interval_seconds"`
	DebounceSeconds   int    `mapstructure:"debounce_seconds"`
}

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Twitter    TwitterConfig    `mapstructure:"twitter"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

var GlobalConfig *Config

// Load reads data/<env>/config.json, overlays environment variables and
// fills defaults. The result is validated before being published.
func Load(env string) error {
	var cfg Config

	viper.SetConfigFile(fmt.Sprintf("data/%s/config.json", env))
	viper.SetConfigType("json")
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// DATABASE_URL from the environment wins over the config file.
	if url := viper.GetString("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if token := viper.GetString("TWITTER_BEARER_TOKEN"); token != "" {
		cfg.Twitter.BearerToken = token
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	GlobalConfig = &cfg
	return nil
}

func (c *Config) applyDefaults() {
	if c.Twitter.APIBaseURL == "" {
		c.Twitter.APIBaseURL = "https://api.twitter.com/2"
	}
	if c.Scraper.Tag == "" {
		c.Scraper.Tag = "aptsend"
	}
	if c.Scraper.TimeoutSeconds == 0 {
		c.Scraper.TimeoutSeconds = 120
	}
	if c.Scraper.IntervalSeconds == 0 {
		c.Scraper.IntervalSeconds = 900
	}
	if c.Scraper.DebounceSeconds == 0 {
		c.Scraper.DebounceSeconds = 180
	}
	if c.Settlement.TimeoutSeconds == 0 {
		c.Settlement.TimeoutSeconds = 120
	}
	if c.Settlement.MinTransferAmount == 0 {
		c.Settlement.MinTransferAmount = 1000
	}
	if c.Settlement.IntervalSeconds == 0 {
		c.Settlement.IntervalSeconds = 30
	}
	if c.Settlement.DebounceSeconds == 0 {
		c.Settlement.DebounceSeconds = 45
	}
}
