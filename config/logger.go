package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// InitLogger configures the global zerolog logger. LOG_LEVEL and LOG_PRETTY
// come from the environment so they can differ per deployment.
func InitLogger() {
	viper.AutomaticEnv()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(viper.GetString("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if viper.GetBool("LOG_PRETTY") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
