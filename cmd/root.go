package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aptsend/relayer/config"
	"github.com/aptsend/relayer/internal/relayer"
	"github.com/aptsend/relayer/pkg/cache"
	"github.com/aptsend/relayer/pkg/db"
)

var (
	environment string
	rootCmd     = &cobra.Command{
		Use:   "relayer",
		Short: "AptSend Relayer",
		Run:   run,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) {
	// A missing .env is fine; config.Load validates what actually matters.
	_ = godotenv.Load()

	config.InitLogger()

	if err := config.Load(environment); err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// NewDatabaseAdapter runs migrations as part of opening the connection.
	dbAdapter, err := db.NewDatabaseAdapter(config.GlobalConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database adapter")
	}

	redisClient, err := cache.NewRedisClient(
		config.GlobalConfig.Redis.Addr,
		config.GlobalConfig.Redis.Password,
		config.GlobalConfig.Redis.DB,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	service, err := relayer.NewService(config.GlobalConfig, dbAdapter, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create relayer service")
	}

	if err := service.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start relayer service")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down relayer...")
	service.Stop()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&environment,
		"env",
		"local",
		"Environment name used to locate the configuration file",
	)
	viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))
}
