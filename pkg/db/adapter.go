package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aptsend/relayer/config"
	"github.com/aptsend/relayer/pkg/db/models"
)

type DatabaseAdapter struct {
	PostgresClient *gorm.DB
}

func NewDatabaseAdapter(cfg *config.Config) (*DatabaseAdapter, error) {
	client, err := NewPostgresClient(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return &DatabaseAdapter{PostgresClient: client}, nil
}

func NewPostgresClient(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Command{},
		&models.Transfer{},
		&models.ChannelIdentity{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
