package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aptsend/relayer/pkg/db/models"
)

// CommandExists reports whether a command was already ingested for the
// given source post id. This is the sole deduplication guard for ingestion.
func (db *DatabaseAdapter) CommandExists(ctx context.Context, tweetID string) (bool, error) {
	var count int64
	err := db.PostgresClient.WithContext(ctx).Model(&models.Command{}).
		Where("tweet_id = ?", tweetID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check command existence: %w", err)
	}
	return count > 0, nil
}

func (db *DatabaseAdapter) CreateCommand(ctx context.Context, command *models.Command) error {
	if err := db.PostgresClient.WithContext(ctx).Create(command).Error; err != nil {
		return fmt.Errorf("failed to create command: %w", err)
	}
	return nil
}

// CreateCommandWithTransfer materializes a READY command and its PENDING
// transfer atomically, so the queue never sees a transfer whose command is
// missing.
func (db *DatabaseAdapter) CreateCommandWithTransfer(ctx context.Context, command *models.Command, transfer *models.Transfer) error {
	err := db.PostgresClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(command).Error; err != nil {
			return err
		}
		return tx.Create(transfer).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create command with transfer: %w", err)
	}
	return nil
}

func (db *DatabaseAdapter) ListNeedsLookupCommands(ctx context.Context, limit int) ([]models.Command, error) {
	var commands []models.Command
	err := db.PostgresClient.WithContext(ctx).
		Where("status = ?", int(CommandNeedsLookup)).
		Order("id ASC").
		Limit(limit).
		Find(&commands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list needs-lookup commands: %w", err)
	}
	return commands, nil
}

// ResolveCommand promotes a NEEDS_LOOKUP command to READY with its resolved
// recipient id and creates the matching PENDING transfer in one transaction.
func (db *DatabaseAdapter) ResolveCommand(ctx context.Context, command *models.Command, resolvedUserID string) error {
	err := db.PostgresClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Command{}).
			Where("id = ? AND status = ?", command.ID, int(CommandNeedsLookup)).
			Updates(map[string]any{
				"to_user_id": resolvedUserID,
				"status":     int(CommandReady),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Someone else resolved it first; do not create a second transfer.
			return nil
		}
		transfer := &models.Transfer{
			SourceType:  "twitter",
			FromChannel: "twitter",
			FromUserID:  command.AuthorUserID,
			ToChannel:   command.ToChannel,
			ToUserID:    resolvedUserID,
			Amount:      command.Amount,
			Token:       command.Token,
			Status:      int(TransferPending),
		}
		return tx.Create(transfer).Error
	})
	if err != nil {
		return fmt.Errorf("failed to resolve command %d: %w", command.ID, err)
	}
	return nil
}

// MarkCommandSent flips the originating command's sent flag after its
// transfer completed. Matching is by recipient and amount over unsent READY
// commands; a miss is tolerated because transfers can also originate from
// the direct wallet-link flow.
func (db *DatabaseAdapter) MarkCommandSent(ctx context.Context, transfer *models.Transfer) (bool, error) {
	var matched bool
	err := db.PostgresClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var command models.Command
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("to_channel = ? AND to_user_id = ? AND amount = ? AND status = ? AND sent = ?",
				transfer.ToChannel, transfer.ToUserID, transfer.Amount, int(CommandReady), CommandNotSent).
			Order("id ASC").
			First(&command).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&command).Update("sent", CommandSent).Error; err != nil {
			return err
		}
		matched = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark command sent for transfer %d: %w", transfer.ID, err)
	}
	if !matched {
		log.Debug().Uint("transferId", transfer.ID).
			Msg("[DatabaseAdapter] [MarkCommandSent] no unsent command matches transfer")
	}
	return matched, nil
}
