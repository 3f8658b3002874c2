package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aptsend/relayer/pkg/db/models"
)

func (db *DatabaseAdapter) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	if err := db.PostgresClient.WithContext(ctx).Create(transfer).Error; err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

// ClaimPendingTransfer locks the oldest PENDING transfer and moves it to
// PROCESSING inside a single short transaction. The status flip happens
// before any validation so the row leaves future PENDING scans even if the
// claim's caller later rejects it. Returns nil when the queue is empty.
func (db *DatabaseAdapter) ClaimPendingTransfer(ctx context.Context) (*models.Transfer, error) {
	var transfer models.Transfer
	err := db.PostgresClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", int(TransferPending)).
			Order("created_at ASC").
			First(&transfer).Error; err != nil {
			return err
		}
		if err := tx.Model(&transfer).Update("status", int(TransferProcessing)).Error; err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending transfer: %w", err)
	}
	log.Debug().Uint("transferId", transfer.ID).Msg("[DatabaseAdapter] [ClaimPendingTransfer] claimed transfer")
	return &transfer, nil
}

func (db *DatabaseAdapter) MarkTransferCompleted(ctx context.Context, id uint, txHash string) error {
	now := time.Now().UTC()
	result := db.PostgresClient.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       int(TransferCompleted),
			"tx_hash":      txHash,
			"processed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark transfer %d completed: %w", id, result.Error)
	}
	return nil
}

// MarkTransferFailed records a terminal failure, appending to the error
// history. Prior entries are never overwritten. FAILED is permanent; there
// is no retry path.
func (db *DatabaseAdapter) MarkTransferFailed(ctx context.Context, id uint, message string) error {
	return db.PostgresClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var transfer models.Transfer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&transfer, id).Error; err != nil {
			return fmt.Errorf("failed to load transfer %d: %w", id, err)
		}
		history := append(transfer.ErrorMessage, models.ErrorEntry{
			Message:   message,
			Timestamp: time.Now().UTC(),
		})
		now := time.Now().UTC()
		if err := tx.Model(&transfer).Updates(map[string]any{
			"status":        int(TransferFailed),
			"error_message": history,
			"processed_at":  now,
		}).Error; err != nil {
			return fmt.Errorf("failed to mark transfer %d failed: %w", id, err)
		}
		return nil
	})
}

func (db *DatabaseAdapter) HasPendingTransfers(ctx context.Context) (bool, error) {
	count, err := db.PendingTransferCount(ctx)
	return count > 0, err
}

func (db *DatabaseAdapter) PendingTransferCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.PostgresClient.WithContext(ctx).Model(&models.Transfer{}).
		Where("status = ?", int(TransferPending)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending transfers: %w", err)
	}
	return count, nil
}
