package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aptsend/relayer/pkg/db/models"
)

// ErrIdentityNotFound means no linked identity exists for the username on
// the given channel.
var ErrIdentityNotFound = errors.New("channel identity not found")

// FindChannelUserIDByUsername resolves a username against the
// identity-linking subsystem's registry. Read-only: this adapter never
// mutates ChannelIdentity rows. Matching on the metadata username is
// case-insensitive; the caller passes the username already lower-cased.
func (db *DatabaseAdapter) FindChannelUserIDByUsername(ctx context.Context, channel, username string) (string, error) {
	var identity models.ChannelIdentity
	err := db.PostgresClient.WithContext(ctx).
		Where("channel = ?", channel).
		Where("LOWER(metadata->>'username') = ?", username).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s/%s", ErrIdentityNotFound, channel, username)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up channel identity: %w", err)
	}
	return identity.ChannelUserID, nil
}
