package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Command is a parsed, deduplicated social post carrying a transfer request.
// Created by the ingestion pipeline, soft-retained for audit.
type Command struct {
	gorm.Model
	TweetID        string    `gorm:"type:varchar(255);uniqueIndex"`
	AuthorUsername string    `gorm:"type:varchar(255)"`
	AuthorUserID   string    `gorm:"type:varchar(255)"`
	RawText        string    `gorm:"type:text"`
	TweetCreatedAt time.Time `gorm:"type:timestamp(6)"`
	Amount         uint64    `gorm:"type:bigint"`
	Token          string    `gorm:"type:varchar(32)"`
	ToChannel      string    `gorm:"type:varchar(64)"`
	// ToUserID holds the resolved channel user id for READY commands and the
	// raw identifier for NEEDS_LOOKUP ones.
	ToUserID string `gorm:"type:varchar(255)"`
	Status   int    `gorm:"default:0"`
	Sent     int    `gorm:"default:0"`
}

// Transfer is the settlement work item derived from a Command or a direct
// wallet-link flow. Status lifecycle is owned exclusively by the processor.
type Transfer struct {
	gorm.Model
	SourceType   string       `gorm:"type:varchar(64)"`
	FromChannel  string       `gorm:"type:varchar(64)"`
	FromUserID   string       `gorm:"type:varchar(255)"`
	ToChannel    string       `gorm:"type:varchar(64)"`
	ToUserID     string       `gorm:"type:varchar(255)"`
	Amount       uint64       `gorm:"type:bigint"`
	Token        string       `gorm:"type:varchar(32)"`
	Status       int          `gorm:"default:2;index"`
	TxHash       *string      `gorm:"type:varchar(255)"`
	ErrorMessage ErrorHistory `gorm:"type:jsonb"`
	ProcessedAt  *time.Time   `gorm:"type:timestamp(6)"`
}

// IsSameChannel reports whether sender and recipient live in the same
// identity namespace, which selects the within-channel settlement function.
func (t *Transfer) IsSameChannel() bool {
	return t.FromChannel == t.ToChannel
}

// ChannelIdentity is owned by the identity-linking subsystem; the relayer
// only reads it to resolve registry-backed channels.
type ChannelIdentity struct {
	gorm.Model
	UserID        uint         `gorm:"index"`
	Channel       string       `gorm:"type:varchar(64);uniqueIndex:idx_channel_user"`
	ChannelUserID string       `gorm:"type:varchar(255);uniqueIndex:idx_channel_user"`
	Metadata      IdentityMeta `gorm:"type:jsonb"`
	TokenExpires  *time.Time   `gorm:"type:timestamp(6)"`
	VaultStatus   int          `gorm:"default:0"`
}

type IdentityMeta map[string]any

func (m IdentityMeta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *IdentityMeta) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into IdentityMeta", value)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, m)
}

// Username returns the username carried in the identity metadata, if any.
func (m IdentityMeta) Username() string {
	if m == nil {
		return ""
	}
	if u, ok := m["username"].(string); ok {
		return u
	}
	return ""
}

// ErrorEntry is one append-only failure record on a Transfer.
type ErrorEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorHistory []ErrorEntry

func (h ErrorHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func (h *ErrorHistory) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into ErrorHistory", value)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, h)
}
