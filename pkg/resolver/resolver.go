package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aptsend/relayer/pkg/cache"
	"github.com/aptsend/relayer/pkg/parser"
)

var (
	// ErrUnsupportedChannel means no resolution strategy exists for the
	// channel.
	ErrUnsupportedChannel = errors.New("unsupported channel")
	// ErrNotFound means the identifier could not be mapped to a canonical
	// channel user id. Ingestion parks the command as NEEDS_LOOKUP.
	ErrNotFound = errors.New("identifier not found")
)

// CacheTTL bounds staleness of resolved ids. Username changes can lag up to
// this long; that window is an accepted tradeoff, entries are never
// invalidated early.
const CacheTTL = 3600 * time.Second

// TwitterAPI looks up a user id by handle on the feed platform.
type TwitterAPI interface {
	LookupUserID(ctx context.Context, handle string) (string, error)
}

// IdentityStore is the read-only view of the identity-linking subsystem's
// ChannelIdentity table, used for registry-backed channels.
type IdentityStore interface {
	FindChannelUserIDByUsername(ctx context.Context, channel, username string) (string, error)
}

type Resolver struct {
	twitter    TwitterAPI
	identities IdentityStore
	cache      cache.Service
}

func New(twitter TwitterAPI, identities IdentityStore, cacheService cache.Service) *Resolver {
	return &Resolver{twitter: twitter, identities: identities, cache: cacheService}
}

// Resolve maps a (channel, identifier) pair to a canonical channel user id.
// All strategies memoize through the cache service for CacheTTL, keyed by
// the normalized identifier.
func (r *Resolver) Resolve(ctx context.Context, channel, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	log.Debug().Str("channel", channel).Str("identifier", identifier).
		Msg("[Resolver] [Resolve] resolving identifier")

	switch channel {
	case parser.ChannelTwitter:
		return r.resolveTwitter(ctx, identifier)
	case "telegram", "discord":
		return r.resolveRegistry(ctx, channel, identifier)
	case parser.ChannelGoogle:
		return strings.ToLower(identifier), nil
	case parser.ChannelEvm:
		return r.memoized(ctx, channel, strings.ToLower(identifier))
	case parser.ChannelSol:
		return r.memoized(ctx, channel, identifier)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
}

func (r *Resolver) resolveTwitter(ctx context.Context, identifier string) (string, error) {
	handle := strings.TrimPrefix(identifier, "@")
	key := cacheKey(parser.ChannelTwitter, strings.ToLower(handle))
	return r.cache.Remember(ctx, key, CacheTTL, func() (string, error) {
		id, err := r.twitter.LookupUserID(ctx, handle)
		if err != nil {
			return "", fmt.Errorf("%w: twitter user %q: %v", ErrNotFound, handle, err)
		}
		return id, nil
	})
}

func (r *Resolver) resolveRegistry(ctx context.Context, channel, identifier string) (string, error) {
	username := strings.TrimPrefix(identifier, "@")
	key := cacheKey(channel, strings.ToLower(username))
	return r.cache.Remember(ctx, key, CacheTTL, func() (string, error) {
		id, err := r.identities.FindChannelUserIDByUsername(ctx, channel, strings.ToLower(username))
		if err != nil {
			return "", fmt.Errorf("%w: %s username %q is not linked, user must link %s first",
				ErrNotFound, channel, username, channel)
		}
		return id, nil
	})
}

// memoized caches the identity mapping for address-based channels. There is
// no underlying lookup; the identifier is its own canonical id.
func (r *Resolver) memoized(ctx context.Context, channel, identifier string) (string, error) {
	return r.cache.Remember(ctx, cacheKey(channel, identifier), CacheTTL, func() (string, error) {
		return identifier, nil
	})
}

func cacheKey(channel, normalized string) string {
	return fmt.Sprintf("%s:%s", channel, normalized)
}
