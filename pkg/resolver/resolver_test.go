package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aptsend/relayer/pkg/cache"
	"github.com/aptsend/relayer/pkg/parser"
)

type memoryCache struct {
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	val, ok := c.entries[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return val, nil
}

func (c *memoryCache) Put(_ context.Context, key, value string, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Forget(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) Remember(ctx context.Context, key string, ttl time.Duration, fn func() (string, error)) (string, error) {
	if val, err := c.Get(ctx, key); err == nil {
		return val, nil
	}
	val, err := fn()
	if err != nil {
		return "", err
	}
	return val, c.Put(ctx, key, val, ttl)
}

type fakeTwitterAPI struct {
	users   map[string]string
	lookups int
}

func (f *fakeTwitterAPI) LookupUserID(_ context.Context, handle string) (string, error) {
	f.lookups++
	id, ok := f.users[handle]
	if !ok {
		return "", errors.New("user not found")
	}
	return id, nil
}

type fakeIdentityStore struct {
	identities map[string]string
}

func (f *fakeIdentityStore) FindChannelUserIDByUsername(_ context.Context, channel, username string) (string, error) {
	id, ok := f.identities[channel+"/"+username]
	if !ok {
		return "", errors.New("not linked")
	}
	return id, nil
}

func newTestResolver(api *fakeTwitterAPI, store *fakeIdentityStore) *Resolver {
	if api == nil {
		api = &fakeTwitterAPI{users: map[string]string{}}
	}
	if store == nil {
		store = &fakeIdentityStore{identities: map[string]string{}}
	}
	return New(api, store, newMemoryCache())
}

func TestResolveTwitter(t *testing.T) {
	api := &fakeTwitterAPI{users: map[string]string{"alice": "111"}}
	r := newTestResolver(api, nil)

	id, err := r.Resolve(context.Background(), parser.ChannelTwitter, "@alice")
	require.NoError(t, err)
	require.Equal(t, "111", id)
}

func TestResolveTwitterCachesLookups(t *testing.T) {
	api := &fakeTwitterAPI{users: map[string]string{"alice": "111"}}
	r := newTestResolver(api, nil)

	for i := 0; i < 5; i++ {
		id, err := r.Resolve(context.Background(), parser.ChannelTwitter, "@alice")
		require.NoError(t, err)
		require.Equal(t, "111", id)
	}
	require.Equal(t, 1, api.lookups)
}

func TestResolveTwitterNotFound(t *testing.T) {
	r := newTestResolver(nil, nil)

	_, err := r.Resolve(context.Background(), parser.ChannelTwitter, "@nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRegistryChannel(t *testing.T) {
	store := &fakeIdentityStore{identities: map[string]string{"telegram/bob": "tg-77"}}
	r := newTestResolver(nil, store)

	id, err := r.Resolve(context.Background(), "telegram", "@Bob")
	require.NoError(t, err)
	require.Equal(t, "tg-77", id)
}

func TestResolveRegistryChannelUnlinked(t *testing.T) {
	r := newTestResolver(nil, nil)

	_, err := r.Resolve(context.Background(), "discord", "@ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "link")
}

func TestResolveGoogle(t *testing.T) {
	r := newTestResolver(nil, nil)

	id, err := r.Resolve(context.Background(), parser.ChannelGoogle, "User@Gmail.com")
	require.NoError(t, err)
	require.Equal(t, "user@gmail.com", id)
}

func TestResolveAddressChannels(t *testing.T) {
	r := newTestResolver(nil, nil)

	evm, err := r.Resolve(context.Background(), parser.ChannelEvm, "0xABCDEF1234567890abcdef1234567890ABCDEF12")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", evm)

	sol, err := r.Resolve(context.Background(), parser.ChannelSol, "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	require.NoError(t, err)
	require.Equal(t, "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T", sol)
}

func TestResolveUnsupportedChannel(t *testing.T) {
	r := newTestResolver(nil, nil)

	_, err := r.Resolve(context.Background(), "carrierpigeon", "coo")
	require.ErrorIs(t, err, ErrUnsupportedChannel)
}
