package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

func TestKeyStore(t *testing.T) {
	ctx := context.Background()
	mem := &memCollection{}
	ks, err := NewKeyStore(mem, time.Minute)
	require.NoError(t, err)

	info := &types.DataKeyInfo{Provider: types.ProviderAead, KeyID: "test-key", Wrapped: "d3JhcHBlZA=="}
	require.NoError(t, ks.SaveDataKey(ctx, "users", info))
	assert.False(t, info.CreatedAt.IsZero())
	require.Len(t, mem.docs, 1)

	cached, err := ks.GetDataKey(ctx, "users")
	require.NoError(t, err)
	assert.Same(t, info, cached)
	assert.Empty(t, mem.filters[1:])

	// a second store shares the collection but not the cache
	fresh, err := NewKeyStore(mem, 0)
	require.NoError(t, err)
	got, err := fresh.GetDataKey(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, info.Provider, got.Provider)
	assert.Equal(t, info.KeyID, got.KeyID)
	assert.Equal(t, info.Wrapped, got.Wrapped)

	require.NoError(t, ks.SaveDataKey(ctx, "users", &types.DataKeyInfo{Provider: types.ProviderAead, KeyID: "rotated", Wrapped: "eA=="}))
	assert.Len(t, mem.docs, 1)

	require.NoError(t, ks.DeleteDataKey(ctx, "users"))
	_, err = ks.GetDataKey(ctx, "users")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeyStoreExpiresCache(t *testing.T) {
	ctx := context.Background()
	mem := &memCollection{}
	ks, err := NewKeyStore(mem, time.Nanosecond)
	require.NoError(t, err)

	require.NoError(t, ks.SaveDataKey(ctx, "users", &types.DataKeyInfo{Provider: types.ProviderAead, KeyID: "k", Wrapped: "eA=="}))
	time.Sleep(time.Millisecond)

	_, err = ks.GetDataKey(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, mem.filters, 2)
}

func TestKeyStoreRejects(t *testing.T) {
	_, err := NewKeyStore(nil, 0)
	assert.ErrorIs(t, err, ErrMissingDependency)

	ks, err := NewKeyStore(&memCollection{}, 0)
	require.NoError(t, err)
	assert.Error(t, ks.SaveDataKey(context.Background(), "", &types.DataKeyInfo{Wrapped: "x"}))
	assert.Error(t, ks.SaveDataKey(context.Background(), "users", nil))
	assert.Error(t, ks.SaveDataKey(context.Background(), "users", &types.DataKeyInfo{}))
}
