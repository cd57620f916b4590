// Package kvtest has the behavior tests every kv.Store implementation must pass.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/kv"
	"github.com/slok/taskbroker/internal/model"
)

// TestStore runs the store behavior tests. advance moves the store clock forward.
func TestStore(t *testing.T, store kv.Store, advance func(d time.Duration)) {
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k1", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "k1", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "k1"))
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err = store.SetNX(ctx, "k1", "v3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Expired keys can be set again.
	advance(2 * time.Minute)
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	ok, err = store.SetNX(ctx, "k1", "v4", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "missing"))
}
