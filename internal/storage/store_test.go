package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "deskd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	value, err := store.Get(context.Background(), "notes", "prefs", "theme")
	require.NoError(t, err)
	assert.Nil(t, value, "missing key must return nil value, nil error")
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "notes", "prefs", "theme", json.RawMessage(`{"mode":"dark"}`)))

	value, err := store.Get(ctx, "notes", "prefs", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"dark"}`, string(value))
}

func TestStore_SetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "notes", "prefs", "theme", json.RawMessage(`"light"`)))
	require.NoError(t, store.Set(ctx, "notes", "prefs", "theme", json.RawMessage(`"dark"`)))

	value, err := store.Get(ctx, "notes", "prefs", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(value))
}

func TestStore_AppScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "notes", "prefs", "theme", json.RawMessage(`"dark"`)))
	require.NoError(t, store.Set(ctx, "music", "prefs", "theme", json.RawMessage(`"loud"`)))

	// Each app sees only its own row under the same namespace and key.
	value, err := store.Get(ctx, "notes", "prefs", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(value))

	value, err = store.Get(ctx, "music", "prefs", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"loud"`, string(value))

	keys, err := store.Keys(ctx, "notes", "prefs")
	require.NoError(t, err)
	assert.Equal(t, []string{"theme"}, keys)

	deleted, err := store.Delete(ctx, "music", "prefs", "theme")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting music's row leaves notes' row intact.
	value, err = store.Get(ctx, "notes", "prefs", "theme")
	require.NoError(t, err)
	assert.NotNil(t, value)
}

func TestStore_NamespaceScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "notes", "prefs", "a", json.RawMessage(`1`)))
	require.NoError(t, store.Set(ctx, "notes", "cache", "b", json.RawMessage(`2`)))

	keys, err := store.Keys(ctx, "notes", "prefs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestStore_DeleteReportsExistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	deleted, err := store.Delete(ctx, "notes", "prefs", "nothing")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, store.Set(ctx, "notes", "prefs", "key", json.RawMessage(`true`)))

	deleted, err = store.Delete(ctx, "notes", "prefs", "key")
	require.NoError(t, err)
	assert.True(t, deleted)

	value, err := store.Get(ctx, "notes", "prefs", "key")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestStore_KeysLexicalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Set(ctx, "notes", "prefs", k, json.RawMessage(`null`)))
	}

	keys, err := store.Keys(ctx, "notes", "prefs")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}

func TestStore_KeysEmptyNamespace(t *testing.T) {
	store := newTestStore(t)

	keys, err := store.Keys(context.Background(), "notes", "empty")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
