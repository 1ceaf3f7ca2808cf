package secretstore_test

import (
	"testing"

	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/secretstore"
	boltsecurestore "github.com/shielded-wallet/zsyncd/pkg/securestore/bolt"
	"github.com/stretchr/testify/require"
)

const password = "password"

var _ ports.SecretStore = (*secretstore.Store)(nil)

func TestStore(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("pin")
	require.ErrorIs(t, err, boltsecurestore.ErrStoreLocked)

	require.NoError(t, store.Unlock(password))
	require.False(t, store.IsLocked())

	value, err := store.Get("pin")
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, store.Set("pin", []byte("1234")))
	value, err = store.Get("pin")
	require.NoError(t, err)
	require.Equal(t, []byte("1234"), value)

	require.NoError(t, store.Delete("pin"))
	value, err = store.Get("pin")
	require.NoError(t, err)
	require.Nil(t, value)

	store.Lock()
	require.True(t, store.IsLocked())
	require.ErrorIs(t, store.Unlock("wrong"), boltsecurestore.ErrInvalidPassword)
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := secretstore.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Unlock(password))
	require.NoError(t, store.Set("words", []byte("abandon about")))
	require.NoError(t, store.ChangePassword(password, "newpassword"))
	require.NoError(t, store.Close())

	store, err = secretstore.NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	require.ErrorIs(t, store.Unlock(password), boltsecurestore.ErrInvalidPassword)
	require.NoError(t, store.Unlock("newpassword"))

	value, err := store.Get("words")
	require.NoError(t, err)
	require.Equal(t, []byte("abandon about"), value)
}

func newTestStore(t *testing.T) *secretstore.Store {
	t.Helper()
	store, err := secretstore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
