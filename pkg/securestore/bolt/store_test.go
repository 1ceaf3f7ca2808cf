package boltsecurestore_test

import (
	"testing"

	"github.com/shielded-wallet/zsyncd/pkg/securestore"
	boltsecurestore "github.com/shielded-wallet/zsyncd/pkg/securestore/bolt"
	"github.com/stretchr/testify/require"
)

const dbFile = "secrets.db"

var (
	password = []byte("password")
	wallet   = []byte("wallet")
	seed     = []byte("mnemonic")
)

func TestUnlock(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)

	require.True(t, store.IsLocked())
	require.ErrorIs(t, store.CreateUnlock(nil), boltsecurestore.ErrPasswordRequired)

	require.NoError(t, store.CreateUnlock(&password))
	require.False(t, store.IsLocked())
	require.NoError(t, store.CreateUnlock(nil))
	require.NoError(t, store.AddToBucket(nil, seed, []byte("abandon about")))

	store.Lock()
	require.True(t, store.IsLocked())

	wrong := []byte("wrong")
	require.ErrorIs(t, store.CreateUnlock(&wrong), boltsecurestore.ErrInvalidPassword)
	require.True(t, store.IsLocked())

	require.NoError(t, store.CreateUnlock(&password))
	require.NoError(t, store.Close())

	// the sealed key survives a reopen
	store = openStore(t, dir)
	require.ErrorIs(t, store.CreateUnlock(&wrong), boltsecurestore.ErrInvalidPassword)
	require.NoError(t, store.CreateUnlock(&password))

	got, err := store.GetFromBucket(nil, seed)
	require.NoError(t, err)
	require.Equal(t, []byte("abandon about"), got)
}

func TestBucketOperations(t *testing.T) {
	store := unlockedStore(t)
	require.NoError(t, store.CreateBucket(wallet))
	require.NoError(t, store.CreateBucket(wallet))

	tests := []struct {
		name   string
		bucket []byte
	}{
		{"root bucket", nil},
		{"nested bucket", wallet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.GetFromBucket(tt.bucket, seed)
			require.ErrorIs(t, err, boltsecurestore.ErrDataNotFound)

			require.NoError(t, store.AddToBucket(tt.bucket, seed, []byte("first")))
			require.NoError(t, store.AddToBucket(tt.bucket, seed, []byte("second")))

			got, err := store.GetFromBucket(tt.bucket, seed)
			require.NoError(t, err)
			require.Equal(t, []byte("second"), got)

			require.NoError(t, store.RemoveFromBucket(tt.bucket, seed))
			require.NoError(t, store.RemoveFromBucket(tt.bucket, seed))
			_, err = store.GetFromBucket(tt.bucket, seed)
			require.ErrorIs(t, err, boltsecurestore.ErrDataNotFound)
		})
	}
}

func TestBucketOperationsFailures(t *testing.T) {
	store := unlockedStore(t)
	missing := []byte("missing")
	reserved := []byte("enckey")

	tests := []struct {
		name   string
		bucket []byte
		key    []byte
		value  []byte
		err    error
	}{
		{"missing key", nil, nil, []byte("v"), boltsecurestore.ErrMissingDataKey},
		{"reserved key", nil, reserved, []byte("v"), boltsecurestore.ErrForbiddenDataKey},
		{"missing bucket", missing, seed, []byte("v"), boltsecurestore.ErrBucketNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, store.AddToBucket(tt.bucket, tt.key, tt.value), tt.err)
			_, err := store.GetFromBucket(tt.bucket, tt.key)
			require.ErrorIs(t, err, tt.err)
			require.ErrorIs(t, store.RemoveFromBucket(tt.bucket, tt.key), tt.err)
		})
	}

	t.Run("missing value", func(t *testing.T) {
		require.ErrorIs(t, store.AddToBucket(nil, seed, nil), boltsecurestore.ErrMissingData)
	})

	t.Run("bucket names", func(t *testing.T) {
		require.ErrorIs(t, store.CreateBucket(nil), boltsecurestore.ErrMissingBucketKey)
		require.ErrorIs(t, store.CreateBucket(reserved), boltsecurestore.ErrForbiddenBucketKey)
	})

	t.Run("locked", func(t *testing.T) {
		require.NoError(t, store.AddToBucket(nil, seed, []byte("v")))
		store.Lock()
		defer func() { require.NoError(t, store.CreateUnlock(&password)) }()

		require.ErrorIs(t, store.CreateBucket(wallet), boltsecurestore.ErrStoreLocked)
		require.ErrorIs(t, store.AddToBucket(nil, seed, []byte("v")), boltsecurestore.ErrStoreLocked)
		_, err := store.GetFromBucket(nil, seed)
		require.ErrorIs(t, err, boltsecurestore.ErrStoreLocked)
		require.ErrorIs(t, store.RemoveFromBucket(nil, seed), boltsecurestore.ErrStoreLocked)
		require.ErrorIs(t, store.ChangePassword(password, password), boltsecurestore.ErrStoreLocked)
	})
}

func TestChangePassword(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	require.NoError(t, store.CreateUnlock(&password))
	require.NoError(t, store.CreateBucket(wallet))
	require.NoError(t, store.AddToBucket(nil, seed, []byte("root value")))
	require.NoError(t, store.AddToBucket(wallet, seed, []byte("nested value")))

	newPassword := []byte("new password")

	tests := []struct {
		name         string
		oldPw, newPw []byte
		err          error
	}{
		{"missing old password", nil, newPassword, boltsecurestore.ErrPasswordRequired},
		{"missing new password", password, nil, boltsecurestore.ErrPasswordRequired},
		{"wrong old password", newPassword, newPassword, boltsecurestore.ErrInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, store.ChangePassword(tt.oldPw, tt.newPw), tt.err)
			require.False(t, store.IsLocked())
		})
	}

	require.NoError(t, store.ChangePassword(password, newPassword))
	require.NoError(t, store.Close())

	store = openStore(t, dir)
	require.ErrorIs(t, store.CreateUnlock(&password), boltsecurestore.ErrInvalidPassword)
	require.NoError(t, store.CreateUnlock(&newPassword))

	for bucket, want := range map[string]string{
		"":       "root value",
		"wallet": "nested value",
	} {
		got, err := store.GetFromBucket([]byte(bucket), seed)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func openStore(t *testing.T, dir string) securestore.SecureStorage {
	t.Helper()
	store, err := boltsecurestore.NewSecureStorage(dir, dbFile)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func unlockedStore(t *testing.T) securestore.SecureStorage {
	t.Helper()
	store := openStore(t, t.TempDir())
	require.NoError(t, store.CreateUnlock(&password))
	return store
}
