package tokenfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() *Credentials {
	return &Credentials{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		Scope:        "fspt-r",
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	creds, err := Load("/nonexistent/path/token.json")
	assert.Nil(t, creds)
	assert.NoError(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	creds, err := Load(path)
	assert.Nil(t, creds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_NoTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"scope":"fspt-r"}`), 0o600))

	creds, err := Load(path)
	assert.Nil(t, creds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "re-authorization required")
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	// Sub-second precision must survive the trip.
	expiry := time.Date(2099, 6, 15, 12, 0, 0, 123456789, time.UTC)
	original := &Credentials{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expiry,
		Scope:        "fspt-r openid",
	}

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original.AccessToken, loaded.AccessToken)
	assert.Equal(t, original.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, original.Scope, loaded.Scope)
	assert.True(t, loaded.ExpiresAt.Equal(expiry), "expires_at changed: %s vs %s", loaded.ExpiresAt, expiry)
}

func TestSave_RoundTripLocalZone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	zone := time.FixedZone("EST", -5*60*60)
	original := testCredentials()
	original.ExpiresAt = time.Date(2030, 2, 3, 4, 5, 6, 7, zone)

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.ExpiresAt.Equal(original.ExpiresAt))
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "dir", "token.json")

	require.NoError(t, Save(nested, testCredentials()))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_NilCredentials(t *testing.T) {
	dir := t.TempDir()

	err := Save(filepath.Join(dir, "token.json"), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nil credentials")
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, testCredentials()))
	require.NoError(t, Save(path, testCredentials()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestRemove_MissingFile(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "absent.json")))
}

func TestStore_SaveLoadClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "tokens", "tokens.json"))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)

	require.NoError(t, store.Save(testCredentials()))

	creds, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "access-123", creds.AccessToken)

	require.NoError(t, store.Clear())

	creds, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "tokens.json"))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			creds := testCredentials()
			creds.AccessToken = "access-" + string(rune('a'+i))
			assert.NoError(t, store.Save(creds))
		}()
	}

	wg.Wait()

	creds, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "refresh-456", creds.RefreshToken)
}
