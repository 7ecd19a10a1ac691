package cache

import (
	"testing"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryCache(t *testing.T) (*Cache, hackpadfs.FS) {
	t.Helper()
	fileSystem, err := mem.NewFS()
	require.NoError(t, err)
	store, err := New(fileSystem, "state/cache")
	require.NoError(t, err)
	return store, fileSystem
}

func TestNotesRoundTrip(t *testing.T) {
	store, fileSystem := newMemoryCache(t)

	empty, err := store.Notes()
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := notes.NoteMap{
		"Motion": {Filename: "motion.pdf", Base64: "QUJD", UploadedAt: "2024-03-01T10:00:00.000Z", Size: 3, Source: notes.SourceLocal},
	}
	require.NoError(t, store.SetNotes(want))

	got, err := store.Notes()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	content, err := hackpadfs.ReadFile(fileSystem, "state/cache/"+NotesKey+".json")
	require.NoError(t, err)
	assert.Contains(t, string(content), `"filename":"motion.pdf"`)
}

func TestUsersRoundTrip(t *testing.T) {
	store, _ := newMemoryCache(t)

	empty, err := store.Users()
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	want := []notes.UserLogin{{Name: "Ada", Email: "ada@example.com", IP: "10.0.0.1", LastLoginAt: "2024-03-01T10:00:00.000Z", LoginCount: 2}}
	require.NoError(t, store.SetUsers(want))

	got, err := store.Users()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorruptValueReadsAsMissing(t *testing.T) {
	store, fileSystem := newMemoryCache(t)
	require.NoError(t, hackpadfs.WriteFullFile(fileSystem, "state/cache/"+NotesKey+".json", []byte("{not json"), 0o600))

	got, err := store.Notes()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemove(t *testing.T) {
	store, _ := newMemoryCache(t)
	require.NoError(t, store.SetUsers([]notes.UserLogin{{Name: "Ada", Email: "ada@example.com", LoginCount: 1}}))
	require.NoError(t, store.Remove(UsersKey))
	require.NoError(t, store.Remove(UsersKey))

	got, err := store.Users()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRejectsKeysOutsideNamespace(t *testing.T) {
	store, _ := newMemoryCache(t)

	for _, key := range []string{"", "notenest", "otherApp", "notenest/escape", `notenest\escape`} {
		err := store.WriteJSON(key, "value")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestOpenDirUsesOperatingSystemFilesystem(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenDir(dir)
	require.NoError(t, err)

	require.NoError(t, store.WriteJSON(KeyPrefix+"Sample", map[string]int{"value": 7}))

	var got map[string]int
	found, err := store.ReadJSON(KeyPrefix+"Sample", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got["value"])
}
