// Package cache keeps the last known merged state on local disk so reads can be served while
// the shared remote document is unreachable.
//
// Values are JSON files named after fixed, app-prefixed keys on a hackpadfs filesystem: the
// OS filesystem in production and an in-memory filesystem in tests.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// KeyPrefix namespaces every persisted key.
const KeyPrefix = "notenest"

const (
	// NotesKey holds the last merged notes map.
	NotesKey = KeyPrefix + "ScienceNotesCache"
	// UsersKey holds the last known user login list.
	UsersKey = KeyPrefix + "UsersCache"
)

const (
	fileExtension  = ".json"
	filePermission = 0o600
	dirPermission  = 0o750
)

// ErrInvalidKey indicates a key outside the app namespace or containing path separators.
var ErrInvalidKey = errors.New("cache: invalid key")

// Cache is a namespaced JSON key-value store. It is safe for concurrent use within a process.
type Cache struct {
	mu   sync.RWMutex
	fs   hackpadfs.FS
	root string
}

// New binds a cache to a directory of the provided filesystem, creating it when needed.
func New(fileSystem hackpadfs.FS, root string) (*Cache, error) {
	root = strings.Trim(path.Clean("/"+root), "/")
	if root != "" {
		if err := hackpadfs.MkdirAll(fileSystem, root, dirPermission); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", root, err)
		}
	}
	return &Cache{fs: fileSystem, root: root}, nil
}

// OpenDir opens a cache stored in an OS directory.
func OpenDir(dir string) (*Cache, error) {
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve %s: %w", dir, err)
	}
	relative := strings.TrimPrefix(filepath.ToSlash(absolute), "/")
	return New(osfs.NewFS(), relative)
}

// ReadJSON decodes the value stored under key into target. It reports false, without error,
// when the key is missing or the stored value is not valid JSON for target.
func (c *Cache) ReadJSON(key string, target any) (bool, error) {
	name, err := c.fileName(key)
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	content, err := hackpadfs.ReadFile(c.fs, name)
	c.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	if err := json.Unmarshal(content, target); err != nil {
		return false, nil
	}
	return true, nil
}

// WriteJSON replaces the value stored under key.
func (c *Cache) WriteJSON(key string, value any) error {
	name, err := c.fileName(key)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := hackpadfs.WriteFullFile(c.fs, name, encoded, filePermission); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value stored under key. Removing a missing key is not an error.
func (c *Cache) Remove(key string) error {
	name, err := c.fileName(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := hackpadfs.Remove(c.fs, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: remove %s: %w", key, err)
	}
	return nil
}

// Notes returns the cached notes map, empty when nothing usable is cached.
func (c *Cache) Notes() (notes.NoteMap, error) {
	cached := notes.NoteMap{}
	found, err := c.ReadJSON(NotesKey, &cached)
	if err != nil {
		return notes.NoteMap{}, err
	}
	if !found || cached == nil {
		return notes.NoteMap{}, nil
	}
	return cached, nil
}

// SetNotes replaces the cached notes map.
func (c *Cache) SetNotes(noteMap notes.NoteMap) error {
	if noteMap == nil {
		noteMap = notes.NoteMap{}
	}
	return c.WriteJSON(NotesKey, noteMap)
}

// Users returns the cached login list, empty when nothing usable is cached.
func (c *Cache) Users() ([]notes.UserLogin, error) {
	cached := []notes.UserLogin{}
	found, err := c.ReadJSON(UsersKey, &cached)
	if err != nil {
		return []notes.UserLogin{}, err
	}
	if !found || cached == nil {
		return []notes.UserLogin{}, nil
	}
	return cached, nil
}

// SetUsers replaces the cached login list.
func (c *Cache) SetUsers(users []notes.UserLogin) error {
	if users == nil {
		users = []notes.UserLogin{}
	}
	return c.WriteJSON(UsersKey, users)
}

func (c *Cache) fileName(key string) (string, error) {
	if !strings.HasPrefix(key, KeyPrefix) || strings.ContainsAny(key, `/\`) || key == KeyPrefix {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Join(c.root, key+fileExtension), nil
}
