// Package localstore holds the durable per-device copy of every saved note, one record per chapter.
package localstore

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"go.uber.org/zap"
)

// ErrInvalidChapter indicates an empty chapter key.
var ErrInvalidChapter = errors.New("localstore: chapter is required")

// Store persists note records keyed by chapter.
type Store interface {
	GetAll(ctx context.Context) (notes.NoteMap, error)
	Put(ctx context.Context, chapter string, note notes.Note) error
	Delete(ctx context.Context, chapter string) error
	Close() error
}

// KeyValue is the single-value persistence used by the blob fallback.
type KeyValue interface {
	ReadJSON(key string, target any) (bool, error)
	WriteJSON(key string, value any) error
	Remove(key string) error
}

// OpenConfig describes how to open the local store.
type OpenConfig struct {
	Path     string
	Fallback KeyValue
	// FallbackKey names the value the blob store keeps the whole map under.
	FallbackKey string
	Logger      *zap.Logger
}

// Open opens the SQLite-backed store. When the database cannot be opened and a fallback is
// configured, it returns a BlobStore over the fallback instead.
func Open(cfg OpenConfig) (Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := OpenSQLStore(cfg.Path, logger)
	if err == nil {
		return store, nil
	}
	if cfg.Fallback == nil || strings.TrimSpace(cfg.FallbackKey) == "" {
		return nil, err
	}
	logger.Warn(
		"local database unavailable, using blob store",
		zap.String("operation", "localstore.open"),
		zap.String("path", cfg.Path),
		zap.Error(err),
	)
	return NewBlobStore(cfg.Fallback, cfg.FallbackKey), nil
}

func normalizeChapter(chapter string) (string, error) {
	trimmed := strings.TrimSpace(chapter)
	if trimmed == "" {
		return "", ErrInvalidChapter
	}
	return trimmed, nil
}

func withStoredDefaults(note notes.Note) notes.Note {
	if note.Source == "" {
		note.Source = notes.SourceLocal
	}
	if note.Size < 0 {
		note.Size = 0
	}
	return note
}
