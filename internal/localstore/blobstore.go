package localstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
)

// BlobStore keeps the whole notes map as one JSON value.
type BlobStore struct {
	mu  sync.Mutex
	kv  KeyValue
	key string
}

// NewBlobStore stores the notes map under key of kv.
func NewBlobStore(kv KeyValue, key string) *BlobStore {
	return &BlobStore{kv: kv, key: key}
}

// GetAll returns the stored map, empty when nothing was stored yet.
func (s *BlobStore) GetAll(ctx context.Context) (notes.NoteMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Put inserts or replaces the note for chapter.
func (s *BlobStore) Put(ctx context.Context, chapter string, note notes.Note) error {
	key, err := normalizeChapter(chapter)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	noteMap, err := s.load()
	if err != nil {
		return err
	}
	noteMap[key] = withStoredDefaults(note)
	return s.save(noteMap)
}

// Delete removes the note for chapter.
func (s *BlobStore) Delete(ctx context.Context, chapter string) error {
	key, err := normalizeChapter(chapter)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	noteMap, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := noteMap[key]; !exists {
		return nil
	}
	delete(noteMap, key)
	return s.save(noteMap)
}

// Close is a no-op.
func (s *BlobStore) Close() error {
	return nil
}

func (s *BlobStore) load() (notes.NoteMap, error) {
	stored := notes.NoteMap{}
	found, err := s.kv.ReadJSON(s.key, &stored)
	if err != nil {
		return nil, fmt.Errorf("localstore: read blob: %w", err)
	}
	noteMap := notes.NoteMap{}
	if !found {
		return noteMap, nil
	}
	for chapter, note := range stored {
		noteMap[chapter] = withStoredDefaults(note)
	}
	return noteMap, nil
}

// save drops the value once the last chapter is gone.
func (s *BlobStore) save(noteMap notes.NoteMap) error {
	if len(noteMap) == 0 {
		if err := s.kv.Remove(s.key); err != nil {
			return fmt.Errorf("localstore: remove blob: %w", err)
		}
		return nil
	}
	if err := s.kv.WriteJSON(s.key, noteMap); err != nil {
		return fmt.Errorf("localstore: write blob: %w", err)
	}
	return nil
}
