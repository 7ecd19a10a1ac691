package localstore

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/notenest/internal/database"
	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NoteRow is the persisted form of one chapter's note.
type NoteRow struct {
	Chapter    string `gorm:"column:chapter;primaryKey;size:190"`
	Filename   string `gorm:"column:filename;not null"`
	Base64     string `gorm:"column:base64;type:text;not null"`
	UploadedAt string `gorm:"column:uploaded_at;not null"`
	SizeBytes  int64  `gorm:"column:size_bytes;not null;default:0"`
	Source     string `gorm:"column:source;size:16"`
}

// TableName ensures a stable table name.
func (NoteRow) TableName() string {
	return "science_notes"
}

// Schema returns the models and migrations of the local notes database.
func Schema() database.Schema {
	return database.Schema{
		Models: []any{&NoteRow{}},
		Migrations: []database.Migration{
			{
				Name: "2024-03-01_backfill_note_source",
				Apply: func(db *gorm.DB) error {
					return db.Model(&NoteRow{}).
						Where("source IS NULL OR source = ''").
						Update("source", string(notes.SourceLocal)).Error
				},
			},
		},
	}
}

// SQLStore keeps notes in a SQLite table.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens, and migrates when needed, the SQLite database at path.
func OpenSQLStore(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := database.OpenSQLite(path, logger, Schema())
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	return &SQLStore{db: db}, nil
}

// GetAll returns every stored note keyed by chapter.
func (s *SQLStore) GetAll(ctx context.Context) (notes.NoteMap, error) {
	var rows []NoteRow
	if err := s.db.WithContext(ctx).Order("chapter ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("localstore: read notes: %w", err)
	}
	noteMap := make(notes.NoteMap, len(rows))
	for _, row := range rows {
		noteMap[row.Chapter] = withStoredDefaults(notes.Note{
			Filename:   row.Filename,
			Base64:     row.Base64,
			UploadedAt: row.UploadedAt,
			Size:       row.SizeBytes,
			Source:     notes.Source(row.Source),
		})
	}
	return noteMap, nil
}

// Put inserts or replaces the note for chapter.
func (s *SQLStore) Put(ctx context.Context, chapter string, note notes.Note) error {
	key, err := normalizeChapter(chapter)
	if err != nil {
		return err
	}
	note = withStoredDefaults(note)
	row := NoteRow{
		Chapter:    key,
		Filename:   note.Filename,
		Base64:     note.Base64,
		UploadedAt: note.UploadedAt,
		SizeBytes:  note.Size,
		Source:     string(note.Source),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chapter"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("localstore: put %q: %w", key, err)
	}
	return nil
}

// Delete removes the note for chapter. Deleting a missing chapter is not an error.
func (s *SQLStore) Delete(ctx context.Context, chapter string) error {
	key, err := normalizeChapter(chapter)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("chapter = ?", key).Delete(&NoteRow{}).Error; err != nil {
		return fmt.Errorf("localstore: delete %q: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLStore) Close() error {
	return database.Close(s.db)
}
