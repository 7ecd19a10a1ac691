package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"go.uber.org/zap"
)

var (
	// ErrFormat indicates a backup that is not JSON or carries neither notes nor chapters.
	ErrFormat = errors.New("notebook: invalid backup format")
	// ErrBackupNotConfigured indicates that no secondary backup target was configured.
	ErrBackupNotConfigured = errors.New("notebook: backup target not configured")
)

const maxBackupBytes = 64 << 20

// ExportBackup writes the merged notes and the cached user log as a backup file.
func (s *Service) ExportBackup(ctx context.Context, writer io.Writer) error {
	document, err := s.backupDocument(ctx, opExportBackup)
	if err != nil {
		return err
	}
	document.ExportedAt = s.now()
	if err := json.NewEncoder(writer).Encode(document); err != nil {
		s.logError(opExportBackup, reasonEncodeFailed, err)
		return newServiceError(opExportBackup, reasonEncodeFailed, err)
	}
	return nil
}

// ImportBackup restores a backup file into the local store and cache, then merges it into the
// cloud document best-effort. Files with a legacy "chapters" section are accepted.
func (s *Service) ImportBackup(ctx context.Context, reader io.Reader) (SyncResult, error) {
	var decoded any
	if err := json.NewDecoder(io.LimitReader(reader, maxBackupBytes)).Decode(&decoded); err != nil {
		return SyncResult{}, newServiceError(opImportBackup, reasonInvalidFormat, errors.Join(ErrFormat, err))
	}
	return s.applyBackup(ctx, opImportBackup, decoded)
}

// CreateCloudBackup stores the merged notes and the cached user log in the backup target.
func (s *Service) CreateCloudBackup(ctx context.Context) error {
	if s.backup == nil {
		return newServiceError(opCreateBackup, reasonMissingBackup, ErrBackupNotConfigured)
	}
	document, err := s.backupDocument(ctx, opCreateBackup)
	if err != nil {
		return err
	}
	document.BackupAt = s.now()
	if err := s.backup.Store(ctx, document); err != nil {
		s.logError(opCreateBackup, reasonBackupFailed, err)
		return newServiceError(opCreateBackup, reasonBackupFailed, err)
	}
	s.logger.Info(
		"cloud backup stored",
		zap.String("operation", opCreateBackup),
		zap.Int("notes", len(document.Notes)),
		zap.Int("users", len(document.Users)),
	)
	return nil
}

// RestoreCloudBackup applies the document held by the backup target like ImportBackup does.
func (s *Service) RestoreCloudBackup(ctx context.Context) (SyncResult, error) {
	if s.backup == nil {
		return SyncResult{}, newServiceError(opRestoreBackup, reasonMissingBackup, ErrBackupNotConfigured)
	}
	raw, err := s.backup.Fetch(ctx)
	if err != nil {
		s.logError(opRestoreBackup, reasonBackupFailed, err)
		return SyncResult{}, newServiceError(opRestoreBackup, reasonBackupFailed, err)
	}
	return s.applyBackup(ctx, opRestoreBackup, raw)
}

func (s *Service) backupDocument(ctx context.Context, operation string) (remote.BackupDocument, error) {
	snapshot, err := s.GetPdfMap(ctx)
	if err != nil {
		return remote.BackupDocument{}, err
	}
	users, err := s.cache.Users()
	if err != nil {
		s.logError(operation, reasonCacheReadFailed, err)
		return remote.BackupDocument{}, newServiceError(operation, reasonCacheReadFailed, err)
	}
	return remote.BackupDocument{
		App:   remote.BackupApp,
		Notes: snapshot.Notes,
		Users: users,
	}, nil
}

func (s *Service) applyBackup(ctx context.Context, operation string, raw any) (SyncResult, error) {
	object, ok := raw.(map[string]any)
	if !ok {
		return SyncResult{}, newServiceError(operation, reasonInvalidFormat, ErrFormat)
	}
	notesRaw, hasNotes := object["notes"]
	if !hasNotes || notesRaw == nil {
		notesRaw, hasNotes = object["chapters"]
	}
	if !hasNotes || notesRaw == nil {
		return SyncResult{}, newServiceError(operation, reasonInvalidFormat, ErrFormat)
	}

	imported := s.sanitizer.Notes(notesRaw)
	users := s.sanitizer.Users(object["users"])

	for _, chapter := range imported.Chapters() {
		if err := s.store.Put(ctx, chapter, imported[chapter]); err != nil {
			s.logError(operation, reasonLocalWriteFailed, err, zap.String("chapter", chapter))
			return SyncResult{}, newServiceError(operation, reasonLocalWriteFailed, err)
		}
	}
	if err := s.cache.SetNotes(imported); err != nil {
		s.logError(operation, reasonCacheWriteFailed, err)
		return SyncResult{}, newServiceError(operation, reasonCacheWriteFailed, err)
	}
	if err := s.cache.SetUsers(users); err != nil {
		s.logError(operation, reasonCacheWriteFailed, err)
		return SyncResult{}, newServiceError(operation, reasonCacheWriteFailed, err)
	}

	result := s.updateCloud(ctx, operation, func(state *notes.CloudState) {
		state.Notes = notes.Merge(imported, state.Notes, notes.PreferLocal)
		if len(users) > 0 {
			state.Users = users
		}
	})
	s.logger.Info(
		"backup applied",
		zap.String("operation", operation),
		zap.Int("notes", len(imported)),
		zap.Int("users", len(users)),
		zap.Bool("cloud_synced", result.CloudSynced),
	)
	return result, nil
}
