// Package notebook coordinates the three storage tiers of a device: the durable local store,
// the local cache and the shared cloud document. Local writes always land first; the cloud is
// updated best-effort and its failures are reported, never raised.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"go.uber.org/zap"
)

var (
	errMissingLocalStore = errors.New("local store is required")
	errMissingCache      = errors.New("cache is required")
	errMissingRemote     = errors.New("remote client is required")
	errMissingSanitizer  = errors.New("sanitizer is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "operation.reason" code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "notebook.service.new"
	opGetPdfMap     = "notebook.get_pdf_map"
	opSavePdf       = "notebook.save_pdf"
	opDeletePdf     = "notebook.delete_pdf"
	opRegisterLogin = "notebook.register_login"
	opListUsers     = "notebook.list_users"
	opExportBackup  = "notebook.export_backup"
	opImportBackup  = "notebook.import_backup"
	opCreateBackup  = "notebook.create_cloud_backup"
	opRestoreBackup = "notebook.restore_cloud_backup"
	opWatch         = "notebook.watch"

	reasonMissingLocalStore = "missing_local_store"
	reasonMissingCache      = "missing_cache"
	reasonMissingRemote     = "missing_remote"
	reasonMissingSanitizer  = "missing_sanitizer"
	reasonMissingBackup     = "missing_backup_target"
	reasonInvalidChapter    = "invalid_chapter"
	reasonLocalReadFailed   = "local_read_failed"
	reasonLocalWriteFailed  = "local_write_failed"
	reasonCacheReadFailed   = "cache_read_failed"
	reasonCacheWriteFailed  = "cache_write_failed"
	reasonCloudLoadFailed   = "cloud_load_failed"
	reasonCloudSaveFailed   = "cloud_save_failed"
	reasonInvalidFormat     = "invalid_format"
	reasonEncodeFailed      = "encode_failed"
	reasonBackupFailed      = "backup_failed"
	reasonMissingChanges    = "missing_change_stream"
	reasonStreamFailed      = "stream_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// LocalStore is the durable per-device note store.
type LocalStore interface {
	GetAll(ctx context.Context) (notes.NoteMap, error)
	Put(ctx context.Context, chapter string, note notes.Note) error
	Delete(ctx context.Context, chapter string) error
}

// Cache keeps the last known merged notes and user list.
type Cache interface {
	Notes() (notes.NoteMap, error)
	SetNotes(noteMap notes.NoteMap) error
	Users() ([]notes.UserLogin, error)
	SetUsers(users []notes.UserLogin) error
}

// Remote reads and overwrites the shared cloud document.
type Remote interface {
	Read(ctx context.Context) (notes.CloudState, error)
	Write(ctx context.Context, state notes.CloudState) error
}

// IPResolver reports the public address recorded with each login.
type IPResolver interface {
	PublicIP(ctx context.Context) string
}

// ChangeStream notifies about new revisions of the shared document.
type ChangeStream interface {
	Watch(ctx context.Context, onChange func(remote.ChangeEvent)) error
}

// ServiceConfig wires the dependencies of Service. Backup and IPResolver are optional.
type ServiceConfig struct {
	LocalStore LocalStore
	Cache      Cache
	Remote     Remote
	Backup     remote.BackupTarget
	IPResolver IPResolver
	Changes    ChangeStream
	Sanitizer  *notes.Sanitizer
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Upload is a note submitted for a chapter. Empty optional fields get defaults.
type Upload struct {
	Filename   string
	Base64     string
	UploadedAt string
	Size       int64
}

// Login identifies a user signing in on this device.
type Login struct {
	Name  string
	Email string
}

// Snapshot is the merged notes view. Degraded is set when the cloud could not be read and the
// cache stood in for it; SyncErr then holds the cloud failure.
type Snapshot struct {
	Notes    notes.NoteMap
	Degraded bool
	SyncErr  error
}

// SyncResult reports whether the cloud write-through of a mutation succeeded.
type SyncResult struct {
	CloudSynced bool
	Err         error
}

// UserSnapshot is the usage log view, degraded to the cached list when the cloud is unreachable.
type UserSnapshot struct {
	Users    []notes.UserLogin
	Degraded bool
	SyncErr  error
}

// Service is the merge/sync orchestrator. Each call runs to completion on the caller's
// goroutine; concurrent callers are not coordinated beyond what the stores provide.
type Service struct {
	store      LocalStore
	cache      Cache
	remote     Remote
	backup     remote.BackupTarget
	ipResolver IPResolver
	changes    ChangeStream
	sanitizer  *notes.Sanitizer
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.LocalStore == nil {
		return nil, newServiceError(opServiceNew, reasonMissingLocalStore, errMissingLocalStore)
	}
	if cfg.Cache == nil {
		return nil, newServiceError(opServiceNew, reasonMissingCache, errMissingCache)
	}
	if cfg.Remote == nil {
		return nil, newServiceError(opServiceNew, reasonMissingRemote, errMissingRemote)
	}
	if cfg.Sanitizer == nil {
		return nil, newServiceError(opServiceNew, reasonMissingSanitizer, errMissingSanitizer)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.LocalStore,
		cache:      cfg.Cache,
		remote:     cfg.Remote,
		backup:     cfg.Backup,
		ipResolver: cfg.IPResolver,
		changes:    cfg.Changes,
		sanitizer:  cfg.Sanitizer,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Chapters returns the configured whitelist.
func (s *Service) Chapters() notes.ChapterSet {
	return s.sanitizer.Chapters()
}

// GetPdfMap merges the local store over the cloud notes and refreshes the cache. When the cloud
// is unreachable the local store is merged over the cached notes instead. Only local store and
// cache failures are returned as errors.
func (s *Service) GetPdfMap(ctx context.Context) (Snapshot, error) {
	local, err := s.store.GetAll(ctx)
	if err != nil {
		s.logError(opGetPdfMap, reasonLocalReadFailed, err)
		return Snapshot{}, newServiceError(opGetPdfMap, reasonLocalReadFailed, err)
	}
	local = s.sanitizer.Notes(local)

	state, syncErr := s.remote.Read(ctx)
	if syncErr == nil {
		merged := notes.Merge(local, state.Notes, notes.PreferLocal)
		if err := s.cache.SetNotes(merged); err != nil {
			s.logError(opGetPdfMap, reasonCacheWriteFailed, err)
			return Snapshot{}, newServiceError(opGetPdfMap, reasonCacheWriteFailed, err)
		}
		if err := s.cache.SetUsers(state.Users); err != nil {
			s.logError(opGetPdfMap, reasonCacheWriteFailed, err)
			return Snapshot{}, newServiceError(opGetPdfMap, reasonCacheWriteFailed, err)
		}
		return Snapshot{Notes: merged}, nil
	}

	s.logSyncFailure(opGetPdfMap, reasonCloudLoadFailed, syncErr)
	cached, err := s.cache.Notes()
	if err != nil {
		s.logError(opGetPdfMap, reasonCacheReadFailed, err)
		return Snapshot{}, newServiceError(opGetPdfMap, reasonCacheReadFailed, err)
	}
	merged := notes.Merge(local, s.sanitizer.Notes(cached), notes.PreferLocal)
	return Snapshot{Notes: merged, Degraded: true, SyncErr: syncErr}, nil
}

// SavePdf stores the note locally, then pushes it into the cloud document with a fresh
// read-modify-write, and finally caches the merged view.
func (s *Service) SavePdf(ctx context.Context, chapter string, upload Upload) (SyncResult, error) {
	chapter, err := s.sanitizer.Chapters().Validate(chapter)
	if err != nil {
		return SyncResult{}, newServiceError(opSavePdf, reasonInvalidChapter, err)
	}

	note := s.newNote(chapter, upload)
	if err := s.store.Put(ctx, chapter, note); err != nil {
		s.logError(opSavePdf, reasonLocalWriteFailed, err, zap.String("chapter", chapter))
		return SyncResult{}, newServiceError(opSavePdf, reasonLocalWriteFailed, err)
	}

	snapshot, err := s.GetPdfMap(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	merged := snapshot.Notes
	merged[chapter] = note.WithSource(notes.SourceCloud)

	result := s.updateCloud(ctx, opSavePdf, func(state *notes.CloudState) {
		state.Notes[chapter] = merged[chapter]
	})

	if err := s.cache.SetNotes(merged); err != nil {
		s.logError(opSavePdf, reasonCacheWriteFailed, err)
		return result, newServiceError(opSavePdf, reasonCacheWriteFailed, err)
	}
	return result, nil
}

// DeletePdf removes the chapter locally and from the cloud document.
func (s *Service) DeletePdf(ctx context.Context, chapter string) (SyncResult, error) {
	chapter, err := s.sanitizer.Chapters().Validate(chapter)
	if err != nil {
		return SyncResult{}, newServiceError(opDeletePdf, reasonInvalidChapter, err)
	}

	if err := s.store.Delete(ctx, chapter); err != nil {
		s.logError(opDeletePdf, reasonLocalWriteFailed, err, zap.String("chapter", chapter))
		return SyncResult{}, newServiceError(opDeletePdf, reasonLocalWriteFailed, err)
	}

	snapshot, err := s.GetPdfMap(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	merged := snapshot.Notes
	delete(merged, chapter)

	result := s.updateCloud(ctx, opDeletePdf, func(state *notes.CloudState) {
		delete(state.Notes, chapter)
	})

	if err := s.cache.SetNotes(merged); err != nil {
		s.logError(opDeletePdf, reasonCacheWriteFailed, err)
		return result, newServiceError(opDeletePdf, reasonCacheWriteFailed, err)
	}
	return result, nil
}

func (s *Service) newNote(chapter string, upload Upload) notes.Note {
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		filename = chapter + ".pdf"
	}
	uploadedAt := upload.UploadedAt
	if uploadedAt == "" {
		uploadedAt = s.now()
	}
	size := upload.Size
	if size < 0 {
		size = 0
	}
	return notes.Note{
		Filename:   filename,
		Base64:     upload.Base64,
		UploadedAt: uploadedAt,
		Size:       size,
		Source:     notes.SourceLocal,
	}
}

// updateCloud re-reads the cloud document, applies mutate and writes it back. Failures are
// logged and reported in the result.
func (s *Service) updateCloud(ctx context.Context, operation string, mutate func(state *notes.CloudState)) SyncResult {
	state, err := s.remote.Read(ctx)
	if err != nil {
		s.logSyncFailure(operation, reasonCloudLoadFailed, err)
		return SyncResult{Err: err}
	}
	if state.Notes == nil {
		state.Notes = notes.NoteMap{}
	}
	if state.Users == nil {
		state.Users = []notes.UserLogin{}
	}
	mutate(&state)
	if err := s.remote.Write(ctx, state); err != nil {
		s.logSyncFailure(operation, reasonCloudSaveFailed, err)
		return SyncResult{Err: err}
	}
	return SyncResult{CloudSynced: true}
}

func (s *Service) now() string {
	return notes.FormatTimestamp(s.clock())
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	allFields := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	if len(fields) > 0 {
		allFields = append(allFields, fields...)
	}
	s.logger.Error("notebook operation failed", allFields...)
}

func (s *Service) logSyncFailure(operation, reason string, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) && remoteErr.StatusCode != 0 {
		fields = append(fields, zap.Int("status", remoteErr.StatusCode))
	}
	s.logger.Warn("cloud sync failed", fields...)
}
