package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
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
	opServiceNew      = "documents.service.new"
	opCreateDocument  = "documents.create"
	opGetDocument     = "documents.get"
	opReplaceDocument = "documents.replace"
	opDeleteDocument  = "documents.delete"

	fieldDocumentID = "document_id"
	queryDocumentID = fieldDocumentID + " = ?"

	reasonMissingDatabase   = "missing_database"
	reasonMissingIDProvider = "missing_id_provider"
	reasonIDGeneration      = "id_generation_failed"
	reasonNotFound          = "not_found"
	reasonQueryFailed       = "query_failed"
	reasonInsertFailed      = "insert_failed"
	reasonSaveFailed        = "save_failed"
	reasonDeleteFailed      = "delete_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service stores whole JSON documents addressed by opaque identifiers.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create stores a new document under a freshly issued identifier.
func (s *Service) Create(ctx context.Context, body DocumentBody) (Document, error) {
	if s.db == nil {
		s.logError(opCreateDocument, reasonMissingDatabase, errMissingDatabase)
		return Document{}, newServiceError(opCreateDocument, reasonMissingDatabase, errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(opCreateDocument, reasonMissingIDProvider, errMissingIDProvider)
		return Document{}, newServiceError(opCreateDocument, reasonMissingIDProvider, errMissingIDProvider)
	}

	documentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateDocument, reasonIDGeneration, err)
		return Document{}, newServiceError(opCreateDocument, reasonIDGeneration, err)
	}

	nowSeconds := s.clock().UTC().Unix()
	document := Document{
		DocumentID:       documentID.String(),
		BodyJSON:         body.String(),
		CreatedAtSeconds: nowSeconds,
		UpdatedAtSeconds: nowSeconds,
		Revision:         1,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opCreateDocument, reasonInsertFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return Document{}, newServiceError(opCreateDocument, reasonInsertFailed, err)
	}
	return document, nil
}

// Get returns the stored document or an error matching ErrDocumentNotFound.
func (s *Service) Get(ctx context.Context, documentID DocumentID) (Document, error) {
	if s.db == nil {
		s.logError(opGetDocument, reasonMissingDatabase, errMissingDatabase)
		return Document{}, newServiceError(opGetDocument, reasonMissingDatabase, errMissingDatabase)
	}

	var document Document
	err := s.db.WithContext(ctx).Where(queryDocumentID, documentID.String()).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGetDocument, reasonNotFound, ErrDocumentNotFound)
	}
	if err != nil {
		s.logError(opGetDocument, reasonQueryFailed, err, zap.String(fieldDocumentID, documentID.String()))
		return Document{}, newServiceError(opGetDocument, reasonQueryFailed, err)
	}
	return document, nil
}

// Replace overwrites the document body, creating the document when it does not exist yet.
// The boolean result reports whether a new document was created.
func (s *Service) Replace(ctx context.Context, documentID DocumentID, body DocumentBody) (Document, bool, error) {
	if s.db == nil {
		s.logError(opReplaceDocument, reasonMissingDatabase, errMissingDatabase)
		return Document{}, false, newServiceError(opReplaceDocument, reasonMissingDatabase, errMissingDatabase)
	}

	var stored Document
	created := false
	transactionError := s.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		nowSeconds := s.clock().UTC().Unix()
		err := transaction.Where(queryDocumentID, documentID.String()).Take(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			stored = Document{
				DocumentID:       documentID.String(),
				BodyJSON:         body.String(),
				CreatedAtSeconds: nowSeconds,
				UpdatedAtSeconds: nowSeconds,
				Revision:         1,
			}
			if createErr := transaction.Create(&stored).Error; createErr != nil {
				s.logError(opReplaceDocument, reasonInsertFailed, createErr, zap.String(fieldDocumentID, documentID.String()))
				return newServiceError(opReplaceDocument, reasonInsertFailed, createErr)
			}
			return nil
		}
		if err != nil {
			s.logError(opReplaceDocument, reasonQueryFailed, err, zap.String(fieldDocumentID, documentID.String()))
			return newServiceError(opReplaceDocument, reasonQueryFailed, err)
		}

		stored.BodyJSON = body.String()
		stored.UpdatedAtSeconds = nowSeconds
		stored.Revision++
		if saveErr := transaction.Save(&stored).Error; saveErr != nil {
			s.logError(opReplaceDocument, reasonSaveFailed, saveErr, zap.String(fieldDocumentID, documentID.String()))
			return newServiceError(opReplaceDocument, reasonSaveFailed, saveErr)
		}
		return nil
	})
	if transactionError != nil {
		return Document{}, false, transactionError
	}
	return stored, created, nil
}

// Delete removes the document or returns an error matching ErrDocumentNotFound.
func (s *Service) Delete(ctx context.Context, documentID DocumentID) error {
	if s.db == nil {
		s.logError(opDeleteDocument, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDeleteDocument, reasonMissingDatabase, errMissingDatabase)
	}

	result := s.db.WithContext(ctx).Where(queryDocumentID, documentID.String()).Delete(&Document{})
	if result.Error != nil {
		s.logError(opDeleteDocument, reasonDeleteFailed, result.Error, zap.String(fieldDocumentID, documentID.String()))
		return newServiceError(opDeleteDocument, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteDocument, reasonNotFound, ErrDocumentNotFound)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("documents service error", attrs...)
}
