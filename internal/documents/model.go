package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/notenest/internal/database"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidDocumentBody indicates that a document body is not a single JSON value.
	ErrInvalidDocumentBody = errors.New("documents: invalid document body")
	// ErrDocumentNotFound indicates that no document is stored under the identifier.
	ErrDocumentNotFound = errors.New("documents: document not found")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	if strings.ContainsAny(trimmed, "/?#") {
		return "", fmt.Errorf("%w: contains reserved characters", ErrInvalidDocumentID)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// DocumentBody is a validated JSON payload.
type DocumentBody string

// NewDocumentBody validates raw bytes as one JSON value.
func NewDocumentBody(raw []byte) (DocumentBody, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentBody)
	}
	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("%w: malformed json", ErrInvalidDocumentBody)
	}
	return DocumentBody(trimmed), nil
}

// String returns the JSON text.
func (body DocumentBody) String() string {
	return string(body)
}

// Document models one stored JSON blob. Every PUT replaces BodyJSON wholesale.
type Document struct {
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	BodyJSON         string `gorm:"column:body_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_documents_updated"`
	Revision         int64  `gorm:"column:revision;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "json_documents"
}

// Schema lists the tables of the document server database.
func Schema() database.Schema {
	return database.Schema{Models: []any{&Document{}}}
}
