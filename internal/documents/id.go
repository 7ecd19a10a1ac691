package documents

import (
	"fmt"

	"github.com/google/uuid"
)

// IDProvider issues identifiers for documents created without a caller-chosen id.
type IDProvider interface {
	NewID() (DocumentID, error)
}

type uuidV7Provider struct{}

// NewUUIDProvider issues UUIDv7 identifiers, so generated document ids sort by creation time.
func NewUUIDProvider() IDProvider {
	return uuidV7Provider{}
}

func (uuidV7Provider) NewID() (DocumentID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("documents: issue id: %w", err)
	}
	return NewDocumentID(value.String())
}
