package documents

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesOrderedVersion7IDs(testContext *testing.T) {
	provider := NewUUIDProvider()

	first, err := provider.NewID()
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}

	parsed, err := uuid.Parse(first.String())
	if err != nil {
		testContext.Fatalf("expected uuid, got %q: %v", first, err)
	}
	if parsed.Version() != 7 {
		testContext.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if first == second || second.String() < first.String() {
		testContext.Fatalf("expected increasing ids, got %q then %q", first, second)
	}
}
