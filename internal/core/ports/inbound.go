package ports

import (
	"context"
	"io"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

// DocumentIngestor is the inbound contract for registering a newly
// arrived document.
type DocumentIngestor interface {
	Ingest(ctx context.Context, filename string, body io.Reader) (*domain.Record, error)
}

// DocumentPreClassifier is the inbound contract for asynchronous machine
// pre-classification of an ingested document.
type DocumentPreClassifier interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// ReviewWorkflow drives the human review queue. A session exclusively
// owns its queue; the id returned by StartSession scopes every other call.
type ReviewWorkflow interface {
	StartSession(ctx context.Context) (sessionID string, size int, err error)
	EndSession(sessionID string) error
	Current(sessionID string) (item domain.ReviewItem, pending domain.Classification, index, size int, err error)
	Advance(sessionID string, dir domain.Direction) (domain.ReviewItem, error)
	SetPendingDecision(sessionID string, decision domain.Classification) error
	Classify(ctx context.Context, sessionID, documentID string, decision domain.Classification) error
}

// BinderWorkflow drives transaction-bundle navigation.
type BinderWorkflow interface {
	StartSession(ctx context.Context) (sessionID string, bundleCount, failedJoins int, err error)
	EndSession(sessionID string) error
	Current(sessionID string) (bundle domain.Bundle, index, size int, err error)
	Advance(sessionID string, dir domain.Direction) (domain.Bundle, error)
	SelectByType(ctx context.Context, sessionID string, docType domain.Classification) (domain.Record, string, bool, error)
	Export(sessionID string, w io.Writer) error
}

// DocumentReader is the inbound read model for record metadata.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Record, error)
}
