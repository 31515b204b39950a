package ports

import (
	"context"
	"io"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

// DocumentStore is the record-store gateway: equality scans plus
// conditional writes. Implementations must surface a failed write
// precondition as domain.ErrConcurrentModification so engines can
// distinguish a lost race from a plain failure.
type DocumentStore interface {
	Create(ctx context.Context, rec *domain.Record) error
	GetByID(ctx context.Context, id string) (*domain.Record, error)

	ScanByStage(ctx context.Context, stage domain.Stage) ([]domain.Record, error)
	ScanByClassification(ctx context.Context, cls domain.Classification) ([]domain.Record, error)
	ScanByPONumber(ctx context.Context, poNumber string) ([]domain.Record, error)

	// AdvanceStage commits a reviewer decision: sets classification, score
	// and the next stage, but only while the record is still in REVIEW.
	AdvanceStage(ctx context.Context, id string, decision domain.Classification, score float64, next domain.Stage) error

	// SaveMachineClassification records the model's label and confidence.
	// Also conditional on REVIEW so a late worker never clobbers a human
	// decision.
	SaveMachineClassification(ctx context.Context, id string, cls domain.Classification, score float64) error
}

// BlobStore stores source documents and hands out time-limited, read-only
// locators for them.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string) (string, error)
}

// EventBus publishes/consumes document lifecycle events.
type EventBus interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	PublishDocumentStaged(ctx context.Context, documentID string, stage domain.Stage) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, rec *domain.Record) (string, error)
}

// DocumentClassifier is the external classification model. It returns a
// label and a confidence score in [0,1]; model internals live elsewhere.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, float64, error)
}
