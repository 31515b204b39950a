package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
)

// IngestService registers a newly arrived document: blob first, then the
// record at REVIEW stage, then the ingest event for the pre-classifier.
type IngestService struct {
	store ports.DocumentStore
	blobs ports.BlobStore
	bus   ports.EventBus
}

func NewIngestService(
	store ports.DocumentStore,
	blobs ports.BlobStore,
	bus ports.EventBus,
) *IngestService {
	return &IngestService{
		store: store,
		blobs: blobs,
		bus:   bus,
	}
}

func (s *IngestService) Ingest(ctx context.Context, filename string, body io.Reader) (*domain.Record, error) {
	id := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := s.blobs.Save(ctx, id, body); err != nil {
		return nil, fmt.Errorf("save document blob: %w", err)
	}

	rec := &domain.Record{
		DocumentID:     id,
		Classification: domain.ClassUnclassified,
		Score:          0,
		Stage:          domain.StageReview,
		ReceivedAt:     now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := s.bus.PublishDocumentIngested(ctx, rec.DocumentID); err != nil {
		return nil, fmt.Errorf("publish ingest event: %w", err)
	}

	return rec, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}
