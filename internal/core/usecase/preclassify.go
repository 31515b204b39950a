package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
)

// PreClassifyService attaches the machine classification to an ingested
// document: extract the stored PDF's text, ask the model for a label and
// confidence, write both back. The document stays in REVIEW: the human
// queue is the authority on classification.
type PreClassifyService struct {
	store      ports.DocumentStore
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	logger     *slog.Logger
}

func NewPreClassifyService(
	store ports.DocumentStore,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	logger *slog.Logger,
) *PreClassifyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreClassifyService{
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		logger:     logger,
	}
}

func (s *PreClassifyService) ProcessByID(ctx context.Context, documentID string) error {
	rec, err := s.store.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if rec.Stage != domain.StageReview {
		// Already advanced past review; a replayed event has nothing to do.
		s.logger.Info("preclassify_skipped",
			"document_id", documentID, "stage", string(rec.Stage))
		return nil
	}

	text, err := s.extractor.Extract(ctx, rec)
	if err != nil {
		return fmt.Errorf("extract document text: %w", err)
	}

	label, score, err := s.classifier.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify document: %w", err)
	}

	err = s.store.SaveMachineClassification(ctx, documentID, label, score)
	if domain.IsKind(err, domain.ErrConcurrentModification) {
		// A reviewer got there first; their decision stands.
		s.logger.Info("preclassify_lost_race", "document_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save machine classification: %w", err)
	}

	s.logger.Info("document_preclassified",
		"document_id", documentID, "label", string(label), "score", score)
	return nil
}
