package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
)

const defaultJoinConcurrency = 8

// BinderService reconstructs transaction bundles: every INVOICE record is
// an anchor, joined by purchase-order number to the rest of the store.
type BinderService struct {
	store  ports.DocumentStore
	blobs  ports.BlobStore
	logger *slog.Logger

	joinConcurrency int

	mu       sync.Mutex
	sessions map[string]*binderSession
}

func NewBinderService(
	store ports.DocumentStore,
	blobs ports.BlobStore,
	logger *slog.Logger,
	joinConcurrency int,
) *BinderService {
	if logger == nil {
		logger = slog.Default()
	}
	if joinConcurrency <= 0 {
		joinConcurrency = defaultJoinConcurrency
	}
	return &BinderService{
		store:           store,
		blobs:           blobs,
		logger:          logger,
		joinConcurrency: joinConcurrency,
		sessions:        make(map[string]*binderSession),
	}
}

// StartSession builds the bundle list and returns a session over it, with
// the count of per-anchor joins that failed and degraded to an empty
// related list.
func (s *BinderService) StartSession(ctx context.Context) (string, int, int, error) {
	bundles, failedJoins, err := s.buildBundles(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	session := &binderSession{bundles: bundles}
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Info("binder_session_started",
		"session_id", id, "bundles", len(bundles), "failed_joins", failedJoins)
	return id, len(bundles), failedJoins, nil
}

// buildBundles scans the invoice anchors, then fans the per-anchor
// related-document joins out concurrently and stitches the results back
// in anchor-scan order. A failed join degrades that one bundle to an
// empty related list; it never aborts the batch. Only the anchor scan
// itself is fatal.
func (s *BinderService) buildBundles(ctx context.Context) ([]domain.Bundle, int, error) {
	anchors, err := s.store.ScanByClassification(ctx, domain.ClassInvoice)
	if err != nil {
		return nil, 0, domain.WrapError(domain.ErrFetch, "scan invoice anchors", err)
	}

	related := make([][]domain.Record, len(anchors))
	var failedJoins int
	var failedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.joinConcurrency)

	for i, anchor := range anchors {
		if !anchor.HasPONumber() {
			// Absent business key is a first-class state: no fetch is
			// issued, the invoice stands alone.
			continue
		}
		g.Go(func() error {
			docs, err := s.store.ScanByPONumber(gctx, anchor.PONumber)
			if err != nil {
				s.logger.Warn("related_documents_fetch_failed",
					"invoice_id", anchor.DocumentID,
					"po_number", anchor.PONumber,
					"error", err,
				)
				failedMu.Lock()
				failedJoins++
				failedMu.Unlock()
				return nil
			}
			related[i] = docs
			return nil
		})
	}
	// Join goroutines swallow their own failures, so Wait only reflects
	// context cancellation.
	if err := g.Wait(); err != nil {
		return nil, 0, domain.WrapError(domain.ErrFetch, "join related documents", err)
	}

	bundles := make([]domain.Bundle, 0, len(anchors))
	for i, anchor := range anchors {
		bundles = append(bundles, domain.NewBundle(anchor, related[i]))
	}
	return bundles, failedJoins, nil
}

func (s *BinderService) EndSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *BinderService) Current(sessionID string) (domain.Bundle, int, int, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Bundle{}, 0, 0, err
	}
	return session.current()
}

func (s *BinderService) Advance(sessionID string, dir domain.Direction) (domain.Bundle, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Bundle{}, err
	}
	return session.advance(dir)
}

// SelectByType resolves the document of the given type within the current
// bundle, along with a fresh signed locator for display. A miss reports
// found=false with no error.
func (s *BinderService) SelectByType(ctx context.Context, sessionID string, docType domain.Classification) (domain.Record, string, bool, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Record{}, "", false, err
	}

	bundle, _, _, err := session.current()
	if err != nil {
		return domain.Record{}, "", false, err
	}

	rec, ok := bundle.SelectByType(docType)
	if !ok {
		return domain.Record{}, "", false, nil
	}

	url, err := s.blobs.SignedURL(ctx, rec.DocumentID)
	if err != nil {
		return domain.Record{}, "", false, domain.WrapError(domain.ErrFetch, "resolve blob locator", err)
	}
	return rec, url, true, nil
}

func (s *BinderService) session(sessionID string) (*binderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// binderSession navigates the bundle list with the same cursor contract
// as the review queue: clamped, boundary moves are no-ops.
type binderSession struct {
	mu      sync.Mutex
	bundles []domain.Bundle
	cursor  int
}

func (b *binderSession) current() (domain.Bundle, int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bundles) == 0 {
		return domain.Bundle{}, 0, 0, domain.ErrEmptyQueue
	}
	return b.bundles[b.cursor], b.cursor, len(b.bundles), nil
}

func (b *binderSession) advance(dir domain.Direction) (domain.Bundle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bundles) == 0 {
		return domain.Bundle{}, domain.ErrEmptyQueue
	}

	next := b.cursor
	switch dir {
	case domain.DirectionNext:
		next++
	case domain.DirectionPrevious:
		next--
	default:
		return domain.Bundle{}, domain.WrapError(domain.ErrInvalidArgument, "advance",
			fmt.Errorf("unknown direction %q", dir))
	}

	if next >= 0 && next < len(b.bundles) {
		b.cursor = next
	}
	return b.bundles[b.cursor], nil
}

func (b *binderSession) snapshot() []domain.Bundle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Bundle, len(b.bundles))
	copy(out, b.bundles)
	return out
}
