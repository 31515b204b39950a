package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
)

// ReviewService owns the review sessions. Each session holds a private
// queue of documents in REVIEW stage; the queue is discarded when the
// session ends and is never shared across sessions.
type ReviewService struct {
	store  ports.DocumentStore
	blobs  ports.BlobStore
	bus    ports.EventBus
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*reviewSession
}

func NewReviewService(
	store ports.DocumentStore,
	blobs ports.BlobStore,
	bus ports.EventBus,
	logger *slog.Logger,
) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		store:    store,
		blobs:    blobs,
		bus:      bus,
		logger:   logger,
		sessions: make(map[string]*reviewSession),
	}
}

// StartSession loads every record in REVIEW stage, resolves a displayable
// blob locator per record and initializes the cursor at 0. On scan failure
// no session is created; nothing is ever left partially populated.
func (s *ReviewService) StartSession(ctx context.Context) (string, int, error) {
	records, err := s.store.ScanByStage(ctx, domain.StageReview)
	if err != nil {
		return "", 0, domain.WrapError(domain.ErrFetch, "load review queue", err)
	}

	items := make([]domain.ReviewItem, 0, len(records))
	for _, rec := range records {
		url, err := s.blobs.SignedURL(ctx, rec.DocumentID)
		if err != nil {
			return "", 0, domain.WrapError(domain.ErrFetch, "resolve blob locator", err)
		}
		items = append(items, domain.ReviewItem{Record: rec, BlobURL: url})
	}

	session := &reviewSession{
		items:   items,
		pending: domain.ClassNotSelected,
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Info("review_session_started", "session_id", id, "queue_size", len(items))
	return id, len(items), nil
}

func (s *ReviewService) EndSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *ReviewService) Current(sessionID string) (domain.ReviewItem, domain.Classification, int, int, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.ReviewItem{}, "", 0, 0, err
	}
	return session.current()
}

func (s *ReviewService) Advance(sessionID string, dir domain.Direction) (domain.ReviewItem, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.ReviewItem{}, err
	}
	return session.advance(dir)
}

func (s *ReviewService) SetPendingDecision(sessionID string, decision domain.Classification) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return session.setPendingDecision(decision)
}

// Classify commits a reviewer decision for the document at the cursor.
// The local queue mutates only after the conditional store update
// succeeds: at most one local removal per confirmed remote mutation.
func (s *ReviewService) Classify(ctx context.Context, sessionID, documentID string, decision domain.Classification) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}

	next, err := session.classify(ctx, s.store, documentID, decision)
	if err != nil {
		return err
	}

	if s.bus != nil {
		if err := s.bus.PublishDocumentStaged(ctx, documentID, next); err != nil {
			// The decision is already committed; downstream catches up on
			// its own schedule.
			s.logger.Warn("stage_event_publish_failed",
				"document_id", documentID, "stage", string(next), "error", err)
		}
	}

	s.logger.Info("document_classified",
		"session_id", sessionID,
		"document_id", documentID,
		"decision", string(decision),
		"stage", string(next),
	)
	return nil
}

func (s *ReviewService) session(sessionID string) (*reviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// reviewSession is the queue plus its cursor and the reviewer's pending
// (not yet committed) decision. The mutex covers every read and mutation:
// one session may still receive concurrent HTTP calls.
type reviewSession struct {
	mu      sync.Mutex
	items   []domain.ReviewItem
	cursor  int
	pending domain.Classification
}

func (q *reviewSession) current() (domain.ReviewItem, domain.Classification, int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.ReviewItem{}, domain.ClassNotSelected, 0, 0, domain.ErrEmptyQueue
	}
	return q.items[q.cursor], q.pending, q.cursor, len(q.items), nil
}

func (q *reviewSession) advance(dir domain.Direction) (domain.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.ReviewItem{}, domain.ErrEmptyQueue
	}

	next := q.cursor
	switch dir {
	case domain.DirectionNext:
		next++
	case domain.DirectionPrevious:
		next--
	default:
		return domain.ReviewItem{}, domain.WrapError(domain.ErrInvalidArgument, "advance",
			fmt.Errorf("unknown direction %q", dir))
	}

	// Moves past either boundary are no-ops, not errors.
	if next >= 0 && next < len(q.items) {
		q.setCursor(next)
	}
	return q.items[q.cursor], nil
}

func (q *reviewSession) setPendingDecision(decision domain.Classification) error {
	if decision != domain.ClassNotSelected && !decision.IsDecision() {
		return domain.WrapError(domain.ErrInvalidArgument, "set pending decision",
			fmt.Errorf("%q is not selectable", decision))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.ErrEmptyQueue
	}
	q.pending = decision
	return nil
}

func (q *reviewSession) classify(
	ctx context.Context,
	store ports.DocumentStore,
	documentID string,
	decision domain.Classification,
) (domain.Stage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", domain.ErrEmptyQueue
	}
	if q.items[q.cursor].Record.DocumentID != documentID {
		return "", domain.WrapError(domain.ErrStaleTarget, "classify",
			fmt.Errorf("document %s is not at the cursor", documentID))
	}

	next, err := domain.ResolveStage(decision)
	if err != nil {
		return "", err
	}

	// Reviewer confirmation is authoritative: score is pinned to 1.
	if err := store.AdvanceStage(ctx, documentID, decision, 1, next); err != nil {
		return "", err
	}

	q.removeAt(q.cursor)
	return next, nil
}

// removeAt drops one entry and recomputes the cursor: clamped to the new
// last index, or back to 0 when the queue empties. Callers hold the lock.
func (q *reviewSession) removeAt(index int) {
	q.items = append(q.items[:index], q.items[index+1:]...)
	if len(q.items) == 0 {
		q.setCursor(0)
		return
	}
	if q.cursor > len(q.items)-1 {
		q.setCursor(len(q.items) - 1)
		return
	}
	// Same index, different document under the cursor.
	q.resetPending()
}

// setCursor is the single place the cursor moves; landing on a different
// document always resets the pending decision to the unset sentinel.
func (q *reviewSession) setCursor(index int) {
	if index != q.cursor {
		q.cursor = index
	}
	q.resetPending()
}

func (q *reviewSession) resetPending() {
	q.pending = domain.ClassNotSelected
}
