package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

type advanceCall struct {
	id       string
	decision domain.Classification
	score    float64
	next     domain.Stage
}

// storeFake is an in-memory DocumentStore with scriptable failures.
type storeFake struct {
	mu      sync.Mutex
	records []domain.Record

	scanStageErr error
	scanClassErr error
	// poNumber -> error for that join
	scanPOErr  map[string]error
	advanceErr error
	saveErr    error

	advanceCalls []advanceCall
	poScans      []string
}

func (f *storeFake) Create(_ context.Context, rec *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *rec)
	return nil
}

func (f *storeFake) GetByID(_ context.Context, id string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.DocumentID == id {
			copyRec := rec
			return &copyRec, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (f *storeFake) ScanByStage(_ context.Context, stage domain.Stage) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanStageErr != nil {
		return nil, f.scanStageErr
	}
	var out []domain.Record
	for _, rec := range f.records {
		if rec.Stage == stage {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *storeFake) ScanByClassification(_ context.Context, cls domain.Classification) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanClassErr != nil {
		return nil, f.scanClassErr
	}
	var out []domain.Record
	for _, rec := range f.records {
		if rec.Classification == cls {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *storeFake) ScanByPONumber(_ context.Context, poNumber string) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poScans = append(f.poScans, poNumber)
	if err, ok := f.scanPOErr[poNumber]; ok {
		return nil, err
	}
	var out []domain.Record
	for _, rec := range f.records {
		if rec.PONumber == poNumber {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *storeFake) AdvanceStage(_ context.Context, id string, decision domain.Classification, score float64, next domain.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.advanceCalls = append(f.advanceCalls, advanceCall{id: id, decision: decision, score: score, next: next})
	for i := range f.records {
		if f.records[i].DocumentID == id {
			f.records[i].Classification = decision
			f.records[i].Score = score
			f.records[i].Stage = next
		}
	}
	return nil
}

func (f *storeFake) SaveMachineClassification(_ context.Context, id string, cls domain.Classification, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for i := range f.records {
		if f.records[i].DocumentID == id {
			f.records[i].Classification = cls
			f.records[i].Score = score
		}
	}
	return nil
}

type blobFake struct {
	signErr error
}

func (f *blobFake) Save(context.Context, string, io.Reader) error { return nil }

func (f *blobFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *blobFake) SignedURL(_ context.Context, key string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return fmt.Sprintf("https://blobs.local/%s?sig=test", key), nil
}

type busFake struct {
	mu         sync.Mutex
	ingested   []string
	staged     []string
	publishErr error
}

func (f *busFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.ingested = append(f.ingested, documentID)
	return nil
}

func (f *busFake) PublishDocumentStaged(_ context.Context, documentID string, stage domain.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.staged = append(f.staged, fmt.Sprintf("%s:%s", documentID, stage))
	return nil
}

func (f *busFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func reviewRecord(id string) domain.Record {
	return domain.Record{
		DocumentID:     id,
		Classification: domain.ClassUnclassified,
		Stage:          domain.StageReview,
	}
}
