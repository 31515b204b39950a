package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Record) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type classifierFake struct {
	label domain.Classification
	score float64
	err   error
	calls int
}

func (f *classifierFake) Classify(context.Context, string) (domain.Classification, float64, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.label, f.score, nil
}

func TestProcessByIDWritesMachineClassification(t *testing.T) {
	store := &storeFake{records: []domain.Record{reviewRecord("d1")}}
	svc := NewPreClassifyService(
		store,
		&extractorFake{text: "invoice no 42"},
		&classifierFake{label: domain.ClassInvoice, score: 0.87},
		nil,
	)

	if err := svc.ProcessByID(context.Background(), "d1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	rec, err := store.GetByID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.Classification != domain.ClassInvoice || rec.Score != 0.87 {
		t.Fatalf("record = %s/%v, want INVOICE/0.87", rec.Classification, rec.Score)
	}
	if rec.Stage != domain.StageReview {
		t.Fatalf("stage = %s; pre-classification must not advance the stage", rec.Stage)
	}
}

func TestProcessByIDSkipsDocumentsPastReview(t *testing.T) {
	rec := reviewRecord("d1")
	rec.Stage = domain.StageCompleted
	store := &storeFake{records: []domain.Record{rec}}
	classifier := &classifierFake{label: domain.ClassInvoice}
	svc := NewPreClassifyService(store, &extractorFake{text: "x"}, classifier, nil)

	if err := svc.ProcessByID(context.Background(), "d1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if classifier.calls != 0 {
		t.Fatalf("classifier called for a document past review")
	}
}

func TestProcessByIDTreatsLostRaceAsSuccess(t *testing.T) {
	store := &storeFake{
		records: []domain.Record{reviewRecord("d1")},
		saveErr: domain.ErrConcurrentModification,
	}
	svc := NewPreClassifyService(
		store,
		&extractorFake{text: "x"},
		&classifierFake{label: domain.ClassInvoice, score: 0.5},
		nil,
	)

	if err := svc.ProcessByID(context.Background(), "d1"); err != nil {
		t.Fatalf("ProcessByID() error = %v, want nil for a lost race", err)
	}
}

func TestProcessByIDPropagatesClassifierFailure(t *testing.T) {
	store := &storeFake{records: []domain.Record{reviewRecord("d1")}}
	svc := NewPreClassifyService(
		store,
		&extractorFake{text: "x"},
		&classifierFake{err: errors.New("model down")},
		nil,
	)

	if err := svc.ProcessByID(context.Background(), "d1"); err == nil {
		t.Fatalf("expected error")
	}
}
