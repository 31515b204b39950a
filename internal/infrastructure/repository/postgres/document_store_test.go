package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*DocumentStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentStore{db: db}, mock, func() { _ = db.Close() }
}

func recordRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"document_id", "classification", "score", "stage", "po_number", "received_at", "updated_at",
	})
	now := time.Now().UTC()
	for _, id := range ids {
		rows.AddRow(id, "UNCLASSIFIED", 0.0, "REVIEW", "", now, now)
	}
	return rows
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT document_id, classification").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanByStagePreservesRowOrder(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT document_id, classification").
		WithArgs("REVIEW").
		WillReturnRows(recordRows("d1", "d2", "d3"))

	records, err := store.ScanByStage(context.Background(), domain.StageReview)
	if err != nil {
		t.Fatalf("ScanByStage() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count = %d, want 3", len(records))
	}
	for i, want := range []string{"d1", "d2", "d3"} {
		if records[i].DocumentID != want {
			t.Fatalf("records[%d] = %s, want %s", i, records[i].DocumentID, want)
		}
	}
}

func TestAdvanceStageAppliesConditionalUpdate(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "NC", 1.0, "COMPLETED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AdvanceStage(context.Background(), "d1", domain.ClassNotAP, 1, domain.StageCompleted)
	if err != nil {
		t.Fatalf("AdvanceStage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceStageSurfacesConcurrentModification(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "INVOICE", 1.0, "DATA_EXTRACT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The record still exists, so zero rows means the stage precondition
	// no longer held.
	rows := recordRows("d1")
	mock.ExpectQuery("SELECT document_id, classification").
		WithArgs("d1").
		WillReturnRows(rows)

	err := store.AdvanceStage(context.Background(), "d1", domain.ClassInvoice, 1, domain.StageDataExtract)
	if !domain.IsKind(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestAdvanceStageReportsMissingDocument(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("gone", "INVOICE", 1.0, "DATA_EXTRACT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT document_id, classification").
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	err := store.AdvanceStage(context.Background(), "gone", domain.ClassInvoice, 1, domain.StageDataExtract)
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSaveMachineClassificationKeepsStagePrecondition(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "INVOICE", 0.92, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveMachineClassification(context.Background(), "d1", domain.ClassInvoice, 0.92)
	if err != nil {
		t.Fatalf("SaveMachineClassification() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
