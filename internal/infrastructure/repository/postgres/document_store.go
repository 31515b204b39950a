package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bbcollect/ap-docflow/internal/core/domain"
)

// DocumentStore is the record-store gateway over postgres. Conditional
// updates carry the stage precondition in the WHERE clause: optimistic
// concurrency, no locks.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	classification TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	stage TEXT NOT NULL,
	po_number TEXT,
	received_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_stage ON documents(stage);
CREATE INDEX IF NOT EXISTS idx_documents_classification ON documents(classification);
CREATE INDEX IF NOT EXISTS idx_documents_po_number ON documents(po_number);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const recordColumns = `document_id, classification, score, stage, COALESCE(po_number, ''), received_at, updated_at`

func (s *DocumentStore) Create(ctx context.Context, rec *domain.Record) error {
	var poNumber any
	if rec.PONumber != "" {
		poNumber = rec.PONumber
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (document_id, classification, score, stage, po_number, received_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		rec.DocumentID, string(rec.Classification), rec.Score, string(rec.Stage),
		poNumber, rec.ReceivedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM documents
WHERE document_id = $1
`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return rec, nil
}

// ScanByStage returns records in a stable order so that two loads against
// an unchanged store build identical queues.
func (s *DocumentStore) ScanByStage(ctx context.Context, stage domain.Stage) ([]domain.Record, error) {
	return s.scan(ctx, `
SELECT `+recordColumns+`
FROM documents
WHERE stage = $1
ORDER BY received_at, document_id
`, string(stage))
}

func (s *DocumentStore) ScanByClassification(ctx context.Context, cls domain.Classification) ([]domain.Record, error) {
	return s.scan(ctx, `
SELECT `+recordColumns+`
FROM documents
WHERE classification = $1
ORDER BY received_at, document_id
`, string(cls))
}

// ScanByPONumber is a case-sensitive equality join on the business key.
// PO numbers are free text from upstream extraction; whether they arrive
// normalized is unconfirmed, so no case folding here.
func (s *DocumentStore) ScanByPONumber(ctx context.Context, poNumber string) ([]domain.Record, error) {
	return s.scan(ctx, `
SELECT `+recordColumns+`
FROM documents
WHERE po_number = $1
ORDER BY received_at, document_id
`, poNumber)
}

func (s *DocumentStore) AdvanceStage(ctx context.Context, id string, decision domain.Classification, score float64, next domain.Stage) error {
	return s.conditionalUpdate(ctx, "advance stage", id, `
UPDATE documents
SET classification = $2, score = $3, stage = $4, updated_at = $5
WHERE document_id = $1 AND stage = 'REVIEW'
`, id, string(decision), score, string(next), time.Now().UTC())
}

func (s *DocumentStore) SaveMachineClassification(ctx context.Context, id string, cls domain.Classification, score float64) error {
	return s.conditionalUpdate(ctx, "save machine classification", id, `
UPDATE documents
SET classification = $2, score = $3, updated_at = $4
WHERE document_id = $1 AND stage = 'REVIEW'
`, id, string(cls), score, time.Now().UTC())
}

// conditionalUpdate distinguishes the two zero-rows cases: the record is
// gone (not found) or still there but no longer in REVIEW (lost race).
func (s *DocumentStore) conditionalUpdate(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("%s condition check: %w", op, err)
	}
	return domain.WrapError(domain.ErrConcurrentModification, op,
		fmt.Errorf("document %s is no longer in review", id))
}

func (s *DocumentStore) scan(ctx context.Context, query string, args ...any) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var classification, stage string

	err := row.Scan(
		&rec.DocumentID, &classification, &rec.Score, &stage,
		&rec.PONumber, &rec.ReceivedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Classification = domain.Classification(classification)
	rec.Stage = domain.Stage(stage)
	return &rec, nil
}
