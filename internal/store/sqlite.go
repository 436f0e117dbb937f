package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Ensure SQLiteStore implements the interface.
var _ DocumentStore = (*SQLiteStore)(nil)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	file_hash         TEXT NOT NULL DEFAULT '',
	original_content  TEXT NOT NULL DEFAULT '',
	altered_content   TEXT NOT NULL DEFAULT '',
	original_path     TEXT NOT NULL DEFAULT '',
	altered_path      TEXT NOT NULL DEFAULT '',
	alt_text_json     TEXT NOT NULL DEFAULT '',
	report_json       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	pipeline_stage    TEXT NOT NULL,
	compliance_label  TEXT NOT NULL,
	label_source      TEXT NOT NULL DEFAULT '',
	error_details     TEXT NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash);
`

const documentColumns = `id, original_filename, file_hash, original_content, altered_content,
	original_path, altered_path, alt_text_json, report_json, status, pipeline_stage,
	compliance_label, label_source, error_details, page_count, created_at, updated_at`

// SQLiteStore is a single-file DocumentStore for local deployments.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) documents.db in dataDir.
// An empty dataDir opens a private in-memory database.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dsn := ":memory:"
	dbPath := ""
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "documents.db")
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writes and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path, empty for an in-memory database.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Create(ctx context.Context, doc models.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		documentArgs(doc)...)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, doc models.Document) error {
	args := documentArgs(doc)
	// id moves to the WHERE clause.
	args = append(args[1:], doc.ID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			original_filename = ?, file_hash = ?, original_content = ?, altered_content = ?,
			original_path = ?, altered_path = ?, alt_text_json = ?, report_json = ?,
			status = ?, pipeline_stage = ?, compliance_label = ?, label_source = ?,
			error_details = ?, page_count = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document %s: %w", doc.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, models.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("getting document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLiteStore) FindAll(ctx context.Context, pred Predicate) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

func documentArgs(doc models.Document) []any {
	return []any{
		doc.ID, doc.OriginalFilename, doc.FileHash, doc.OriginalContent, doc.AlteredContent,
		doc.OriginalPath, doc.AlteredPath, doc.AltTextJSON, doc.ReportJSON,
		string(doc.Status), string(doc.PipelineStage), string(doc.ComplianceLabel), string(doc.LabelSource),
		doc.ErrorDetails, doc.PageCount,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (models.Document, error) {
	var (
		doc                          models.Document
		status, stage, label, source string
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&doc.ID, &doc.OriginalFilename, &doc.FileHash, &doc.OriginalContent, &doc.AlteredContent,
		&doc.OriginalPath, &doc.AlteredPath, &doc.AltTextJSON, &doc.ReportJSON,
		&status, &stage, &label, &source,
		&doc.ErrorDetails, &doc.PageCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return models.Document{}, err
	}
	doc.Status = models.Status(status)
	doc.PipelineStage = models.PipelineStage(stage)
	doc.ComplianceLabel = models.ComplianceLabel(label)
	doc.LabelSource = models.LabelSource(source)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return doc, nil
}

// Timestamps are stored as fixed-width UTC RFC 3339 so lexical order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
