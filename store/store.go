package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document status values.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusPartial    = "partial"
	StatusError      = "error"
)

// Document represents a row in the documents table.
type Document struct {
	ID            int64  `json:"id"`
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	Format        string `json:"format"`
	ContentHash   string `json:"content_hash"`
	Source        string `json:"source"`
	Scheme        string `json:"scheme"`
	Status        string `json:"status"`
	RunID         string `json:"run_id,omitempty"`
	SentenceCount int    `json:"sentence_count"`
	TripleCount   int    `json:"triple_count"`
	FailureCount  int    `json:"failure_count"`
	Metadata      string `json:"metadata,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Sentence represents a row in the sentences table. Error is set when the
// dependency source failed for the sentence.
type Sentence struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	EdgeCount  int    `json:"edge_count"`
	Error      string `json:"error,omitempty"`
}

// Triple represents a row in the triples table. Position is the emission
// order within the document.
type Triple struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Sentence   int    `json:"sentence"`
	Position   int    `json:"position"`
	Subject    string `json:"subject"`
	Predicate  string `json:"predicate"`
	Object     string `json:"object"`
	Kind       string `json:"kind"`
}

// Store wraps the SQLite database for all depfacts persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Document operations ---

const documentColumns = `id, path, filename, format, content_hash, source, scheme, status,
	run_id, sentence_count, triple_count, failure_count, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	d := &Document{}
	var runID, metadata sql.NullString
	if err := r.Scan(&d.ID, &d.Path, &d.Filename, &d.Format, &d.ContentHash,
		&d.Source, &d.Scheme, &d.Status, &runID,
		&d.SentenceCount, &d.TripleCount, &d.FailureCount,
		&metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.RunID = runID.String
	d.Metadata = metadata.String
	return d, nil
}

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, source, scheme, status, run_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			source = excluded.source,
			scheme = excluded.scheme,
			status = excluded.status,
			run_id = excluded.run_id,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.Source, doc.Scheme,
		doc.Status, nullString(doc.RunID), nullString(doc.Metadata))
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	// If UPSERT did an UPDATE, LastInsertId may not reflect the existing row.
	if id == 0 {
		row := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", doc.Path)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE path = ?", path))
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
}

// ListDocuments returns all documents, most recently updated first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// FinishDocument records the final status and counters of an extraction run.
func (s *Store) FinishDocument(ctx context.Context, id int64, status string, sentences, triples, failures int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, sentence_count = ?, triple_count = ?, failure_count = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, sentences, triples, failures, id)
	return err
}

// DeleteDocument removes a document with its sentences and triples.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentData(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		return err
	})
}

// DeleteDocumentData removes all sentences and triples for a document but
// keeps the document record itself.
func (s *Store) DeleteDocumentData(ctx context.Context, docID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteDocumentData(ctx, tx, docID)
	})
}

func deleteDocumentData(ctx context.Context, tx *sql.Tx, docID int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM triples WHERE document_id = ?", docID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM sentences WHERE document_id = ?", docID)
	return err
}

// --- Sentence and triple operations ---

// SaveSentence stores one sentence and the triples extracted from it in a
// single transaction.
func (s *Store) SaveSentence(ctx context.Context, sent Sentence, triples []Triple) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sentences (document_id, idx, text, edge_count, error)
			VALUES (?, ?, ?, ?, ?)`,
			sent.DocumentID, sent.Index, sent.Text, sent.EdgeCount, nullString(sent.Error)); err != nil {
			return fmt.Errorf("inserting sentence %d: %w", sent.Index, err)
		}

		if len(triples) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO triples (document_id, sentence_idx, position, subject, predicate, object, kind)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range triples {
			if _, err := stmt.ExecContext(ctx, t.DocumentID, t.Sentence, t.Position,
				t.Subject, t.Predicate, t.Object, t.Kind); err != nil {
				return fmt.Errorf("inserting triple: %w", err)
			}
		}
		return nil
	})
}

// SentencesByDocument returns a document's sentences in index order.
func (s *Store) SentencesByDocument(ctx context.Context, docID int64) ([]Sentence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, idx, text, edge_count, error
		FROM sentences WHERE document_id = ? ORDER BY idx
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sentence
	for rows.Next() {
		var st Sentence
		var errText sql.NullString
		if err := rows.Scan(&st.ID, &st.DocumentID, &st.Index, &st.Text, &st.EdgeCount, &errText); err != nil {
			return nil, err
		}
		st.Error = errText.String
		out = append(out, st)
	}
	return out, rows.Err()
}

const tripleColumns = "id, document_id, sentence_idx, position, subject, predicate, object, kind"

func scanTriples(rows *sql.Rows) ([]Triple, error) {
	defer rows.Close()

	var out []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Sentence, &t.Position,
			&t.Subject, &t.Predicate, &t.Object, &t.Kind); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TriplesByDocument returns a document's triples in emission order.
func (s *Store) TriplesByDocument(ctx context.Context, docID int64) ([]Triple, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tripleColumns+" FROM triples WHERE document_id = ? ORDER BY position", docID)
	if err != nil {
		return nil, err
	}
	return scanTriples(rows)
}

// TriplesForTerm returns triples whose subject or object equals term, across
// all documents. A limit of zero or less returns everything.
func (s *Store) TriplesForTerm(ctx context.Context, term string, limit int) ([]Triple, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tripleColumns+` FROM triples
		WHERE subject = ? OR object = ?
		ORDER BY document_id, position
		LIMIT ?`, term, term, limit)
	if err != nil {
		return nil, err
	}
	return scanTriples(rows)
}

// DBStats holds row counts.
type DBStats struct {
	Documents int `json:"documents"`
	Sentences int `json:"sentences"`
	Triples   int `json:"triples"`
	Failures  int `json:"failures"`
}

// DBStats returns counts of documents, sentences, triples and failed sentences.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM sentences", &stats.Sentences},
		{"SELECT COUNT(*) FROM triples", &stats.Triples},
		{"SELECT COUNT(*) FROM sentences WHERE error IS NOT NULL", &stats.Failures},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
