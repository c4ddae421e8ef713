package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/volunteerhq/galaxysync/internal/repository"
)

// DocumentRepository implements repository.DocumentStore for SQLite
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert writes a document, replacing any prior version with the same
// (collection, id). The replace is a single statement, so concurrent
// readers never observe a partially written body.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *repository.Document) error {
	if doc == nil || doc.Collection == "" || doc.ID == "" {
		return repository.ErrInvalidInput
	}

	query := `
		INSERT INTO documents (collection, doc_id, body, synced_at, sync_source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, doc_id) DO UPDATE SET
			body = excluded.body,
			synced_at = excluded.synced_at,
			sync_source = excluded.sync_source
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.Collection, doc.ID, string(doc.Body), doc.SyncedAt.UTC(), doc.SyncSource)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return nil
}

// Get retrieves a document by collection and id
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	query := `
		SELECT collection, doc_id, body, synced_at, sync_source
		FROM documents
		WHERE collection = ? AND doc_id = ?
	`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, collection, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// List returns every document in a collection ordered by id
func (r *DocumentRepository) List(ctx context.Context, collection string) ([]repository.Document, error) {
	query := `
		SELECT collection, doc_id, body, synced_at, sync_source
		FROM documents
		WHERE collection = ?
		ORDER BY doc_id
	`

	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// Query returns documents matching the equality filters in opts.
// Dotted filter keys address nested body fields.
func (r *DocumentRepository) Query(ctx context.Context, collection string, opts repository.QueryOptions) ([]repository.Document, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT collection, doc_id, body, synced_at, sync_source
		FROM documents
		WHERE collection = ?`)
	args := []any{collection}

	// Deterministic clause order keeps query plans stable across runs.
	for _, field := range sortedKeys(opts.Filter) {
		sb.WriteString(" AND json_extract(body, ?) = ?")
		args = append(args, "$."+field, filterArg(opts.Filter[field]))
	}
	sb.WriteString(" ORDER BY doc_id")

	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	} else if opts.Skip > 0 {
		sb.WriteString(" LIMIT -1")
	}
	if opts.Skip > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Skip)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}

	if len(opts.Projection) > 0 {
		for i := range docs {
			body, err := projectBody(docs[i].Body, opts.Projection)
			if err != nil {
				return nil, fmt.Errorf("failed to project document %s/%s: %w", collection, docs[i].ID, err)
			}
			docs[i].Body = body
		}
	}
	return docs, nil
}

// ReplaceAll atomically swaps the full contents of a collection
func (r *DocumentRepository) ReplaceAll(ctx context.Context, collection string, docs []repository.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin replace of %s: %w", collection, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", collection, err)
	}

	insert := `
		INSERT INTO documents (collection, doc_id, body, synced_at, sync_source)
		VALUES (?, ?, ?, ?, ?)
	`
	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			return repository.ErrInvalidInput
		}
		if _, err := tx.ExecContext(ctx, insert,
			collection, doc.ID, string(doc.Body), doc.SyncedAt.UTC(), doc.SyncSource); err != nil {
			return fmt.Errorf("failed to insert document %s/%s: %w", collection, doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace of %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of documents in a collection
func (r *DocumentRepository) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*repository.Document, error) {
	var doc repository.Document
	var body string
	if err := row.Scan(&doc.Collection, &doc.ID, &body, &doc.SyncedAt, &doc.SyncSource); err != nil {
		return nil, err
	}
	doc.Body = []byte(body)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]repository.Document, error) {
	var docs []repository.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// filterArg coerces filter values into types the driver binds natively.
func filterArg(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func projectBody(body []byte, fields []string) ([]byte, error) {
	var full map[string]json.RawMessage
	if err := json.Unmarshal(body, &full); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return json.Marshal(out)
}
