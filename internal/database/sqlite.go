package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pypeclub/tmplbuild/api"
	_ "modernc.org/sqlite"
)

var errStop = errors.New("stop")

// SQLite is a Database backed by a single SQLite file. Each document is
// stored as a JSON blob next to its _id and type, which are indexed and used
// to narrow scans before the filter is applied in Go.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the document store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id   TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		doc  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Insert writes documents in a single transaction, replacing any document
// with the same _id. Every document needs a non-empty _id and a string type.
func (s *SQLite) Insert(docs ...api.Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO documents (id, type, doc) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, doc := range docs {
		id := idOf(doc)
		if id == "" {
			return fmt.Errorf("document %d: %w", i, errMissingID)
		}
		typ, _ := doc["type"].(string)
		if typ == "" {
			return fmt.Errorf("document %s: missing type", id)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", id, err)
		}
		if _, err := stmt.Exec(id, typ, string(raw)); err != nil {
			return fmt.Errorf("insert document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Find implements Database.
func (s *SQLite) Find(filter api.Filter) ([]api.Document, error) {
	var out []api.Document
	err := s.stream(filter, func(doc api.Document) error {
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindOne implements Database.
func (s *SQLite) FindOne(filter api.Filter) (api.Document, error) {
	var found api.Document
	err := s.stream(filter, func(doc api.Document) error {
		found = doc
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// stream iterates matching documents one row at a time, so only one parsed
// document is alive per call regardless of table size.
func (s *SQLite) stream(filter api.Filter, fn func(doc api.Document) error) error {
	query, args := narrow(filter)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		var doc api.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("parse document json: %w", err)
		}
		ok, err := Match(doc, filter)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// narrow pushes plain string equality on _id and type down into SQL.
func narrow(filter api.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if id, ok := filter["_id"].(string); ok {
		where = append(where, "id = ?")
		args = append(args, id)
	}
	if typ, ok := filter["type"].(string); ok {
		where = append(where, "type = ?")
		args = append(args, typ)
	}
	query := "SELECT doc FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY rowid", args
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadDocuments decodes a JSON array of documents, as accepted by Insert.
func ReadDocuments(r io.Reader) ([]api.Document, error) {
	var docs []api.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}
