package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/agent-context/internal/model"
)

const sqliteName = "sqlite"

// SQLite implements Backend on a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
	ids  *idSource
}

// NewSQLite opens or creates a SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{db: db, path: dbPath, ids: newIDSource()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Name() string { return sqliteName }

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		key         TEXT PRIMARY KEY,
		id          TEXT NOT NULL,
		value       TEXT NOT NULL,
		meta        TEXT,
		embedding   TEXT,
		written_at  TEXT NOT NULL,
		expires_at  TEXT,
		scope       TEXT NOT NULL DEFAULT '',
		seq         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq);
	CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
	CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const selectColumns = `SELECT key, id, value, meta, embedding, written_at, expires_at, scope, seq FROM memories`

func (s *SQLite) Put(ctx context.Context, m model.Memory) (model.Memory, error) {
	m = stamp(m)

	var metaJSON, embJSON *string
	if len(m.Meta) > 0 {
		b, err := json.Marshal(m.Meta)
		if err != nil {
			return model.Memory{}, fmt.Errorf("encode meta: %w", err)
		}
		v := string(b)
		metaJSON = &v
	}
	if m.HasEmbedding() {
		b, _ := json.Marshal(m.Embedding)
		v := string(b)
		embJSON = &v
	}
	var expiresAt *string
	if m.ExpiresAt != nil {
		v := m.ExpiresAt.UTC().Format(time.RFC3339Nano)
		expiresAt = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Memory{}, backendErr(sqliteName, "put", m.Key, err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT id, seq FROM memories WHERE key = ?`, m.Key).Scan(&m.ID, &m.Seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m.ID = s.ids.next()
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM memories`).Scan(&m.Seq); err != nil {
			return model.Memory{}, backendErr(sqliteName, "put", m.Key, err)
		}
	case err != nil:
		return model.Memory{}, backendErr(sqliteName, "put", m.Key, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (key, id, value, meta, embedding, written_at, expires_at, scope, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value, meta = excluded.meta, embedding = excluded.embedding,
		   written_at = excluded.written_at, expires_at = excluded.expires_at, scope = excluded.scope`,
		m.Key, m.ID, m.Value, metaJSON, embJSON, m.WrittenAt.UTC().Format(time.RFC3339Nano),
		expiresAt, m.Scope, m.Seq)
	if err != nil {
		return model.Memory{}, backendErr(sqliteName, "put", m.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Memory{}, backendErr(sqliteName, "put", m.Key, err)
	}
	return m.Clone(), nil
}

func (s *SQLite) Get(ctx context.Context, key string) (model.Memory, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE key = ?`, key)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Memory{}, notFound(key)
	}
	if err != nil {
		return model.Memory{}, backendErr(sqliteName, "get", key, err)
	}
	return m, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, key)
	if err != nil {
		return backendErr(sqliteName, "delete", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(key)
	}
	return nil
}

// List filters scope and prefix in SQL; metadata equality is checked in Go
// since values are stored as a JSON document.
func (s *SQLite) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	query := selectColumns + ` WHERE 1 = 1`
	var args []interface{}
	if f.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, f.Scope)
	}
	if f.Prefix != "" {
		query += ` AND substr(key, 1, ?) = ?`
		args = append(args, len(f.Prefix), f.Prefix)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, backendErr(sqliteName, "list", "", err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, backendErr(sqliteName, "list", "", err)
		}
		if f.Match(m) {
			memories = append(memories, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr(sqliteName, "list", "", err)
	}
	return memories, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var meta, embedding, expiresAt sql.NullString
	var writtenAt string

	err := row.Scan(&m.Key, &m.ID, &m.Value, &meta, &embedding, &writtenAt, &expiresAt, &m.Scope, &m.Seq)
	if err != nil {
		return m, err
	}

	m.WrittenAt, _ = time.Parse(time.RFC3339Nano, writtenAt)
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &m.Meta); err != nil {
			return m, fmt.Errorf("decode meta for %q: %w", m.Key, err)
		}
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &m.Embedding); err != nil {
			return m, fmt.Errorf("decode embedding for %q: %w", m.Key, err)
		}
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		m.ExpiresAt = &t
	}
	return m, nil
}
