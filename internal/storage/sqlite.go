package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kbserve/internal/models"
)

// SQLiteStorage persists chunks in SQLite, one table per collection.
type SQLiteStorage struct {
	db *sql.DB
}

// fileDSN returns a file: URI for dbPath opened with the given SQLite mode.
// The path is percent-escaped so '#', '?' and '%' stay part of the file name.
func fileDSN(dbPath, mode string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=" + mode}
	return u.String(), nil
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn, err := fileDSN(dbPath, "rwc")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenReadOnly opens an existing database without creating it or its schema.
// The file must already exist; the connection is verified before returning.
func OpenReadOnly(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	dsn, err := fileDSN(dbPath, "ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", dbPath, err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS discourse_chunks (
		id TEXT PRIMARY KEY,
		title TEXT,
		url TEXT,
		chunk_index INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS markdown_chunks (
		id TEXT PRIMARY KEY,
		title TEXT,
		url TEXT,
		chunk_index INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

func tableFor(c models.Collection) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return c.Table(), nil
}

func (s *SQLiteStorage) insertQuery(c models.Collection) (string, error) {
	table, err := tableFor(c)
	if err != nil {
		return "", err
	}
	return `INSERT INTO ` + table + ` (id, title, url, chunk_index, content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, nil
}

func prepareChunk(chunk *models.Chunk, now time.Time) {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	chunk.CreatedAt = now
}

// InsertChunk inserts a single chunk into its collection's table.
// An empty ID is replaced with a new UUID.
func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *models.Chunk) error {
	query, err := s.insertQuery(chunk.Collection)
	if err != nil {
		return err
	}
	prepareChunk(chunk, time.Now())
	_, err = s.db.ExecContext(ctx, query,
		chunk.ID, chunk.Title, chunk.URL, chunk.ChunkIndex, chunk.Content,
		embeddingArg(chunk.Embedding), chunk.CreatedAt,
	)
	return err
}

// BatchInsertChunks inserts multiple chunks in a transaction. Chunks may span collections.
func (s *SQLiteStorage) BatchInsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, chunk := range chunks {
		query, err := s.insertQuery(chunk.Collection)
		if err != nil {
			return err
		}
		prepareChunk(chunk, now)
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID, chunk.Title, chunk.URL, chunk.ChunkIndex, chunk.Content,
			embeddingArg(chunk.Embedding), chunk.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by collection and ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, collection models.Collection, id string) (*models.Chunk, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	var (
		chunk     models.Chunk
		title     sql.NullString
		url       sql.NullString
		embedding []byte
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, title, url, chunk_index, content, embedding, created_at
		 FROM `+table+` WHERE id = ?`, id,
	).Scan(&chunk.ID, &title, &url, &chunk.ChunkIndex, &chunk.Content, &embedding, &chunk.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	chunk.Collection = collection
	chunk.Title = title.String
	chunk.URL = url.String
	if chunk.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
	}
	return &chunk, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countChunks(ctx context.Context, q queryRower, collection models.Collection, embeddedOnly bool) (int64, error) {
	table, err := tableFor(collection)
	if err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM ` + table
	if embeddedOnly {
		query += ` WHERE embedding IS NOT NULL`
	}
	var count int64
	if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// CountChunks returns the total number of chunks in a collection.
func (s *SQLiteStorage) CountChunks(ctx context.Context, collection models.Collection) (int64, error) {
	return countChunks(ctx, s.db, collection, false)
}

// CountEmbedded returns the number of chunks in a collection that have an embedding.
func (s *SQLiteStorage) CountEmbedded(ctx context.Context, collection models.Collection) (int64, error) {
	return countChunks(ctx, s.db, collection, true)
}

// Stats returns total and embedded counts for both collections. The counts are read in a
// single transaction: either all four are returned or an error is.
// A missing table is reported as "<table> not found" wrapping ErrTableNotFound.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()

	for _, c := range models.Collections {
		if err := requireTable(ctx, tx, c.Table()); err != nil {
			return nil, err
		}
	}

	var stats Stats
	steps := []struct {
		dst          *int64
		collection   models.Collection
		embeddedOnly bool
	}{
		{&stats.DiscourseChunks, models.CollectionDiscourse, false},
		{&stats.MarkdownChunks, models.CollectionMarkdown, false},
		{&stats.DiscourseEmbeddings, models.CollectionDiscourse, true},
		{&stats.MarkdownEmbeddings, models.CollectionMarkdown, true},
	}
	for _, step := range steps {
		n, err := countChunks(ctx, tx, step.collection, step.embeddedOnly)
		if err != nil {
			return nil, err
		}
		*step.dst = n
	}
	return &stats, nil
}

func requireTable(ctx context.Context, q queryRower, table string) error {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %w", table, ErrTableNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
