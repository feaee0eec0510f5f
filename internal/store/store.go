// Package store persists script documents and their generated audio in a
// local SQLite database.
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

	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultTitlePrefix is used for documents created without a title.
const DefaultTitlePrefix = "未命名草稿"

// Document is a script with its last generated audio.
type Document struct {
	ID      string
	Title   string
	Content string
	Prompt  string

	// AudioBlob is a WAV container, or nil if nothing was generated yet.
	// List leaves it nil and only fills AudioSize.
	AudioBlob     []byte
	AudioSize     int64
	AudioDuration float64 // nominal seconds

	// Settings and Model are nil/empty until first chosen for the document.
	Settings *ttypes.AudioSettings
	Model    ttypes.Model

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAudio reports whether the document carries generated audio.
func (d Document) HasAudio() bool {
	return d.AudioSize > 0 || len(d.AudioBlob) > 0
}

// Draft is the editable part of a document.
type Draft struct {
	Content  string
	Prompt   string
	Settings *ttypes.AudioSettings
	Model    ttypes.Model
}

// Store is a SQLite-backed document store.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for created/updated stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.clock = fn }
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ttypes.NewPersistenceError("create data dir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ttypes.NewPersistenceError("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, ttypes.NewPersistenceError("ping sqlite", err)
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, ttypes.NewPersistenceError("init schema", err)
	}

	log.Debug("Document store opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    prompt TEXT NOT NULL DEFAULT '',
    audio_blob BLOB,
    audio_duration REAL NOT NULL DEFAULT 0,
    settings TEXT,
    model TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, ttypes.NewPersistenceError("count documents", err)
	}
	return n, nil
}

// Create inserts a new document titled "未命名草稿 N", N being the document
// count plus one.
func (s *Store) Create(ctx context.Context, content, prompt string) (*Document, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	return s.CreateTitled(ctx, fmt.Sprintf("%s %d", DefaultTitlePrefix, n+1), content, prompt)
}

// CreateTitled inserts a new document with the given title.
func (s *Store) CreateTitled(ctx context.Context, title, content, prompt string) (*Document, error) {
	now := s.clock()
	doc := &Document{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id, title, content, prompt, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Prompt, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, ttypes.NewPersistenceError("create document", err)
	}
	log.Debug("Created document", "id", doc.ID, "title", doc.Title)
	return doc, nil
}

// Get loads a document including its audio.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, prompt, audio_blob, length(audio_blob), audio_duration, settings, model, created_at, updated_at
		 FROM documents WHERE id = ?`, id)

	var doc Document
	if err := scanDocument(row, &doc, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get document", id)
		}
		return nil, ttypes.NewPersistenceError("get document", err).WithContext("id", id)
	}
	return &doc, nil
}

// List returns every document, newest first, without audio blobs.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, prompt, NULL, length(audio_blob), audio_duration, settings, model, created_at, updated_at
		 FROM documents ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, ttypes.NewPersistenceError("list documents", err)
	}
	defer rows.Close() //nolint:errcheck

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := scanDocument(rows, &doc, false); err != nil {
			return nil, ttypes.NewPersistenceError("list documents", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ttypes.NewPersistenceError("list documents", err)
	}
	return docs, nil
}

// Save writes a whole document, inserting it if needed.
func (s *Store) Save(ctx context.Context, doc Document) error {
	settings, err := encodeSettings(doc.Settings)
	if err != nil {
		return ttypes.NewPersistenceError("save document", err).WithContext("id", doc.ID)
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}
	now := s.clock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents(id, title, content, prompt, audio_blob, audio_duration, settings, model, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, content=excluded.content, prompt=excluded.prompt,
		   audio_blob=excluded.audio_blob, audio_duration=excluded.audio_duration,
		   settings=excluded.settings, model=excluded.model, updated_at=excluded.updated_at`,
		doc.ID, doc.Title, doc.Content, doc.Prompt, nullBlob(doc.AudioBlob), doc.AudioDuration,
		settings, string(doc.Model), created.UnixNano(), now.UnixNano())
	if err != nil {
		return ttypes.NewPersistenceError("save document", err).WithContext("id", doc.ID)
	}
	return nil
}

// SaveDraft updates the editable fields of an existing document and leaves
// its title and audio alone.
func (s *Store) SaveDraft(ctx context.Context, id string, d Draft) error {
	settings, err := encodeSettings(d.Settings)
	if err != nil {
		return ttypes.NewPersistenceError("save draft", err).WithContext("id", id)
	}
	return s.update(ctx, "save draft", id,
		`UPDATE documents SET content = ?, prompt = ?, settings = ?, model = ?, updated_at = ? WHERE id = ?`,
		d.Content, d.Prompt, settings, string(d.Model), s.clock().UnixNano(), id)
}

// Rename changes the title of a document.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	return s.update(ctx, "rename document", id,
		`UPDATE documents SET title = ?, updated_at = ? WHERE id = ?`,
		title, s.clock().UnixNano(), id)
}

// SaveAudio attaches a WAV blob and its nominal duration to a document.
func (s *Store) SaveAudio(ctx context.Context, id string, wav []byte, seconds float64) error {
	return s.update(ctx, "save audio", id,
		`UPDATE documents SET audio_blob = ?, audio_duration = ?, updated_at = ? WHERE id = ?`,
		nullBlob(wav), seconds, s.clock().UnixNano(), id)
}

// Delete removes a document. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return ttypes.NewPersistenceError("delete document", err).WithContext("id", id)
	}
	return nil
}

func (s *Store) update(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ttypes.NewPersistenceError(op, err).WithContext("id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ttypes.NewPersistenceError(op, err).WithContext("id", id)
	}
	if n == 0 {
		return notFound(op, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, doc *Document, withBlob bool) error {
	var (
		blob      []byte
		size      sql.NullInt64
		settings  sql.NullString
		model     string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Prompt, &blob, &size,
		&doc.AudioDuration, &settings, &model, &createdAt, &updatedAt); err != nil {
		return err
	}
	if withBlob && len(blob) > 0 {
		doc.AudioBlob = blob
	}
	doc.AudioSize = size.Int64
	doc.Model = ttypes.Model(model)
	doc.CreatedAt = time.Unix(0, createdAt)
	doc.UpdatedAt = time.Unix(0, updatedAt)

	if settings.Valid && settings.String != "" {
		var as ttypes.AudioSettings
		if err := json.Unmarshal([]byte(settings.String), &as); err != nil {
			return fmt.Errorf("decode settings of %s: %w", doc.ID, err)
		}
		as = as.Normalize()
		doc.Settings = &as
	}
	return nil
}

func encodeSettings(s *ttypes.AudioSettings) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func notFound(op, id string) error {
	return ttypes.NewPersistenceError(op, ttypes.ErrNotFound).WithContext("id", id)
}
