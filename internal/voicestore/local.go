package voicestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// LocalURLScheme prefixes AudioURL for voices that only exist locally.
const LocalURLScheme = "local://"

const schema = `CREATE TABLE IF NOT EXISTS voices (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	audio_url   TEXT NOT NULL,
	file_size   INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	mime_type   TEXT NOT NULL DEFAULT '',
	audio       BLOB
);`

// LocalStore is the on-disk fallback library. Records have the same shape
// as the backend's; the sample bytes are kept next to each row.
type LocalStore struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

var _ domain.VoiceStore = (*LocalStore)(nil)

// OpenLocal opens (or creates) the database at path. ":memory:" gives a
// throwaway store.
func OpenLocal(path string, log *logger.Logger) (*LocalStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening voice store: %w", err)
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing voice store: %w", err)
	}
	log.Debug("voice store: opened %s", path)
	return &LocalStore{db: db, log: log, now: time.Now}, nil
}

// Close releases the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// List returns every voice in the order it was saved.
func (s *LocalStore) List(ctx context.Context) ([]domain.SavedVoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, audio_url, file_size, created_at FROM voices ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	defer rows.Close()

	var out []domain.SavedVoice
	for rows.Next() {
		var v domain.SavedVoice
		var created int64
		if err := rows.Scan(&v.ID, &v.Name, &v.Description, &v.AudioURL, &v.FileSizeBytes, &created); err != nil {
			return nil, fmt.Errorf("listing voices: %w", err)
		}
		v.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save stores a new voice under a fresh id.
func (s *LocalStore) Save(ctx context.Context, a *domain.Artifact, name, description string) (domain.SavedVoice, error) {
	if a == nil {
		return domain.SavedVoice{}, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no voice sample selected"}
	}
	id := uuid.NewString()
	v := domain.SavedVoice{
		ID:            id,
		Name:          name,
		Description:   description,
		AudioURL:      LocalURLScheme + id,
		FileSizeBytes: a.SizeBytes(),
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.Put(ctx, v, a); err != nil {
		return domain.SavedVoice{}, err
	}
	return v, nil
}

// Put inserts or replaces a record as given, keeping a copy of the sample
// when a is non-nil. Used to mirror voices the backend accepted.
func (s *LocalStore) Put(ctx context.Context, v domain.SavedVoice, a *domain.Artifact) error {
	var data []byte
	var mime string
	if a != nil {
		data = a.Data()
		mime = a.MIMEType()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO voices (id, name, description, audio_url, file_size, created_at, mime_type, audio)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Description, v.AudioURL, v.FileSizeBytes, v.CreatedAt.UnixMilli(), mime, data)
	if err != nil {
		return fmt.Errorf("saving voice %s: %w", v.ID, err)
	}
	s.log.Debug("voice store: stored %s (%q, %d bytes)", v.ID, v.Name, len(data))
	return nil
}

// Delete removes a voice. Unknown ids yield domain.ErrNotFound.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting voice %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting voice %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("voice %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Audio returns the stored sample for a voice.
func (s *LocalStore) Audio(ctx context.Context, id string) (*domain.Artifact, error) {
	var name, mime string
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT name, mime_type, audio FROM voices WHERE id = ?`, id).
		Scan(&name, &mime, &data)
	if err == sql.ErrNoRows || (err == nil && len(data) == 0) {
		return nil, fmt.Errorf("voice %s audio: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("voice %s audio: %w", id, err)
	}
	return domain.NewArtifact(data, mime, name+".wav", domain.SourceUploaded), nil
}

// CloneWithText needs the backend.
func (s *LocalStore) CloneWithText(context.Context, string, string) (domain.CloneOutcome, error) {
	return domain.CloneOutcome{}, domain.ErrUnavailableOffline
}
