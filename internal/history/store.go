// Package history persists finished transcripts in a local SQLite
// database. The scheduler writes on job completion; the UI reads.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sona-transcriber/internal/domain"
)

// Record is one persisted transcript with its segments.
type Record struct {
	ID               string                     `json:"id"`
	SourcePath       string                     `json:"sourcePath"`
	DurationSeconds  float64                    `json:"durationSeconds"`
	ScratchAudioPath string                     `json:"scratchAudioPath,omitempty"`
	CreatedAt        time.Time                  `json:"createdAt"`
	Segments         []domain.TranscriptSegment `json:"segments,omitempty"`
}

// Store wraps the SQLite transcript database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path, creating parents.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates tables when missing. There is no versioned schema
// migration beyond this.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			sourcePath TEXT NOT NULL,
			durationSeconds REAL NOT NULL,
			scratchAudioPath TEXT,
			createdAt REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS segments (
			transcriptId TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			startSec REAL NOT NULL,
			endSec REAL NOT NULL,
			text TEXT NOT NULL,
			sequenceNumber INTEGER NOT NULL,
			PRIMARY KEY (transcriptId, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Save stores one finished transcript and returns its history id.
func (s *Store) Save(sourcePath string, segments []domain.TranscriptSegment, durationSeconds float64, scratchAudioPath string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.Exec(`
		INSERT INTO transcripts (id, sourcePath, durationSeconds, scratchAudioPath, createdAt)
		VALUES (?, ?, ?, ?, ?)
	`, id, sourcePath, durationSeconds, scratchAudioPath, float64(time.Now().UnixMilli())/1000)
	if err != nil {
		return "", fmt.Errorf("insert transcript: %w", err)
	}

	for i, segment := range segments {
		_, err = tx.Exec(`
			INSERT INTO segments (transcriptId, id, startSec, endSec, text, sequenceNumber)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, segment.ID, segment.Start, segment.End, segment.Text, i)
		if err != nil {
			return "", fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Get returns one transcript with segments in stored order.
func (s *Store) Get(id string) (Record, error) {
	row := s.db.QueryRow(`
		SELECT id, sourcePath, durationSeconds, scratchAudioPath, createdAt
		FROM transcripts
		WHERE id = ?
	`, id)

	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Record{}, fmt.Errorf("transcript not found: %s", id)
		}
		return Record{}, err
	}

	rows, err := s.db.Query(`
		SELECT id, startSec, endSec, text
		FROM segments
		WHERE transcriptId = ?
		ORDER BY sequenceNumber ASC
	`, id)
	if err != nil {
		return Record{}, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment domain.TranscriptSegment
		if err := rows.Scan(&segment.ID, &segment.Start, &segment.End, &segment.Text); err != nil {
			return Record{}, fmt.Errorf("scan segment: %w", err)
		}
		segment.IsFinal = true
		record.Segments = append(record.Segments, segment)
	}
	if err := rows.Err(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// List returns all transcripts, newest first, without segments.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, sourcePath, durationSeconds, scratchAudioPath, createdAt
		FROM transcripts
		ORDER BY createdAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete removes one transcript and its segments.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM segments WHERE transcriptId = ?`, id); err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM transcripts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one transcripts row.
func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var scratch sql.NullString
	var createdAt float64

	if err := row.Scan(&record.ID, &record.SourcePath, &record.DurationSeconds, &scratch, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan transcript: %w", err)
	}
	if scratch.Valid {
		record.ScratchAudioPath = scratch.String
	}
	record.CreatedAt = time.Unix(int64(createdAt), int64((createdAt-float64(int64(createdAt)))*1e9)).UTC()
	return record, nil
}
