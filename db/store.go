// Package db persists prediction records in SQLite. Uniqueness of
// observation ids is enforced by the table constraint, not by
// application locking, so racing inserts resolve to exactly one win.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateID reports an insert against an already-stored id.
	ErrDuplicateID = errors.New("observation id already exists")
	// ErrNotFound reports a lookup or update against an unknown id.
	ErrNotFound = errors.New("observation id does not exist")
)

// recordCacheSize bounds the read cache fronting Get.
const recordCacheSize = 1024

// Record is one stored prediction, keyed by observation id. TrueClass
// stays nil until a label arrives via an update. The JSON shape is
// what /update and /record return, so the probability keeps the
// stored column's name `proba` for compatibility with existing
// clients; the /predict response uses `probability`.
type Record struct {
	ObservationID int64           `json:"observation_id"`
	Observation   json.RawMessage `json:"observation"`
	Proba         float64         `json:"proba"`
	TrueClass     *int64          `json:"true_class"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Store is the durable prediction store.
type Store struct {
	db    *sql.DB
	cache *lru.Cache[int64, *Record]
}

// Open opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        observation_id INTEGER NOT NULL UNIQUE,
        observation TEXT NOT NULL,
        proba REAL NOT NULL,
        true_class INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}

	cache, err := lru.New[int64, *Record](recordCacheSize)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &Store{db: database, cache: cache}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a new prediction record. A second insert with the
// same observation id returns ErrDuplicateID and leaves the existing
// record untouched (first write wins).
func (s *Store) Insert(rec *Record) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
        INSERT INTO predictions (observation_id, observation, proba, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`,
		rec.ObservationID, string(rec.Observation), rec.Proba, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert prediction: %w", err)
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.cache.Add(rec.ObservationID, rec)
	return nil
}

// SetTrueClass attaches the true outcome label to a stored record.
// Updates are last-write-wins and repeatable; an unknown id returns
// ErrNotFound. The full updated record is returned.
func (s *Store) SetTrueClass(observationID, trueClass int64) (*Record, error) {
	result, err := s.db.Exec(`
        UPDATE predictions SET true_class = ?, updated_at = ?
        WHERE observation_id = ?`,
		trueClass, time.Now().UTC(), observationID)
	if err != nil {
		return nil, fmt.Errorf("update true class: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	s.cache.Remove(observationID)
	return s.Get(observationID)
}

// Get returns the stored record for an observation id, consulting the
// read cache first.
func (s *Store) Get(observationID int64) (*Record, error) {
	if rec, ok := s.cache.Get(observationID); ok {
		return rec, nil
	}

	var rec Record
	var observation string
	var trueClass sql.NullInt64
	err := s.db.QueryRow(`
        SELECT observation_id, observation, proba, true_class, created_at, updated_at
        FROM predictions
        WHERE observation_id = ?`, observationID).
		Scan(&rec.ObservationID, &observation, &rec.Proba, &trueClass, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}

	rec.Observation = json.RawMessage(observation)
	if trueClass.Valid {
		rec.TrueClass = &trueClass.Int64
	}

	s.cache.Add(rec.ObservationID, &rec)
	return &rec, nil
}

// Count returns the number of stored predictions.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
