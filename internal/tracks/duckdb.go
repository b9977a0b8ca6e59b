package tracks

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// SampleStore serves precomputed per-sample target vectors from a DuckDB
// database. Rows are keyed by (chrom, sample_idx, track_idx), one value per
// track; queries return the dense vector in track order.
type SampleStore struct {
	db     *sql.DB
	path   string
	tracks []Track
}

// OpenSampleStore opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func OpenSampleStore(path string, tracks []Track) (*SampleStore, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &SampleStore{db: db, path: path, tracks: tracks}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SampleStore) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened from.
func (s *SampleStore) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *SampleStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sample_targets (
		chrom VARCHAR,
		sample_idx BIGINT,
		track_idx INTEGER,
		value FLOAT,
		PRIMARY KEY (chrom, sample_idx, track_idx)
	)`)
	return err
}

// PutSampleData stores the target vector for one precomputed sample.
// The vector must have one value per track.
func (s *SampleStore) PutSampleData(chrom string, sampleIdx int, values []float32) error {
	if len(values) != len(s.tracks) {
		return fmt.Errorf("want %d track values, got %d", len(s.tracks), len(values))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO sample_targets
		(chrom, sample_idx, track_idx, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err := stmt.Exec(chrom, sampleIdx, i, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert track %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// NumTracks returns the number of tracks in the store's vector order.
func (s *SampleStore) NumTracks() int {
	return len(s.tracks)
}

// SampleData returns the stored target vector for (chrom, sampleIdx).
// Tracks with no stored row stay zero.
func (s *SampleStore) SampleData(chrom string, sampleIdx int) ([]float32, error) {
	rows, err := s.db.Query(`
		SELECT track_idx, value FROM sample_targets
		WHERE chrom = ? AND sample_idx = ?
		ORDER BY track_idx
	`, chrom, sampleIdx)
	if err != nil {
		return nil, fmt.Errorf("query sample targets: %w", err)
	}
	defer rows.Close()

	values := make([]float32, len(s.tracks))
	found := false
	for rows.Next() {
		var trackIdx int
		var value float32
		if err := rows.Scan(&trackIdx, &value); err != nil {
			return nil, fmt.Errorf("scan sample target: %w", err)
		}
		if trackIdx < 0 || trackIdx >= len(values) {
			return nil, fmt.Errorf("track index %d out of range [0, %d)", trackIdx, len(values))
		}
		values[trackIdx] = value
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no targets stored for %s sample %d", chrom, sampleIdx)
	}
	return values, nil
}
