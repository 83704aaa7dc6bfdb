package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/pkg/platform/sentinel"
)

// Schema creates the annotation table. Applied by EnsureSchema on startup;
// production deployments can run it out of band instead.
const Schema = `
CREATE TABLE IF NOT EXISTS feature_annotations (
    feature_id TEXT PRIMARY KEY,
    comments   JSONB NOT NULL,
    version    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists annotations in PostgreSQL. The version check lives
// in the UPDATE's WHERE clause, so concurrent writers are arbitrated by the
// database without explicit locking.
type PostgresStore struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed annotation store.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema applies the annotation table schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply annotation schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Fetch(ctx context.Context, featureID string) (*models.FeatureAnnotation, error) {
	var raw []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT comments, version FROM feature_annotations WHERE feature_id = $1`,
		featureID,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feature %q has no annotation: %w", featureID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch annotation: %w", err)
	}

	var comments []models.Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil, fmt.Errorf("decode stored comments: %w", err)
	}
	return &models.FeatureAnnotation{
		FeatureID: featureID,
		Comments:  comments,
		Version:   version,
	}, nil
}

// Save applies the optimistic-concurrency contract: the write succeeds only
// when expectedVersion matches the stored version (0 for a missing row), and
// the version advances by exactly one.
func (s *PostgresStore) Save(ctx context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error) {
	raw, err := json.Marshal(comments)
	if err != nil {
		return 0, fmt.Errorf("encode comments: %w", err)
	}
	now := time.Now().UTC()

	var res sql.Result
	if expectedVersion == 0 {
		// First save: insert wins only if no concurrent writer got there
		// first.
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO feature_annotations (feature_id, comments, version, updated_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (feature_id) DO NOTHING`,
			featureID, raw, now,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE feature_annotations
			 SET comments = $2, version = version + 1, updated_at = $3
			 WHERE feature_id = $1 AND version = $4`,
			featureID, raw, now, expectedVersion,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("save annotation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save annotation: rows affected: %w", err)
	}
	if affected == 0 {
		return 0, s.conflict(ctx, featureID)
	}
	return expectedVersion + 1, nil
}

// conflict builds a ConflictError carrying the server's current state.
func (s *PostgresStore) conflict(ctx context.Context, featureID string) error {
	current, err := s.Fetch(ctx, featureID)
	if errors.Is(err, sentinel.ErrNotFound) {
		current = models.Empty(featureID)
	} else if err != nil {
		return fmt.Errorf("load current annotation after conflict: %w", err)
	}
	return &store.ConflictError{Current: current}
}
