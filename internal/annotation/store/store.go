// Package store defines the provenance store contract and its conflict
// semantics. Implementations return sentinel errors; services translate them
// into domain errors.
package store

import (
	"context"
	"fmt"

	"flatmaps/internal/annotation/models"
	"flatmaps/pkg/platform/sentinel"
)

// Error Contract:
//   - Fetch returns sentinel.ErrNotFound (wrapped) when the feature has never
//     been annotated.
//   - Save returns *ConflictError (which wraps sentinel.ErrConflict) when
//     expectedVersion does not match the stored version; stored state is left
//     untouched.
//   - Infrastructure failures are returned wrapped with context.
type Store interface {
	Fetch(ctx context.Context, featureID string) (*models.FeatureAnnotation, error)
	Save(ctx context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error)
}

// ConflictError reports an optimistic-concurrency failure. Current carries
// the server's state at rejection time so the caller can reconcile without a
// second round trip.
type ConflictError struct {
	Current *models.FeatureAnnotation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stale version: feature %q is at version %d: %v",
		e.Current.FeatureID, e.Current.Version, sentinel.ErrConflict)
}

func (e *ConflictError) Unwrap() error {
	return sentinel.ErrConflict
}
