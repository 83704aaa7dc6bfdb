package memory

import (
	"context"
	"fmt"
	"sync"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/pkg/platform/sentinel"
)

// InMemoryStore keeps annotations in memory for tests/dev. It enforces the
// same optimistic-concurrency contract as the Postgres store.
type InMemoryStore struct {
	mu          sync.RWMutex
	annotations map[string]*models.FeatureAnnotation
}

// New constructs an empty in-memory annotation store.
func New() *InMemoryStore {
	return &InMemoryStore{annotations: make(map[string]*models.FeatureAnnotation)}
}

func (s *InMemoryStore) Fetch(_ context.Context, featureID string) (*models.FeatureAnnotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.annotations[featureID]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("feature %q has no annotation: %w", featureID, sentinel.ErrNotFound)
}

// Save replaces the feature's comment set if expectedVersion matches the
// stored version (0 for a never-annotated feature). On success the version
// increments by exactly one.
func (s *InMemoryStore) Save(_ context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.annotations[featureID]
	currentVersion := int64(0)
	if current != nil {
		currentVersion = current.Version
	}

	if expectedVersion != currentVersion {
		conflictWith := current
		if conflictWith == nil {
			conflictWith = models.Empty(featureID)
		}
		return 0, &store.ConflictError{Current: conflictWith.Clone()}
	}

	next := &models.FeatureAnnotation{
		FeatureID: featureID,
		Comments:  make([]models.Comment, len(comments)),
		Version:   currentVersion + 1,
	}
	copy(next.Comments, comments)
	s.annotations[featureID] = next
	return next.Version, nil
}
