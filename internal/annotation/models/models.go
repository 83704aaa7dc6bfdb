// Package models holds the annotation (provenance) domain records.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is one attributed provenance record on a feature. ProvenanceRef
// links a comment to the annotation version it was written against, forming
// the audit trail.
type Comment struct {
	ID            uuid.UUID `json:"id"`
	Author        string    `json:"author"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	ProvenanceRef *int64    `json:"provenance_ref,omitempty"`
}

// FeatureAnnotation is the comment thread attached to one map feature.
// Version is a monotonic counter incremented on every successful save; a
// never-annotated feature has version 0 and no comments.
type FeatureAnnotation struct {
	FeatureID string    `json:"feature_id"`
	Comments  []Comment `json:"comments"`
	Version   int64     `json:"version"`
}

// Empty returns the annotation an unannotated feature presents: no comments,
// version 0.
func Empty(featureID string) *FeatureAnnotation {
	return &FeatureAnnotation{
		FeatureID: featureID,
		Comments:  []Comment{},
	}
}

// Clone returns a deep copy so store internals are never aliased by callers.
func (a *FeatureAnnotation) Clone() *FeatureAnnotation {
	if a == nil {
		return nil
	}
	out := &FeatureAnnotation{
		FeatureID: a.FeatureID,
		Comments:  make([]Comment, len(a.Comments)),
		Version:   a.Version,
	}
	copy(out.Comments, a.Comments)
	return out
}
