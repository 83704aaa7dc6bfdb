// Package service implements the provenance operations over an annotation
// store: fetch with the empty-view fallback and save with optimistic
// concurrency, translated into domain errors for transport layers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/internal/audit"
	"flatmaps/internal/platform/metrics"
	dErrors "flatmaps/pkg/domain-errors"
	"flatmaps/pkg/platform/sentinel"
)

// Service coordinates annotation reads and writes.
type Service struct {
	store   store.Store
	auditor *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the comment timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs the annotation service. auditor may be nil (auditing
// disabled).
func New(st store.Store, auditor *audit.Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   st,
		auditor: auditor,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("flatmaps/annotation"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the feature's annotation. A never-annotated feature yields
// the empty view (no comments, version 0) rather than an error, matching the
// viewer's silent-empty behavior.
func (s *Service) Fetch(ctx context.Context, featureID string) (*models.FeatureAnnotation, error) {
	if featureID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feature id is required")
	}

	ctx, span := s.tracer.Start(ctx, "annotation.Fetch",
		trace.WithAttributes(attribute.String("feature.id", featureID)))
	defer span.End()

	s.metrics.IncAnnotationFetches()

	a, err := s.store.Fetch(ctx, featureID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Empty(featureID), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch annotation")
	}
	return a, nil
}

// SaveRequest carries one save attempt.
type SaveRequest struct {
	FeatureID       string
	Author          string
	Comments        []models.Comment
	ExpectedVersion int64
}

// Save validates and persists the comment set against ExpectedVersion. A
// version mismatch returns CodeConflict with the server's current annotation
// in the error details; stored state is never mutated on rejection.
func (s *Service) Save(ctx context.Context, req SaveRequest) (int64, error) {
	if req.FeatureID == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "feature id is required")
	}
	if req.Author == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "author identity is required")
	}
	if req.ExpectedVersion < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "expected version cannot be negative")
	}

	ctx, span := s.tracer.Start(ctx, "annotation.Save",
		trace.WithAttributes(
			attribute.String("feature.id", req.FeatureID),
			attribute.Int64("expected.version", req.ExpectedVersion),
		))
	defer span.End()

	comments := s.stamp(req)

	newVersion, err := s.store.Save(ctx, req.FeatureID, comments, req.ExpectedVersion)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.IncAnnotationConflicts()
			s.logger.InfoContext(ctx, "annotation save conflict",
				"feature_id", req.FeatureID,
				"expected_version", req.ExpectedVersion,
				"current_version", conflict.Current.Version,
			)
			return 0, dErrors.New(dErrors.CodeConflict, "annotation was modified by another writer").
				WithDetails(conflict.Current)
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save annotation")
	}

	s.metrics.IncAnnotationSaves()
	s.auditor.Emit(ctx, audit.Event{
		FeatureID:   req.FeatureID,
		Author:      req.Author,
		FromVersion: req.ExpectedVersion,
		ToVersion:   newVersion,
		CommentIDs:  commentIDs(comments),
	})
	return newVersion, nil
}

// stamp fills in server-side comment fields: ids, author attribution,
// timestamps, and the provenance link back to the version the comment was
// written against.
func (s *Service) stamp(req SaveRequest) []models.Comment {
	out := make([]models.Comment, len(req.Comments))
	copy(out, req.Comments)
	for i := range out {
		if out[i].ID == uuid.Nil {
			out[i].ID = uuid.New()
			out[i].Author = req.Author
			out[i].CreatedAt = s.now().UTC()
			ref := req.ExpectedVersion
			out[i].ProvenanceRef = &ref
		}
	}
	return out
}

func commentIDs(comments []models.Comment) []string {
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.ID.String()
	}
	return ids
}
