package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) comment(text string) models.Comment {
	return models.Comment{ID: uuid.New(), Author: "naomi", Text: text}
}

func (s *InMemoryStoreSuite) TestFetchUnknownFeature() {
	_, err := s.store.Fetch(s.ctx, "f-404")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFirstSaveCreatesVersionOne() {
	version, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("first")}, 0)
	s.Require().NoError(err)
	s.Equal(int64(1), version)

	a, err := s.store.Fetch(s.ctx, "f-1")
	s.Require().NoError(err)
	s.Equal(int64(1), a.Version)
	s.Len(a.Comments, 1)
}

func (s *InMemoryStoreSuite) TestSaveIncrementsVersionExactlyOnce() {
	v1, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("a")}, 0)
	s.Require().NoError(err)
	v2, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("a"), s.comment("b")}, v1)
	s.Require().NoError(err)
	s.Equal(v1+1, v2)
}

func (s *InMemoryStoreSuite) TestStaleVersionRejected() {
	v1, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("a")}, 0)
	s.Require().NoError(err)
	_, err = s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("b")}, v1)
	s.Require().NoError(err)

	// A second writer still holding v1 must be rejected.
	_, err = s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("c")}, v1)
	s.Require().Error(err)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	var conflict *store.ConflictError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(int64(2), conflict.Current.Version, "conflict carries the server's current state")
	s.Len(conflict.Current.Comments, 2)
}

func (s *InMemoryStoreSuite) TestConflictDoesNotMutateStoredState() {
	v1, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("a")}, 0)
	s.Require().NoError(err)

	_, err = s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("x")}, v1+5)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	a, err := s.store.Fetch(s.ctx, "f-1")
	s.Require().NoError(err)
	s.Equal(v1, a.Version)
	s.Require().Len(a.Comments, 1)
	s.Equal("a", a.Comments[0].Text)
}

func (s *InMemoryStoreSuite) TestSaveAgainstMissingFeatureWithNonzeroVersion() {
	_, err := s.store.Save(s.ctx, "f-new", []models.Comment{s.comment("a")}, 3)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	var conflict *store.ConflictError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(int64(0), conflict.Current.Version, "missing feature presents the empty view")
}

func (s *InMemoryStoreSuite) TestFetchReturnsACopy() {
	_, err := s.store.Save(s.ctx, "f-1", []models.Comment{s.comment("a")}, 0)
	s.Require().NoError(err)

	a, err := s.store.Fetch(s.ctx, "f-1")
	s.Require().NoError(err)
	a.Comments[0].Text = "mutated"

	again, err := s.store.Fetch(s.ctx, "f-1")
	s.Require().NoError(err)
	s.Equal("a", again.Comments[0].Text)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}
