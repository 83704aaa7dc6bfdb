package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/service"
	"flatmaps/internal/annotation/store/memory"
	jwttoken "flatmaps/internal/jwt_token"
	"flatmaps/internal/platform/middleware"
	"flatmaps/pkg/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *memory.InMemoryStore, string) {
	t.Helper()

	st := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(st, nil, log, nil)
	h := New(svc, log)

	jwtSvc := jwttoken.NewJWTService("test-signing-key", "flatmaps", "flatmaps")
	token, err := jwtSvc.GenerateAccessToken("naomi", uuid.New(), []string{"annotations:write"}, time.Hour)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtSvc), log))
		h.RegisterProtected(protected)
	})
	return r, st, token
}

func doPut(t *testing.T, router http.Handler, token, featureID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewRequestWithBody(t, http.MethodPut, "/flatmap/atlas-1/annotations/"+featureID, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(router, req)
}

func TestGetAnnotations_EmptyViewForUnknownFeature(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/flatmap/atlas-1/annotations/f-77"))
	require.Equal(t, http.StatusOK, rec.Code)

	a := testutil.DecodeJSON[models.FeatureAnnotation](t, rec)
	assert.Equal(t, "f-77", a.FeatureID)
	assert.Equal(t, int64(0), a.Version)
	assert.Empty(t, a.Comments)
}

func TestPutAnnotations_RequiresToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doPut(t, router, "", "f-1", `{"comments":[{"text":"hi"}],"expected_version":0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPutAnnotations_SavesAndStampsAuthor(t *testing.T) {
	router, st, token := newTestRouter(t)

	rec := doPut(t, router, token, "f-1", `{"comments":[{"text":"interesting region"}],"expected_version":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := testutil.DecodeJSON[struct {
		FeatureID string `json:"feature_id"`
		Version   int64  `json:"version"`
	}](t, rec)
	assert.Equal(t, "f-1", resp.FeatureID)
	assert.Equal(t, int64(1), resp.Version)

	stored, err := st.Fetch(context.Background(), "f-1")
	require.NoError(t, err)
	require.Len(t, stored.Comments, 1)
	assert.Equal(t, "naomi", stored.Comments[0].Author, "author comes from the token, not the payload")
}

func TestPutAnnotations_StaleVersionReturns409WithCurrent(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doPut(t, router, token, "f-1", `{"comments":[{"text":"theirs"}],"expected_version":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doPut(t, router, token, "f-1", `{"comments":[{"text":"mine"}],"expected_version":0}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := testutil.DecodeJSON[struct {
		Error   string                    `json:"error"`
		Details *models.FeatureAnnotation `json:"details"`
	}](t, rec)
	assert.Equal(t, "conflict", resp.Error)
	require.NotNil(t, resp.Details, "409 carries the server's current annotation")
	assert.Equal(t, int64(1), resp.Details.Version)
	require.Len(t, resp.Details.Comments, 1)
	assert.Equal(t, "theirs", resp.Details.Comments[0].Text)
}

func TestPutAnnotations_MalformedBody(t *testing.T) {
	router, _, token := newTestRouter(t)
	rec := doPut(t, router, token, "f-1", `{"comments": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
