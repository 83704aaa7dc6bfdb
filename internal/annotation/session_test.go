package annotation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/internal/annotation/store/memory"
	"flatmaps/internal/authgate"
	dErrors "flatmaps/pkg/domain-errors"
)

// fakeGate scripts the identity handshake: it can resolve instantly, fail,
// or count how many times a full handshake ran.
type fakeGate struct {
	mu         sync.Mutex
	valid      bool
	err        error
	handshakes int
}

func (g *fakeGate) EnsureToken(context.Context) (authgate.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return authgate.Token{}, g.err
	}
	if !g.valid {
		g.handshakes++
		g.valid = true
	}
	return authgate.Token{Subject: "naomi", Expiry: time.Now().Add(time.Hour), Raw: "tok"}, nil
}

func (g *fakeGate) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valid
}

func (g *fakeGate) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.valid = false
}

func (g *fakeGate) failWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSession(t *testing.T, st store.Store, gate Gate) *Session {
	t.Helper()
	s, err := Open(context.Background(), "f-1", st, gate, discard())
	require.NoError(t, err)
	return s
}

func TestOpen_NeverAnnotatedFeatureShowsEmptyView(t *testing.T) {
	s := openSession(t, memory.New(), &fakeGate{})

	assert.Equal(t, StateViewing, s.State())
	a := s.Annotation()
	assert.Equal(t, "f-1", a.FeatureID)
	assert.Empty(t, a.Comments)
	assert.Equal(t, int64(0), a.Version)
	assert.True(t, s.Locked())
}

func TestOpen_ExistingAnnotationLoads(t *testing.T) {
	st := memory.New()
	_, err := st.Save(context.Background(), "f-1", []models.Comment{{Text: "old"}}, 0)
	require.NoError(t, err)

	s := openSession(t, st, &fakeGate{})
	a := s.Annotation()
	require.Len(t, a.Comments, 1)
	assert.Equal(t, int64(1), a.Version)
}

func TestUnlock_EditingAfterHandshake(t *testing.T) {
	gate := &fakeGate{}
	s := openSession(t, memory.New(), gate)

	require.NoError(t, s.Unlock(context.Background()))
	assert.Equal(t, StateEditing, s.State())
	assert.False(t, s.Locked())
	assert.Equal(t, 1, gate.handshakes)

	// Unlock is idempotent while editable.
	require.NoError(t, s.Unlock(context.Background()))
	assert.Equal(t, 1, gate.handshakes)
}

func TestUnlock_AbandonedHandshakeStaysViewing(t *testing.T) {
	gate := &fakeGate{}
	gate.failWith(dErrors.New(dErrors.CodeUnauthorized, "login abandoned"))
	s := openSession(t, memory.New(), gate)

	err := s.Unlock(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateViewing, s.State())
	assert.True(t, s.Locked())
	assert.Empty(t, s.Draft(), "no partial editing state after an abandoned login")
}

func TestAddComment_OnlyWhileEditable(t *testing.T) {
	s := openSession(t, memory.New(), &fakeGate{})

	err := s.AddComment("too early")
	require.Error(t, err)

	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("first comment"))
	require.Error(t, s.AddComment(""))

	draft := s.Draft()
	require.Len(t, draft, 1)
	assert.Equal(t, "first comment", draft[0].Text)
}

func TestSave_RoundTrip(t *testing.T) {
	st := memory.New()
	s := openSession(t, st, &fakeGate{})

	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("first"))
	require.NoError(t, s.Save(context.Background()))

	assert.Equal(t, StateViewing, s.State())
	a := s.Annotation()
	assert.Equal(t, int64(1), a.Version)
	require.Len(t, a.Comments, 1)

	stored, err := st.Fetch(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestSave_ConflictEntersSaveErrorWithServerContent(t *testing.T) {
	st := memory.New()
	s := openSession(t, st, &fakeGate{})
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("mine"))

	// Another writer lands first.
	_, err := st.Save(context.Background(), "f-1", []models.Comment{{Text: "theirs"}}, 0)
	require.NoError(t, err)

	err = s.Save(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, StateSaveError, s.State())

	conflict := s.Conflict()
	require.NotNil(t, conflict)
	assert.Equal(t, int64(1), conflict.Version)
	require.Len(t, conflict.Comments, 1)
	assert.Equal(t, "theirs", conflict.Comments[0].Text)

	// The draft survives for retry.
	draft := s.Draft()
	require.Len(t, draft, 1)
	assert.Equal(t, "mine", draft[0].Text)
}

func TestSave_ReconcileThenRetrySucceeds(t *testing.T) {
	st := memory.New()
	s := openSession(t, st, &fakeGate{})
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("mine"))

	_, err := st.Save(context.Background(), "f-1", []models.Comment{{Text: "theirs"}}, 0)
	require.NoError(t, err)
	require.Error(t, s.Save(context.Background()))

	require.NoError(t, s.Reconcile())
	assert.Equal(t, StateEditing, s.State())

	// The base version is now the server's; saving the draft succeeds.
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, int64(2), s.Annotation().Version)
}

func TestSave_RetryKeepsDraft(t *testing.T) {
	st := memory.New()
	s := openSession(t, st, &fakeGate{})
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("mine"))

	_, err := st.Save(context.Background(), "f-1", []models.Comment{{Text: "theirs"}}, 0)
	require.NoError(t, err)
	require.Error(t, s.Save(context.Background()))

	require.NoError(t, s.Retry())
	assert.Equal(t, StateEditing, s.State())
	require.Len(t, s.Draft(), 1)
}

func TestSave_ExpiredTokenForcesReauthentication(t *testing.T) {
	gate := &fakeGate{}
	s := openSession(t, memory.New(), gate)
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("late save"))
	require.Equal(t, 1, gate.handshakes)

	gate.invalidate()
	assert.True(t, s.Locked(), "lock snaps shut when the token dies")

	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 2, gate.handshakes, "save re-ran the handshake")
}

func TestSave_ReauthenticationRefusedReturnsToEditing(t *testing.T) {
	gate := &fakeGate{}
	s := openSession(t, memory.New(), gate)
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("kept"))

	gate.failWith(dErrors.New(dErrors.CodeUnauthorized, "login abandoned"))
	err := s.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateEditing, s.State())
	require.Len(t, s.Draft(), 1, "draft survives a refused re-login")
}

// slowStore delays Save until released, to hold a session in Saving.
type slowStore struct {
	store.Store
	release chan struct{}
}

func (s *slowStore) Save(ctx context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error) {
	<-s.release
	return s.Store.Save(ctx, featureID, comments, expectedVersion)
}

func TestClose_DuringSaveAdoptsVersionSilently(t *testing.T) {
	inner := memory.New()
	slow := &slowStore{Store: inner, release: make(chan struct{})}
	s := openSession(t, slow, &fakeGate{})
	require.NoError(t, s.Unlock(context.Background()))
	require.NoError(t, s.AddComment("in flight"))

	done := make(chan error, 1)
	go func() {
		done <- s.Save(context.Background())
	}()

	// Dismiss the dialog while the request is on the wire.
	time.Sleep(20 * time.Millisecond)
	s.Close()
	assert.Equal(t, StateClosed, s.State())

	close(slow.release)
	require.NoError(t, <-done)

	// The save completed in the background; the session stayed closed but
	// its cached annotation carries the new version.
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, int64(1), s.Annotation().Version)

	stored, err := inner.Fetch(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestSave_WithoutUnlockRejected(t *testing.T) {
	s := openSession(t, memory.New(), &fakeGate{})
	err := s.Save(context.Background())
	require.Error(t, err)
}
