// Package annotation implements the feature annotation protocol: the
// per-feature session state machine driving the view/authenticate/edit/save
// cycle, with optimistic-concurrency saves against a provenance store.
package annotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/internal/authgate"
	dErrors "flatmaps/pkg/domain-errors"
	"flatmaps/pkg/platform/sentinel"
)

// SessionState tracks the annotation dialog through its protocol.
type SessionState int

const (
	StateViewing SessionState = iota
	StateAuthenticating
	StateEditing
	StateSaving
	StateSaveError
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateAuthenticating:
		return "authenticating"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateSaveError:
		return "save_error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gate is the authentication surface a session consults before permitting
// edits. Satisfied by *authgate.Gate.
type Gate interface {
	EnsureToken(ctx context.Context) (authgate.Token, error)
	Valid() bool
}

// Session is one feature's annotation dialog, opened by Alt-clicking the
// feature. It starts in Viewing with the feature's current comments (or the
// empty view) and moves through Authenticating, Editing and Saving as the
// user interacts with the lock affordance.
//
// All methods are safe for concurrent use; the save round trip runs without
// holding the session mutex so Close stays responsive.
type Session struct {
	featureID string
	store     store.Store
	gate      Gate
	logger    *slog.Logger

	mu         sync.Mutex
	state      SessionState
	annotation *models.FeatureAnnotation
	draft      []models.Comment
	conflict   *models.FeatureAnnotation
	lastErr    error
}

// Open fetches the feature's annotation and returns a session in Viewing.
// A feature with no prior comments opens silently on the empty view.
func Open(ctx context.Context, featureID string, st store.Store, gate Gate, logger *slog.Logger) (*Session, error) {
	if featureID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feature id is required")
	}

	a, err := st.Fetch(ctx, featureID)
	if errors.Is(err, sentinel.ErrNotFound) {
		a = models.Empty(featureID)
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open annotation session")
	}

	return &Session{
		featureID:  featureID,
		store:      st,
		gate:       gate,
		logger:     logger,
		state:      StateViewing,
		annotation: a,
	}, nil
}

// State returns the session's current protocol state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Annotation returns the last server content the session has seen.
func (s *Session) Annotation() *models.FeatureAnnotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotation.Clone()
}

// Locked reports the padlock projection: closed (read-only) unless the
// session has reached an editable state with a valid token.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.editableLocked() || !s.gate.Valid()
}

func (s *Session) editableLocked() bool {
	return s.state == StateEditing || s.state == StateSaving || s.state == StateSaveError
}

// Unlock is the lock-affordance interaction: it authenticates (resolving
// immediately on a cached token) and enters Editing. An abandoned or denied
// handshake leaves the session locked in Viewing with no partial state.
func (s *Session) Unlock(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateEditing, StateSaving, StateSaveError:
		s.mu.Unlock()
		return nil
	case StateClosed:
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidInput, "session is closed")
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	_, err := s.gate.EnsureToken(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if err != nil {
		s.state = StateViewing
		s.logger.InfoContext(ctx, "annotation unlock refused",
			"feature_id", s.featureID,
			"error", err,
		)
		return err
	}

	s.state = StateEditing
	if s.draft == nil {
		s.draft = make([]models.Comment, len(s.annotation.Comments))
		copy(s.draft, s.annotation.Comments)
	}
	return nil
}

// AddComment appends a draft comment. Only legal while editable; no network
// activity happens while editing.
func (s *Session) AddComment(text string) error {
	if text == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "comment text is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editableLocked() {
		return dErrors.New(dErrors.CodeInvalidInput, "session is read-only")
	}
	s.draft = append(s.draft, models.Comment{Text: text})
	return nil
}

// Draft returns the working comment set.
func (s *Session) Draft() []models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Comment, len(s.draft))
	copy(out, s.draft)
	return out
}

// Save submits the draft with the session's last-known version.
//
// An expired or invalidated token forces re-authentication here (EnsureToken
// runs the handshake again) rather than failing silently. On a version
// mismatch the session enters SaveError carrying the server's current
// content; on transport failure it enters SaveError with the draft
// preserved. A session dismissed mid-save lets the request finish in the
// background and silently adopts the new version.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEditing && s.state != StateSaveError {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidInput, "nothing to save in state "+s.state.String())
	}
	s.state = StateSaving
	draft := make([]models.Comment, len(s.draft))
	copy(draft, s.draft)
	expected := s.annotation.Version
	s.mu.Unlock()

	if _, err := s.gate.EnsureToken(ctx); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateSaving {
			s.state = StateEditing
		}
		return err
	}

	newVersion, err := s.store.Save(ctx, s.featureID, draft, expected)

	s.mu.Lock()
	defer s.mu.Unlock()

	closed := s.state == StateClosed

	if err != nil {
		if closed {
			return err
		}
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			s.state = StateSaveError
			s.conflict = conflict.Current
			s.lastErr = err
			return dErrors.New(dErrors.CodeConflict, "annotation was modified by another writer").
				WithDetails(conflict.Current)
		}
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.state = StateSaveError
			if current, ok := dErrors.DetailsOf(err).(*models.FeatureAnnotation); ok {
				s.conflict = current
			}
			s.lastErr = err
			return err
		}
		s.state = StateSaveError
		s.lastErr = err
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "annotation save failed; retry")
	}

	s.annotation = &models.FeatureAnnotation{
		FeatureID: s.featureID,
		Comments:  draft,
		Version:   newVersion,
	}
	s.conflict = nil
	s.lastErr = nil
	if !closed {
		s.state = StateViewing
		s.draft = nil
	}
	return nil
}

// Conflict returns the server content attached to the latest version
// mismatch, nil outside SaveError.
func (s *Session) Conflict() *models.FeatureAnnotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict.Clone()
}

// Retry returns from SaveError to Editing with the draft intact so no input
// is lost.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSaveError {
		return dErrors.New(dErrors.CodeInvalidInput, "nothing to retry in state "+s.state.String())
	}
	s.state = StateEditing
	return nil
}

// Reconcile adopts the server's conflicting content as the session's base
// version and returns to Editing; the draft is preserved for the user to
// merge.
func (s *Session) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSaveError || s.conflict == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "no conflict to reconcile")
	}
	s.annotation = s.conflict
	s.conflict = nil
	s.state = StateEditing
	return nil
}

// Close dismisses the dialog from any state, abandoning unsaved edits. A
// save already submitted is not cancelled; it completes in the background
// and updates the cached version silently.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
