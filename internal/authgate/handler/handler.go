package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"flatmaps/internal/authgate/github"
	jwttoken "flatmaps/internal/jwt_token"
	"flatmaps/internal/platform/metrics"
	"flatmaps/internal/platform/middleware"
	"flatmaps/pkg/platform/httputil"

	dErrors "flatmaps/pkg/domain-errors"
)

const (
	stateTTL   = 10 * time.Minute
	writeScope = "annotations:write"
)

// stateStore holds pending login nonces. Entries expire so an abandoned
// login never leaves a redeemable state behind.
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]time.Time)}
}

func (s *stateStore) issue() string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.states {
		if time.Now().After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = time.Now().Add(stateTTL)
	return state
}

func (s *stateStore) redeem(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	delete(s.states, state)
	return ok && time.Now().Before(exp)
}

// Handler serves the login handshake endpoints.
type Handler struct {
	provider *github.Provider
	jwt      *jwttoken.JWTService
	tokenTTL time.Duration
	states   *stateStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(provider *github.Provider, jwtSvc *jwttoken.JWTService, tokenTTL time.Duration, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		provider: provider,
		jwt:      jwtSvc,
		tokenTTL: tokenTTL,
		states:   newStateStore(),
		logger:   logger,
		metrics:  m,
	}
}

// Register mounts the public handshake routes. The session route is mounted
// separately behind RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/login", h.login)
	r.Get("/callback", h.callback)
}

// RegisterSession mounts the authenticated session introspection route.
func (h *Handler) RegisterSession(r chi.Router) {
	r.Get("/session", h.session)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	state := h.states.issue()
	http.Redirect(w, r, h.provider.AuthorizeURL(state), http.StatusFound)
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Subject     string   `json:"subject"`
	Scopes      []string `json:"scopes"`
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.metrics.IncLoginFailed()
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login was denied"))
		return
	}

	state := r.URL.Query().Get("state")
	if !h.states.redeem(state) {
		h.metrics.IncLoginFailed()
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown or expired login state"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.IncLoginFailed()
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing authorization code"))
		return
	}

	accessToken, err := h.provider.ExchangeCode(ctx, code)
	if err != nil {
		h.metrics.IncLoginFailed()
		h.logger.WarnContext(ctx, "code exchange failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err)
		httputil.WriteError(w, err)
		return
	}

	user, err := h.provider.FetchUser(ctx, accessToken)
	if err != nil {
		h.metrics.IncLoginFailed()
		h.logger.WarnContext(ctx, "user lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err)
		httputil.WriteError(w, err)
		return
	}

	sessionID := uuid.New()
	scopes := []string{writeScope}
	token, err := h.jwt.GenerateAccessToken(user.Login, sessionID, scopes, h.tokenTTL)
	if err != nil {
		h.metrics.IncLoginFailed()
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token"))
		return
	}

	h.metrics.IncLoginSucceeded()
	h.logger.InfoContext(ctx, "login completed",
		"request_id", middleware.GetRequestID(ctx),
		"subject", user.Login,
		"session_id", sessionID)

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
		Subject:     user.Login,
		Scopes:      scopes,
	})
}

type sessionResponse struct {
	Subject   string   `json:"subject"`
	SessionID string   `json:"session_id"`
	Scopes    []string `json:"scopes"`
	Device    string   `json:"device"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject := middleware.GetSubject(ctx)
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated session"))
		return
	}
	sessionID := middleware.GetSessionID(ctx)
	scopes := middleware.GetScopes(ctx)

	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		Subject:   subject,
		SessionID: sessionID,
		Scopes:    scopes,
		Device:    deviceSummary(r.UserAgent()),
	})
}

func deviceSummary(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	if summary == "" {
		return "unknown"
	}
	return summary
}
