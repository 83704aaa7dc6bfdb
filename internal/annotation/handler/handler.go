// Package handler exposes the annotation service over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/service"
	"flatmaps/internal/platform/middleware"
	"flatmaps/pkg/platform/httputil"

	dErrors "flatmaps/pkg/domain-errors"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterPublic mounts the read route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/flatmap/{mapID}/annotations/{featureID}", h.fetch)
}

// RegisterProtected mounts the write route; callers wrap it in RequireAuth.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Put("/flatmap/{mapID}/annotations/{featureID}", h.save)
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	featureID := chi.URLParam(r, "featureID")

	a, err := h.svc.Fetch(ctx, featureID)
	if err != nil {
		h.logger.ErrorContext(ctx, "annotation fetch failed",
			"request_id", middleware.GetRequestID(ctx),
			"feature_id", featureID,
			"error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// saveRequest is the PUT body. The author is taken from the bearer token,
// never from the payload.
type saveRequest struct {
	Comments        []models.Comment `json:"comments"`
	ExpectedVersion int64            `json:"expected_version"`
}

type saveResponse struct {
	FeatureID string `json:"feature_id"`
	Version   int64  `json:"version"`
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	featureID := chi.URLParam(r, "featureID")

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	version, err := h.svc.Save(ctx, service.SaveRequest{
		FeatureID:       featureID,
		Author:          middleware.GetSubject(ctx),
		Comments:        req.Comments,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			h.logger.ErrorContext(ctx, "annotation save failed",
				"request_id", middleware.GetRequestID(ctx),
				"feature_id", featureID,
				"error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, saveResponse{
		FeatureID: featureID,
		Version:   version,
	})
}
