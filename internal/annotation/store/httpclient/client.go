// Package httpclient is the viewer-side annotation store: it speaks the
// provenance service's HTTP API and translates its responses back into
// the store contract, so sessions work identically against a remote
// service or a local store.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	dErrors "flatmaps/pkg/domain-errors"
	"flatmaps/pkg/platform/sentinel"
)

// TokenSource supplies the bearer token for write requests. Reads are
// unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client implements store.Store over the annotation service HTTP API.
type Client struct {
	baseURL string
	mapID   string
	tokens  TokenSource
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// New constructs a client bound to one map. tokens may be nil for
// read-only use.
func New(baseURL, mapID string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		mapID:   mapID,
		tokens:  tokens,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(featureID string) string {
	return fmt.Sprintf("%s/flatmap/%s/annotations/%s",
		c.baseURL, url.PathEscape(c.mapID), url.PathEscape(featureID))
}

// Fetch retrieves the feature's annotation. The service never 404s for a
// known map, but a 404 still maps to sentinel.ErrNotFound for parity with
// the local stores.
func (c *Client) Fetch(ctx context.Context, featureID string) (*models.FeatureAnnotation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(featureID), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("annotation service unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var a models.FeatureAnnotation
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return nil, fmt.Errorf("decoding annotation: %w", err)
		}
		return &a, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("annotation for feature %q: %w", featureID, sentinel.ErrNotFound)
	default:
		return nil, fmt.Errorf("annotation fetch returned status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}

type saveRequest struct {
	Comments        []models.Comment `json:"comments"`
	ExpectedVersion int64            `json:"expected_version"`
}

type saveResponse struct {
	FeatureID string `json:"feature_id"`
	Version   int64  `json:"version"`
}

type errorResponse struct {
	Error       string                    `json:"error"`
	Description string                    `json:"error_description"`
	Details     *models.FeatureAnnotation `json:"details"`
}

// Save submits the comment set against expectedVersion. A 409 is decoded
// into a *store.ConflictError carrying the server's current annotation.
func (c *Client) Save(ctx context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error) {
	body, err := json.Marshal(saveRequest{
		Comments:        comments,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(featureID), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeUnauthorized, "no token for save")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("annotation service unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var sr saveResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return 0, fmt.Errorf("decoding save response: %w", err)
		}
		return sr.Version, nil
	case http.StatusConflict:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Details == nil {
			return 0, &store.ConflictError{Current: models.Empty(featureID)}
		}
		return 0, &store.ConflictError{Current: er.Details}
	case http.StatusUnauthorized:
		return 0, dErrors.New(dErrors.CodeUnauthorized, "save rejected: token invalid or expired")
	default:
		return 0, fmt.Errorf("annotation save returned status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
}

var _ store.Store = (*Client)(nil)
