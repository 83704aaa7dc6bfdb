// Package mapsource retrieves flat-map descriptors from the map server.
// Duplicate concurrent fetches of the same identifier are collapsed into a
// single request.
package mapsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"flatmaps/internal/platform/metrics"
	dErrors "flatmaps/pkg/domain-errors"
	"flatmaps/pkg/platform/sentinel"
)

// Layer describes one selectable layer of a flat map.
type Layer struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Selectable  bool   `json:"selectable"`
}

// Descriptor is the server's description of a flat map: everything the
// lifecycle controller needs to initialize a pane, none of the tile data.
type Descriptor struct {
	ID      string            `json:"id"`
	Name    string            `json:"name,omitempty"`
	Taxon   string            `json:"taxon,omitempty"`
	Created string            `json:"created,omitempty"`
	Layers  []Layer           `json:"layers,omitempty"`
	Extras  map[string]string `json:"extras,omitempty"`
}

// Source fetches descriptors over HTTP.
type Source struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		s.client = c
	}
}

// WithTimeout bounds each descriptor request.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.timeout = d
	}
}

// WithMetrics records fetch latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

// New constructs a Source for the given map server base URL.
func New(baseURL string, opts ...Option) *Source {
	s := &Source{
		baseURL: baseURL,
		client:  http.DefaultClient,
		timeout: 30 * time.Second,
		tracer:  otel.Tracer("flatmaps/mapsource"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch retrieves the descriptor for identifier. Concurrent callers asking
// for the same identifier share one request; each caller still observes its
// own context cancellation.
func (s *Source) Fetch(ctx context.Context, identifier string) (*Descriptor, error) {
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "map identifier is required")
	}

	ctx, span := s.tracer.Start(ctx, "mapsource.Fetch",
		trace.WithAttributes(attribute.String("flatmap.id", identifier)))
	defer span.End()

	start := time.Now()
	// The shared flight is detached from the first caller's context so a
	// superseded load does not abort siblings waiting on the same result.
	ch := s.group.DoChan(identifier, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(fetchCtx, identifier)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		s.metrics.ObserveFetchDuration(time.Since(start))
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Descriptor), nil
	}
}

func (s *Source) fetch(ctx context.Context, identifier string) (*Descriptor, error) {
	url := fmt.Sprintf("%s/flatmap/%s", s.baseURL, identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build descriptor request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(
			fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err),
			dErrors.CodeUnavailable, "map server unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound,
			fmt.Sprintf("flatmap %q not known to server", identifier))
	case resp.StatusCode != http.StatusOK:
		return nil, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable,
			fmt.Sprintf("map server returned status %d", resp.StatusCode))
	}

	var desc Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed map descriptor")
	}
	if desc.ID == "" {
		desc.ID = identifier
	}
	return &desc, nil
}
