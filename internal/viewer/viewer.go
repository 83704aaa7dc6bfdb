// Package viewer is the public entry point of the flat-map client: it wires
// configuration, owns the pane pool and lifecycle controller for one viewer
// instance, and tracks the handles currently open. Multiple viewers on one
// host page do not share state.
package viewer

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"flatmaps/internal/lifecycle"
	"flatmaps/internal/mapsource"
	"flatmaps/internal/pane"
	"flatmaps/internal/platform/metrics"
	dErrors "flatmaps/pkg/domain-errors"
)

// Options configures a viewer instance. Container is the host page element
// the viewer renders into and is required; Panes bounds the pane pool and
// defaults to 1 (single-pane behavior).
type Options struct {
	Container string
	Panes     int

	// Logger and Metrics default to a no-op logger and nil metrics.
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Source overrides descriptor retrieval, mainly for tests. Defaults to
	// an HTTP source against the server URL.
	Source lifecycle.Source
}

// LoadOptions configures a single LoadMap call.
type LoadOptions struct {
	// Container routes the load to an explicit external container instead
	// of the pane pool. The resulting handle is not tracked by the pool.
	Container string

	// PaneIndex requests a specific pane position.
	PaneIndex *int
}

// Viewer is the facade over the pane pool and lifecycle controller.
type Viewer struct {
	serverURL string
	opts      Options

	pool *pane.Pool
	ctrl *lifecycle.Controller

	mu      sync.Mutex
	handles map[uuid.UUID]*lifecycle.Handle
	closed  bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a viewer against the given map server.
func New(serverURL string, opts Options) (*Viewer, error) {
	if serverURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "server URL is required")
	}
	if opts.Container == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "container is required")
	}
	if opts.Panes == 0 {
		opts.Panes = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := pane.NewPool(opts.Panes, opts.Metrics)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		source = mapsource.New(serverURL, mapsource.WithMetrics(opts.Metrics))
	}

	return &Viewer{
		serverURL: serverURL,
		opts:      opts,
		pool:      pool,
		ctrl:      lifecycle.NewController(source, pool, opts.Logger, opts.Metrics),
		handles:   make(map[uuid.UUID]*lifecycle.Handle),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// LoadMap loads a map identifier into a pane chosen by the pool policy (or
// the external container named in opts) and returns the awaitable load. The
// callback fires once with the outcome unless the load is superseded or its
// pane closed first.
func (v *Viewer) LoadMap(ctx context.Context, identifier string, cb lifecycle.Callback, opts LoadOptions) (*lifecycle.Load, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeInvalidInput, "viewer has been shut down")
	}
	v.mu.Unlock()

	load, err := v.ctrl.Load(ctx, identifier, lifecycle.Options{
		Container: opts.Container,
		PaneIndex: opts.PaneIndex,
	}, cb)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.handles[load.Handle().ID()] = load.Handle()
	v.mu.Unlock()
	return load, nil
}

// ClosePane closes the pane at index: its occupant is disposed, an in-flight
// load cancelled, and the pane hidden until reused.
func (v *Viewer) ClosePane(index int) error {
	s := v.pool.Slot(index)
	if s == nil {
		return dErrors.New(dErrors.CodeNotFound, "no pane at that position")
	}
	v.pool.Close(s)
	return nil
}

// Panes reports how many panes have been created so far.
func (v *Viewer) Panes() int {
	return v.pool.Len()
}

// Handles returns the handles opened by this viewer, including closed ones
// not yet pruned.
func (v *Viewer) Handles() []*lifecycle.Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*lifecycle.Handle, 0, len(v.handles))
	for _, h := range v.handles {
		out = append(out, h)
	}
	return out
}

// Shutdown disposes every open handle and tears down the pool. The viewer
// rejects further loads.
func (v *Viewer) Shutdown() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	handles := make([]*lifecycle.Handle, 0, len(v.handles))
	for _, h := range v.handles {
		handles = append(handles, h)
	}
	v.handles = make(map[uuid.UUID]*lifecycle.Handle)
	v.mu.Unlock()

	v.pool.Teardown()
	for _, h := range handles {
		h.Dispose()
	}
}
