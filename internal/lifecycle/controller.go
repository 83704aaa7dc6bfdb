// Package lifecycle orchestrates loading map identifiers into panes: pane
// acquisition, asynchronous descriptor retrieval, supersession of in-flight
// loads, and completion callbacks.
package lifecycle

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flatmaps/internal/mapsource"
	"flatmaps/internal/pane"
	"flatmaps/internal/platform/metrics"
	dErrors "flatmaps/pkg/domain-errors"
	"flatmaps/pkg/platform/sentinel"
)

// Source retrieves map descriptors. Satisfied by *mapsource.Source.
type Source interface {
	Fetch(ctx context.Context, identifier string) (*mapsource.Descriptor, error)
}

// Callback receives the outcome of a load. It fires at most once, and never
// for a load that was superseded or whose pane was closed while in flight.
type Callback func(err error, h *Handle)

// Options configures a single load.
type Options struct {
	// Container routes the load to an external container instead of the
	// pane pool. Such handles are not tracked by the pool and cannot be
	// superseded.
	Container string

	// PaneIndex, when non-nil, requests a specific pane position per the
	// pool's AcquireAt policy.
	PaneIndex *int
}

// Load is the awaitable side of a load request. Wait resolves when the load
// settles; a superseded or cancelled load resolves with
// sentinel.ErrSuperseded (its callback stays suppressed).
type Load struct {
	handle *Handle
	done   chan struct{}
	err    error
}

// Handle returns the handle this load is producing. Valid immediately, in
// StateLoading until the load settles.
func (l *Load) Handle() *Handle {
	return l.handle
}

// Done is closed when the load settles.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the load settles or ctx is cancelled.
func (l *Load) Wait(ctx context.Context) (*Handle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		if l.err != nil {
			return nil, l.err
		}
		return l.handle, nil
	}
}

func (l *Load) settle(err error) {
	l.err = err
	close(l.done)
}

// Controller coordinates loads across the pool. One instance per viewer.
type Controller struct {
	source  Source
	pool    *pane.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewController wires a controller over the given pool and descriptor source.
func NewController(source Source, pool *pane.Pool, logger *slog.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		source:  source,
		pool:    pool,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("flatmaps/lifecycle"),
	}
}

// Load starts loading identifier into a pane (or an external container) and
// returns immediately. On success the callback receives (nil, handle); on
// failure (err, nil). Issuing a new load against a pane with an unresolved
// one cancels the older load: its callback never fires and its Wait resolves
// with sentinel.ErrSuperseded.
func (c *Controller) Load(ctx context.Context, identifier string, opts Options, cb Callback) (*Load, error) {
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "map identifier is required")
	}

	if opts.Container != "" {
		return c.loadExternal(ctx, identifier, opts.Container, cb), nil
	}

	var slot *pane.Slot
	if opts.PaneIndex != nil {
		s, err := c.pool.AcquireAt(*opts.PaneIndex)
		if err != nil {
			return nil, err
		}
		slot = s
	} else {
		slot = c.pool.Acquire()
	}

	loadCtx, cancel := context.WithCancel(ctx)
	gen := c.pool.BeginLoad(slot, cancel)

	handle := newHandle(identifier, slot, "")
	load := &Load{handle: handle, done: make(chan struct{})}
	c.metrics.IncLoadsStarted()

	go c.run(loadCtx, load, slot, gen, cb)
	return load, nil
}

func (c *Controller) run(ctx context.Context, load *Load, slot *pane.Slot, gen uint64, cb Callback) {
	handle := load.handle
	ctx, span := c.tracer.Start(ctx, "lifecycle.Load",
		trace.WithAttributes(
			attribute.String("flatmap.id", handle.identifier),
			attribute.Int("pane.index", slot.Index()),
		))
	defer span.End()

	desc, err := c.source.Fetch(ctx, handle.identifier)

	if ctx.Err() != nil {
		// Superseded by a newer load on this pane, or the pane was closed
		// while in flight. The callback must not fire.
		c.suppress(load, slot)
		return
	}

	if err != nil {
		handle.fail()
		c.pool.Abandon(slot, gen)
		c.metrics.IncLoadsFailed()
		c.logger.Warn("map load failed",
			"identifier", handle.identifier,
			"pane", slot.Index(),
			"error", err,
		)
		load.settle(err)
		if cb != nil {
			cb(err, nil)
		}
		return
	}

	handle.ready(desc)
	if !c.pool.Install(slot, gen, handle) {
		// The pane moved on between fetch completion and install.
		handle.Dispose()
		c.suppress(load, slot)
		return
	}

	c.metrics.IncLoadsSucceeded()
	c.logger.Info("map ready",
		"identifier", handle.identifier,
		"pane", slot.Index(),
	)
	load.settle(nil)
	if cb != nil {
		cb(nil, handle)
	}
}

func (c *Controller) suppress(load *Load, slot *pane.Slot) {
	load.handle.Dispose()
	c.metrics.IncLoadsSuperseded()
	c.logger.Debug("map load superseded",
		"identifier", load.handle.identifier,
		"pane", slot.Index(),
	)
	load.settle(sentinel.ErrSuperseded)
}

// loadExternal loads directly into an external container, bypassing pane
// allocation. The resulting handle is untracked: no supersession, no pool
// bookkeeping.
func (c *Controller) loadExternal(ctx context.Context, identifier, container string, cb Callback) *Load {
	handle := newHandle(identifier, nil, container)
	load := &Load{handle: handle, done: make(chan struct{})}
	c.metrics.IncLoadsStarted()

	go func() {
		ctx, span := c.tracer.Start(ctx, "lifecycle.LoadExternal",
			trace.WithAttributes(attribute.String("flatmap.id", identifier)))
		defer span.End()

		desc, err := c.source.Fetch(ctx, identifier)
		if err != nil {
			handle.fail()
			c.metrics.IncLoadsFailed()
			load.settle(err)
			if cb != nil {
				cb(err, nil)
			}
			return
		}
		handle.ready(desc)
		c.metrics.IncLoadsSucceeded()
		load.settle(nil)
		if cb != nil {
			cb(nil, handle)
		}
	}()
	return load
}
