// Package checkpoint tracks the highest source-document identifier a crawl has
// already processed and gates forward progress of the next crawl.
package checkpoint

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink reports the largest identifier already present in the persistent sink.
// A nil result means the sink holds no identifiers yet.
type Sink interface {
	MaxListingNumber(ctx context.Context) (*int64, error)
}

// Store is the local checkpoint store holding a single scalar.
type Store interface {
	// Read returns the stored value and whether one exists.
	Read(ctx context.Context) (int64, bool, error)
	Write(ctx context.Context, value int64) error
}

// Decision is the per-candidate outcome of a crawl step.
type Decision int

const (
	Continue Decision = iota
	Stop
)

// Controller holds the loaded checkpoint and the running maximum of the
// current run. Controller is safe for concurrent use.
type Controller struct {
	sink  Sink
	store Store

	mu         sync.Mutex
	loaded     bool
	checkpoint int64
	running    int64
	terminated bool
}

// New creates a Controller. Either collaborator may be nil.
func New(sink Sink, store Store) *Controller {
	return &Controller{sink: sink, store: store}
}

// Load resolves the starting checkpoint: the larger of the sink maximum and
// the local store, else 0. It never fails.
func (c *Controller) Load(ctx context.Context) int64 {
	log := zap.L().With(zap.String("component", "checkpoint"))

	value, source := c.resolve(ctx, log)

	c.mu.Lock()
	c.loaded = true
	c.checkpoint = value
	c.running = value
	c.terminated = false
	c.mu.Unlock()

	log.Info("checkpoint loaded", zap.Int64("checkpoint", value), zap.String("source", source))
	return value
}

// resolve consults the sink first. The local store still wins when it is
// ahead, since posts skipped by the crawl are only recorded there.
func (c *Controller) resolve(ctx context.Context, log *zap.Logger) (int64, string) {
	var (
		value  int64
		source = "default"
	)
	if c.sink != nil {
		top, err := c.sink.MaxListingNumber(ctx)
		switch {
		case err != nil:
			log.Warn("checkpoint: sink unavailable, falling back to local store", zap.Error(err))
		case top != nil:
			value, source = *top, "sink"
		}
	}
	if c.store != nil {
		v, ok, err := c.store.Read(ctx)
		switch {
		case err != nil:
			log.Warn("checkpoint: local store unreadable", zap.Error(err))
		case ok && (source == "default" || v > value):
			value, source = v, "local"
		}
	}
	return value, source
}

// Checkpoint returns the value loaded at the start of the run.
func (c *Controller) Checkpoint() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpoint
}

// Running returns the running maximum, never below the loaded checkpoint.
func (c *Controller) Running() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ShouldStop reports whether id was already processed by an earlier run.
func (c *Controller) ShouldStop(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id <= c.checkpoint
}

// Decide returns Stop for an already processed id and marks the run as
// terminated; otherwise Continue.
func (c *Controller) Decide(id int64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || id <= c.checkpoint {
		c.terminated = true
		return Stop
	}
	return Continue
}

// RecordVisited raises the in-memory running maximum. Nothing is persisted
// until Persist.
func (c *Controller) RecordVisited(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.running {
		c.running = id
	}
}

// Persist writes the running maximum to the local store, never lowering a
// value already stored there. A failure is logged and returned.
func (c *Controller) Persist(ctx context.Context) error {
	c.mu.Lock()
	value := c.running
	loaded := c.loaded
	c.terminated = true
	c.mu.Unlock()

	if c.store == nil || !loaded {
		return nil
	}
	if stored, ok, err := c.store.Read(ctx); err == nil && ok && stored > value {
		value = stored
	}
	if err := c.store.Write(ctx, value); err != nil {
		zap.L().Error("checkpoint: persist failed", zap.Int64("checkpoint", value), zap.Error(err))
		return err
	}
	zap.L().Info("checkpoint persisted", zap.Int64("checkpoint", value))
	return nil
}
