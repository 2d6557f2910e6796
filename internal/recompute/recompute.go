// Package recompute turns state-change events into debounced, per-asset
// recomputation requests. Bursts of events for one asset collapse into a
// single pass; overlapping passes for the same fingerprint coalesce inside
// the cache layer.
package recompute

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finwatch/portfolio-engine/utils"
)

// Recomputer runs one invalidate-and-recompute pass for an asset.
type Recomputer interface {
	InvalidateAndRecompute(ctx context.Context, assetID string) error
}

type Coalescer struct {
	target Recomputer
	window time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewCoalescer(target Recomputer, window time.Duration) *Coalescer {
	return &Coalescer{
		target:  target,
		window:  window,
		pending: make(map[string]*time.Timer),
	}
}

// AssetChanged signals that an asset definition was updated (market refresh
// or manual edit).
func (c *Coalescer) AssetChanged(assetID string) {
	c.schedule(assetID)
}

// TransactionAdded signals that the asset's transaction log grew.
func (c *Coalescer) TransactionAdded(assetID string) {
	c.schedule(assetID)
}

// schedule arms (or re-arms) the debounce timer for an asset. Events inside
// the window reset it, so a burst ends in exactly one recompute pass.
func (c *Coalescer) schedule(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	if timer, ok := c.pending[assetID]; ok {
		timer.Reset(c.window)
		return
	}

	c.pending[assetID] = time.AfterFunc(c.window, func() {
		c.fire(assetID)
	})
}

func (c *Coalescer) fire(assetID string) {
	c.mu.Lock()
	delete(c.pending, assetID)
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}

	ctx := utils.NewCtxWithRqID()
	if err := c.target.InvalidateAndRecompute(ctx, assetID); err != nil {
		slog.Error("recompute pass failed",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
			slog.String("assetID", assetID),
			slog.String("err", err.Error()))
	}
}

// Stop cancels all pending timers. Events arriving after Stop are dropped.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for assetID, timer := range c.pending {
		timer.Stop()
		delete(c.pending, assetID)
	}
}
