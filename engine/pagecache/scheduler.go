package pagecache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scheduler orchestrates on-demand and speculative render requests against a
// Cache. Deduplication of overlapping requests falls out of the cache's
// one-render-per-page guarantee.
type Scheduler struct {
	cache *Cache
}

// NewScheduler creates a scheduler over a cache.
func NewScheduler(cache *Cache) *Scheduler {
	return &Scheduler{cache: cache}
}

// EnsureVisible populates a page before it is shown, blocking until the
// entry is terminal. Used for the initial page on document open.
func (s *Scheduler) EnsureVisible(ctx context.Context, pageIndex int) error {
	_, err := s.cache.GetOrRender(ctx, pageIndex)
	return err
}

// Prefetch populates a page in the background, ahead of need. A prefetch
// failure is recorded in the cache and surfaces later as a placeholder; it
// never reaches the caller and never aborts a transition. Out-of-range
// indexes are dropped silently.
func (s *Scheduler) Prefetch(pageIndex int) {
	if pageIndex < 0 || pageIndex >= s.cache.PageCount() {
		return
	}
	go func() {
		if _, err := s.cache.GetOrRender(context.Background(), pageIndex); err != nil {
			Logger.Warn("Prefetch failed", "pageIndex", pageIndex, "error", err)
		}
	}()
}

// WarmNeighbors renders every in-range page within radius of center,
// concurrently, and waits for them. Render failures stay local to their
// page; only context cancellation aborts the wait.
func (s *Scheduler) WarmNeighbors(ctx context.Context, center, radius int) error {
	if radius < 0 {
		return nil
	}
	eg, gctx := errgroup.WithContext(ctx)
	for p := center - radius; p <= center+radius; p++ {
		if p < 0 || p >= s.cache.PageCount() {
			continue
		}
		pageIndex := p
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := s.cache.GetOrRender(gctx, pageIndex); err != nil {
				Logger.Debug("Warmup render failed", "pageIndex", pageIndex, "error", err)
			}
			return nil
		})
	}
	return eg.Wait()
}
