// Package pagecache maps page indexes to rendered bitmaps with an
// at-most-one-render-per-page guarantee. Each page moves through a small
// state machine (NotRequested -> Pending -> Ready | Failed); terminal states
// are never silently replaced, so a page is decoded at most once per session
// unless a failure is retried explicitly.
package pagecache

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
	"golang.org/x/sync/singleflight"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// DefaultScale is the oversampling factor applied to native page dimensions,
// producing crisp output at typical display densities.
const DefaultScale = 2.0

// State identifies where a page sits in its render lifecycle.
type State int

const (
	StateNotRequested State = iota
	StatePending
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotRequested:
		return "not-requested"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RenderedPage is the decoded bitmap for one page at the cache's fixed
// scale. It is owned by the cache once produced; callers must treat it as
// read-only.
type RenderedPage struct {
	PageIndex int
	Image     *image.RGBA
	Width     int
	Height    int
}

// Entry is the resolved view of one page's cache slot.
type Entry struct {
	State State
	Page  *RenderedPage // set when State is StateReady
	Err   error         // set when State is StateFailed
}

// Cache renders document pages on demand and keeps every result for the
// session. Concurrent requests for the same page share one underlying
// rasterize call.
type Cache struct {
	doc   pdfrenderer.Document
	scale float64

	mu      sync.Mutex
	entries map[int]*Entry

	group singleflight.Group
}

// New creates a cache over an open document. scale multiplies the native
// page dimensions before rasterizing; values <= 0 fall back to DefaultScale.
func New(doc pdfrenderer.Document, scale float64) *Cache {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Cache{
		doc:     doc,
		scale:   scale,
		entries: make(map[int]*Entry),
	}
}

// PageCount reports the page count of the underlying document.
func (c *Cache) PageCount() int {
	return c.doc.PageCount()
}

// GetOrRender returns the bitmap for a page, rendering it if this is the
// first request. A terminal entry (Ready or Failed) is returned as-is with
// no new decode work; concurrent callers for a Pending page all await the
// same in-flight render. An out-of-range index is rejected without creating
// an entry. Rendering is not cancellable once started; ctx only gates entry.
func (c *Cache) GetOrRender(ctx context.Context, pageIndex int) (*RenderedPage, error) {
	if pageIndex < 0 || pageIndex >= c.doc.PageCount() {
		return nil, fmt.Errorf("%w: page %d of %d", pdfrenderer.ErrPageOutOfRange, pageIndex, c.doc.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if entry, ok := c.entries[pageIndex]; ok && entry.State != StatePending {
		c.mu.Unlock()
		return entry.Page, entry.Err
	}
	if _, ok := c.entries[pageIndex]; !ok {
		c.entries[pageIndex] = &Entry{State: StatePending}
	}
	c.mu.Unlock()

	value, err, _ := c.group.Do(strconv.Itoa(pageIndex), func() (interface{}, error) {
		// A previous flight may have resolved this page between our
		// terminal check and joining the group; terminal entries win.
		c.mu.Lock()
		if entry, ok := c.entries[pageIndex]; ok && entry.State != StatePending {
			c.mu.Unlock()
			return entry.Page, entry.Err
		}
		c.mu.Unlock()

		rendered, renderErr := c.render(pageIndex)

		c.mu.Lock()
		if renderErr != nil {
			c.entries[pageIndex] = &Entry{State: StateFailed, Err: renderErr}
		} else {
			c.entries[pageIndex] = &Entry{State: StateReady, Page: rendered}
		}
		c.mu.Unlock()

		if renderErr != nil {
			Logger.Warn("Page render failed", "pageIndex", pageIndex, "error", renderErr)
			return nil, renderErr
		}
		Logger.Debug("Page rendered", "pageIndex", pageIndex,
			"width", rendered.Width, "height", rendered.Height)
		return rendered, nil
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value.(*RenderedPage), nil
}

// render performs the actual rasterization at the cache's fixed scale.
func (c *Cache) render(pageIndex int) (*RenderedPage, error) {
	width, height, err := c.doc.PageSize(pageIndex)
	if err != nil {
		return nil, err
	}
	targetWidth := int(width*c.scale + 0.5)
	targetHeight := int(height*c.scale + 0.5)

	img, err := c.doc.Rasterize(pageIndex, targetWidth, targetHeight)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &RenderedPage{
		PageIndex: pageIndex,
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// Retry clears a Failed entry and re-attempts the render. Failed is terminal
// only for automatic re-render avoidance; a manual retry may succeed if the
// earlier failure was transient. Pages in any other state behave exactly
// like GetOrRender.
func (c *Cache) Retry(ctx context.Context, pageIndex int) (*RenderedPage, error) {
	c.mu.Lock()
	if entry, ok := c.entries[pageIndex]; ok && entry.State == StateFailed {
		delete(c.entries, pageIndex)
		c.group.Forget(strconv.Itoa(pageIndex))
		Logger.Info("Retrying failed page", "pageIndex", pageIndex)
	}
	c.mu.Unlock()
	return c.GetOrRender(ctx, pageIndex)
}

// Lookup returns the current entry for a page without triggering a render.
func (c *Cache) Lookup(pageIndex int) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[pageIndex]; ok {
		return *entry
	}
	return Entry{State: StateNotRequested}
}

// Snapshot returns a point-in-time copy of every entry, keyed by page index.
// The presentation mapper reads from snapshots so that drawing never races
// cache transitions.
func (c *Cache) Snapshot() map[int]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[int]Entry, len(c.entries))
	for pageIndex, entry := range c.entries {
		snapshot[pageIndex] = *entry
	}
	return snapshot
}

// Len reports how many pages have an entry (pending or terminal).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InvalidateAll clears every entry. Used only when the underlying document
// is replaced or closed; page navigation never invalidates.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pageIndex := range c.entries {
		c.group.Forget(strconv.Itoa(pageIndex))
	}
	c.entries = make(map[int]*Entry)
	Logger.Info("Page cache invalidated")
}
