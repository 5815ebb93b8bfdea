package viewsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codexkit/folium/core/manifest"
	"github.com/codexkit/folium/internal/logging"
)

// Defaults for Config fields left zero.
const (
	DefaultReadingLineFraction = 0.15
	DefaultRetryAttempts       = 5
	DefaultRetryInterval       = time.Second
)

// Config tunes a Controller. The zero value gets the defaults.
type Config struct {
	// ReadingLineFraction places the reading line this far down the
	// viewport. The folio under that line is the "current" folio.
	ReadingLineFraction float64

	// RetryAttempts bounds how many times a command issued before the
	// viewer is ready is retried before being abandoned.
	RetryAttempts int

	// RetryInterval is the pause between retry attempts.
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadingLineFraction <= 0 {
		c.ReadingLineFraction = DefaultReadingLineFraction
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	return c
}

// Controller synchronizes the image viewer with the reading position.
//
// All exported methods are safe for concurrent use; a single mutex
// serializes state transitions, folio computation, and dispatch, so
// observer callbacks and user commands never interleave mid-transition.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	manifest *manifest.Manifest
	viewer   Viewer

	// currentFolio is the folio most recently computed from dividers.
	currentFolio string

	// dispatchedFolio is the folio most recently handed to dispatch.
	// Dedupe key: identical observer callbacks must not repeat commands.
	dispatchedFolio string
}

// NewController returns a Controller in StateUninitialized.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults()}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentFolio reports the folio last computed from observed dividers.
func (c *Controller) CurrentFolio() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentFolio
}

// Start begins synchronization. An empty manifest URL means the text has
// no facsimile and the controller stays uninitialized; that is not an
// error. A failed manifest fetch degrades the same way: the error is
// returned for logging and the controller falls back to uninitialized.
func (c *Controller) Start(ctx context.Context, manifestURL string, loader *manifest.Loader, attach func(*manifest.Manifest) (Viewer, error)) error {
	if manifestURL == "" {
		return nil
	}

	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return nil
	}
	c.state = StateAwaitingManifest
	c.mu.Unlock()

	m, err := loader.Get(ctx, manifestURL)
	if err != nil {
		c.mu.Lock()
		c.state = StateUninitialized
		c.mu.Unlock()
		return err
	}

	v, err := attach(m)
	if err != nil {
		c.mu.Lock()
		c.state = StateUninitialized
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.manifest = m
	c.viewer = v
	c.state = StateAwaitingViewerReady
	c.mu.Unlock()
	return nil
}

// ViewerReady signals that the viewer finished initializing. The first
// call moves the controller to StateSynced and force-dispatches the
// current folio to establish the starting page; later calls are no-ops.
func (c *Controller) ViewerReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingViewerReady {
		return
	}
	c.state = StateSynced
	logging.SyncEvent("viewer_ready", c.currentFolio)
	if c.currentFolio != "" {
		c.dispatchLocked(c.currentFolio, true)
	}
}

// ObserveDividers recomputes the current folio from divider layout. The
// current folio is the deepest divider whose top edge sits at or above
// the reading line; dividers are scanned top to bottom and the scan stops
// at the first divider below the line. When the folio changes while
// synced, the change is dispatched to the viewer exactly once.
func (c *Controller) ObserveDividers(dividers []Divider, viewport Viewport) {
	line := viewport.ReadingLine(c.cfg.ReadingLineFraction)

	sorted := make([]Divider, len(dividers))
	copy(sorted, dividers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	folio := ""
	for _, d := range sorted {
		if d.Top > line {
			break
		}
		folio = d.Folio
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if folio == "" {
		// Reading line above every divider: keep the previous folio.
		return
	}
	c.currentFolio = folio
	if c.state != StateSynced {
		return
	}
	c.dispatchLocked(folio, false)
}

// JumpToFolio navigates the viewer to a folio regardless of the current
// reading position — the reverse path, used when the reader picks a folio
// directly. The dispatch is always forced. Before the viewer is ready the
// command is queued and retried a bounded number of times, then silently
// abandoned.
func (c *Controller) JumpToFolio(folio string) {
	c.mu.Lock()
	if c.state == StateSynced {
		c.dispatchLocked(folio, true)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	go c.retryDispatch(folio)
}

// retryDispatch polls for readiness on behalf of a command that arrived
// before the viewer was up. Giving up is silent: the reader has usually
// scrolled on by then.
func (c *Controller) retryDispatch(folio string) {
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		time.Sleep(c.cfg.RetryInterval)
		c.mu.Lock()
		if c.state == StateSynced {
			c.dispatchLocked(folio, true)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
	logging.SyncEvent("command_abandoned", folio)
}

// dispatchLocked matches a folio to a canvas and commands the viewer.
// Callers hold c.mu. Non-forced dispatches dedupe against the previously
// dispatched folio. A folio with no matching canvas is recorded and
// skipped, so repeated observations of it stay quiet.
func (c *Controller) dispatchLocked(folio string, force bool) {
	if !force && folio == c.dispatchedFolio {
		return
	}
	c.dispatchedFolio = folio

	idx, ok := manifest.MatchFolio(folio, c.manifest.Canvases())
	if !ok {
		logging.SyncEvent("no_canvas_match", folio)
		return
	}
	if err := c.viewer.GoToPage(idx + 1); err != nil {
		logging.Warn("viewer command failed", "folio", folio, "page", idx+1, "error", err)
		return
	}
	logging.SyncEvent("go_to_page", folio)
}
