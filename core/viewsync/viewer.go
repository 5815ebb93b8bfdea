// Package viewsync keeps the manuscript image viewer on the page the reader
// is looking at. It observes folio-divider visibility in the reading pane,
// computes the current folio against a configurable reading line, matches
// the folio to a manifest canvas, and commands the viewer — with queued,
// bounded retries around viewer startup so a racing click is not dropped.
package viewsync

// Viewer is the adapter boundary over a third-party image viewer.
// Implementations wrap whatever transport reaches the real viewer
// (a websocket to the reading client, a test fake).
type Viewer interface {
	// GoToPage turns the viewer to a page. Pages are addressed 1-based.
	GoToPage(n int) error

	// CurrentPage reports the page the viewer is showing, if known.
	CurrentPage() (int, bool)
}

// State is the synchronization lifecycle state.
type State int

const (
	// StateUninitialized means no manifest URL was supplied; synchronization
	// is optional and the controller stays here permanently in that case.
	StateUninitialized State = iota

	// StateAwaitingManifest means the manifest fetch is in flight.
	StateAwaitingManifest

	// StateAwaitingViewerReady means the viewer is constructed but has not
	// signalled readiness.
	StateAwaitingViewerReady

	// StateSynced means the viewer is ready and folio changes drive it.
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingManifest:
		return "awaiting_manifest"
	case StateAwaitingViewerReady:
		return "awaiting_viewer_ready"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Divider is one folio divider as laid out in the reading pane.
type Divider struct {
	// Folio is the folio identifier the divider carries.
	Folio string

	// Top is the vertical position of the divider's top edge, in the same
	// coordinate space as the viewport.
	Top float64
}

// Viewport describes the visible region of the reading pane.
type Viewport struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// ReadingLine returns the absolute position of the reading line for the
// given fraction (0.15 puts it 15% down from the viewport top).
func (v Viewport) ReadingLine(fraction float64) float64 {
	return v.Top + v.Height*fraction
}
