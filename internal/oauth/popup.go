package oauth

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/timmy/hubexport/internal/logger"
)

// Rect is a window position and size in screen pixels.
type Rect struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// CenterPopup returns a width×height rect centered on parent. A popup larger
// than its parent is pinned to the parent's top-left corner.
func CenterPopup(parent Rect, width, height int) Rect {
	left := parent.Left + (parent.Width-width)/2
	top := parent.Top + (parent.Height-height)/2
	if left < parent.Left {
		left = parent.Left
	}
	if top < parent.Top {
		top = parent.Top
	}
	return Rect{Left: left, Top: top, Width: width, Height: height}
}

// Popup is an open authorization window.
type Popup interface {
	// Closed is closed once the window goes away for any reason.
	Closed() <-chan struct{}
	// Close closes the window. Safe to call more than once.
	Close() error
}

// Opener opens the authorization window at url with the given geometry.
type Opener interface {
	Open(ctx context.Context, url string, geometry Rect) (Popup, error)
}

// BrowserOpener opens the system browser. The browser cannot be observed
// directly, so the window counts as closed when the redirect target page
// reports its own unload through NotifyClosed.
type BrowserOpener struct {
	launch func(url string) error

	mu      sync.Mutex
	current *browserPopup
}

// NewBrowserOpener creates an opener. When launch is false the URL is only
// logged, for headless hosts where the user copies it by hand.
func NewBrowserOpener(launch bool) *BrowserOpener {
	o := &BrowserOpener{launch: openInBrowser}
	if !launch {
		o.launch = func(url string) error {
			logger.Info("Open this URL to authorize: %s", url)
			return nil
		}
	}
	return o
}

// Open launches the browser and tracks the resulting window.
func (o *BrowserOpener) Open(ctx context.Context, url string, geometry Rect) (Popup, error) {
	p := &browserPopup{closed: make(chan struct{}), owner: o}

	o.mu.Lock()
	if o.current != nil {
		o.current.markClosed()
	}
	o.current = p
	o.mu.Unlock()

	logger.CtxDebug(ctx, "Opening authorization window at %dx%d+%d+%d",
		geometry.Width, geometry.Height, geometry.Left, geometry.Top)

	if err := o.launch(url); err != nil {
		p.markClosed()
		return nil, fmt.Errorf("open browser: %w", err)
	}
	return p, nil
}

// NotifyClosed marks the current window closed.
func (o *BrowserOpener) NotifyClosed() {
	o.mu.Lock()
	p := o.current
	o.current = nil
	o.mu.Unlock()

	if p != nil {
		p.markClosed()
	}
}

type browserPopup struct {
	once   sync.Once
	closed chan struct{}
	owner  *BrowserOpener
}

func (p *browserPopup) Closed() <-chan struct{} { return p.closed }

func (p *browserPopup) Close() error {
	p.owner.mu.Lock()
	if p.owner.current == p {
		p.owner.current = nil
	}
	p.owner.mu.Unlock()
	p.markClosed()
	return nil
}

func (p *browserPopup) markClosed() {
	p.once.Do(func() { close(p.closed) })
}

func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
