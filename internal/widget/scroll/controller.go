// Package scroll keeps a chat transcript pinned to its newest message unless
// the reader has scrolled up.
package scroll

import "sync"

// DefaultThreshold is how close to the bottom, in viewport units, still
// counts as being at the bottom.
const DefaultThreshold = 100

// Viewport is the scrollable area the controller drives.
type Viewport interface {
	ScrollHeight() int
	ScrollTop() int
	ClientHeight() int
	ScrollTo(top int)
}

// Controller tracks whether the viewport is near the bottom and whether new
// messages should scroll it there.
type Controller struct {
	Threshold int

	mu         sync.Mutex
	viewport   Viewport
	pinned     bool
	autoScroll bool
}

// New returns a controller for vp. vp may be nil until the view mounts.
func New(vp Viewport) *Controller {
	return &Controller{
		Threshold:  DefaultThreshold,
		viewport:   vp,
		pinned:     true,
		autoScroll: true,
	}
}

// SetViewport attaches or detaches the viewport.
func (c *Controller) SetViewport(vp Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = vp
}

// Pinned reports whether the viewport was near the bottom at the last scroll.
func (c *Controller) Pinned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// AutoScroll reports whether new messages scroll the viewport.
func (c *Controller) AutoScroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoScroll
}

// OnScroll is called after the user scrolled. Leaving the bottom turns
// auto-scroll off; coming back within the threshold turns it on again.
func (c *Controller) OnScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewport == nil {
		return
	}
	c.pinned = c.nearBottom()
	c.autoScroll = c.pinned
}

// OnMessagesChanged scrolls to the bottom when auto-scroll is on.
func (c *Controller) OnMessagesChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewport == nil || !c.autoScroll {
		return false
	}
	c.scrollToBottom()
	return true
}

// ScrollToBottom scrolls regardless of the auto-scroll flag.
func (c *Controller) ScrollToBottom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewport == nil {
		return
	}
	c.scrollToBottom()
	c.pinned = true
	c.autoScroll = true
}

func (c *Controller) scrollToBottom() {
	c.viewport.ScrollTo(c.viewport.ScrollHeight())
}

func (c *Controller) nearBottom() bool {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	distance := c.viewport.ScrollHeight() - c.viewport.ScrollTop() - c.viewport.ClientHeight()
	return distance < threshold
}
