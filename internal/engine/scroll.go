package engine

import (
	"math"
	"sync"
)

// DefaultScrollThreshold is how close to the bottom, in pixels, the
// viewport must be for new content to auto-scroll it.
const DefaultScrollThreshold = 10

// Metrics describes the message viewport as reported by the UI.
type Metrics struct {
	ScrollHeight float64 `json:"scroll_height"`
	ScrollTop    float64 `json:"scroll_top"`
	ClientHeight float64 `json:"client_height"`
}

// ScrollPolicy decides whether appended content should scroll the
// message view. It scrolls when the viewer is already pinned near the
// bottom, or unconditionally on forced appends (own sends, history
// loads), so a reader scrolled up into history is never yanked down by
// streaming content.
type ScrollPolicy struct {
	mu        sync.Mutex
	threshold float64
	last      Metrics
	hasLast   bool
}

// NewScrollPolicy creates a policy with the default pixel threshold.
func NewScrollPolicy() *ScrollPolicy {
	return &ScrollPolicy{threshold: DefaultScrollThreshold}
}

// SetThreshold overrides the bottom-proximity threshold.
func (p *ScrollPolicy) SetThreshold(px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold = px
}

// UpdateMetrics records the viewport position reported by the UI.
func (p *ScrollPolicy) UpdateMetrics(m Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = m
	p.hasLast = true
}

// ShouldAutoScroll reports whether the given viewport is within the
// threshold of the bottom.
func (p *ScrollPolicy) ShouldAutoScroll(m Metrics) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.atBottom(m)
}

// OnContentAppended decides whether this append scrolls the view, based
// on the last reported viewport. With no metrics reported yet it
// defaults to scrolling.
func (p *ScrollPolicy) OnContentAppended(force bool) bool {
	if force {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		return true
	}
	return p.atBottom(p.last)
}

func (p *ScrollPolicy) atBottom(m Metrics) bool {
	return math.Abs(m.ScrollHeight-m.ScrollTop-m.ClientHeight) <= p.threshold
}
