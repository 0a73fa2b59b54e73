// Package scroll decides when a scrolling view is close enough to its end
// to request the next page.
package scroll

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultDebounce  = 250 * time.Millisecond
)

// Container is a scrollable view. Units are whatever the view scrolls in
// (rows for the terminal gallery).
type Container interface {
	ScrollOffset() int
	ViewportHeight() int
	ContentHeight() int
}

// LoadState is the part of a paginated store the trigger gates on
type LoadState struct {
	Loading     bool
	LoadingMore bool
	HasMore     bool
}

// Options configures a Trigger
type Options struct {
	Container Container
	State     func() LoadState // Read on every scroll event
	OnLoad    func()
	Threshold int
	Debounce  time.Duration
	Logger    *slog.Logger
}

// Trigger fires OnLoad when the container nears its end
type Trigger struct {
	container Container
	state     func() LoadState
	onLoad    func()
	threshold int
	debounce  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	enabled  bool
	stopped  bool
	lastFire time.Time
}

// NewTrigger creates an enabled trigger
func NewTrigger(opts Options) *Trigger {
	if opts.Threshold < 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trigger{
		container: opts.Container,
		state:     opts.State,
		onLoad:    opts.OnLoad,
		threshold: opts.Threshold,
		debounce:  opts.Debounce,
		logger:    opts.Logger,
		now:       time.Now,
		enabled:   true,
	}
}

// SetEnabled toggles the trigger without tearing it down
func (t *Trigger) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop disables the trigger permanently
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// NearEnd reports whether the viewport is within the threshold of the content end
func (t *Trigger) NearEnd() bool {
	content := t.container.ContentHeight()
	viewport := t.container.ViewportHeight()
	if content <= 0 || viewport <= 0 {
		return false
	}
	remaining := content - (t.container.ScrollOffset() + viewport)
	return remaining <= t.threshold
}

// OnScroll evaluates the current position and fires OnLoad when appropriate.
// It reports whether OnLoad was called.
func (t *Trigger) OnScroll() bool {
	t.mu.Lock()
	if t.stopped || !t.enabled || !t.NearEnd() {
		t.mu.Unlock()
		return false
	}

	st := t.state()
	if st.Loading || st.LoadingMore || !st.HasMore {
		t.mu.Unlock()
		return false
	}

	now := t.now()
	if !t.lastFire.IsZero() && now.Sub(t.lastFire) < t.debounce {
		t.mu.Unlock()
		return false
	}
	t.lastFire = now
	t.mu.Unlock()

	t.logger.Debug("scroll threshold reached, loading more")
	t.onLoad()
	return true
}
