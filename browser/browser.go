// Package browser defines the automation capabilities the scraper needs and a Chrome implementation.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a bounded wait elapses before the element appears.
var ErrTimeout = errors.New("timed out waiting for element")

// Session is a single-threaded browser automation handle. It is not safe for concurrent use.
//
// Elements are addressed by CSS selector plus an index into the matches and are
// resolved again on every call, so a DOM re-render between calls cannot leave the
// caller holding a stale handle.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches at least one element or timeout elapses (ErrTimeout).
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// WaitVisible is like WaitFor but also requires the element to be visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	SendKeys(ctx context.Context, selector, text string) error
	Submit(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// ClickNth dispatches a programmatic click on the nth match, which works even
	// when the element is covered by another one.
	ClickNth(ctx context.Context, selector string, n int) error
	Count(ctx context.Context, selector string) (int, error)
	AttributeNth(ctx context.Context, selector string, n int, name string) (string, bool, error)
	OuterHTML(ctx context.Context, selector string) (string, error)
	PageSource(ctx context.Context) (string, error)
	// OpenTab opens url in a new isolated tab. The session's own tab stays current.
	OpenTab(ctx context.Context, url string) (Tab, error)
	Close() error
}

// Tab is an isolated browsing context opened from a Session.
type Tab interface {
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	PageSource(ctx context.Context) (string, error)
	// Close closes the tab; control returns to the session's original tab.
	Close() error
}

// WithTab opens url in a new tab, runs fn, and always closes the tab before returning,
// including when fn fails or panics.
func WithTab(ctx context.Context, s Session, url string, fn func(Tab) error) (err error) {
	tab, err := s.OpenTab(ctx, url)
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	defer func() {
		if closeErr := tab.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close tab: %w", closeErr)
		}
	}()
	return fn(tab)
}
