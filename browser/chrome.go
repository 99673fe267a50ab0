package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// Options configures the Chrome process.
type Options struct {
	ExecPath  string        // Chrome binary; empty lets chromedp find one
	UserAgent string        // Desktop UA; the portal serves a reduced page to headless defaults
	Width     int           // Window width in pixels
	Height    int           // Window height in pixels
	OpTimeout time.Duration // Upper bound for any single non-wait action
	Headful   bool          // Show the window (local debugging)
}

// DefaultUserAgent mimics a desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Chrome is a Session backed by a local Chrome process driven over the DevTools protocol.
type Chrome struct {
	ctx         context.Context // Context of the session's own tab
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger
	opTimeout   time.Duration
}

// NewChrome starts Chrome and opens the session tab. Close must be called to stop the process.
func NewChrome(ctx context.Context, opts Options, logger *slog.Logger) (*Chrome, error) {
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.OpTimeout == 0 {
		opts.OpTimeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
	)
	if opts.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("Chrome protocol error", "detail", fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the browser and must not carry a deadline,
	// otherwise the browser dies with the deadline.
	startTime := time.Now()
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Info("Chrome started", "duration_ms", time.Since(startTime).Milliseconds(), "headful", opts.Headful)

	return &Chrome{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
		opTimeout:   opts.OpTimeout,
	}, nil
}

// run executes actions against base, bounded by timeout and by cancellation of ctx.
func run(ctx, base context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(base, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// Navigate loads url in the session tab and waits for the load event.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := run(ctx, c.ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := run(ctx, c.ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) SendKeys(ctx context.Context, selector, text string) error {
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("send keys %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Submit(ctx context.Context, selector string) error {
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Submit(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) ClickNth(ctx context.Context, selector string, n int) error {
	q, err := json.Marshal(selector)
	if err != nil {
		return fmt.Errorf("encode selector: %w", err)
	}
	script := fmt.Sprintf(`(function() {
		const el = document.querySelectorAll(%s)[%d];
		if (!el) { return false; }
		el.click();
		return true;
	})()`, q, n)

	var clicked bool
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click %s[%d]: %w", selector, n, err)
	}
	if !clicked {
		return fmt.Errorf("click %s[%d]: no such element", selector, n)
	}
	return nil
}

func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	q, err := json.Marshal(selector)
	if err != nil {
		return 0, fmt.Errorf("encode selector: %w", err)
	}
	var n int
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%s).length", q), &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

type attributeResult struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

func (c *Chrome) AttributeNth(ctx context.Context, selector string, n int, name string) (string, bool, error) {
	q, err := json.Marshal(selector)
	if err != nil {
		return "", false, fmt.Errorf("encode selector: %w", err)
	}
	attr, err := json.Marshal(name)
	if err != nil {
		return "", false, fmt.Errorf("encode attribute: %w", err)
	}
	script := fmt.Sprintf(`(function() {
		const el = document.querySelectorAll(%s)[%d];
		if (!el || !el.hasAttribute(%s)) { return {found: false, value: ""}; }
		return {found: true, value: el.getAttribute(%s)};
	})()`, q, n, attr, attr)

	var res attributeResult
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return "", false, fmt.Errorf("attribute %s of %s[%d]: %w", name, selector, n, err)
	}
	return res.Value, res.Found, nil
}

func (c *Chrome) OuterHTML(ctx context.Context, selector string) (string, error) {
	var markup string
	if err := run(ctx, c.ctx, c.opTimeout, chromedp.OuterHTML(selector, &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html %s: %w", selector, err)
	}
	return markup, nil
}

func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	return pageSource(ctx, c.ctx, c.opTimeout)
}

func pageSource(ctx, base context.Context, timeout time.Duration) (string, error) {
	var markup string
	if err := run(ctx, base, timeout, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return markup, nil
}

// OpenTab opens url in a new tab of the same browser.
func (c *Chrome) OpenTab(ctx context.Context, url string) (Tab, error) {
	tabCtx, cancel := chromedp.NewContext(c.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("create tab: %w", err)
	}
	if err := run(ctx, tabCtx, c.opTimeout, chromedp.Navigate(url)); err != nil {
		cancel()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	c.logger.Debug("Tab opened", "url", url)
	return &chromeTab{ctx: tabCtx, cancel: cancel, opTimeout: c.opTimeout}, nil
}

// Close shuts down the browser process.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancelTab()
	c.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	c.logger.Info("Chrome stopped")
	return nil
}

type chromeTab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	opTimeout time.Duration
}

func (t *chromeTab) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := run(ctx, t.ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (t *chromeTab) PageSource(ctx context.Context) (string, error) {
	return pageSource(ctx, t.ctx, t.opTimeout)
}

// Close closes the tab. Cancelling a tab context created by chromedp.NewContext closes its target.
func (t *chromeTab) Close() error {
	t.cancel()
	return nil
}
