package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const fixturePage = `<!DOCTYPE html>
<html><body>
<ul id="dates">
  <li class="date" data-date="01/01/2020">old</li>
  <li class="date active" data-date="15/10/2026">today</li>
</ul>
<div id="out"></div>
<script>
document.querySelectorAll('.date').forEach(function(el) {
  el.addEventListener('click', function() {
    document.getElementById('out').innerHTML = '<a class="picked" href="/event/' + el.dataset.date.replace(/\//g, '-') + '">x</a>';
  });
});
</script>
</body></html>`

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// TestChromeSession drives a real browser against a local page.
func TestChromeSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	chromePath := findChrome()
	if chromePath == "" {
		t.Skip("no Chrome binary found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if strings.HasPrefix(r.URL.Path, "/event/") {
			fmt.Fprintf(w, "<html><body><h1>%s</h1></body></html>", r.URL.Path)
			return
		}
		fmt.Fprint(w, fixturePage)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()

	c, err := NewChrome(ctx, Options{ExecPath: chromePath, OpTimeout: 20 * time.Second}, logger)
	if err != nil {
		t.Fatalf("NewChrome() error = %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if err := c.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if err := c.WaitFor(ctx, "#dates", 5*time.Second); err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}

	n, err := c.Count(ctx, "li.date")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	date, ok, err := c.AttributeNth(ctx, "li.date", 1, "data-date")
	if err != nil || !ok || date != "15/10/2026" {
		t.Errorf("AttributeNth() = %q, %v, %v", date, ok, err)
	}
	if _, ok, err := c.AttributeNth(ctx, "li.date", 5, "data-date"); err != nil || ok {
		t.Errorf("AttributeNth() on missing element = %v, %v", ok, err)
	}

	if err := c.ClickNth(ctx, "li.date", 0); err != nil {
		t.Fatalf("ClickNth() error = %v", err)
	}
	if err := c.WaitVisible(ctx, "#out a.picked", 5*time.Second); err != nil {
		t.Fatalf("WaitVisible() error = %v", err)
	}
	panel, err := c.OuterHTML(ctx, "#out")
	if err != nil {
		t.Fatalf("OuterHTML() error = %v", err)
	}
	if !strings.Contains(panel, `/event/01-01-2020`) {
		t.Errorf("panel markup missing clicked link: %s", panel)
	}

	err = c.WaitFor(ctx, "#never-there", 300*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitFor() on missing element error = %v, want ErrTimeout", err)
	}

	err = WithTab(ctx, c, srv.URL+"/event/42", func(tab Tab) error {
		if err := tab.WaitFor(ctx, "body", 5*time.Second); err != nil {
			return err
		}
		src, err := tab.PageSource(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(src, "/event/42") {
			t.Errorf("tab page source = %s", src)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTab() error = %v", err)
	}

	// The session tab is still the original page.
	src, err := c.PageSource(ctx)
	if err != nil {
		t.Fatalf("PageSource() error = %v", err)
	}
	if !strings.Contains(src, `id="dates"`) {
		t.Error("session tab should still show the original page after the tab closes")
	}
}
