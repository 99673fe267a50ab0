package poll

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"psut-lecture-notifier/browser"
	"psut-lecture-notifier/extract"
	"psut-lecture-notifier/pkg/lecture"
	"psut-lecture-notifier/storage"
)

type fakeSession struct {
	browser.Session
	closed int
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeDiscoverer struct {
	hrefs []string
	err   error
}

func (d *fakeDiscoverer) Discover(context.Context, browser.Session) ([]string, error) {
	return d.hrefs, d.err
}

// fakeExtractor returns one record per href, keyed by the href.
type fakeExtractor struct {
	err   error
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, _ browser.Session, hrefs []string) ([]*lecture.Record, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	var out []*lecture.Record
	for _, h := range hrefs {
		out = append(out, &lecture.Record{Title: lecture.String("Lecture"), SourceURL: h})
	}
	return out, nil
}

type fakeNotifier struct {
	ok    bool
	calls [][]*lecture.Record
}

func (n *fakeNotifier) Notify(_ context.Context, records []*lecture.Record) (string, bool) {
	n.calls = append(n.calls, records)
	if !n.ok {
		return "Failed to send email: status 500: upstream down", false
	}
	return "Email sent", true
}

type failingStore struct {
	state lecture.State
	saves int
}

func (s *failingStore) Load(context.Context) lecture.State { return s.state }

func (s *failingStore) Save(context.Context, lecture.State) error {
	s.saves++
	return lecture.NewError(lecture.KindPersistence, "save state", errors.New("bucket unavailable"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type harness struct {
	session    *fakeSession
	discoverer *fakeDiscoverer
	extractor  *fakeExtractor
	notifier   *fakeNotifier
	store      *storage.Store
	opens      int
}

func newHarness(t *testing.T, hrefs []string) *harness {
	t.Helper()
	return &harness{
		session:    &fakeSession{},
		discoverer: &fakeDiscoverer{hrefs: hrefs},
		extractor:  &fakeExtractor{},
		notifier:   &fakeNotifier{ok: true},
		store:      storage.New(nil, "", t.TempDir(), "", testLogger()),
	}
}

func (h *harness) monitor(validate func() error) *Monitor {
	return New(Deps{
		Validate: validate,
		Open: func(context.Context) (browser.Session, error) {
			h.opens++
			return h.session, nil
		},
		Discoverer: h.discoverer,
		Extractor:  h.extractor,
		Store:      h.store,
		Notifier:   h.notifier,
	}, testLogger())
}

func TestRunNotifiesAndPersists(t *testing.T) {
	h := newHarness(t, []string{"https://portal/1", "https://portal/2"})
	ctx := context.Background()

	out := h.monitor(nil).Run(ctx)
	if !out.Success() || out.State != StateDone || out.Status != StatusNotified {
		t.Fatalf("Run() = %+v, want notified", out)
	}
	if out.New != 2 || !out.Persisted {
		t.Errorf("Run() new = %d persisted = %v", out.New, out.Persisted)
	}
	if got := h.store.Load(ctx); !got.Has("https://portal/1") || !got.Has("https://portal/2") {
		t.Errorf("state after run = %v", got)
	}
	if h.session.closed != 1 {
		t.Errorf("session closed %d times, want 1", h.session.closed)
	}
}

func TestRunSecondIdenticalRunSendsNothing(t *testing.T) {
	h := newHarness(t, []string{"https://portal/1", "https://portal/2"})
	ctx := context.Background()
	m := h.monitor(nil)

	if out := m.Run(ctx); out.Status != StatusNotified {
		t.Fatalf("first Run() = %+v", out)
	}
	out := m.Run(ctx)
	if out.Status != StatusNoNewLectures || !out.Success() {
		t.Errorf("second Run() = %+v, want no new lectures", out)
	}
	if len(h.notifier.calls) != 1 {
		t.Errorf("notifier called %d times, want 1", len(h.notifier.calls))
	}
}

func TestRunNotifyFailureKeepsState(t *testing.T) {
	h := newHarness(t, []string{"https://portal/old"})
	ctx := context.Background()

	if out := h.monitor(nil).Run(ctx); out.Status != StatusNotified {
		t.Fatalf("seed Run() = %+v", out)
	}
	before := h.store.Load(ctx)

	h.discoverer.hrefs = []string{"https://portal/old", "https://portal/new"}
	h.notifier.ok = false
	out := h.monitor(nil).Run(ctx)

	if out.Success() || out.Status != StatusNotifyFailed || out.State != StateDone {
		t.Errorf("Run() = %+v, want DONE with notify failure", out)
	}
	if !lecture.IsKind(out.Err, lecture.KindDelivery) {
		t.Errorf("error kind = %v, want delivery", out.Err)
	}
	if !strings.Contains(out.Message, "status 500") {
		t.Errorf("message = %q, want delivery detail", out.Message)
	}
	after := h.store.Load(ctx)
	if len(after) != len(before) || after.Has("https://portal/new") {
		t.Errorf("state changed after failed notification: before %v after %v", before, after)
	}

	// The next successful run picks the same lecture up again.
	h.notifier.ok = true
	out = h.monitor(nil).Run(ctx)
	if out.Status != StatusNotified || out.New != 1 {
		t.Errorf("retry Run() = %+v, want one new lecture", out)
	}
	last := h.notifier.calls[len(h.notifier.calls)-1]
	if len(last) != 1 || last[0].SourceURL != "https://portal/new" {
		t.Errorf("retry notified %v", last)
	}
}

func TestRunNoLinks(t *testing.T) {
	h := newHarness(t, nil)
	out := h.monitor(nil).Run(context.Background())
	if out.Status != StatusNoLectures || !out.Success() || out.Message != "No lectures found" {
		t.Errorf("Run() = %+v, want no lectures", out)
	}
	if h.extractor.calls != 0 || len(h.notifier.calls) != 0 {
		t.Error("extraction and notification should be skipped")
	}
	if h.session.closed != 1 {
		t.Error("session should be closed")
	}
}

func TestRunAborts(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness) func() error
		wantKind lecture.Kind
		wantOpen int
	}{
		{
			name: "missing configuration",
			setup: func(*harness) func() error {
				return func() error { return errors.New("PSUT_USERNAME is required") }
			},
			wantKind: lecture.KindConfig,
			wantOpen: 0,
		},
		{
			name: "discovery fails",
			setup: func(h *harness) func() error {
				h.discoverer.err = lecture.NewError(lecture.KindNavigation, "find username field", browser.ErrTimeout)
				return nil
			},
			wantKind: lecture.KindNavigation,
			wantOpen: 1,
		},
		{
			name: "extraction quota exhausted",
			setup: func(h *harness) func() error {
				h.discoverer.hrefs = []string{"https://portal/1"}
				h.extractor.err = lecture.NewError(lecture.KindExtraction, "extract batch 1/1", &extract.APIError{Code: 429})
				return nil
			},
			wantKind: lecture.KindExtraction,
			wantOpen: 1,
		},
		{
			name: "unkinded extraction error",
			setup: func(h *harness) func() error {
				h.discoverer.hrefs = []string{"https://portal/1"}
				h.extractor.err = errors.New("boom")
				return nil
			},
			wantKind: lecture.KindExtraction,
			wantOpen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			validate := tt.setup(h)
			out := h.monitor(validate).Run(context.Background())

			if out.State != StateAborted || out.Status != StatusAborted || out.Success() {
				t.Fatalf("Run() = %+v, want ABORTED", out)
			}
			if !lecture.IsKind(out.Err, tt.wantKind) {
				t.Errorf("Run() error = %v, want kind %v", out.Err, tt.wantKind)
			}
			if h.opens != tt.wantOpen || h.session.closed != tt.wantOpen {
				t.Errorf("opened %d closed %d, want %d", h.opens, h.session.closed, tt.wantOpen)
			}
			if len(h.notifier.calls) != 0 {
				t.Error("notifier must not be called on abort")
			}
			if len(h.store.Load(context.Background())) != 0 {
				t.Error("state must not change on abort")
			}
		})
	}
}

func TestRunQuotaMessageSurfaces(t *testing.T) {
	h := newHarness(t, []string{"https://portal/1"})
	h.extractor.err = lecture.NewError(lecture.KindExtraction, "extract batch 1/1", &extract.APIError{Code: 429, Message: "quota"})

	out := h.monitor(nil).Run(context.Background())
	if !strings.Contains(out.Message, "RESOURCE_EXHAUSTED") {
		t.Errorf("Run() message = %q, want quota category", out.Message)
	}
}

func TestRunPersistFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, []string{"https://portal/1"})
	store := &failingStore{state: lecture.State{}}
	m := New(Deps{
		Open:       func(context.Context) (browser.Session, error) { return h.session, nil },
		Discoverer: h.discoverer,
		Extractor:  h.extractor,
		Store:      store,
		Notifier:   h.notifier,
	}, testLogger())

	out := m.Run(context.Background())
	if !out.Success() || out.Status != StatusNotified {
		t.Errorf("Run() = %+v, want notified despite persistence failure", out)
	}
	if out.Persisted || store.saves != 1 {
		t.Errorf("persisted = %v saves = %d", out.Persisted, store.saves)
	}
}

func TestRunBrowserStartFailure(t *testing.T) {
	h := newHarness(t, nil)
	m := New(Deps{
		Open: func(context.Context) (browser.Session, error) {
			return nil, errors.New("chrome not found")
		},
		Discoverer: h.discoverer,
		Extractor:  h.extractor,
		Store:      h.store,
		Notifier:   h.notifier,
	}, testLogger())

	out := m.Run(context.Background())
	if out.State != StateAborted || !strings.Contains(out.Message, "chrome not found") {
		t.Errorf("Run() = %+v, want abort naming the cause", out)
	}
}
