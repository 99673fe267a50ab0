// Package poll runs one discovery, extraction, reconciliation and notification cycle.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"psut-lecture-notifier/browser"
	"psut-lecture-notifier/pkg/lecture"
)

// State is a step of a run.
type State string

const (
	StateInit        State = "INIT"
	StateDiscovering State = "DISCOVERING"
	StateExtracting  State = "EXTRACTING"
	StateReconciling State = "RECONCILING"
	StateNotifying   State = "NOTIFYING"
	StatePersisting  State = "PERSISTING"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

// Status describes how a run ended.
type Status string

const (
	StatusNoLectures    Status = "no_lectures"
	StatusNoNewLectures Status = "no_new_lectures"
	StatusNotified      Status = "notified"
	StatusNotifyFailed  Status = "notify_failed"
	StatusAborted       Status = "aborted"
)

// Outcome is the result of one run.
type Outcome struct {
	Err        error // Set for ABORTED runs and failed notifications
	State      State // DONE or ABORTED
	Status     Status
	Message    string
	Discovered int
	Extracted  int
	New        int
	Duration   time.Duration
	Persisted  bool
}

// Success reports whether the run ended without a failure the caller must see.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// SessionOpener starts a browser session for one run.
type SessionOpener func(ctx context.Context) (browser.Session, error)

// Discoverer enumerates candidate lecture URLs.
type Discoverer interface {
	Discover(ctx context.Context, sess browser.Session) ([]string, error)
}

// Extractor turns lecture URLs into records.
type Extractor interface {
	Extract(ctx context.Context, sess browser.Session, hrefs []string) ([]*lecture.Record, error)
}

// Store interface for run state persistence.
type Store interface {
	Load(ctx context.Context) lecture.State
	Save(ctx context.Context, state lecture.State) error
}

// Notifier sends new records to the mailing list.
type Notifier interface {
	Notify(ctx context.Context, records []*lecture.Record) (message string, ok bool)
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Validate   func() error // Checked in INIT; nil skips validation
	Open       SessionOpener
	Discoverer Discoverer
	Extractor  Extractor
	Store      Store
	Notifier   Notifier
}

// Monitor handles the lecture run logic.
type Monitor struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a new monitor.
func New(deps Deps, logger *slog.Logger) *Monitor {
	return &Monitor{
		deps:   deps,
		logger: logger,
	}
}

// run carries the bookkeeping of a single Run call.
type run struct {
	logger  *slog.Logger
	start   time.Time
	outcome Outcome
	state   State
}

func (r *run) enter(s State) {
	r.state = s
	r.logger.Info("Run state", "state", string(s))
}

func (r *run) finish(status Status, message string) Outcome {
	r.enter(StateDone)
	r.outcome.State = StateDone
	r.outcome.Status = status
	r.outcome.Message = message
	r.outcome.Duration = time.Since(r.start)
	return r.outcome
}

func (r *run) abort(kind lecture.Kind, op string, err error) Outcome {
	failedIn := r.state
	if _, ok := lecture.KindOf(err); !ok {
		err = lecture.NewError(kind, op, err)
	}
	r.enter(StateAborted)
	r.logger.Error("Run aborted", "failed_state", string(failedIn), "error", err)
	r.outcome.State = StateAborted
	r.outcome.Status = StatusAborted
	r.outcome.Err = err
	r.outcome.Message = err.Error()
	r.outcome.Duration = time.Since(r.start)
	return r.outcome
}

// Run performs one full cycle. State is persisted only after the notification
// has been accepted; a failed notification leaves the stored state untouched so
// the same lectures are retried on the next run.
func (m *Monitor) Run(ctx context.Context) (outcome Outcome) {
	r := &run{logger: m.logger, start: time.Now()}
	defer func() {
		m.logger.Info("Run finished",
			"state", string(outcome.State),
			"status", string(outcome.Status),
			"discovered", outcome.Discovered,
			"extracted", outcome.Extracted,
			"new", outcome.New,
			"persisted", outcome.Persisted,
			"duration_ms", outcome.Duration.Milliseconds())
	}()

	r.enter(StateInit)
	if m.deps.Validate != nil {
		if err := m.deps.Validate(); err != nil {
			return r.abort(lecture.KindConfig, "validate configuration", err)
		}
	}
	if m.deps.Open == nil || m.deps.Discoverer == nil || m.deps.Extractor == nil || m.deps.Store == nil || m.deps.Notifier == nil {
		return r.abort(lecture.KindConfig, "wire monitor", errors.New("monitor is missing a dependency"))
	}

	sess, err := m.deps.Open(ctx)
	if err != nil {
		return r.abort(lecture.KindNavigation, "start browser", err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			m.logger.Warn("Failed to close browser session", "error", closeErr)
		}
	}()

	previous := m.deps.Store.Load(ctx)

	r.enter(StateDiscovering)
	hrefs, err := m.deps.Discoverer.Discover(ctx, sess)
	if err != nil {
		return r.abort(lecture.KindNavigation, "discover links", err)
	}
	r.outcome.Discovered = len(hrefs)
	if len(hrefs) == 0 {
		return r.finish(StatusNoLectures, "No lectures found")
	}

	r.enter(StateExtracting)
	records, err := m.deps.Extractor.Extract(ctx, sess, hrefs)
	if err != nil {
		return r.abort(lecture.KindExtraction, "extract lectures", err)
	}
	r.outcome.Extracted = len(records)

	r.enter(StateReconciling)
	fresh := lecture.Reconcile(records, previous)
	r.outcome.New = len(fresh)
	m.logger.Info("Lectures reconciled",
		"extracted", len(records),
		"previously_seen", len(previous),
		"new", len(fresh))
	if len(fresh) == 0 {
		return r.finish(StatusNoNewLectures, "No new lectures")
	}

	r.enter(StateNotifying)
	message, ok := m.deps.Notifier.Notify(ctx, fresh)
	if !ok {
		m.logger.Error("Notification failed, state not persisted", "message", message)
		r.outcome.Err = lecture.NewError(lecture.KindDelivery, "notify", errors.New(message))
		return r.finish(StatusNotifyFailed, message)
	}

	r.enter(StatePersisting)
	if err := m.deps.Store.Save(ctx, previous.Merge(fresh)); err != nil {
		// The email already went out; the next run may notify these lectures again.
		m.logger.Error("Failed to persist state after notification", "error", err)
	} else {
		r.outcome.Persisted = true
	}

	return r.finish(StatusNotified, fmt.Sprintf("%s (%d new lectures)", message, len(fresh)))
}
