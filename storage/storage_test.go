package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"psut-lecture-notifier/pkg/lecture"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLocalRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := New(nil, "", dir, "", testLogger())
	ctx := context.Background()

	state := lecture.State{}.Merge([]*lecture.Record{
		{Title: lecture.String("محاضرة"), MaxRegistrations: lecture.Int(30), SourceURL: "https://portal/1"},
		{SourceURL: "https://portal/2"},
	})
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := s.Load(ctx)
	if len(got) != 2 {
		t.Fatalf("Load() returned %d entries, want 2", len(got))
	}
	r := got["https://portal/1"]
	if r == nil || r.Title == nil || *r.Title != "محاضرة" || r.MaxRegistrations == nil || *r.MaxRegistrations != 30 {
		t.Errorf("record not preserved: %+v", r)
	}
	if got["https://portal/2"].Title != nil {
		t.Error("absent fields should stay absent")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultKey {
		t.Errorf("expected only %s in storage dir, got %v", DefaultKey, entries)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s := New(nil, "", t.TempDir(), "", testLogger())
	got := s.Load(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty non-nil state", got)
	}
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(nil, "", dir, "state.json", testLogger())
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Errorf("Load() = %v, want empty state", got)
	}
}

func TestLoadWithoutBackendIsEmpty(t *testing.T) {
	s := New(nil, "bucket", "", "", testLogger())
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Errorf("Load() = %v, want empty state", got)
	}
}

func TestSaveFailureIsPersistenceError(t *testing.T) {
	// A regular file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(nil, "", filepath.Join(blocker, "data"), "", testLogger())

	err := s.Save(context.Background(), lecture.State{})
	if !lecture.IsKind(err, lecture.KindPersistence) {
		t.Errorf("Save() error = %v, want persistence error", err)
	}

	s = New(nil, "bucket", "", "", testLogger())
	if err := s.Save(context.Background(), lecture.State{}); !lecture.IsKind(err, lecture.KindPersistence) {
		t.Errorf("Save() without backend error = %v, want persistence error", err)
	}
}

func TestSaveReplacesPreviousState(t *testing.T) {
	s := New(nil, "", t.TempDir(), "", testLogger())
	ctx := context.Background()

	first := lecture.State{}.Merge([]*lecture.Record{{SourceURL: "a"}})
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := first.Merge([]*lecture.Record{{SourceURL: "b"}})
	if err := s.Save(ctx, second); err != nil {
		t.Fatal(err)
	}
	got := s.Load(ctx)
	if !got.Has("a") || !got.Has("b") || len(got) != 2 {
		t.Errorf("Load() = %v, want a and b", got)
	}
}
