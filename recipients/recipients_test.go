package recipients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "trims lowercases and dedups in order",
			in:   []string{" B@psut.edu.jo", "a@psut.edu.jo", "b@PSUT.edu.jo ", "A@psut.edu.jo"},
			want: []string{"b@psut.edu.jo", "a@psut.edu.jo"},
		},
		{
			name: "drops blanks and values without at sign",
			in:   []string{"", "   ", "not-an-email", "ok@x.com"},
			want: []string{"ok@x.com"},
		},
		{
			name: "empty input",
			in:   nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipients.txt")
	content := "first@psut.edu.jo, Second@psut.edu.jo\nthird@psut.edu.jo,\n\nfirst@psut.edu.jo\r\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FileSource{Path: path}.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := []string{"first@psut.edu.jo", "second@psut.edu.jo", "third@psut.edu.jo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Fetch() = %v, want %v", got, want)
	}
}

func TestFileSourceErrors(t *testing.T) {
	if _, err := (FileSource{}).Fetch(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Fetch() with no path error = %v, want ErrNotConfigured", err)
	}
	missing := filepath.Join(t.TempDir(), "nope.txt")
	if _, err := (FileSource{Path: missing}).Fetch(context.Background()); err == nil {
		t.Error("Fetch() of a missing file should fail")
	}
}

func newSheetsServer(t *testing.T, tabs []string, column []string) (*httptest.Server, *[]string) {
	t.Helper()
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if idx := strings.Index(r.URL.Path, "/values/"); idx >= 0 {
			ranges = append(ranges, r.URL.Path[idx+len("/values/"):])
			quoted := make([]string, len(column))
			for i, v := range column {
				quoted[i] = fmt.Sprintf("%q", v)
			}
			fmt.Fprintf(w, `{"majorDimension":"COLUMNS","values":[[%s]]}`, strings.Join(quoted, ","))
			return
		}
		sheetsJSON := make([]string, len(tabs))
		for i, tab := range tabs {
			sheetsJSON[i] = fmt.Sprintf(`{"properties":{"title":%q}}`, tab)
		}
		fmt.Fprintf(w, `{"sheets":[%s]}`, strings.Join(sheetsJSON, ","))
	}))
	t.Cleanup(srv.Close)
	return srv, &ranges
}

func newTestService(t *testing.T, srv *httptest.Server) *sheets.Service {
	t.Helper()
	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("sheets.NewService() error = %v", err)
	}
	return svc
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSheetSourceFetch(t *testing.T) {
	srv, ranges := newSheetsServer(t,
		[]string{"Summary", DefaultSheetName},
		[]string{"Email Address", "Student@PSUT.edu.jo", "", "other@psut.edu.jo", "student@psut.edu.jo", "n/a"})

	src := NewSheetSource(newTestService(t, srv), "sheet-123", "", 0, testLogger())
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := []string{"student@psut.edu.jo", "other@psut.edu.jo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Fetch() = %v, want %v", got, want)
	}
	if len(*ranges) != 1 || (*ranges)[0] != "'Form Responses 1'!B:B" {
		t.Errorf("read ranges = %v, want the form responses email column", *ranges)
	}
}

func TestSheetSourceFallsBackToFirstTab(t *testing.T) {
	srv, ranges := newSheetsServer(t, []string{"Sheet1", "Archive"}, []string{"Email", "a@b.com"})

	src := NewSheetSource(newTestService(t, srv), "sheet-123", "", 0, testLogger())
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a@b.com"}) {
		t.Errorf("Fetch() = %v", got)
	}
	if (*ranges)[0] != "'Sheet1'!B:B" {
		t.Errorf("range = %s, want first worksheet", (*ranges)[0])
	}
}

func TestSheetSourceRequiresID(t *testing.T) {
	src := NewSheetSource(nil, "", "", 0, testLogger())
	if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Fetch() error = %v, want ErrNotConfigured", err)
	}
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range tests {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %s, want %s", n, got, want)
		}
	}
}
