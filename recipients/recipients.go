// Package recipients resolves the notification mailing list from a Google Sheet or a flat file.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is returned when a source has no sheet ID or file path.
var ErrNotConfigured = errors.New("recipient source not configured")

// Source returns deduplicated, lower-cased email addresses in their original order.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Normalize trims and lower-cases values, drops anything without an "@",
// and removes duplicates while keeping the first occurrence.
func Normalize(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || !strings.Contains(v, "@") || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// FileSource reads comma or newline separated addresses from a file.
type FileSource struct {
	Path string
}

// Fetch reads and normalizes the file. A missing file is an error.
func (f FileSource) Fetch(ctx context.Context) ([]string, error) {
	if f.Path == "" {
		return nil, ErrNotConfigured
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read recipients file: %w", err)
	}
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ';'
	})
	return Normalize(fields), nil
}
