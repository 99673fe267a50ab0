package extract

import (
	"strings"
)

const (
	// PageSeparator joins pages inside one extraction request. It does not occur in portal markup.
	PageSeparator = "\n\n<<<NEXT_PAGE_SEPARATOR>>>\n\n"

	// SourceMarker prefixes the line carrying a page's URL so the model can echo it back.
	SourceMarker = "SOURCE_URL: "

	minBatchSize = 5
)

// Page is one captured and sanitized event page.
type Page struct {
	URL    string
	Markup string
}

// Text returns the page as sent to the model: the source marker line, then the markup.
func (p Page) Text() string {
	return SourceMarker + p.URL + "\n" + p.Markup
}

// BatchSize returns max(5, ceil(n/2)), or n itself when n is below 5.
func BatchSize(n int) int {
	if n <= 0 {
		return 0
	}
	size := (n + 1) / 2
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > n {
		size = n
	}
	return size
}

// Batches splits pages into consecutive groups of BatchSize(len(pages)), keeping order.
func Batches(pages []Page) [][]Page {
	size := BatchSize(len(pages))
	if size == 0 {
		return nil
	}
	batches := make([][]Page, 0, (len(pages)+size-1)/size)
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		batches = append(batches, pages[start:end])
	}
	return batches
}

// JoinBatch renders a batch as a single request body.
func JoinBatch(batch []Page) string {
	parts := make([]string, len(batch))
	for i, p := range batch {
		parts[i] = p.Text()
	}
	return strings.Join(parts, PageSeparator)
}
