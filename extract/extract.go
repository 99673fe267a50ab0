// Package extract turns lecture detail pages into structured records through a language model.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"psut-lecture-notifier/browser"
	"psut-lecture-notifier/pkg/lecture"
	"psut-lecture-notifier/sanitize"
)

const systemInstruction = `You are a high-precision HTML scraping agent. Your goal is to extract structured data from raw HTML code.

Rules:
1. If a field is not found, set the value to null. Never guess a value.
2. Preserve all Arabic text exactly as it appears. Do not translate Arabic to English.
3. You will receive multiple HTML pages separated by the delimiter: "<<<NEXT_PAGE_SEPARATOR>>>".
4. Each page starts with a line "SOURCE_URL: <url>". Copy that URL exactly into source_url.
5. Process every page provided and return one JSON object per page in the list.
6. Adhere STRICTLY to the provided schema. Do not add any extra fields or information.`

const contentHeader = `Extract all information from the html pages mentioned in the schema, adhere to it STRICTLY.
The information you have to extract is: source_url, title, date, time, location, activity_hours, restrictions, max_registrations, current_registrations, start_date, end_date, officer_name, officer_email, officer_phone.
Here are the HTML pages:

`

// Config controls page capture.
type Config struct {
	WaitTimeout time.Duration // Bound for the page body to appear
	SettleDelay time.Duration // Pause after the body appears so scripts can render content
}

// Extractor captures pages through a browser session and extracts records in batches.
type Extractor struct {
	client Client
	logger *slog.Logger
	cfg    Config
}

// New creates a new extractor.
func New(client Client, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &Extractor{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

// Extract captures every href, then issues one extraction request per batch,
// sequentially. Any failed batch aborts extraction: partial results are never returned.
func (e *Extractor) Extract(ctx context.Context, sess browser.Session, hrefs []string) ([]*lecture.Record, error) {
	startTime := time.Now()

	pages, err := e.capture(ctx, sess, hrefs)
	if err != nil {
		return nil, err
	}

	batches := Batches(pages)
	e.logger.Info("Extracting lectures", "pages", len(pages), "batches", len(batches), "batch_size", BatchSize(len(pages)))

	schema := RecordSchema()
	var records []*lecture.Record
	for i, batch := range batches {
		op := fmt.Sprintf("extract batch %d/%d", i+1, len(batches))
		text, err := e.client.Generate(ctx, Request{
			SystemInstruction: systemInstruction,
			Schema:            schema,
			Content:           contentHeader + JoinBatch(batch),
		})
		if err != nil {
			if apiErr, ok := IsAPIError(err); ok {
				e.logger.Error("Extraction service rejected batch",
					"batch", i+1,
					"code", apiErr.Code,
					"category", string(apiErr.Category()))
			}
			return nil, lecture.NewError(lecture.KindExtraction, op, err)
		}

		got, err := ParseRecords(text)
		if err != nil {
			return nil, lecture.NewError(lecture.KindExtraction, op, err)
		}
		got = e.attachSources(got, batch)
		e.logger.Info("Processed batch", "batch", i+1, "pages", len(batch), "lectures", len(got))
		records = append(records, got...)
	}

	e.logger.Info("Extraction completed",
		"lectures", len(records),
		"duration_ms", time.Since(startTime).Milliseconds())
	return records, nil
}

// capture opens each distinct href in its own tab and returns the sanitized pages in order.
func (e *Extractor) capture(ctx context.Context, sess browser.Session, hrefs []string) ([]Page, error) {
	seen := make(map[string]bool, len(hrefs))
	pages := make([]Page, 0, len(hrefs))
	for _, href := range hrefs {
		if seen[href] {
			e.logger.Debug("Skipping repeated link", "url", href)
			continue
		}
		seen[href] = true

		var markup string
		err := browser.WithTab(ctx, sess, href, func(tab browser.Tab) error {
			if err := tab.WaitFor(ctx, "body", e.cfg.WaitTimeout); err != nil {
				return fmt.Errorf("wait for body: %w", err)
			}
			if err := e.settle(ctx); err != nil {
				return err
			}
			src, err := tab.PageSource(ctx)
			if err != nil {
				return fmt.Errorf("read page source: %w", err)
			}
			markup = src
			return nil
		})
		if err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "capture "+href, err)
		}

		pages = append(pages, Page{URL: href, Markup: sanitize.HTML(markup)})
		e.logger.Debug("Captured page", "url", href, "bytes", len(markup))
	}
	return pages, nil
}

func (e *Extractor) settle(ctx context.Context) error {
	if e.cfg.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(e.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// attachSources makes sure every record carries a source URL from its batch.
// When the model returned exactly one record per page, a missing or altered URL
// is taken from the page at the same position. Otherwise such records are dropped,
// since a record without a stable identity would be re-notified on every run.
func (e *Extractor) attachSources(records []*lecture.Record, batch []Page) []*lecture.Record {
	inBatch := make(map[string]bool, len(batch))
	for _, p := range batch {
		inBatch[p.URL] = true
	}
	positional := len(records) == len(batch)

	kept := records[:0]
	for i, r := range records {
		if inBatch[r.SourceURL] {
			kept = append(kept, r)
			continue
		}
		if positional {
			e.logger.Warn("Record source URL repaired from page order",
				"returned", r.SourceURL,
				"url", batch[i].URL)
			r.SourceURL = batch[i].URL
			kept = append(kept, r)
			continue
		}
		e.logger.Warn("Dropping record without a known source URL",
			"returned", r.SourceURL,
			"records", len(records),
			"pages", len(batch))
	}
	return kept
}
