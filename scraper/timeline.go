package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FarPast is returned for dates that cannot be parsed, so they always sort before today.
var FarPast = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day/month/year layouts seen on the portal after separators are normalised to "/".
var timelineLayouts = []string{
	"2/1/2006",
	"2/1/06",
	"2006/1/2", // ISO dates occasionally used in data attributes
}

// ParseTimelineDate parses a day/month/year timeline date in loc.
// Returns FarPast when raw is empty or unparsable.
func ParseTimelineDate(raw string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FarPast
	}
	normalized := strings.NewReplacer("-", "/", ".", "/").Replace(raw)
	// Drop a trailing time component such as "20/10/2026 00:00".
	if idx := strings.IndexByte(normalized, ' '); idx > 0 {
		normalized = normalized[:idx]
	}

	for _, layout := range timelineLayouts {
		t, err := time.ParseInLocation(layout, normalized, loc)
		if err == nil {
			return t
		}
	}
	return FarPast
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ExtractLinks returns the href of every element matching selector in markup,
// resolved against base, in document order.
func ExtractLinks(markup string, base *url.URL, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var links []string
	doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		links = append(links, u.String())
	})
	return links, nil
}
