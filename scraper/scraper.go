// Package scraper drives the university portal to discover community service lecture pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"psut-lecture-notifier/browser"
	"psut-lecture-notifier/pkg/lecture"
)

// Selectors locate portal elements. Defaults match the portal's current markup.
type Selectors struct {
	Username      string // Login form user ID field
	Password      string // Login form password field
	OverlayClose  string // Close button of the notification toast shown after login
	LocaleToggle  string // Language dropdown in the navbar
	LocaleOption  string // English entry of the language dropdown
	Timeline      string // Events timeline container
	TimelineDate  string // One date marker in the timeline
	DateAttribute string // Attribute of a date marker holding its dd/mm/yyyy date
	ActiveClass   string // Class present on the selected date marker
	DetailPanel   string // Panel listing the events of the selected date
	DetailCard    string // Content card inside the panel, populated after selection
	TitleAnchor   string // Event title link, relative to the panel
}

// DefaultSelectors returns the selectors for the portal's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Username:      "#UserID",
		Password:      "#loginPass",
		OverlayClose:  "body > div:nth-of-type(3) > div > div:nth-of-type(5) > div > div > div:nth-of-type(1) > button",
		LocaleToggle:  "#dropdown-flag",
		LocaleOption:  "#navbar-mobile > ul:nth-of-type(2) > li:nth-of-type(2) > div > a:nth-of-type(2)",
		Timeline:      "#cCarousel",
		TimelineDate:  "#cCarousel .timeline-date",
		DateAttribute: "data-date",
		ActiveClass:   "active",
		DetailPanel:   "#timeline-details",
		DetailCard:    "#timeline-details .card",
		TitleAnchor:   ".card-title a, article h4 a",
	}
}

// Config holds everything discovery needs; nothing is read from the environment here.
type Config struct {
	Location       *time.Location // Zone in which "today" is evaluated
	PortalURL      string         // Login page
	TimelineURL    string         // Events view; empty means the page reached after login
	Username       string
	Password       string
	Selectors      Selectors
	WaitTimeout    time.Duration // Bound for waits on required elements
	OverlayTimeout time.Duration // Bound for the optional notification overlay
}

// Scraper discovers lecture detail page URLs through a browser session.
type Scraper struct {
	logger *slog.Logger
	now    func() time.Time
	base   *url.URL
	cfg    Config
}

// New creates a new scraper.
func New(cfg Config, logger *slog.Logger) (*Scraper, error) {
	base, err := url.Parse(cfg.PortalURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal URL: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.OverlayTimeout == 0 {
		cfg.OverlayTimeout = 3 * time.Second
	}
	return &Scraper{
		logger: logger,
		now:    time.Now,
		base:   base,
		cfg:    cfg,
	}, nil
}

// Discover logs in, walks the events timeline for today and later dates, and
// returns every event title link in discovery order. Duplicates are kept.
func (s *Scraper) Discover(ctx context.Context, sess browser.Session) ([]string, error) {
	startTime := time.Now()
	s.logger.Info("Starting link discovery", "portal", s.cfg.PortalURL)

	if err := s.login(ctx, sess); err != nil {
		return nil, err
	}

	s.dismissOverlay(ctx, sess)
	s.selectEnglish(ctx, sess)
	// Switching locale reloads the page and the overlay comes back.
	s.dismissOverlay(ctx, sess)

	if s.cfg.TimelineURL != "" {
		if err := sess.Navigate(ctx, s.cfg.TimelineURL); err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "open timeline", err)
		}
	}
	if err := sess.WaitFor(ctx, s.cfg.Selectors.Timeline, s.cfg.WaitTimeout); err != nil {
		return nil, lecture.NewError(lecture.KindNavigation, "find timeline", err)
	}

	hrefs, err := s.walkTimeline(ctx, sess)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Link discovery completed",
		"links", len(hrefs),
		"duration_ms", time.Since(startTime).Milliseconds())
	return hrefs, nil
}

func (s *Scraper) login(ctx context.Context, sess browser.Session) error {
	sel := s.cfg.Selectors
	if err := sess.Navigate(ctx, s.cfg.PortalURL); err != nil {
		return lecture.NewError(lecture.KindNavigation, "open login page", err)
	}
	if err := sess.WaitFor(ctx, sel.Username, s.cfg.WaitTimeout); err != nil {
		return lecture.NewError(lecture.KindNavigation, "find username field", err)
	}
	if err := sess.WaitFor(ctx, sel.Password, s.cfg.WaitTimeout); err != nil {
		return lecture.NewError(lecture.KindNavigation, "find password field", err)
	}
	if err := sess.SendKeys(ctx, sel.Username, s.cfg.Username); err != nil {
		return lecture.NewError(lecture.KindNavigation, "enter username", err)
	}
	if err := sess.SendKeys(ctx, sel.Password, s.cfg.Password); err != nil {
		return lecture.NewError(lecture.KindNavigation, "enter password", err)
	}
	if err := sess.Submit(ctx, sel.Password); err != nil {
		return lecture.NewError(lecture.KindNavigation, "submit login", err)
	}
	s.logger.Info("Login submitted", "user", s.cfg.Username)
	return nil
}

// dismissOverlay closes the post-login notification toast. A missing toast is normal.
func (s *Scraper) dismissOverlay(ctx context.Context, sess browser.Session) {
	sel := s.cfg.Selectors.OverlayClose
	if err := sess.WaitFor(ctx, sel, s.cfg.OverlayTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			s.logger.Info("No notification overlay found, continuing")
		} else {
			s.logger.Info("Notification overlay lookup failed, continuing", "error", err)
		}
		return
	}
	if err := sess.ClickNth(ctx, sel, 0); err != nil {
		s.logger.Info("Notification overlay could not be closed, continuing", "error", err)
		return
	}
	s.logger.Debug("Notification overlay dismissed")
}

// selectEnglish switches the portal to English so field labels are predictable.
func (s *Scraper) selectEnglish(ctx context.Context, sess browser.Session) {
	sel := s.cfg.Selectors
	if err := sess.WaitFor(ctx, sel.LocaleToggle, s.cfg.WaitTimeout); err != nil {
		s.logger.Warn("Language selector not found, keeping current locale", "error", err)
		return
	}
	if err := sess.ClickNth(ctx, sel.LocaleToggle, 0); err != nil {
		s.logger.Warn("Failed to open language selector", "error", err)
		return
	}
	if err := sess.WaitFor(ctx, sel.LocaleOption, s.cfg.WaitTimeout); err != nil {
		s.logger.Warn("English option not found, keeping current locale", "error", err)
		return
	}
	if err := sess.ClickNth(ctx, sel.LocaleOption, 0); err != nil {
		s.logger.Warn("Failed to select English", "error", err)
		return
	}
	s.logger.Info("Portal locale set to English")
}

func (s *Scraper) walkTimeline(ctx context.Context, sess browser.Session) ([]string, error) {
	sel := s.cfg.Selectors

	count, err := sess.Count(ctx, sel.TimelineDate)
	if err != nil {
		return nil, lecture.NewError(lecture.KindNavigation, "count timeline dates", err)
	}
	today := startOfDay(s.now(), s.cfg.Location)
	s.logger.Info("Timeline loaded", "dates", count, "today", today.Format("02/01/2006"))

	var hrefs []string
	for i := 0; i < count; i++ {
		raw, _, err := sess.AttributeNth(ctx, sel.TimelineDate, i, sel.DateAttribute)
		if err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "read timeline date", err)
		}
		date := ParseTimelineDate(raw, s.cfg.Location)
		if date.Before(today) {
			s.logger.Debug("Skipping past date", "index", i, "date", raw)
			continue
		}

		class, _, err := sess.AttributeNth(ctx, sel.TimelineDate, i, "class")
		if err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "read timeline date state", err)
		}
		if !hasClass(class, sel.ActiveClass) {
			if err := sess.ClickNth(ctx, sel.TimelineDate, i); err != nil {
				return nil, lecture.NewError(lecture.KindNavigation, "select timeline date", err)
			}
		}

		// The panel exists before its content card is populated.
		if err := sess.WaitFor(ctx, sel.DetailPanel, s.cfg.WaitTimeout); err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "find detail panel", err)
		}
		if err := sess.WaitVisible(ctx, sel.DetailCard, s.cfg.WaitTimeout); err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "wait for detail content", err)
		}

		markup, err := sess.OuterHTML(ctx, sel.DetailPanel)
		if err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "read detail panel", err)
		}
		links, err := ExtractLinks(markup, s.base, sel.TitleAnchor)
		if err != nil {
			return nil, lecture.NewError(lecture.KindNavigation, "parse detail panel", err)
		}
		s.logger.Info("Date processed", "index", i, "date", raw, "links", len(links))
		hrefs = append(hrefs, links...)
	}
	return hrefs, nil
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}
