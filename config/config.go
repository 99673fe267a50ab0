// Package config loads service configuration from flags, the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"psut-lecture-notifier/pkg/lecture"
)

// Config is the full service configuration. It is built once in main and
// handed to each component; leaf packages never read the environment.
type Config struct {
	// Portal
	Username       string        `long:"username" env:"PSUT_USERNAME" description:"Portal username"`
	Password       string        `long:"password" env:"PSUT_PASSWORD" description:"Portal password"`
	PortalURL      string        `long:"portal-url" env:"PORTAL_URL" default:"https://portal.psut.edu.jo" description:"Portal login page"`
	TimelineURL    string        `long:"timeline-url" env:"TIMELINE_URL" description:"Events timeline page (defaults to the page reached after login)"`
	PortalTimezone string        `long:"portal-timezone" env:"PORTAL_TIMEZONE" default:"Asia/Amman" description:"Time zone used to decide which timeline dates are in the past"`
	WaitTimeout    time.Duration `long:"wait-timeout" env:"WAIT_TIMEOUT" default:"10s" description:"Upper bound for waits on page elements"`
	SettleDelay    time.Duration `long:"settle-delay" env:"SETTLE_DELAY" default:"5s" description:"Pause after a detail page loads before capturing it"`
	ChromePath     string        `long:"chrome-path" env:"CHROME_PATH" description:"Chrome binary (container mode)"`
	Headful        bool          `long:"headful" env:"HEADFUL" description:"Show the browser window"`

	// Extraction
	GeminiAPIKey string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel  string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.5-flash" description:"Gemini model used for extraction"`

	// Recipients
	SheetID               string `long:"sheet-id" env:"GOOGLE_SHEET_ID" description:"Spreadsheet holding the form responses"`
	SheetName             string `long:"sheet-name" env:"SHEET_NAME" default:"Form Responses 1" description:"Worksheet with the email column"`
	EmailColumn           int    `long:"email-column" env:"EMAIL_COLUMN" default:"2" description:"1-indexed column holding email addresses"`
	RecipientsFile        string `long:"recipients-file" env:"RECIPIENTS_FILE" description:"Comma or newline separated address file used instead of the spreadsheet"`
	GoogleCredentialsJSON string `long:"google-credentials-json" env:"GOOGLE_CREDENTIALS_JSON" description:"Service account JSON for Sheets and Gmail (defaults to application credentials)"`

	// Email
	EmailProvider string `long:"email-provider" env:"EMAIL_PROVIDER" default:"brevo" choice:"brevo" choice:"gmail" choice:"mock" description:"Delivery service"`
	BrevoAPIKey   string `long:"brevo-api-key" env:"BREVO_API_KEY" description:"Brevo API key"`
	BrevoEndpoint string `long:"brevo-endpoint" env:"BREVO_ENDPOINT" default:"https://api.brevo.com/v3/smtp/email" description:"Brevo transactional email endpoint"`
	SenderEmail   string `long:"sender-email" env:"SENDER_EMAIL" description:"From address"`
	SenderName    string `long:"sender-name" env:"SENDER_NAME" default:"Community Service" description:"From display name"`

	// State
	StorageBucket string `long:"storage-bucket" env:"STORAGE_BUCKET" description:"GCS bucket for run state; empty uses local storage"`
	LocalStorage  string `long:"local-storage" env:"LOCAL_STORAGE" default:"./data" description:"Directory for run state when no bucket is set"`
	StateKey      string `long:"state-key" env:"STATE_KEY" default:"lectures.json" description:"Object name of the run state"`

	// Service
	Port  string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	Debug bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env (if present), then parses args and the environment.
// A nil Config with a nil error means help was printed.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.SenderEmail = strings.TrimSpace(cfg.SenderEmail)
	return &cfg, nil
}

// Validate checks the settings a run cannot start without. The delivery
// credentials are not checked here; a missing key is a failed notification.
func (c *Config) Validate() error {
	var errs []error
	if c.Username == "" {
		errs = append(errs, errors.New("PSUT_USERNAME is required"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("PSUT_PASSWORD is required"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.SheetID == "" && c.RecipientsFile == "" {
		errs = append(errs, errors.New("GOOGLE_SHEET_ID or RECIPIENTS_FILE is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return lecture.NewError(lecture.KindConfig, "validate configuration", errors.Join(errs...))
	}
	return nil
}

// Location returns the portal time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.PortalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PORTAL_TIMEZONE %q: %w", c.PortalTimezone, err)
	}
	return loc, nil
}
