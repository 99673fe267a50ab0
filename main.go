// Package main implements a Cloud Run service that watches the PSUT portal
// events timeline and emails subscribers when new lectures appear.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"psut-lecture-notifier/browser"
	"psut-lecture-notifier/config"
	"psut-lecture-notifier/email"
	"psut-lecture-notifier/extract"
	"psut-lecture-notifier/pkg/lecture"
	"psut-lecture-notifier/poll"
	"psut-lecture-notifier/recipients"
	"psut-lecture-notifier/scraper"
	"psut-lecture-notifier/server"
	lecturestore "psut-lecture-notifier/storage"
)

// app holds the long-lived clients. Everything that logs is built per run
// so that each line carries the run ID.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	storageClient *storage.Client
	gemini        extract.Client
	sheets        *sheets.Service
	gmail         *gmail.Service
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := server.New(&server.Config{
		Run:      a.run,
		Logger:   logger,
		NewRunID: uuid.NewString,
	})
	if err := srv.ListenAndServe(ctx, cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// newApp creates the shared clients. Missing credentials are not an error
// here: the run reports them as a configuration failure instead.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.StorageBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.storageClient = client
		logger.Info("Using GCS for run state", "bucket", cfg.StorageBucket)
	} else {
		logger.Info("No STORAGE_BUCKET set, using local storage", "storage_path", cfg.LocalStorage)
	}

	if cfg.GeminiAPIKey != "" {
		client, err := extract.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		a.gemini = client
	}

	if cfg.SheetID != "" {
		svc, err := sheets.NewService(ctx, googleOptions(cfg, sheets.SpreadsheetsReadonlyScope)...)
		if err != nil {
			// Notify reports the missing recipient source on every run.
			logger.Warn("Failed to initialize Sheets service", "error", err)
		} else {
			a.sheets = svc
		}
	}

	if cfg.EmailProvider == "gmail" {
		svc, err := gmail.NewService(ctx, googleOptions(cfg, gmail.GmailSendScope)...)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service", "error", err)
		} else {
			a.gmail = svc
		}
	}

	return a, nil
}

// googleOptions uses explicit credentials when given and application default credentials otherwise.
func googleOptions(cfg *config.Config, scope string) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(scope)}
	if cfg.GoogleCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)))
	}
	return opts
}

func (a *app) close() {
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("Failed to close storage client", "error", err)
		}
	}
}

// run performs one full cycle for the server.
func (a *app) run(ctx context.Context, runID string) poll.Outcome {
	logger := a.logger.With("run_id", runID)
	return a.monitor(logger).Run(ctx)
}

func (a *app) monitor(logger *slog.Logger) *poll.Monitor {
	cfg := a.cfg

	// A bad zone is reported by Validate before the scraper runs.
	loc, _ := cfg.Location()
	disc, setupErr := scraper.New(scraper.Config{
		Location:    loc,
		PortalURL:   cfg.PortalURL,
		TimelineURL: cfg.TimelineURL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Selectors:   scraper.DefaultSelectors(),
		WaitTimeout: cfg.WaitTimeout,
	}, logger)

	validate := func() error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if setupErr != nil {
			return lecture.NewError(lecture.KindConfig, "configure scraper", setupErr)
		}
		if a.gemini == nil {
			return lecture.NewError(lecture.KindConfig, "configure extraction", errors.New("gemini client is not initialized"))
		}
		return nil
	}

	localPath := cfg.LocalStorage
	if cfg.StorageBucket != "" {
		localPath = ""
	}

	return poll.New(poll.Deps{
		Validate:   validate,
		Open:       a.sessionOpener(logger),
		Discoverer: disc,
		Extractor: extract.New(a.gemini, extract.Config{
			WaitTimeout: cfg.WaitTimeout,
			SettleDelay: cfg.SettleDelay,
		}, logger),
		Store:    lecturestore.New(a.storageClient, cfg.StorageBucket, localPath, cfg.StateKey, logger),
		Notifier: email.New(a.provider(logger), a.recipientSource(logger), logger),
	}, logger)
}

func (a *app) sessionOpener(logger *slog.Logger) poll.SessionOpener {
	return func(ctx context.Context) (browser.Session, error) {
		c, err := browser.NewChrome(ctx, browser.Options{
			ExecPath: a.cfg.ChromePath,
			Headful:  a.cfg.Headful,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// provider returns nil when the selected service could not be initialized;
// the notifier then reports the missing configuration.
func (a *app) provider(logger *slog.Logger) email.Provider {
	switch a.cfg.EmailProvider {
	case "mock":
		logger.Info("Mock email mode enabled")
		return email.NewMockProvider(logger)
	case "gmail":
		if a.gmail == nil {
			return nil
		}
		return email.NewGmailProvider(a.gmail, logger)
	default:
		return email.NewBrevoProvider(a.cfg.BrevoAPIKey, a.cfg.SenderEmail, a.cfg.SenderName, a.cfg.BrevoEndpoint, logger)
	}
}

// recipientSource prefers the spreadsheet and falls back to the flat file.
func (a *app) recipientSource(logger *slog.Logger) recipients.Source {
	switch {
	case a.cfg.SheetID != "" && a.sheets != nil:
		return recipients.NewSheetSource(a.sheets, a.cfg.SheetID, a.cfg.SheetName, a.cfg.EmailColumn, logger)
	case a.cfg.RecipientsFile != "":
		return recipients.FileSource{Path: a.cfg.RecipientsFile}
	default:
		return nil
	}
}
