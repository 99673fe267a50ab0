// Package storage persists the set of lectures already notified about.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"psut-lecture-notifier/pkg/lecture"
)

// DefaultKey is the object name (or file name) holding the run state.
const DefaultKey = "lectures.json"

// Store loads and saves run state in Cloud Storage or a local directory.
// When localPath is set it takes precedence over the bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	key       string
}

// New creates a new storage handler.
func New(client *storage.Client, bucket, localPath, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		key:       key,
	}
}

// Load returns the previously saved state. Any failure, including a missing
// object, yields an empty state and a warning; it never stops a run.
func (s *Store) Load(ctx context.Context) lecture.State {
	data, err := s.read(ctx)
	if err != nil {
		if isNotExist(err) {
			s.logger.Info("No previous state found, starting fresh", "key", s.key)
		} else {
			s.logger.Warn("Failed to load previous state, starting fresh", "key", s.key, "error", err)
		}
		return lecture.State{}
	}

	var state lecture.State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Previous state is corrupt, starting fresh", "key", s.key, "error", err)
		return lecture.State{}
	}
	if state == nil {
		state = lecture.State{}
	}

	s.logger.Info("Previous state loaded", "key", s.key, "lecture_count", len(state))
	return state
}

// Save writes state, replacing the previous object.
func (s *Store) Save(ctx context.Context, state lecture.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return lecture.NewError(lecture.KindPersistence, "marshal state", err)
	}

	if s.localPath != "" {
		if err := s.writeLocal(data); err != nil {
			return lecture.NewError(lecture.KindPersistence, "save state", err)
		}
		s.logger.Info("State saved to local storage", "path", filepath.Join(s.localPath, s.key), "lecture_count", len(state))
		return nil
	}

	if s.client == nil {
		return lecture.NewError(lecture.KindPersistence, "save state", errors.New("no storage backend configured"))
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", s.key, "error", retryErr)
		}),
	)
	if err != nil {
		return lecture.NewError(lecture.KindPersistence, "save state after retries", err)
	}

	s.logger.Info("State saved", "bucket", s.bucket, "key", s.key, "lecture_count", len(state))
	return nil
}

// writeLocal replaces the state file atomically so a crash never leaves it half written.
func (s *Store) writeLocal(data []byte) error {
	if err := os.MkdirAll(s.localPath, 0o750); err != nil {
		return fmt.Errorf("create local storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.localPath, s.key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write to local storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.localPath, s.key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, s.key))
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	if s.client == nil {
		return nil, errors.New("no storage backend configured")
	}

	// Cloud Storage with retry logic for reliability
	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.key).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", s.key, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrObjectNotExist)
}
