// Package profile loads the scoring profile and keeps it current while the file changes.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
)

const defaultDebounce = 100 * time.Millisecond

// Store serves the latest successfully parsed profile. A failed reload keeps the
// previous profile.
type Store struct {
	path     string
	current  atomic.Pointer[domainreliability.Profile]
	reloads  atomic.Int64
	debounce time.Duration
}

// NewStore loads path. An empty path yields the zero profile, which accepts every
// model and knows no fields.
func NewStore(path string) (*Store, error) {
	store := &Store{path: strings.TrimSpace(path), debounce: defaultDebounce}
	if store.path == "" {
		store.current.Store(&domainreliability.Profile{})
		return store, nil
	}

	profile, err := domainreliability.LoadProfile(store.path)
	if err != nil {
		return nil, errs.Wrapf(err, "load scoring profile %q", store.path)
	}
	store.current.Store(&profile)
	return store, nil
}

// NewStaticStore serves profile and never reloads.
func NewStaticStore(profile domainreliability.Profile) *Store {
	store := &Store{debounce: defaultDebounce}
	store.current.Store(&profile)
	return store
}

func (s *Store) Current() domainreliability.Profile {
	return *s.current.Load()
}

func (s *Store) Path() string {
	return s.path
}

// Reloads counts successful reloads since start.
func (s *Store) Reloads() int64 {
	return s.reloads.Load()
}

func (s *Store) Reload(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	profile, err := domainreliability.LoadProfile(s.path)
	if err != nil {
		return errs.Wrapf(err, "reload scoring profile %q", s.path)
	}
	s.current.Store(&profile)
	s.reloads.Add(1)
	logging.Info(ctx, "scoring profile reloaded",
		slog.String("path", s.path),
		slog.Int("models", len(profile.Models())),
	)
	return nil
}

// Watch reloads the profile whenever its file is written, created or renamed into
// place. The directory is watched so editors that replace the file are covered.
// Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s.path == "" {
		return errors.New("profile file is required for watching")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "profile.watch"))
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create profile watcher")
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errs.Wrapf(err, "watch profile directory %q", filepath.Dir(target))
	}
	logging.Info(logCtx, "watching scoring profile", slog.String("path", target))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(s.debounce)
			}
		case <-pending:
			pending = nil
			if err := s.Reload(logCtx); err != nil {
				logging.Warn(logCtx, "scoring profile reload failed, keeping previous", slog.Any("err", errs.Loggable(err)))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "profile watcher error", slog.Any("err", errs.Loggable(err)))
		}
	}
}
