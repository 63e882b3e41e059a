package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/shuttercut/shuttercut-agent/internal/config"
	"github.com/shuttercut/shuttercut-agent/internal/db"
	"github.com/shuttercut/shuttercut-agent/internal/history"
	"github.com/shuttercut/shuttercut-agent/internal/media"
)

var errAgentRunning = errors.New("another shuttercut agent is using the data directory; stop it or submit through its API")

// store is the opened data directory. Only the lock holder may change job
// rows in flight.
type store struct {
	lock *flock.Flock
	db   *db.DB
	repo *history.SQLiteRepository
}

// openStore opens the job database. With exclusive set it first takes the
// data dir lock and closes out jobs left in flight by a previous run.
func openStore(ctx context.Context, cfg config.Config, exclusive bool, logger *slog.Logger) (*store, error) {
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &store{}
	if exclusive {
		s.lock = flock.New(cfg.LockPath())
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, errAgentRunning
		}
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = database
	s.repo = history.NewRepository(database.Conn())

	if exclusive {
		n, err := database.MarkInterruptedJobs(ctx)
		if err != nil {
			logger.Warn("failed to mark interrupted jobs", "error", err)
		} else if n > 0 {
			logger.Info("marked interrupted render jobs", "count", n)
		}
	}
	return s, nil
}

func (s *store) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.lock != nil {
		s.lock.Unlock()
	}
}

// newLoader returns ffprobe when it can be found. Without it, metadata has
// to come from the presentation layer or the project file.
func newLoader(cfg config.Config, logger *slog.Logger) media.Loader {
	probe, err := media.NewFFProbe(cfg.FFProbePath(), 0, logger)
	if err != nil {
		logger.Warn("ffprobe unavailable, video metadata must be reported", "error", err)
		return nil
	}
	return probe
}
