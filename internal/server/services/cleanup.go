package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/config"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophblog/internal/server/storage"
	"github.com/zeebo/errs"
	"golang.org/x/sync/errgroup"
)

// DefaultSweepBatch bounds how many candidates one sweep considers.
const DefaultSweepBatch = 1000

// SweepResult summarizes one sweep. Err aggregates the per-item failures;
// those items keep their rows and are retried by the next sweep.
type SweepResult struct {
	Deleted int
	Skipped int
	Failed  int
	Err     error
}

// CleanupService purges media that was never referenced or whose
// retention has run out.
type CleanupService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	store           storage.ObjectStore
	logger          logging.Logger
	orphanThreshold time.Duration
	concurrency     int
	batch           int
}

func NewCleanupService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore, cfg *config.Config, logger logging.Logger) *CleanupService {
	concurrency := cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &CleanupService{
		db:              db,
		repomanager:     m,
		store:           store,
		logger:          logger.With("module", "cleanup"),
		orphanThreshold: cfg.OrphanThreshold,
		concurrency:     concurrency,
		batch:           DefaultSweepBatch,
	}
}

var errSkipped = errors.New("candidate no longer eligible")

// Sweep purges, as of now, UPLOADED items older than the orphan threshold
// and PENDING_DELETION items whose deletion time has come.
//
// Candidates are processed concurrently and independently. Each one is
// re-checked and locked in its own transaction; the backing object is
// deleted first and the row only after that succeeds. An item claimed by an
// overlapping sweep, or rescued by a post edit since selection, is skipped.
// The returned error is only for failing to list candidates.
func (s *CleanupService) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	cutoff := now.Add(-s.orphanThreshold)

	candidates, err := s.repomanager.Media(s.db).SweepCandidates(ctx, now, cutoff, s.batch)
	if err != nil {
		return nil, fmt.Errorf("error listing sweep candidates: %w", err)
	}

	var (
		deleted, skipped atomic.Int64
		mu               sync.Mutex
		group            errs.Group
	)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, m := range candidates {
		g.Go(func() error {
			err := s.purge(ctx, m, now, cutoff)
			switch {
			case err == nil:
				deleted.Add(1)
			case errors.Is(err, errSkipped):
				skipped.Add(1)
			default:
				s.logger.Warn(ctx, "purge failed", "media_id", m.ID, "error", err)
				mu.Lock()
				group.Add(fmt.Errorf("media %s: %w", m.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &SweepResult{
		Deleted: int(deleted.Load()),
		Skipped: int(skipped.Load()),
		Failed:  len(group),
		Err:     group.Err(),
	}
	s.logger.Info(ctx, "sweep finished",
		"candidates", len(candidates), "deleted", res.Deleted, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *CleanupService) purge(ctx context.Context, candidate *models.Media, now, cutoff time.Time) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Media(tx)

		m, err := repo.LockCandidate(ctx, candidate.ID, now, cutoff)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errSkipped
			}
			return err
		}
		if !m.Status.Purgeable() {
			return errSkipped
		}

		if err := s.store.Delete(ctx, m.StorageKey); err != nil {
			return fmt.Errorf("error deleting object: %w", err)
		}
		return repo.Delete(ctx, m.ID)
	})
}
