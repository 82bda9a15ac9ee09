package lifecycle

import (
	"context"
	"time"

	"github.com/vecshelf/lifecycle/catalog"
)

// archiveLoop periodically applies retention policy and reaps expired
// soft-deleted files and tables (spec 4.1: archive + CleanUpFilesWithTTL).
func (s *Scheduler) archiveLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runArchivePass(ctx)
		}
	}
}

func (s *Scheduler) runArchivePass(ctx context.Context) {
	start := time.Now()

	policy := catalog.ArchivePolicy{
		DisableDays: s.cfg.ArchiveDays <= 0,
		Days:        s.cfg.ArchiveDays,
		DisableDisk: s.cfg.ArchiveDiskBytes <= 0,
		DiskGB:      float64(s.cfg.ArchiveDiskBytes) / (1 << 30),
	}
	if err := s.catalog.Archive(policy); err != nil {
		s.logger.ErrorContext(ctx, "archive pass failed", "error", err)
	}

	filesRemoved, tablesRemoved, err := s.catalog.CleanUpFilesWithTTL(s.cfg.TTL)
	s.metrics.RecordGC(filesRemoved, tablesRemoved, time.Since(start), err)
	s.logger.LogGC(ctx, filesRemoved, tablesRemoved, err)
}
