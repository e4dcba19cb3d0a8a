// Package controler wires the pipeline's stages together, the same
// sequential Start/Stop orchestration role the teacher's
// internal/pkg/controler/pipeline.go plays for its own crawl stages.
package controler

import (
	"context"
	"fmt"

	"github.com/wikidump/pipeline/internal/pkg/config"
	"github.com/wikidump/pipeline/internal/pkg/indexer"
	"github.com/wikidump/pipeline/internal/pkg/ingest"
	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/scheduler"
	"github.com/wikidump/pipeline/internal/pkg/stage"
	"github.com/wikidump/pipeline/internal/pkg/stats"
)

// RunIngest executes Stage A: fetch the index, skip already-downloaded
// archives, and run the download scheduler + ingest worker pool to
// completion or until ctx is canceled (spec.md §2, §6).
func RunIngest(ctx context.Context) error {
	if err := log.Start(); err != nil {
		return fmt.Errorf("controler: starting logger: %w", err)
	}
	logger := log.NewFieldedLogger(&log.Fields{"component": "controler.ingest"})

	if err := stats.Init(); err != nil {
		return fmt.Errorf("controler: initializing stats: %w", err)
	}

	cfg := config.Get()

	store, err := stage.Open(cfg.DataDir + "/temp-db")
	if err != nil {
		return fmt.Errorf("controler: opening staging store: %w", err)
	}
	defer store.Close()

	urls, err := indexer.List(cfg.IndexURL)
	if err != nil {
		return fmt.Errorf("controler: listing index: %w", err)
	}

	pending := urls[:0]
	for _, u := range urls {
		has, err := store.HasArchive(u)
		if err != nil {
			return fmt.Errorf("controler: checking archive membership: %w", err)
		}
		if !has {
			pending = append(pending, u)
		}
	}

	if len(pending) == 0 {
		logger.Info("nothing to download")
		return nil
	}
	logger.Info("archives left to ingest", "count", len(pending))

	sched := scheduler.New(cfg.MaxHTTPParallelism, cfg.DownloadBufferSize)
	pool := ingest.New(store, cfg.NumIngestWorkers, cfg.ArticleBatchSize)

	blobs := sched.Run(ctx, pending)
	pool.Run(ctx, blobs)

	bytesRead, err := store.BytesRead()
	if err != nil {
		return fmt.Errorf("controler: reading bytes_read counter: %w", err)
	}
	logger.Info("ingest finished", "bytes_read", bytesRead)

	return nil
}
