package controler

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/wikidump/pipeline/internal/pkg/columnar"
	"github.com/wikidump/pipeline/internal/pkg/config"
	"github.com/wikidump/pipeline/internal/pkg/deltaencoder"
	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/scanner"
	"github.com/wikidump/pipeline/internal/pkg/stage"
	"github.com/wikidump/pipeline/internal/pkg/stats"
)

// RunPostprocess executes Stage B: partitioned scan of the staging store,
// parallel decode + delta-encode, and a single columnar writer consumer
// (spec.md §2, §6). It runs to completion or until ctx is canceled.
func RunPostprocess(ctx context.Context) error {
	if err := log.Start(); err != nil {
		return fmt.Errorf("controler: starting logger: %w", err)
	}
	logger := log.NewFieldedLogger(&log.Fields{"component": "controler.postprocess"})

	if err := stats.Init(); err != nil {
		return fmt.Errorf("controler: initializing stats: %w", err)
	}

	cfg := config.Get()

	store, err := stage.Open(cfg.DataDir + "/temp-db")
	if err != nil {
		return fmt.Errorf("controler: opening staging store: %w", err)
	}
	defer store.Close()

	total, err := store.ArticleCount()
	if err != nil {
		return fmt.Errorf("controler: counting articles: %w", err)
	}
	logger.Info("starting postprocess", "articles", total)

	writer, err := columnar.Open(cfg.ArticlesOutputPath, cfg.LinksOutputPath, 4)
	if err != nil {
		return fmt.Errorf("controler: opening columnar output: %w", err)
	}

	idTable := deltaencoder.NewIDTable()
	numDecodeWorkers := runtime.NumCPU()
	pool, err := deltaencoder.New(idTable, numDecodeWorkers)
	if err != nil {
		writer.Close()
		return fmt.Errorf("controler: creating delta-encoder pool: %w", err)
	}

	var articlesDone int64
	progress := stats.NewPostprocessProgress(total)
	go progress.Run(func() uint64 { return uint64(atomic.LoadInt64(&articlesDone)) })
	defer progress.Stop()

	batches := scanner.Scan(ctx, store, cfg.NumScanPartitions, cfg.ScanBatchSize, cfg.RawBatchQueueSize)

	for batch := range batches {
		stats.DecodeRoutinesIncr()
		encoded, err := pool.ProcessBatch(ctx, batch)
		stats.DecodeRoutinesDecr()
		if err != nil {
			writer.Close()
			return fmt.Errorf("controler: decoding batch: %w", err)
		}

		if err := writer.WriteBatch(encoded); err != nil {
			writer.Close()
			return fmt.Errorf("controler: writing batch: %w", err)
		}

		atomic.AddInt64(&articlesDone, int64(len(encoded)))
		stats.ArticlesWrittenAdd(len(encoded))
		for _, a := range encoded {
			stats.LinksWrittenAdd(len(a.Links))
		}
	}

	articles, links := writer.Counts()

	if err := writer.Close(); err != nil {
		return fmt.Errorf("controler: closing columnar output: %w", err)
	}

	logger.Info("postprocess finished", "articles", articles, "links", links)
	return nil
}
