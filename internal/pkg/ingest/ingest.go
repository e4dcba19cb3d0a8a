// Package ingest implements the C4+C5 worker pool: NUM_INGEST_WORKERS
// goroutines each pull one downloaded archive blob from the scheduler's
// channel, run the extractor's XML state machine over it, and commit the
// resulting Raw Articles to the staging store in zstd-compressed CBOR
// batches. The guard-channel fan-out is adapted from the teacher's
// internal/pkg/archiver run() loop.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/wikidump/pipeline/internal/pkg/extractor"
	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/scheduler"
	"github.com/wikidump/pipeline/internal/pkg/stage"
	"github.com/wikidump/pipeline/internal/pkg/stats"
	"github.com/wikidump/pipeline/pkg/models"
)

// Pool runs NUM_INGEST_WORKERS workers against a shared blob channel
// (spec.md §4.5). Order of archive processing is not guaranteed.
type Pool struct {
	store            *stage.Store
	numWorkers       int
	articlesPerBatch int
	logger           *log.FieldedLogger
}

// New returns a worker pool writing into store.
func New(store *stage.Store, numWorkers, articlesPerBatch int) *Pool {
	return &Pool{
		store:            store,
		numWorkers:       numWorkers,
		articlesPerBatch: articlesPerBatch,
		logger:           log.NewFieldedLogger(&log.Fields{"component": "ingest"}),
	}
}

// Run drains blobs until the channel closes or ctx is canceled, blocking
// until every worker has finished its current archive.
func (p *Pool) Run(ctx context.Context, blobs <-chan scheduler.Blob) {
	var wg sync.WaitGroup
	guard := make(chan struct{}, p.numWorkers)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case blob, ok := <-blobs:
			if !ok {
				wg.Wait()
				return
			}
			guard <- struct{}{}
			wg.Add(1)
			stats.IngestRoutinesIncr()
			go func(b scheduler.Blob) {
				defer wg.Done()
				defer func() { <-guard }()
				defer stats.IngestRoutinesDecr()
				p.ingestOne(b)
			}(blob)
		}
	}
}

// ingestOne runs the C4+C5 pipeline for a single archive. Errors abort the
// archive in progress: it is logged and left unmarked, to be retried on the
// next run (spec.md §4.4 step 5, §7).
func (p *Pool) ingestOne(blob scheduler.Blob) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		p.logger.Error("creating zstd encoder failed, aborting archive", "url", blob.URL, "error", err)
		return
	}
	defer enc.Close()

	commitBatch := func(articles []models.RawArticle) error {
		rows := make([]stage.ArticleRow, 0, len(articles))
		for _, a := range articles {
			raw, err := cbor.Marshal(a)
			if err != nil {
				return fmt.Errorf("ingest: cbor-encoding article %q: %w", a.Title, err)
			}
			compressed := enc.EncodeAll(raw, nil)
			rows = append(rows, stage.ArticleRow{Title: a.Title, Value: compressed})
		}
		if err := p.store.InsertArticles(rows); err != nil {
			return fmt.Errorf("ingest: committing batch: %w", err)
		}
		stats.ArticlesStagedAdd(len(rows))
		return nil
	}

	bytesRead, err := extractor.Extract(blob.Body, p.articlesPerBatch, commitBatch)
	if err != nil {
		p.logger.Error("extracting archive failed, aborting archive", "url", blob.URL, "error", err)
		return
	}

	if err := p.store.MarkArchive(blob.URL, uint64(bytesRead)); err != nil {
		p.logger.Error("marking archive done failed", "url", blob.URL, "error", err)
		return
	}

	stats.ArchiveDoneIncr()
	stats.BytesReadAdd(uint64(bytesRead))
	p.logger.Info("ingested archive", "url", blob.URL, "bytes_read", bytesRead)
}
