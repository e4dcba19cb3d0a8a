// Package deltaencoder implements C7: turning each raw compressed article
// value from C6 into a Delta-Encoded Article, producing per-link temporal
// intervals from the article's sorted revision list. The algorithm and its
// recycled-working-set shrink thresholds are ported directly from the
// upstream reference implementation's delta_encode function, expressed
// here with per-worker structs instead of thread-local cells (spec.md §9:
// "In a language with explicit ownership, the reusable objects live inside
// per-worker structs").
package deltaencoder

import (
	"context"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/scanner"
	"github.com/wikidump/pipeline/pkg/models"
)

const (
	maxDecodeBufferBytes = 256 << 20
	maxSetEntries        = 16 * 1024
	maxSmallSetEntries   = 4 * 1024
)

// Pool decodes and delta-encodes batches of raw rows with a bounded,
// work-stealing data-parallel map (spec.md §4.7). Each call to ProcessBatch
// reuses a pool of per-goroutine scratch state across articles.
type Pool struct {
	idTable    *IDTable
	numWorkers int
	scratch    chan *workerState
	logger     *log.FieldedLogger
}

type workerState struct {
	dec               *zstd.Decoder
	decodeBuf         []byte
	currentLinks      map[int64]struct{}
	linkIndexes       map[int64]int
	thisRevisionLinks map[int64]struct{}
}

// New returns a Pool sharing idTable across numWorkers concurrent decoders.
func New(idTable *IDTable, numWorkers int) (*Pool, error) {
	p := &Pool{
		idTable:    idTable,
		numWorkers: numWorkers,
		scratch:    make(chan *workerState, numWorkers),
		logger:     log.NewFieldedLogger(&log.Fields{"component": "deltaencoder"}),
	}
	for i := 0; i < numWorkers; i++ {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("deltaencoder: creating zstd decoder: %w", err)
		}
		p.scratch <- &workerState{
			dec:               dec,
			currentLinks:      make(map[int64]struct{}),
			linkIndexes:       make(map[int64]int),
			thisRevisionLinks: make(map[int64]struct{}),
		}
	}
	return p, nil
}

// ProcessBatch decodes and delta-encodes every row in batch. The order
// within the batch is arbitrary (spec.md §4.7); rows whose title fails the
// pre-filter are silently dropped.
func (p *Pool) ProcessBatch(ctx context.Context, batch []scanner.Row) ([]models.DeltaEncodedArticle, error) {
	results := make([]*models.DeltaEncodedArticle, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.numWorkers)

	for i := range batch {
		i := i
		row := batch[i]
		g.Go(func() error {
			var w *workerState
			select {
			case w = <-p.scratch:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { p.scratch <- w }()

			article, err := p.decodeAndEncode(w, row)
			if err != nil {
				return err
			}
			results[i] = article
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("batch decode failed", "error", err)
		return nil, err
	}

	out := make([]models.DeltaEncodedArticle, 0, len(batch))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (p *Pool) decodeAndEncode(w *workerState, row scanner.Row) (*models.DeltaEncodedArticle, error) {
	decoded, err := w.dec.DecodeAll(row.Value, w.decodeBuf[:0])
	if err != nil {
		return nil, fmt.Errorf("deltaencoder: zstd-decompressing %q: %w", row.Title, err)
	}
	w.decodeBuf = decoded
	if cap(w.decodeBuf) > maxDecodeBufferBytes {
		w.decodeBuf = nil
	}

	var article models.RawArticle
	if err := cbor.Unmarshal(decoded, &article); err != nil {
		return nil, fmt.Errorf("deltaencoder: cbor-decoding %q: %w", row.Title, err)
	}

	if !passesPreFilter(article.Title) {
		return nil, nil
	}

	return p.delta(w, article), nil
}

// passesPreFilter implements spec.md §4.7 step 3: drop if the title is empty
// or its first character is not ASCII alphanumeric. Checked against the raw
// title, before normalization.
func passesPreFilter(title string) bool {
	if title == "" {
		return false
	}
	c := title[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// delta implements the delta-encoding algorithm of spec.md §4.7.
func (p *Pool) delta(w *workerState, article models.RawArticle) *models.DeltaEncodedArticle {
	resetWorkerMaps(w)

	title := Normalize(article.Title)
	id := p.idTable.GetOrInsert(title)

	sort.SliceStable(article.Revisions, func(i, j int) bool {
		return article.Revisions[i].Timestamp.Before(article.Revisions[j].Timestamp)
	})

	var links []models.Edge

	for _, rev := range article.Revisions {
		for _, link := range rev.Links {
			dstID := p.idTable.GetOrInsert(Normalize(link))
			if _, ok := w.currentLinks[dstID]; !ok {
				w.currentLinks[dstID] = struct{}{}
				ts := rev.Timestamp
				links = append(links, models.Edge{
					DstID:         dstID,
					CreatedAt:     ts,
					CreatedByUser: rev.UserID,
				})
				w.linkIndexes[dstID] = len(links) - 1
			}
			w.thisRevisionLinks[dstID] = struct{}{}
		}

		for dstID := range w.currentLinks {
			if _, stillLinked := w.thisRevisionLinks[dstID]; stillLinked {
				continue
			}
			idx := w.linkIndexes[dstID]
			ts := rev.Timestamp
			user := rev.UserID
			links[idx].RemovedAt = &ts
			links[idx].RemovedByUser = &user
			delete(w.currentLinks, dstID)
			delete(w.linkIndexes, dstID)
		}
		clearSet(w.thisRevisionLinks)
	}

	return &models.DeltaEncodedArticle{ID: id, Title: title, Links: links}
}

// resetWorkerMaps clears w's reusable working sets between articles,
// reallocating instead of clearing in place whenever a set grew past its
// shrink threshold, the Go equivalent of the reference implementation's
// shrink_to (spec.md §9, §4.7).
func resetWorkerMaps(w *workerState) {
	if len(w.linkIndexes) > maxSetEntries {
		w.linkIndexes = make(map[int64]int)
	} else {
		clear(w.linkIndexes)
	}
	if len(w.currentLinks) > maxSmallSetEntries {
		w.currentLinks = make(map[int64]struct{})
	} else {
		clear(w.currentLinks)
	}
	if len(w.thisRevisionLinks) > maxSmallSetEntries {
		w.thisRevisionLinks = make(map[int64]struct{})
	} else {
		clear(w.thisRevisionLinks)
	}
}

func clearSet(m map[int64]struct{}) {
	clear(m)
}
