// Package scanner implements C6: splitting the articles keyspace into
// byte-prefix partitions and streaming raw compressed rows into a bounded
// channel feeding the decode/delta-encode pool. Each partition owns a read
// transaction for its own lifetime, the same per-goroutine-owns-its-resource
// shape as the teacher's guard-channel worker pools.
package scanner

import (
	"context"
	"sync"

	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/stage"
	"github.com/wikidump/pipeline/internal/pkg/stats"
)

// Row is one raw compressed article value read from the staging store.
type Row struct {
	Title []byte
	Value []byte
}

// Scan partitions the articles table into numPartitions byte-prefix ranges
// (spec.md §4.6) and streams rows, batched by batchSize, into the returned
// channel of capacity queueCapacity. The channel closes once every partition
// has been scanned to completion or ctx is canceled.
func Scan(ctx context.Context, store *stage.Store, numPartitions, batchSize, queueCapacity int) <-chan []Row {
	logger := log.NewFieldedLogger(&log.Fields{"component": "scanner"})
	out := make(chan []Row, queueCapacity)

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		width := 256 / numPartitions

		for i := 0; i < numPartitions; i++ {
			lo := byte(i * width)
			hi := byte((i + 1) * width)
			last := i == numPartitions-1

			wg.Add(1)
			stats.ScanRoutinesIncr()
			go func(lo, hi byte, last bool) {
				defer wg.Done()
				defer stats.ScanRoutinesDecr()
				scanPartition(ctx, store, lo, hi, last, batchSize, out, logger)
			}(lo, hi, last)
		}

		wg.Wait()
	}()

	return out
}

func scanPartition(ctx context.Context, store *stage.Store, lo, hi byte, last bool, batchSize int, out chan<- []Row, logger *log.FieldedLogger) {
	it, err := store.ScanRange(lo, hi, last)
	if err != nil {
		logger.Error("opening partition scan failed", "lo", lo, "hi", hi, "error", err)
		return
	}
	defer it.Close()

	batch := make([]Row, 0, batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return false
		}
		batch = make([]Row, 0, batchSize)
		return true
	}

	for it.Next() {
		title := append([]byte{}, it.Title()...)
		value := append([]byte{}, it.Value()...)
		batch = append(batch, Row{Title: title, Value: value})
		if len(batch) >= batchSize {
			if !flush() {
				return
			}
		}
	}
	if err := it.Err(); err != nil {
		logger.Error("partition scan error", "lo", lo, "hi", hi, "error", err)
		return
	}
	flush()
}
