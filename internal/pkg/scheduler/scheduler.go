// Package scheduler implements C3: bounded-parallel download of archive
// blobs into a bounded in-memory handoff channel. The permit-held-until-
// handoff pattern mirrors the teacher's internal/pkg/archiver worker pool,
// which likewise gates work with a fixed-size guard channel rather than an
// unbounded goroutine-per-item fan-out.
package scheduler

import (
	"context"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/internal/pkg/stats"
)

// Blob is one downloaded archive handed off to C4.
type Blob struct {
	URL  string
	Body []byte
}

// Scheduler fetches URLs with bounded parallelism and bounded queue depth,
// per spec.md §4.3.
type Scheduler struct {
	maxParallel int
	bufferSize  int
	client      *http.Client
	logger      *log.FieldedLogger
}

// New returns a Scheduler enforcing maxParallel concurrent HTTP requests and
// a handoff channel of the given bufferSize.
func New(maxParallel, bufferSize int) *Scheduler {
	return &Scheduler{
		maxParallel: maxParallel,
		bufferSize:  bufferSize,
		client:      &http.Client{},
		logger:      log.NewFieldedLogger(&log.Fields{"component": "scheduler"}),
	}
}

// Run downloads every url in urls with bounded parallelism and streams
// successful blobs to the returned channel, which is closed once every
// spawned fetch has returned (whether urls was fully dispatched or ctx was
// canceled partway through). A single permit is held from the start of a
// fetch until the blob has been sent on the channel, so the channel's
// buffer bound is never exceeded by in-flight work (spec.md §4.3).
//
// close(out) unconditionally waits for every spawned fetch goroutine via a
// WaitGroup, regardless of ctx cancellation, so it can never race a fetch's
// send on out: a fetch goroutine only exists between wg.Add and wg.Done,
// and out is closed only after every such goroutine has returned.
//
// Failures on a single URL are logged and dropped, never retried: the
// archive stays unmarked in C2 and will be retried on the next run.
func (s *Scheduler) Run(ctx context.Context, urls []string) <-chan Blob {
	out := make(chan Blob, s.bufferSize)
	sem := semaphore.NewWeighted(int64(s.maxParallel))
	var wg sync.WaitGroup

	go func() {
		for _, u := range urls {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			url := u
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				s.fetch(ctx, url, out)
			}()
		}
		wg.Wait()
		close(out)
	}()

	return out
}

func (s *Scheduler) fetch(ctx context.Context, url string, out chan<- Blob) {
	stats.DownloadInFlightIncr()
	defer stats.DownloadInFlightDecr()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Warn("building request failed, skipping archive", "url", url, "error", err)
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("download failed, skipping archive", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("download returned non-200, skipping archive", "url", url, "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Warn("reading body failed, skipping archive", "url", url, "error", err)
		return
	}

	select {
	case out <- Blob{URL: url, Body: body}:
	case <-ctx.Done():
	}
}
