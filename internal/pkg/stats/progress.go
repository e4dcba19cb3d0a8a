package stats

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uilive"
	"github.com/gosuri/uitable"
)

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// PostprocessProgress drives a live terminal display for Stage B, keyed on
// the article count read from the staging store when the scan started
// (spec.md §7: "a progress bar keyed on the number of articles in the
// staging store at the start of Stage B"). It is a direct adaptation of the
// teacher's internal/pkg/crawl/stats.go printLiveStats.
type PostprocessProgress struct {
	Total     uint64
	startTime time.Time
	stopCh    chan struct{}
}

// NewPostprocessProgress creates a progress display for total articles.
func NewPostprocessProgress(total uint64) *PostprocessProgress {
	return &PostprocessProgress{
		Total:     total,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Run renders the live table until Stop is called. articlesDone should
// return the running count of articles processed by C7 so far.
func (p *PostprocessProgress) Run(articlesDone func() uint64) {
	var m runtime.MemStats
	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&m)

			done := articlesDone()

			table := uitable.New()
			table.MaxColWidth = 80
			table.Wrap = true

			table.AddRow("", "")
			table.AddRow("  - Processed:", humanize.Comma(int64(done))+" / "+humanize.Comma(int64(p.Total)))
			table.AddRow("  - Elapsed:", time.Since(p.startTime).String())
			table.AddRow("  - Allocated (heap):", bToMb(m.Alloc))
			table.AddRow("  - Goroutines:", runtime.NumGoroutine())
			table.AddRow("", "")

			fmt.Fprintln(writer, table.String())
			writer.Flush()
		}
	}
}

// Stop ends the live display.
func (p *PostprocessProgress) Stop() {
	close(p.stopCh)
}
