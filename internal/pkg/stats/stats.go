// Package stats exposes the pipeline's Prometheus counters/gauges, mirroring
// the teacher's stats.XRoutinesIncr/Decr idiom (internal/pkg/archiver,
// internal/pkg/postprocessor) for every worker pool in both stages.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bytesReadTotal      prometheus.Counter
	articlesStagedTotal prometheus.Counter
	archivesDoneTotal   prometheus.Counter

	downloadInFlight prometheus.Gauge
	ingestRoutines   prometheus.Gauge
	scanRoutines     prometheus.Gauge
	decodeRoutines   prometheus.Gauge

	articlesWrittenTotal prometheus.Counter
	linksWrittenTotal    prometheus.Counter
)

// Init registers every metric exactly once. Safe to call from every
// component's Start function, as the teacher's components do.
func Init() error {
	once.Do(func() {
		bytesReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidump_bytes_read_total",
			Help: "cumulative XML bytes consumed across ingested archives",
		})
		articlesStagedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidump_articles_staged_total",
			Help: "articles committed to the staging store",
		})
		archivesDoneTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidump_archives_done_total",
			Help: "archives marked fully ingested",
		})
		downloadInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wikidump_downloads_in_flight",
			Help: "archive downloads currently in flight",
		})
		ingestRoutines = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wikidump_ingest_routines",
			Help: "active C4+C5 ingest worker goroutines",
		})
		scanRoutines = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wikidump_scan_routines",
			Help: "active C6 partition scanner goroutines",
		})
		decodeRoutines = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wikidump_decode_routines",
			Help: "active C7 decode/delta-encode goroutines",
		})
		articlesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidump_articles_written_total",
			Help: "articles written to the columnar output",
		})
		linksWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikidump_links_written_total",
			Help: "edges written to the columnar output",
		})

		prometheus.MustRegister(
			bytesReadTotal, articlesStagedTotal, archivesDoneTotal,
			downloadInFlight, ingestRoutines, scanRoutines, decodeRoutines,
			articlesWrittenTotal, linksWrittenTotal,
		)
	})
	return nil
}

func BytesReadAdd(n uint64)       { bytesReadTotal.Add(float64(n)) }
func ArticlesStagedAdd(n int)     { articlesStagedTotal.Add(float64(n)) }
func ArchiveDoneIncr()            { archivesDoneTotal.Inc() }
func DownloadInFlightIncr()       { downloadInFlight.Inc() }
func DownloadInFlightDecr()       { downloadInFlight.Dec() }
func IngestRoutinesIncr()         { ingestRoutines.Inc() }
func IngestRoutinesDecr()         { ingestRoutines.Dec() }
func ScanRoutinesIncr()           { scanRoutines.Inc() }
func ScanRoutinesDecr()           { scanRoutines.Dec() }
func DecodeRoutinesIncr()         { decodeRoutines.Inc() }
func DecodeRoutinesDecr()         { decodeRoutines.Dec() }
func ArticlesWrittenAdd(n int)    { articlesWrittenTotal.Add(float64(n)) }
func LinksWrittenAdd(n int)       { linksWrittenTotal.Add(float64(n)) }
