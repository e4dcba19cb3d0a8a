// Package config holds the process-wide tunables for both pipeline stages.
// It is populated once from CLI flags in cmd/wikidump and read via Get() by
// the controler package, which passes the values on to each component; the
// same single-global-config idiom the teacher uses.
package config

import "sync"

// Config holds every tunable named across SPEC_FULL.md §4.
type Config struct {
	// Stage A
	IndexURL             string
	DataDir              string
	MaxHTTPParallelism    int
	DownloadBufferSize    int
	NumIngestWorkers      int
	ArticleBatchSize      int
	RevisionCutoff        string // RFC3339; not read by the extractor, which uses extractor.Cutoff
	MaxKeptRevisions      int

	// Stage B
	NumScanPartitions  int
	ScanBatchSize      int
	RawBatchQueueSize  int
	EncodedQueueSize   int
	ArticlesOutputPath string
	LinksOutputPath    string

	// Ambient
	LogLevel string
}

var (
	mu      sync.RWMutex
	current *Config
)

// Default returns the baseline configuration, matching the constants named
// throughout spec.md (DOWNLOAD_BUFFER=2, MAX_HTTP_PARALLELISM=2,
// NUM_INGEST_WORKERS=32, batch size 4096, 32 scan partitions, batch size
// 16384, queue capacities 4 and 2).
func Default() *Config {
	return &Config{
		IndexURL:           "https://wikimedia.bringyour.com/enwiki/20250301/",
		DataDir:            "data",
		MaxHTTPParallelism: 2,
		DownloadBufferSize: 2,
		NumIngestWorkers:   32,
		ArticleBatchSize:   4096,
		RevisionCutoff:     "2023-01-01T00:00:00Z",
		MaxKeptRevisions:   10000,
		NumScanPartitions:  32,
		ScanBatchSize:      16384,
		RawBatchQueueSize:  4,
		EncodedQueueSize:   2,
		ArticlesOutputPath: "data/articles.parquet",
		LinksOutputPath:    "data/links.parquet",
		LogLevel:           "info",
	}
}

// Set installs the active configuration. Called once by cmd/wikidump after
// parsing CLI flags.
func Set(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = c
}

// Get returns the active configuration, falling back to Default() if Set
// was never called (e.g. in unit tests).
func Get() *Config {
	mu.RLock()
	c := current
	mu.RUnlock()
	if c == nil {
		return Default()
	}
	return c
}
