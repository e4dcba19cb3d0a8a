// Command wikidump runs the two-stage Wikipedia dump ingestion pipeline:
// "ingest" downloads and stages archives, "postprocess-to-parquet" scans the
// staging store and emits the columnar article/link output (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/wikidump/pipeline/internal/pkg/config"
	"github.com/wikidump/pipeline/internal/pkg/controler"
)

func main() {
	app := &cli.App{
		Name:  "wikidump",
		Usage: "ingest Wikipedia dump archives into a columnar article/link graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "index-url",
				Usage: "dump mirror index page to scrape for meta-history archives",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "directory holding the staging store and output files",
			},
			&cli.IntFlag{
				Name:  "http-parallelism",
				Usage: "maximum number of in-flight archive downloads",
			},
			&cli.IntFlag{
				Name:  "ingest-workers",
				Usage: "number of C4+C5 ingest worker goroutines",
			},
			&cli.IntFlag{
				Name:  "scan-partitions",
				Usage: "number of byte-prefix partitions for the Stage B scan",
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Default()
			if v := c.String("index-url"); v != "" {
				cfg.IndexURL = v
			}
			if v := c.String("data-dir"); v != "" {
				cfg.DataDir = v
				cfg.ArticlesOutputPath = v + "/articles.parquet"
				cfg.LinksOutputPath = v + "/links.parquet"
			}
			if v := c.Int("http-parallelism"); v != 0 {
				cfg.MaxHTTPParallelism = v
			}
			if v := c.Int("ingest-workers"); v != 0 {
				cfg.NumIngestWorkers = v
			}
			if v := c.Int("scan-partitions"); v != 0 {
				cfg.NumScanPartitions = v
			}
			config.Set(cfg)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "run Stage A: download, extract, and stage archives",
				Action: func(c *cli.Context) error {
					return controler.RunIngest(rootContext())
				},
			},
			{
				Name:  "postprocess-to-parquet",
				Usage: "run Stage B: scan the staging store and write columnar output",
				Action: func(c *cli.Context) error {
					return controler.RunPostprocess(rootContext())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wikidump:", err)
		os.Exit(1)
	}
}

// rootContext returns a context canceled on SIGINT/SIGTERM, implementing the
// single-interrupt-races-completion cancellation model of spec.md §5.
func rootContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
