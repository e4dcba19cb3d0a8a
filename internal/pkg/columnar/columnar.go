// Package columnar implements C8: the single-consumer writer that turns
// encoded batches into two zstd-compressed columnar files (spec.md §4.8).
// No example in the retrieved pack imports a parquet/arrow library directly;
// xitongsys/parquet-go is a real, widely used out-of-pack ecosystem choice
// whose struct-tag schema and local-file-writer API match this shape
// closely.
package columnar

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/wikidump/pipeline/pkg/models"
)

type articleRow struct {
	ID    int64  `parquet:"name=id, type=INT64"`
	Title string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type linkRow struct {
	SrcArticle    int64  `parquet:"name=src_article, type=INT64"`
	DstArticle    int64  `parquet:"name=dst_article, type=INT64"`
	CreatedAt     int64  `parquet:"name=created_at, type=INT64"`
	CreatedByUser int64  `parquet:"name=created_by_user, type=INT64"`
	RemovedAt     *int64 `parquet:"name=removed_at, type=INT64, repetitiontype=OPTIONAL"`
	RemovedByUser *int64 `parquet:"name=removed_by_user, type=INT64, repetitiontype=OPTIONAL"`
}

// Writer holds the two open output streams described in spec.md §4.8.
type Writer struct {
	articlesFile   *local.LocalFile
	linksFile      *local.LocalFile
	articlesWriter *writer.ParquetWriter
	linksWriter    *writer.ParquetWriter

	articlesWritten int64
	linksWritten    int64
}

// Open creates (or truncates) the two output files at articlesPath and
// linksPath, both zstd level 3 compressed, matching the configuration
// shared across streams named in spec.md §4.8.
func Open(articlesPath, linksPath string, numGoroutines int64) (*Writer, error) {
	articlesFile, err := local.NewLocalFileWriter(articlesPath)
	if err != nil {
		return nil, fmt.Errorf("columnar: opening %s: %w", articlesPath, err)
	}
	articlesWriter, err := writer.NewParquetWriter(articlesFile, new(articleRow), numGoroutines)
	if err != nil {
		articlesFile.Close()
		return nil, fmt.Errorf("columnar: creating articles writer: %w", err)
	}
	articlesWriter.CompressionType = parquet.CompressionCodec_ZSTD

	linksFile, err := local.NewLocalFileWriter(linksPath)
	if err != nil {
		articlesWriter.WriteStop()
		articlesFile.Close()
		return nil, fmt.Errorf("columnar: opening %s: %w", linksPath, err)
	}
	linksWriter, err := writer.NewParquetWriter(linksFile, new(linkRow), numGoroutines)
	if err != nil {
		articlesWriter.WriteStop()
		articlesFile.Close()
		linksFile.Close()
		return nil, fmt.Errorf("columnar: creating links writer: %w", err)
	}
	linksWriter.CompressionType = parquet.CompressionCodec_ZSTD

	return &Writer{
		articlesFile:   articlesFile,
		linksFile:      linksFile,
		articlesWriter: articlesWriter,
		linksWriter:    linksWriter,
	}, nil
}

// WriteBatch appends one row group per call: every encoded article's row,
// plus every one of its edges' rows (spec.md §4.8).
func (w *Writer) WriteBatch(batch []models.DeltaEncodedArticle) error {
	for _, a := range batch {
		if err := w.articlesWriter.Write(articleRow{ID: a.ID, Title: a.Title}); err != nil {
			return fmt.Errorf("columnar: writing article row: %w", err)
		}
		w.articlesWritten++

		for _, e := range a.Links {
			row := linkRow{
				SrcArticle:    a.ID,
				DstArticle:    e.DstID,
				CreatedAt:     e.CreatedAt.Unix(),
				CreatedByUser: e.CreatedByUser,
			}
			if e.RemovedAt != nil {
				t := e.RemovedAt.Unix()
				row.RemovedAt = &t
			}
			if e.RemovedByUser != nil {
				u := *e.RemovedByUser
				row.RemovedByUser = &u
			}
			if err := w.linksWriter.Write(row); err != nil {
				return fmt.Errorf("columnar: writing link row: %w", err)
			}
			w.linksWritten++
		}
	}

	if err := w.articlesWriter.Flush(true); err != nil {
		return fmt.Errorf("columnar: flushing articles row group: %w", err)
	}
	if err := w.linksWriter.Flush(true); err != nil {
		return fmt.Errorf("columnar: flushing links row group: %w", err)
	}
	return nil
}

// Counts returns the total number of article and link rows written so far.
func (w *Writer) Counts() (articles, links int64) {
	return w.articlesWritten, w.linksWritten
}

// Close flushes footers on both streams and releases their underlying files.
func (w *Writer) Close() error {
	if err := w.articlesWriter.WriteStop(); err != nil {
		return fmt.Errorf("columnar: closing articles writer: %w", err)
	}
	if err := w.linksWriter.WriteStop(); err != nil {
		return fmt.Errorf("columnar: closing links writer: %w", err)
	}
	if err := w.articlesFile.Close(); err != nil {
		return fmt.Errorf("columnar: closing articles file: %w", err)
	}
	if err := w.linksFile.Close(); err != nil {
		return fmt.Errorf("columnar: closing links file: %w", err)
	}
	return nil
}
