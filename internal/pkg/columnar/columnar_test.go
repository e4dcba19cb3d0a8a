package columnar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/wikidump/pipeline/pkg/models"
)

func TestWriteBatchAndReadBack(t *testing.T) {
	dir := t.TempDir()
	articlesPath := filepath.Join(dir, "articles.parquet")
	linksPath := filepath.Join(dir, "links.parquet")

	w, err := Open(articlesPath, linksPath, 2)
	require.NoError(t, err)

	removedAt := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	removedBy := int64(7)

	batch := []models.DeltaEncodedArticle{
		{
			ID:    0,
			Title: "bus",
			Links: []models.Edge{
				{
					DstID:         1,
					CreatedAt:     time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
					CreatedByUser: 5,
					RemovedAt:     &removedAt,
					RemovedByUser: &removedBy,
				},
				{
					DstID:         2,
					CreatedAt:     time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
					CreatedByUser: 5,
				},
			},
		},
	}

	require.NoError(t, w.WriteBatch(batch))
	articles, links := w.Counts()
	require.Equal(t, int64(1), articles)
	require.Equal(t, int64(2), links)
	require.NoError(t, w.Close())

	fr, err := local.NewLocalFileReader(articlesPath)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(articleRow), 2)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]articleRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	require.Len(t, rows, 1)
	require.Equal(t, "bus", rows[0].Title)

	lfr, err := local.NewLocalFileReader(linksPath)
	require.NoError(t, err)
	defer lfr.Close()
	lpr, err := reader.NewParquetReader(lfr, new(linkRow), 2)
	require.NoError(t, err)
	defer lpr.ReadStop()

	lrows := make([]linkRow, lpr.GetNumRows())
	require.NoError(t, lpr.Read(&lrows))
	require.Len(t, lrows, 2)

	byDst := map[int64]linkRow{}
	for _, r := range lrows {
		byDst[r.DstArticle] = r
	}
	require.Nil(t, byDst[2].RemovedAt)
	require.NotNil(t, byDst[1].RemovedAt)
	require.Equal(t, removedAt.Unix(), *byDst[1].RemovedAt)
}
