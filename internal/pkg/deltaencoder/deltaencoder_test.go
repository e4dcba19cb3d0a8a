package deltaencoder

import (
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/wikidump/pipeline/internal/pkg/scanner"
	"github.com/wikidump/pipeline/pkg/models"
)

func mustRow(t *testing.T, a models.RawArticle) scanner.Row {
	t.Helper()
	raw, err := cbor.Marshal(a)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())
	return scanner.Row{Title: []byte(a.Title), Value: compressed}
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNormalizeIsIdempotent(t *testing.T) {
	require.Equal(t, Normalize("  Bus "), Normalize(Normalize("  Bus ")))
	require.Equal(t, "bus", Normalize("  Bus "))
}

func TestNormalizeOnlyCaseFoldsASCII(t *testing.T) {
	require.Equal(t, "zürich", Normalize("Zürich"))
	require.NotEqual(t, Normalize("Zürich"), Normalize("ZÜRICH"))
}

func TestScenario1BasicTwoRevisions(t *testing.T) {
	idTable := NewIDTable()
	pool, err := New(idTable, 2)
	require.NoError(t, err)

	article := models.RawArticle{
		Title: "Bus",
		Revisions: []models.RawRevision{
			{Timestamp: ts("2023-02-01T00:00:00Z"), UserID: 5, Links: []string{"taxi", "tram"}},
			{Timestamp: ts("2023-03-01T00:00:00Z"), UserID: 7, Links: []string{"tram"}},
		},
	}

	out, err := pool.ProcessBatch(context.Background(), []scanner.Row{mustRow(t, article)})
	require.NoError(t, err)
	require.Len(t, out, 1)

	byDst := map[int64]models.Edge{}
	for _, e := range out[0].Links {
		byDst[e.DstID] = e
	}
	require.Len(t, byDst, 2)

	tramID := idTable.GetOrInsert("tram")
	taxiID := idTable.GetOrInsert("taxi")

	tram := byDst[tramID]
	require.True(t, tram.CreatedAt.Equal(ts("2023-02-01T00:00:00Z")))
	require.Equal(t, int64(5), tram.CreatedByUser)
	require.Nil(t, tram.RemovedAt)

	taxi := byDst[taxiID]
	require.True(t, taxi.CreatedAt.Equal(ts("2023-02-01T00:00:00Z")))
	require.Equal(t, int64(5), taxi.CreatedByUser)
	require.NotNil(t, taxi.RemovedAt)
	require.True(t, taxi.RemovedAt.Equal(ts("2023-03-01T00:00:00Z")))
	require.NotNil(t, taxi.RemovedByUser)
	require.Equal(t, int64(7), *taxi.RemovedByUser)
}

func TestScenario4NormalizationCollapsesDuplicateLinks(t *testing.T) {
	idTable := NewIDTable()
	pool, err := New(idTable, 1)
	require.NoError(t, err)

	article := models.RawArticle{
		Title: "Bus",
		Revisions: []models.RawRevision{
			{Timestamp: ts("2023-02-01T00:00:00Z"), UserID: 1, Links: []string{"Tram"}},
			{Timestamp: ts("2023-03-01T00:00:00Z"), UserID: 2, Links: []string{"tram"}},
		},
	}

	out, err := pool.ProcessBatch(context.Background(), []scanner.Row{mustRow(t, article)})
	require.NoError(t, err)
	require.Len(t, out[0].Links, 1)
	require.Nil(t, out[0].Links[0].RemovedAt)
	require.True(t, out[0].Links[0].CreatedAt.Equal(ts("2023-02-01T00:00:00Z")))
}

func TestScenario5ReappearanceCreatesNewEdge(t *testing.T) {
	idTable := NewIDTable()
	pool, err := New(idTable, 1)
	require.NoError(t, err)

	article := models.RawArticle{
		Title: "Bus",
		Revisions: []models.RawRevision{
			{Timestamp: ts("2023-01-10T00:00:00Z"), UserID: 1, Links: []string{"tram"}},
			{Timestamp: ts("2023-01-20T00:00:00Z"), UserID: 2, Links: nil},
			{Timestamp: ts("2023-01-30T00:00:00Z"), UserID: 3, Links: []string{"tram"}},
		},
	}

	out, err := pool.ProcessBatch(context.Background(), []scanner.Row{mustRow(t, article)})
	require.NoError(t, err)
	require.Len(t, out[0].Links, 2)

	first, second := out[0].Links[0], out[0].Links[1]
	require.True(t, first.CreatedAt.Equal(ts("2023-01-10T00:00:00Z")))
	require.NotNil(t, first.RemovedAt)
	require.True(t, first.RemovedAt.Equal(ts("2023-01-20T00:00:00Z")))

	require.True(t, second.CreatedAt.Equal(ts("2023-01-30T00:00:00Z")))
	require.Nil(t, second.RemovedAt)
}

func TestPreFilterDropsEmptyAndNonAlnumTitles(t *testing.T) {
	idTable := NewIDTable()
	pool, err := New(idTable, 1)
	require.NoError(t, err)

	rows := []scanner.Row{
		mustRow(t, models.RawArticle{Title: "", Revisions: []models.RawRevision{{Timestamp: ts("2023-01-10T00:00:00Z")}}}),
		mustRow(t, models.RawArticle{Title: "(disambiguation)", Revisions: []models.RawRevision{{Timestamp: ts("2023-01-10T00:00:00Z")}}}),
		mustRow(t, models.RawArticle{Title: "Bus", Revisions: []models.RawRevision{{Timestamp: ts("2023-01-10T00:00:00Z")}}}),
	}

	out, err := pool.ProcessBatch(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "bus", out[0].Title)
}

func TestRemovedAtIsAlwaysAfterCreatedAt(t *testing.T) {
	idTable := NewIDTable()
	pool, err := New(idTable, 1)
	require.NoError(t, err)

	article := models.RawArticle{
		Title: "Bus",
		Revisions: []models.RawRevision{
			{Timestamp: ts("2023-01-10T00:00:00Z"), Links: []string{"tram"}},
			{Timestamp: ts("2023-01-11T00:00:00Z"), Links: nil},
		},
	}
	out, err := pool.ProcessBatch(context.Background(), []scanner.Row{mustRow(t, article)})
	require.NoError(t, err)
	for _, e := range out[0].Links {
		if e.RemovedAt != nil {
			require.True(t, e.RemovedAt.After(e.CreatedAt))
		}
	}
}
