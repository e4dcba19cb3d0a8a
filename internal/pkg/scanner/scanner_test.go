package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wikidump/pipeline/internal/pkg/stage"
)

func TestScanCoversEveryRowExactlyOnce(t *testing.T) {
	s, err := stage.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	titles := []string{"avocado", "Bus", "tram", "Zebra", "apple"}
	rows := make([]stage.ArticleRow, 0, len(titles))
	for _, title := range titles {
		rows = append(rows, stage.ArticleRow{Title: title, Value: []byte("v-" + title)})
	}
	require.NoError(t, s.InsertArticles(rows))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := map[string][]byte{}
	for batch := range Scan(ctx, s, 32, 2, 4) {
		for _, r := range batch {
			seen[string(r.Title)] = r.Value
		}
	}

	require.Len(t, seen, len(titles))
	for _, title := range titles {
		require.Equal(t, []byte("v-"+title), seen[title])
	}
}

func TestScanEmptyStoreYieldsNoBatches(t *testing.T) {
	s, err := stage.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count := 0
	for range Scan(ctx, s, 32, 16384, 4) {
		count++
	}
	require.Equal(t, 0, count)
}
