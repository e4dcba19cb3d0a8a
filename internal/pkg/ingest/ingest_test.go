package ingest

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/wikidump/pipeline/pkg/models"
)

// TestStagingRoundTripLaw exercises the round-trip law from spec.md §8:
// parse -> filter -> bincode -> zstd -> unzstd -> unbincode yields the
// original Raw Article. CBOR stands in for bincode here.
func TestStagingRoundTripLaw(t *testing.T) {
	original := models.RawArticle{
		Title: "Bus",
		Revisions: []models.RawRevision{
			{
				Timestamp: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
				UserID:    5,
				Links:     []string{"taxi", "tram"},
			},
		},
	}

	raw, err := cbor.Marshal(original)
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	decompressed, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)

	var roundTripped models.RawArticle
	require.NoError(t, cbor.Unmarshal(decompressed, &roundTripped))

	require.True(t, original.Revisions[0].Timestamp.Equal(roundTripped.Revisions[0].Timestamp))
	roundTripped.Revisions[0].Timestamp = original.Revisions[0].Timestamp
	require.Equal(t, original, roundTripped)
}
