// Package extractor implements C4: opening a downloaded archive blob as a
// 7z container, decoding the XML export stream inside it with a strict
// page/revision/contributor state machine, and emitting Raw Articles. The
// event-driven, single-reusable-buffer shape follows encoding/xml's own
// Decoder.Token() idiom; the nested-state-machine structure and its error
// conditions are grounded on the original Rust parser this spec was
// distilled from (ingest/parser.rs), translated into Go control flow.
package extractor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/zeebo/blake3"

	"github.com/wikidump/pipeline/internal/pkg/log"
	"github.com/wikidump/pipeline/pkg/models"
)

// Cutoff is the earliest revision timestamp kept (spec.md §4.4).
var Cutoff = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// MaxKeptRevisions bounds the number of revisions retained per article.
const MaxKeptRevisions = 10000

var linkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)

// countingReader wraps an io.Reader, counting bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Result is the outcome of extracting one archive blob.
type Result struct {
	Articles  []models.RawArticle
	BytesRead int64
}

// Extract opens blob as a 7z archive, decodes its first entry's XML stream,
// hands every kept Raw Article to emit, and returns the total XML bytes
// consumed (spec.md §4.4). emit is called every time articlesPerBatch articles have
// accumulated, and once more at end-of-stream with any remainder, so the
// caller never has to hold the whole archive's output in memory at once.
func Extract(blob []byte, articlesPerBatch int, emit func([]models.RawArticle) error) (int64, error) {
	logger := log.NewFieldedLogger(&log.Fields{"component": "extractor"})

	r, err := sevenzip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return 0, fmt.Errorf("extractor: opening 7z archive: %w", err)
	}

	if len(r.File) == 0 {
		return 0, fmt.Errorf("extractor: archive contains no files")
	}
	if len(r.File) > 1 {
		logger.Warn("archive contains more than one file, using the first", "count", len(r.File))
	}

	rc, err := r.File[0].Open()
	if err != nil {
		return 0, fmt.Errorf("extractor: opening archive entry: %w", err)
	}
	defer rc.Close()

	cr := &countingReader{r: rc}
	dec := xml.NewDecoder(cr)

	batch := make([]models.RawArticle, 0, articlesPerBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := emit(batch); err != nil {
			return err
		}
		batch = make([]models.RawArticle, 0, articlesPerBatch)
		return nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cr.n, fmt.Errorf("extractor: xml decode: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		article, err := parsePage(dec)
		if err != nil {
			return cr.n, err
		}
		if article == nil {
			continue
		}
		if containsColon(article.Title) {
			continue
		}

		batch = append(batch, *article)
		if len(batch) >= articlesPerBatch {
			if err := flush(); err != nil {
				return cr.n, err
			}
		}
	}

	if err := flush(); err != nil {
		return cr.n, err
	}

	return cr.n, nil
}

func containsColon(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return true
		}
	}
	return false
}

// parsePage consumes tokens up to and including </page>, implementing the
// InPage state. It returns nil if the page had no kept revisions.
func parsePage(dec *xml.Decoder) (*models.RawArticle, error) {
	var title string
	var revisions []models.RawRevision

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("extractor: xml decode in page: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title":
				text, err := readText(dec)
				if err != nil {
					return nil, err
				}
				title = text
			case "revision":
				rev, kept, err := parseRevision(dec)
				if err != nil {
					return nil, err
				}
				if kept && len(revisions) < MaxKeptRevisions {
					revisions = append(revisions, rev)
				}
			case "page":
				return nil, fmt.Errorf("extractor: nested <page> inside <page>")
			}
		case xml.EndElement:
			if t.Name.Local == "page" {
				if len(revisions) == 0 {
					return nil, nil
				}
				return &models.RawArticle{Title: title, Revisions: revisions}, nil
			}
		}
	}
}

// parseRevision consumes tokens up to and including </revision>, implementing
// the InRevision state. kept reports whether the revision met the cutoff.
func parseRevision(dec *xml.Decoder) (models.RawRevision, bool, error) {
	var (
		rev        models.RawRevision
		haveStamp  bool
		text       string
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return rev, false, fmt.Errorf("extractor: xml decode in revision: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "timestamp":
				raw, err := readText(dec)
				if err != nil {
					return rev, false, err
				}
				ts, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return rev, false, fmt.Errorf("extractor: parsing timestamp %q: %w", raw, err)
				}
				rev.Timestamp = ts
				haveStamp = true
			case "text":
				t2, err := readText(dec)
				if err != nil {
					return rev, false, err
				}
				text = t2
			case "contributor":
				userID, err := parseContributor(dec)
				if err != nil {
					return rev, false, err
				}
				rev.UserID = userID
			case "revision":
				return rev, false, fmt.Errorf("extractor: nested <revision> inside <revision>")
			}
		case xml.EndElement:
			if t.Name.Local == "revision" {
				if !haveStamp {
					return rev, false, fmt.Errorf("extractor: revision missing <timestamp>")
				}
				rev.Links = findLinks(text)
				return rev, !rev.Timestamp.Before(Cutoff), nil
			}
		}
	}
}

// parseContributor consumes tokens up to and including </contributor>,
// implementing the InContributor state.
func parseContributor(dec *xml.Decoder) (int64, error) {
	var userID int64

	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, fmt.Errorf("extractor: xml decode in contributor: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "id":
				raw, err := readText(dec)
				if err != nil {
					return 0, err
				}
				var id int64
				if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
					return 0, fmt.Errorf("extractor: parsing contributor id %q: %w", raw, err)
				}
				userID = id
			case "ip":
				raw, err := readText(dec)
				if err != nil {
					return 0, err
				}
				userID = hashIP(raw)
			case "contributor":
				return 0, fmt.Errorf("extractor: nested <contributor> inside <contributor>")
			}
		case xml.EndElement:
			if t.Name.Local == "contributor" {
				return userID, nil
			}
		}
	}
}

// hashIP synthesizes a user id for anonymous IP editors: the first 8 bytes
// of a BLAKE3 hash of the trimmed IP string, reinterpreted as a big-endian
// signed 64-bit integer (spec.md §3).
func hashIP(ip string) int64 {
	sum := blake3.Sum256([]byte(trim(ip)))
	return int64(uint64(sum[0])<<56 | uint64(sum[1])<<48 | uint64(sum[2])<<40 | uint64(sum[3])<<32 |
		uint64(sum[4])<<24 | uint64(sum[5])<<16 | uint64(sum[6])<<8 | uint64(sum[7]))
}

func trim(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// readText accumulates character data until the enclosing element's end tag,
// unescaping entities the way encoding/xml's decoder already does for
// xml.CharData tokens.
func readText(dec *xml.Decoder) (string, error) {
	var buf bytes.Buffer
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("extractor: xml decode reading text: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return buf.String(), nil
			}
			depth--
		}
	}
}

// findLinks extracts sorted, deduplicated wikilink targets from wikitext
// (spec.md §4.4). Escapes are not honored, matching the upstream reference
// implementation's simplification.
func findLinks(wikitext string) []string {
	matches := linkPattern.FindAllStringSubmatch(wikitext, -1)
	if len(matches) == 0 {
		return nil
	}
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, m[1])
	}
	sort.Strings(links)

	out := links[:0:0]
	for i, l := range links {
		if i == 0 || l != links[i-1] {
			out = append(out, l)
		}
	}
	return out
}
