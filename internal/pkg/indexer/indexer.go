// Package indexer implements C1: fetching a Wikimedia dump index page and
// resolving it to the list of meta-history archive URLs to ingest. The
// goquery selection idiom here is grounded on the teacher's
// internal/crawl/assets.go extractAssets, which walks a parsed document with
// doc.Find(selector).Each(...).
package indexer

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/wikidump/pipeline/internal/pkg/log"
)

var archiveNamePattern = regexp.MustCompile(`.*meta-history.*\.7z$`)

// List fetches indexURL and returns the resolved, deduplicated, order-
// preserving list of meta-history archive URLs it links to (spec.md §4.1).
func List(indexURL string) ([]string, error) {
	logger := log.NewFieldedLogger(&log.Fields{"component": "indexer"})

	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("indexer: parsing index URL: %w", err)
	}

	resp, err := http.Get(indexURL)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetching index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer: index fetch returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer: parsing index HTML: %w", err)
	}

	seen := make(map[string]struct{})
	var urls []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !archiveNamePattern.MatchString(href) {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			logger.Warn("skipping unresolvable href", "href", href, "error", err)
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	})

	logger.Info("resolved archive list", "count", len(urls))
	return urls, nil
}
