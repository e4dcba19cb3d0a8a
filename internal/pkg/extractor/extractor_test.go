package extractor

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wikidump/pipeline/pkg/models"
)

// parseXML drives the page-level state machine directly against an XML
// fragment, bypassing the 7z container so the state machine itself can be
// exercised without a real archive fixture.
func parseXML(t *testing.T, body string) []models.RawArticle {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(body))
	var articles []models.RawArticle
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}
		article, err := parsePage(dec)
		require.NoError(t, err)
		if article == nil {
			continue
		}
		if containsColon(article.Title) {
			continue
		}
		articles = append(articles, *article)
	}
	return articles
}

func TestFindLinks(t *testing.T) {
	text := `San Francisco also has [[Public Transport|public transport]]ation. Examples include [[bus]]es, [[taxicab]]s, and [[tram]]s.`
	require.Equal(t, []string{"Public Transport", "bus", "taxicab", "tram"}, findLinks(text))
}

func TestFindLinksEmpty(t *testing.T) {
	require.Nil(t, findLinks(""))
}

func TestScenario1BasicPageWithTwoRevisions(t *testing.T) {
	xmlDoc := `<mediawiki><page>
<title>Bus</title>
<revision><timestamp>2023-02-01T00:00:00Z</timestamp><contributor><id>5</id></contributor><text>[[tram]] [[taxi]]</text></revision>
<revision><timestamp>2023-03-01T00:00:00Z</timestamp><contributor><id>7</id></contributor><text>[[tram]]</text></revision>
</page></mediawiki>`

	articles := parseXML(t, xmlDoc)
	require.Len(t, articles, 1)
	require.Equal(t, "Bus", articles[0].Title)
	require.Len(t, articles[0].Revisions, 2)
	require.Equal(t, int64(5), articles[0].Revisions[0].UserID)
	require.Equal(t, []string{"taxi", "tram"}, articles[0].Revisions[0].Links)
}

func TestScenario2NamespaceFilterDropsTalkPages(t *testing.T) {
	xmlDoc := `<mediawiki><page>
<title>Talk:Bus</title>
<revision><timestamp>2023-02-01T00:00:00Z</timestamp><contributor><id>5</id></contributor><text>hello</text></revision>
</page></mediawiki>`

	require.Empty(t, parseXML(t, xmlDoc))
}

func TestScenario3BelowCutoffArticleNotStaged(t *testing.T) {
	xmlDoc := `<mediawiki><page>
<title>Bus</title>
<revision><timestamp>2022-12-31T23:59:59Z</timestamp><contributor><id>5</id></contributor><text>hi</text></revision>
</page></mediawiki>`

	require.Empty(t, parseXML(t, xmlDoc))
}

func TestContributorIPHashIsConsistent(t *testing.T) {
	xmlDoc := `<mediawiki>
<page><title>Bus</title>
<revision><timestamp>2023-02-01T00:00:00Z</timestamp><contributor><ip>192.0.2.1</ip></contributor><text></text></revision>
</page>
<page><title>Tram</title>
<revision><timestamp>2023-02-02T00:00:00Z</timestamp><contributor><ip>192.0.2.1</ip></contributor><text></text></revision>
</page>
</mediawiki>`

	articles := parseXML(t, xmlDoc)
	require.Len(t, articles, 2)
	require.Equal(t, articles[0].Revisions[0].UserID, articles[1].Revisions[0].UserID)
	require.Equal(t, hashIP("192.0.2.1"), articles[0].Revisions[0].UserID)
}

func TestNestedPageTagIsParseError(t *testing.T) {
	xmlDoc := `<mediawiki><page><title>Bus</title><page></page></page></mediawiki>`
	dec := xml.NewDecoder(strings.NewReader(xmlDoc))
	tok, _ := dec.Token()
	for {
		start, ok := tok.(xml.StartElement)
		if ok && start.Name.Local == "page" {
			break
		}
		tok, _ = dec.Token()
	}
	_, err := parsePage(dec)
	require.Error(t, err)
}

func TestMissingTimestampIsParseError(t *testing.T) {
	xmlDoc := `<mediawiki><page><title>Bus</title><revision><text>hi</text></revision></page></mediawiki>`
	articles, err := parseXMLExpectErr(xmlDoc)
	require.Error(t, err)
	require.Nil(t, articles)
}

func parseXMLExpectErr(body string) ([]models.RawArticle, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}
		_, err = parsePage(dec)
		if err != nil {
			return nil, err
		}
	}
}

func TestRevisionCapAt10000(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<mediawiki><page><title>Bus</title>`)
	for i := 0; i < 10002; i++ {
		b.WriteString(`<revision><timestamp>2023-02-01T00:00:00Z</timestamp><text></text></revision>`)
	}
	b.WriteString(`</page></mediawiki>`)

	articles := parseXML(t, b.String())
	require.Len(t, articles, 1)
	require.Len(t, articles[0].Revisions, MaxKeptRevisions)
}
