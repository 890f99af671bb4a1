// Package parse extracts result-count integers from raw search responses.
//
// Response formats drift; extraction runs over a small closed set of known
// page variants and fails closed with serp.ParseError instead of guessing
// a number from unrelated text.
package parse

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/language"

	"github.com/serptrend/serptrend/internal/serp"
)

// countPattern matches a digit run (with optional grouping separators)
// immediately followed by a localized "results" word. The time estimate in
// the stats line ("(0.42 seconds)") never matches because no results word
// follows it.
var countPattern = regexp.MustCompile(
	`(?i)([0-9][0-9.,\x{00A0}\x{202F} ]*)(?:results?|ergebnisse|résultats?|resultados?|resultaten)`,
)

const separatorCutset = ".,\u00a0\u202f "

// variant is one known response shape carrying the stats line.
type variant struct {
	name     string
	selector string
}

// noResultsMarkers identify the explicit empty-results page, which counts
// as a true zero (distinct from an unparseable page).
var noResultsMarkers = [][]byte{
	[]byte("No results found for"),
	[]byte("did not match any documents"),
	[]byte("Keine Ergebnisse"),
	[]byte("Aucun résultat"),
	[]byte("No se han encontrado resultados"),
}

// Languages with known digit-grouping rules. The separator table is
// index-aligned with the tag list; French groups with spaces, which are
// stripped unconditionally.
var (
	supportedTags = []language.Tag{
		language.English,
		language.German,
		language.French,
		language.Spanish,
		language.Dutch,
		language.Portuguese,
	}
	groupSeparators = []string{",", ".", "", ".", ".", "."}
)

// Parser implements serp.ResultParser.
type Parser struct {
	variants []variant
	matcher  language.Matcher
}

// New builds a Parser over the known response variants.
func New() *Parser {
	return &Parser{
		variants: []variant{
			{name: "result-stats", selector: "#result-stats"},
			{name: "result-stats-legacy", selector: "#resultStats"},
			{name: "appbar-stats", selector: "#slim_appbar"},
		},
		matcher: language.NewMatcher(supportedTags),
	}
}

// Parse extracts the result count from resp. A recognized no-results page
// yields 0; anything else without an extractable count yields ParseError.
func (p *Parser) Parse(resp serp.RawResponse) (int64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return 0, &serp.ParseError{Context: fmt.Sprintf("unreadable html: %v", err)}
	}

	lang := doc.Find("html").First().AttrOr("lang", "")

	var candidate string
	for _, v := range p.variants {
		text := strings.TrimSpace(doc.Find(v.selector).First().Text())
		if text == "" {
			continue
		}
		if count, err := p.extractCount(text, lang); err == nil {
			return count, nil
		}
		if candidate == "" {
			candidate = text
		}
	}

	if p.isNoResults(resp.Body) {
		return 0, nil
	}

	if candidate == "" {
		candidate = snippet(resp.Body)
	}
	return 0, &serp.ParseError{Context: candidate}
}

// extractCount pulls the integer out of a stats line, applying the
// grouping-separator rule for the page language. With an unknown language
// a single separator kind is accepted; mixed separators fail closed.
func (p *Parser) extractCount(text, lang string) (int64, error) {
	m := countPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no count in %q", text)
	}
	raw := strings.TrimRight(m[1], separatorCutset)
	raw = stripSpaces(raw)

	sep, known := p.groupSeparator(lang)
	if !known {
		hasDot := strings.Contains(raw, ".")
		hasComma := strings.Contains(raw, ",")
		if hasDot && hasComma {
			return 0, fmt.Errorf("ambiguous separators in %q", raw)
		}
		switch {
		case hasDot:
			sep = "."
		case hasComma:
			sep = ","
		}
	}
	if sep != "" {
		raw = strings.ReplaceAll(raw, sep, "")
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", raw, err)
	}
	return count, nil
}

func (p *Parser) groupSeparator(lang string) (string, bool) {
	if lang == "" {
		return "", false
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	_, idx, conf := p.matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return groupSeparators[idx], true
}

func (p *Parser) isNoResults(body []byte) bool {
	for _, marker := range noResultsMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
}

func snippet(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}
