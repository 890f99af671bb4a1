package parse

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serptrend/serptrend/internal/serp"
)

func statsPage(lang, stats string) []byte {
	return []byte(fmt.Sprintf(
		`<html lang=%q><body><div id="result-stats">%s</div></body></html>`,
		lang, stats,
	))
}

func TestParseExtractsCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
		want int64
	}{
		{
			name: "english with comma grouping",
			body: statsPage("en", "About 1,234,567 results (0.42 seconds)"),
			want: 1234567,
		},
		{
			name: "english indian grouping",
			body: statsPage("en", "About 71,60,000 results (0.55 seconds)"),
			want: 7160000,
		},
		{
			name: "german with dot grouping",
			body: statsPage("de", "Ungefähr 45.000 Ergebnisse (0,38 Sekunden)"),
			want: 45000,
		},
		{
			name: "french with narrow space grouping",
			body: statsPage("fr", "Environ 2\u202f340\u202f000 résultats (0,47 secondes)"),
			want: 2340000,
		},
		{
			name: "spanish with dot grouping",
			body: statsPage("es", "Cerca de 9.870 resultados (0,31 segundos)"),
			want: 9870,
		},
		{
			name: "no lang attribute single separator kind",
			body: []byte(`<html><body><div id="result-stats">About 1,234 results</div></body></html>`),
			want: 1234,
		},
		{
			name: "legacy stats element",
			body: []byte(`<html lang="en"><body><div id="resultStats">About 987 results</div></body></html>`),
			want: 987,
		},
		{
			name: "appbar stats element",
			body: []byte(`<html lang="en"><body><div id="slim_appbar">42 results</div></body></html>`),
			want: 42,
		},
		{
			name: "single result",
			body: statsPage("en", "1 result (0.21 seconds)"),
			want: 1,
		},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Parse(serp.RawResponse{Body: tt.body})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseNoResultsPageIsZero(t *testing.T) {
	t.Parallel()

	p := New()
	body := []byte(`<html lang="en"><body><p>No results found for <b>xyzzy plugh</b></p></body></html>`)
	got, err := p.Parse(serp.RawResponse{Body: body})
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestParseFailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
	}{
		{
			name: "unrelated page",
			body: []byte(`<html><body><h1>Welcome</h1><p>Nothing to see here.</p></body></html>`),
		},
		{
			name: "stats line without count",
			body: statsPage("en", "Results are personalized"),
		},
		{
			name: "time estimate only",
			body: statsPage("en", "(0.42 seconds)"),
		},
		{
			name: "unknown lang with mixed separators",
			body: []byte(`<html><body><div id="result-stats">About 1.234,567 results</div></body></html>`),
		},
		{
			name: "declared grouping contradicts digits",
			body: statsPage("en", "About 1.234 results"),
		},
		{
			name: "empty body",
			body: nil,
		},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Parse(serp.RawResponse{Body: tt.body})
			var perr *serp.ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseErrorCarriesCandidateText(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Parse(serp.RawResponse{Body: statsPage("en", "Results are personalized")})
	var perr *serp.ParseError
	require.True(t, errors.As(err, &perr))
	require.Contains(t, perr.Context, "Results are personalized")
}
