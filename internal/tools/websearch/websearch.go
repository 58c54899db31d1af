// Package websearch implements the optional web-search tool: fetch a
// small number of live results and render them as a system-prompt block
// when the query shape suggests live data is needed.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/dswagner/psychoportal/internal/observability"
)

// liveDataKeywords triggers a search when the message shape looks like it's
// asking about something time-sensitive.
var liveDataKeywords = regexp.MustCompile(`(?i)\b(today|current|latest|right now|this week|weather|news|score|stock price|who won|what time is it)\b`)

var questionShape = regexp.MustCompile(`(?i)\b(what|who|when|where|how much|how many)\b.*\?`)

// ShouldSearch reports whether message's shape plus live-data keywords
// warrant a web search.
func ShouldSearch(message string) bool {
	return liveDataKeywords.MatchString(message) || questionShape.MatchString(message)
}

// Result is one fetched-and-extracted web page.
type Result struct {
	Title   string
	URL     string
	Excerpt string
}

// minRenderedTextLen is the extracted-article-length floor below which a
// plain HTTP GET is assumed to have hit a JS-rendered shell page, worth
// retrying through JSFetcher.
const minRenderedTextLen = 200

// Searcher fetches a bounded number of results for a query. The underlying
// provider (a search API) is outside this module's scope; Searcher wraps
// a caller-supplied URL lister and does the fetch+extract+render work.
type Searcher struct {
	client      *http.Client
	URLLister   func(ctx context.Context, query string, n int) ([]string, error)
	MaxResults  int
	// JS, when set, is used to re-render a page through a real browser
	// when the plain HTTP fetch extracts suspiciously little text.
	JS *JSFetcher
}

// NewSearcher builds a Searcher with a traced HTTP client.
func NewSearcher(lister func(ctx context.Context, query string, n int) ([]string, error)) *Searcher {
	return &Searcher{
		client:     observability.NewHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		URLLister:  lister,
		MaxResults: 3,
	}
}

// Search fetches up to MaxResults pages for query, extracts readable text
// via go-readability, and renders it to markdown.
func (s *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	if s.URLLister == nil {
		return nil, nil
	}
	n := s.MaxResults
	if n <= 0 {
		n = 3
	}
	urls, err := s.URLLister(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("websearch: list urls: %w", err)
	}
	log := observability.LoggerWithTrace(ctx)
	var out []Result
	for _, u := range urls {
		r, err := s.fetchOne(ctx, u)
		if (err != nil || len(r.Excerpt) < minRenderedTextLen) && s.JS != nil {
			if jr, jerr := s.fetchRendered(ctx, u); jerr == nil {
				r, err = jr, nil
			} else {
				log.Debug().Err(jerr).Str("url", u).Msg("websearch_js_render_failed")
			}
		}
		if err != nil {
			log.Debug().Err(err).Str("url", u).Msg("websearch_fetch_failed")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// fetchRendered re-fetches rawURL through JSFetcher and extracts/renders
// the result the same way fetchOne does for a plain HTTP response.
func (s *Searcher) fetchRendered(ctx context.Context, rawURL string) (Result, error) {
	html, err := s.JS.RenderHTML(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse rendered url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Result{}, fmt.Errorf("readability extract (rendered): %w", err)
	}
	text, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return Result{}, fmt.Errorf("html to markdown (rendered): %w", err)
	}
	if len(text) > 1200 {
		text = text[:1200]
	}
	return Result{Title: strings.TrimSpace(article.Title), URL: rawURL, Excerpt: strings.TrimSpace(text)}, nil
}

func (s *Searcher) fetchOne(ctx context.Context, rawURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	article, err := readability.FromReader(resp.Body, req.URL)
	if err != nil {
		return Result{}, fmt.Errorf("readability extract: %w", err)
	}
	text, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return Result{}, fmt.Errorf("html to markdown: %w", err)
	}
	if len(text) > 1200 {
		text = text[:1200]
	}
	return Result{Title: strings.TrimSpace(article.Title), URL: rawURL, Excerpt: strings.TrimSpace(text)}, nil
}

// FormatBlock renders search results as the "─── WEB SEARCH:" prompt
// block, or nothing for an empty result set.
func FormatBlock(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("─── WEB SEARCH: live results ───\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Excerpt)
	}
	return b.String()
}
