package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

const userAgent = "newsalert/1.0"

// Source is one RSS/Atom feed to ingest.
type Source struct {
	URL   string
	Title string
}

type cacheHeaders struct {
	etag         string
	lastModified string
}

// Fetcher downloads feeds and remembers validators between runs so repeat
// polls can be answered with 304.
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheHeaders
}

// OPML structures for parsing
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// NewFetcher creates a new feed fetcher. A zero timeout means no client
// timeout; callers then bound each fetch with their context.
func NewFetcher(timeout time.Duration) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		parser: parser,
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]cacheHeaders),
	}
}

// FetchResult holds the outcome of a conditional feed fetch.
type FetchResult struct {
	Feed         *gofeed.Feed // nil when NotModified is true
	ETag         string       // ETag from response (empty if absent)
	LastModified string       // Last-Modified from response (empty if absent)
	NotModified  bool         // true when server returned 304
}

// FetchFeed fetches and parses a single feed using conditional HTTP requests.
// Validators from the previous successful fetch of the same URL are sent as
// If-None-Match / If-Modified-Since. A 304 response skips parsing entirely
// and returns NotModified=true.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	f.mu.Lock()
	cached := f.cache[feedURL]
	f.mu.Unlock()
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feedURL, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}

	result := &FetchResult{
		Feed:         parsed,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	f.mu.Lock()
	f.cache[feedURL] = cacheHeaders{etag: result.ETag, lastModified: result.LastModified}
	f.mu.Unlock()
	return result, nil
}

// LoadOPML reads feed sources from an OPML file, walking nested folders.
func LoadOPML(opmlPath string) ([]Source, error) {
	data, err := os.ReadFile(opmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}

	var opml OPML
	if err := xml.Unmarshal(data, &opml); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var sources []Source
	var processOutlines func(outlines []OPMLOutline)
	processOutlines = func(outlines []OPMLOutline) {
		for _, outline := range outlines {
			if outline.XMLURL != "" {
				title := outline.Title
				if title == "" {
					title = outline.Text
				}
				sources = append(sources, Source{URL: outline.XMLURL, Title: title})
			}
			if len(outline.Outlines) > 0 {
				processOutlines(outline.Outlines)
			}
		}
	}
	processOutlines(opml.Body.Outlines)
	return sources, nil
}

// ResolveSources merges configured URLs with an optional OPML file,
// dropping blanks and duplicate URLs while keeping first-seen order.
func ResolveSources(urls []string, opmlPath string) ([]Source, error) {
	var sources []Source
	for _, u := range urls {
		sources = append(sources, Source{URL: u})
	}
	if opmlPath != "" {
		fromOPML, err := LoadOPML(opmlPath)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fromOPML...)
	}

	seen := make(map[string]bool, len(sources))
	out := sources[:0]
	for _, s := range sources {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out, nil
}
