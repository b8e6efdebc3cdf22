package us

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"innov8/internal/gather"
)

var _ gather.UniverseSource = (*ConstituentScraper)(nil)

// userAgent is sent with page fetches; the constituent page rejects
// requests without a browser-like agent.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// symbolColumn is the zero-based column of the ticker in each table row
// (#, Company, Symbol, Weight, ...).
const symbolColumn = 2

// ConstituentScraper resolves the index universe from a ranked constituent
// page, falling back to a static list whenever the page cannot be fetched or
// no longer has the expected shape.
type ConstituentScraper struct {
	url          string
	client       *http.Client
	fallbackFile string
	log          *slog.Logger
}

// NewConstituentScraper creates a scraper for url. fallbackFile may be empty,
// in which case the bundled list is the fallback.
func NewConstituentScraper(url string, timeout time.Duration, fallbackFile string) *ConstituentScraper {
	return &ConstituentScraper{
		url:          url,
		client:       &http.Client{Timeout: timeout},
		fallbackFile: fallbackFile,
		log:          slog.Default().With("component", "universe"),
	}
}

// Symbols returns the scraped universe, or the fallback list if scraping
// fails for any reason. It only errors if the fallback is empty as well.
func (s *ConstituentScraper) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := s.Scrape(ctx)
	if err == nil {
		s.log.Info("scraped universe", "url", s.url, "symbols", len(symbols))
		return symbols, nil
	}
	s.log.Warn("scrape failed, using fallback list", "url", s.url, "error", err)

	symbols = s.fallback()
	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe fallback is empty")
	}
	return symbols, nil
}

// Scrape fetches and parses the constituent page.
func (s *ConstituentScraper) Scrape(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", s.url, resp.StatusCode)
	}
	return ParseConstituents(resp.Body)
}

func (s *ConstituentScraper) fallback() []string {
	if s.fallbackFile != "" {
		symbols, err := LoadSymbolFile(s.fallbackFile)
		if err == nil && len(symbols) > 0 {
			return symbols
		}
		s.log.Warn("fallback file unusable, using bundled list", "path", s.fallbackFile, "error", err)
	}
	return BundledSymbols()
}

// ParseConstituents extracts the symbol column from every row of every
// table body in the document. A document without any symbol is an error.
func ParseConstituents(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing constituent page: %w", err)
	}

	var symbols []string
	seen := make(map[string]struct{})
	for tbody := range doc.Descendants() {
		if tbody.Type != html.ElementNode || tbody.DataAtom != atom.Tbody {
			continue
		}
		for tr := range tbody.ChildNodes() {
			if tr.Type != html.ElementNode || tr.DataAtom != atom.Tr {
				continue
			}
			cell := nthCell(tr, symbolColumn)
			if cell == nil {
				continue
			}
			sym := NormalizeSymbol(textContent(cell))
			if sym == "" {
				continue
			}
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("no constituents found in page")
	}
	return symbols, nil
}

// nthCell returns the n-th td child of tr, or nil.
func nthCell(tr *html.Node, n int) *html.Node {
	i := 0
	for c := range tr.ChildNodes() {
		if c.Type != html.ElementNode || c.DataAtom != atom.Td {
			continue
		}
		if i == n {
			return c
		}
		i++
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return strings.TrimSpace(b.String())
}
