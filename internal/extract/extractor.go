package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Extractor defines a minimal interface for content extraction strategies.
// Implementations must be deterministic and must not modify the input.
type Extractor interface {
	// Extract converts raw HTML bytes served from pageURL into a Document.
	Extract(input []byte, pageURL string) Document
}

// HeuristicExtractor runs the priority-selector heuristic.
type HeuristicExtractor struct {
	Options Options
}

func (h HeuristicExtractor) Extract(input []byte, _ string) Document {
	return FromHTMLWithOptions(input, h.Options)
}

// SourceReadability marks documents produced by ReadabilityExtractor.
const SourceReadability = "readability"

// ReadabilityExtractor asks go-readability for the article body and applies
// the same cleanup and cap. Pages where readability finds nothing go through
// the heuristic instead.
type ReadabilityExtractor struct {
	Options Options
}

func (r ReadabilityExtractor) Extract(input []byte, pageURL string) Document {
	opts := r.Options.withDefaults()
	fallback := func() Document { return FromHTMLWithOptions(input, opts) }

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		base = &url.URL{Scheme: "https", Host: "localhost", Path: "/"}
	}
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(input), base)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return fallback()
	}
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return fallback()
	}
	text := Clean(visibleText(frag.Nodes[0]), opts.MaxChars)
	if text == "" {
		return fallback()
	}
	return Document{Title: strings.TrimSpace(article.Title), Text: text, Source: SourceReadability}
}

// New returns the extractor registered under name. Unknown names get the
// heuristic extractor.
func New(name string, opts Options) Extractor {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "readability":
		return ReadabilityExtractor{Options: opts}
	default:
		return HeuristicExtractor{Options: opts}
	}
}
