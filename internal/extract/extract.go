package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hyperifyio/chalamandra/internal/textutil"
)

const (
	// DefaultMaxChars caps the cleaned output, counted in code points.
	DefaultMaxChars = 15000
	// DefaultMinChars and DefaultMinWords are the substantiality thresholds a
	// priority region must exceed to be accepted.
	DefaultMinChars = 200
	DefaultMinWords = 30
	// DefaultBlockMinChars is the trimmed length a single text node must
	// exceed to be a largest-block candidate.
	DefaultBlockMinChars = 100
)

// Sources reported in Document.Source when no priority selector matched.
const (
	SourceLargestBlock = "largest-block"
	SourceBody         = "body"
)

// PrioritySelectors lists likely main-content regions, highest priority first.
var PrioritySelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post",
	".article",
	".email-content",
	".message-content",
	".document-content",
}

// NavigationSelectors identify chrome regions. A priority match inside (or
// equal to) one of these is rejected.
var NavigationSelectors = []string{
	"nav", "menu", "header", "footer",
	".nav", ".navigation", ".menu", ".header", ".footer",
}

// Document is the bounded plain-text excerpt of a page.
type Document struct {
	Title string
	Text  string
	// Source names the rule that produced Text: the matching priority
	// selector, SourceLargestBlock or SourceBody.
	Source string
}

// Options tunes the heuristic. Zero values fall back to the defaults above.
type Options struct {
	Selectors     []string
	MinChars      int
	MinWords      int
	BlockMinChars int
	MaxChars      int
}

func (o Options) withDefaults() Options {
	if len(o.Selectors) == 0 {
		o.Selectors = PrioritySelectors
	}
	if o.MinChars <= 0 {
		o.MinChars = DefaultMinChars
	}
	if o.MinWords <= 0 {
		o.MinWords = DefaultMinWords
	}
	if o.BlockMinChars <= 0 {
		o.BlockMinChars = DefaultBlockMinChars
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	return o
}

// FromHTML extracts the main content of a page with default options.
func FromHTML(input []byte) Document {
	return FromHTMLWithOptions(input, Options{})
}

// FromHTMLWithOptions tries each priority selector in order and accepts the
// first substantial, non-navigational match. Otherwise it falls back to the
// longest text node under <body>, and finally to the body's visible text.
// The result is always cleaned and capped.
func FromHTMLWithOptions(input []byte, opts Options) Document {
	opts = opts.withDefaults()
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return Document{}
	}
	doc := goquery.NewDocumentFromNode(root)
	title := strings.TrimSpace(doc.Find("head title").First().Text())

	for _, sel := range opts.Selectors {
		match := doc.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if isSubstantial(match, opts) {
			return Document{Title: title, Text: Clean(visibleText(match.Nodes[0]), opts.MaxChars), Source: sel}
		}
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return Document{Title: title}
	}
	if block, ok := largestTextBlock(body.Nodes[0], opts.BlockMinChars); ok {
		return Document{Title: title, Text: Clean(block, opts.MaxChars), Source: SourceLargestBlock}
	}
	return Document{Title: title, Text: Clean(visibleText(body.Nodes[0]), opts.MaxChars), Source: SourceBody}
}

func isSubstantial(s *goquery.Selection, opts Options) bool {
	text := visibleText(s.Nodes[0])
	if utf8.RuneCountInString(text) <= opts.MinChars {
		return false
	}
	if len(strings.Fields(text)) <= opts.MinWords {
		return false
	}
	return !isNavigation(s)
}

func isNavigation(s *goquery.Selection) bool {
	for _, sel := range NavigationSelectors {
		if s.Closest(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// largestTextBlock returns the longest raw text node whose trimmed text is
// longer than minChars and that sits directly under an element. Ties keep
// the first node in document order.
func largestTextBlock(root *html.Node, minChars int) (string, bool) {
	var best string
	bestLen := -1
	walkText(root, func(n *html.Node) {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return
		}
		if utf8.RuneCountInString(strings.TrimSpace(n.Data)) <= minChars {
			return
		}
		if l := utf8.RuneCountInString(n.Data); l > bestLen {
			best = n.Data
			bestLen = l
		}
	})
	return best, bestLen >= 0
}

// visibleText concatenates the text nodes under n, skipping subtrees that
// never render as text.
func visibleText(n *html.Node) string {
	var b strings.Builder
	walkText(n, func(t *html.Node) { b.WriteString(t.Data) })
	return b.String()
}

func walkText(n *html.Node, fn func(*html.Node)) {
	switch n.Type {
	case html.TextNode:
		fn(n)
		return
	case html.ElementNode:
		if isHiddenContainer(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}

func isHiddenContainer(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// Clean collapses every whitespace run (newlines included) to a single space,
// trims the result and truncates it to maxChars code points. Invalid UTF-8
// sequences become U+FFFD.
func Clean(text string, maxChars int) string {
	out := strings.Join(strings.Fields(strings.ToValidUTF8(text, "\uFFFD")), " ")
	if maxChars > 0 {
		out, _ = textutil.Truncate(out, maxChars)
		out = strings.TrimRight(out, " ")
	}
	return out
}
