package extract

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// prose returns n space-separated seven-letter words.
func prose(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "analyze"
	}
	return strings.Join(words, " ")
}

func page(body string) []byte {
	return []byte("<!doctype html><html><head><title>Fixture</title></head><body>" + body + "</body></html>")
}

func TestFromHTML_ArticleBeatsNavigation(t *testing.T) {
	text := prose(35) // 279 characters
	doc := FromHTML(page("<nav>Home About Contact and plenty of other boilerplate links</nav><article>\n  " + text + "\n</article>"))
	if doc.Source != "article" {
		t.Fatalf("source = %q, want article", doc.Source)
	}
	if doc.Text != text {
		t.Fatalf("unexpected text: %q", doc.Text)
	}
	if doc.Title != "Fixture" {
		t.Fatalf("title = %q", doc.Title)
	}
}

func TestFromHTML_FallsBackToLargestBlock(t *testing.T) {
	long := strings.Repeat("abcd ", 100) // 500 characters
	body := "<div>short one</div><div>" + long + "</div><div>another short block of text</div><div>tiny</div>"
	doc := FromHTML(page(body))
	if doc.Source != SourceLargestBlock {
		t.Fatalf("source = %q, want %q", doc.Source, SourceLargestBlock)
	}
	if doc.Text != Clean(long, DefaultMaxChars) {
		t.Fatalf("expected the 500 character block, got %q", doc.Text)
	}
}

func TestFromHTML_LargestBlockTieKeepsFirst(t *testing.T) {
	first := strings.Repeat("a", 150)
	second := strings.Repeat("b", 150)
	doc := FromHTML(page("<div>" + first + "</div><p>" + second + "</p>"))
	if doc.Text != first {
		t.Fatalf("expected the first maximal block to win the tie (source %s)", doc.Source)
	}
}

func TestFromHTML_FailingSelectorContinuesToNext(t *testing.T) {
	body := "<article>too short to count</article><main>" + prose(40) + "</main>"
	doc := FromHTML(page(body))
	if doc.Source != "main" {
		t.Fatalf("source = %q, want main", doc.Source)
	}
}

func TestFromHTML_NavigationRegionRejected(t *testing.T) {
	chrome := "<header><div class=\"content\">" + prose(50) + "</div></header>"
	post := "<div class=\"post\">" + strings.ReplaceAll(prose(40), "analyze", "posting") + "</div>"
	doc := FromHTML(page(chrome + post))
	if doc.Source != ".post" {
		t.Fatalf("source = %q, want .post", doc.Source)
	}
	if strings.Contains(doc.Text, "analyze") {
		t.Fatalf("navigation content leaked into result")
	}
}

func TestFromHTML_ClassNavigationRejected(t *testing.T) {
	body := "<div class=\"menu\"><article>" + prose(40) + "</article></div>"
	doc := FromHTML(page(body))
	if doc.Source == "article" {
		t.Fatalf("article inside .menu must not be accepted")
	}
}

func TestFromHTML_WordCountThreshold(t *testing.T) {
	// 25 long words: over 200 characters but not over 30 words.
	words := make([]string, 25)
	for i := range words {
		words[i] = "internationalization"
	}
	doc := FromHTML(page("<article>" + strings.Join(words, " ") + "</article>"))
	if doc.Source == "article" {
		t.Fatalf("article with 25 words must fail the substantiality test")
	}
}

func TestFromHTML_OutputIsCapped(t *testing.T) {
	doc := FromHTML(page("<article>" + strings.Repeat("word ", 10000) + "</article>"))
	if n := utf8.RuneCountInString(doc.Text); n > DefaultMaxChars {
		t.Fatalf("length %d exceeds cap", n)
	}
	doc = FromHTML(page("<div>" + strings.Repeat("x", 40000) + "</div>"))
	if n := utf8.RuneCountInString(doc.Text); n != DefaultMaxChars {
		t.Fatalf("length %d, want %d", n, DefaultMaxChars)
	}
}

func TestFromHTML_NormalizesWhitespace(t *testing.T) {
	body := "<article><p>" + prose(20) + "</p>\n\n\n<p>\t" + prose(20) + "   </p>\r\n</article>"
	doc := FromHTML(page(body))
	if strings.Contains(doc.Text, "  ") || strings.Contains(doc.Text, "\n") || strings.Contains(doc.Text, "\t") {
		t.Fatalf("whitespace not collapsed: %q", doc.Text)
	}
	if doc.Text != strings.TrimSpace(doc.Text) {
		t.Fatalf("text not trimmed")
	}
}

func TestFromHTML_IgnoresScriptText(t *testing.T) {
	body := "<script>var x = '" + strings.Repeat("s", 300) + "';</script><div>visible</div>"
	doc := FromHTML(page(body))
	if strings.Contains(doc.Text, "sss") {
		t.Fatalf("script text should not be extracted: %q", doc.Text)
	}
	if doc.Source != SourceBody || doc.Text != "visible" {
		t.Fatalf("expected body fallback with visible text, got %q from %s", doc.Text, doc.Source)
	}
}

func TestFromHTML_EmptyInput(t *testing.T) {
	doc := FromHTML(nil)
	if doc.Text != "" {
		t.Fatalf("expected empty text, got %q", doc.Text)
	}
}

func TestClean(t *testing.T) {
	got := Clean("  a \n\n b\t\tc  d  ", 0)
	if got != "a b c d" {
		t.Fatalf("Clean = %q", got)
	}
	if got := Clean("héllo wörld", 4); got != "héll" {
		t.Fatalf("rune truncation = %q", got)
	}
}

func TestFromHTML_InvalidUTF8Replaced(t *testing.T) {
	doc := FromHTML([]byte("<div>" + strings.Repeat("\xff\xfe x", 100) + "</div>"))
	if !utf8.ValidString(doc.Text) {
		t.Fatalf("extracted text is not valid UTF-8: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "\uFFFD") {
		t.Fatalf("expected replacement characters, got %q", doc.Text)
	}
	if got := Clean("\xff\xffab", 3); got != "\uFFFDab" {
		t.Fatalf("Clean = %q", got)
	}
}

func TestReadabilityExtractor_ReturnsBoundedText(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString("<p>The negotiation team reviewed every clause of the partnership agreement and noted where leverage shifted between the parties. ")
		b.WriteString(prose(30))
		b.WriteString("</p>")
	}
	input := page("<nav>menu</nav><div id=\"story\">" + b.String() + "</div>")
	doc := ReadabilityExtractor{}.Extract(input, "https://example.com/story")
	if !strings.Contains(doc.Text, "partnership agreement") {
		t.Fatalf("expected article text, got %q", doc.Text)
	}
	if utf8.RuneCountInString(doc.Text) > DefaultMaxChars {
		t.Fatalf("readability output exceeds cap")
	}
}

func TestNew_SelectsStrategy(t *testing.T) {
	if _, ok := New("readability", Options{}).(ReadabilityExtractor); !ok {
		t.Fatalf("expected ReadabilityExtractor")
	}
	if _, ok := New("", Options{}).(HeuristicExtractor); !ok {
		t.Fatalf("expected HeuristicExtractor by default")
	}
}

func TestHandleMessage(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	p := Page{URL: "https://example.com/a", HTML: page("<article>" + prose(40) + "</article>")}

	resp := HandleMessage(Request{Action: ActionExtractContent}, p, nil, now)
	if !resp.Success || resp.Content == "" {
		t.Fatalf("expected success with content: %+v", resp)
	}
	if resp.URL != p.URL || resp.Title != "Fixture" {
		t.Fatalf("unexpected url/title: %+v", resp)
	}
	if resp.Timestamp != "2026-10-17T12:00:00Z" {
		t.Fatalf("timestamp = %q", resp.Timestamp)
	}

	bad := HandleMessage(Request{Action: "summarize"}, p, nil, now)
	if bad.Success || bad.Error == "" {
		t.Fatalf("expected failure for unknown action: %+v", bad)
	}
	if ContentOf(&bad) != "" || ContentOf(nil) != "" {
		t.Fatalf("ContentOf must be empty for failed or missing responses")
	}
}

type panickingExtractor struct{}

func (panickingExtractor) Extract([]byte, string) Document { panic("boom") }

func TestHandleMessage_RecoversExtractorPanic(t *testing.T) {
	resp := HandleMessage(Request{Action: ActionExtractContent}, Page{}, panickingExtractor{}, time.Now())
	if resp.Success || !strings.Contains(resp.Error, "boom") {
		t.Fatalf("expected recovered failure, got %+v", resp)
	}
}

func BenchmarkFromHTML(b *testing.B) {
	medium := page("<main>" + strings.Repeat("<p>"+prose(60)+"</p>", 50) + "</main>")
	unstructured := page(strings.Repeat("<div>"+prose(30)+"</div>", 200))
	b.Run("priority", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = FromHTML(medium)
		}
	})
	b.Run("fallback", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = FromHTML(unstructured)
		}
	})
}
