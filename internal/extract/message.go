package extract

import (
	"fmt"
	"time"
)

// ActionExtractContent is the only action the page side answers.
const ActionExtractContent = "extractContent"

// Request is the message sent from the orchestrator to the page side.
type Request struct {
	Action string `json:"action"`
}

// Response mirrors the page side's reply. On failure only Success and Error
// are set.
type Response struct {
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Page is the loaded document the page side extracts from.
type Page struct {
	URL  string
	HTML []byte
}

// HandleMessage answers req for page using ex. It never panics: a failing
// extractor is reported as an unsuccessful response.
func HandleMessage(req Request, page Page, ex Extractor, now time.Time) (resp Response) {
	if req.Action != ActionExtractContent {
		return Response{Error: fmt.Sprintf("unsupported action: %q", req.Action)}
	}
	if ex == nil {
		ex = HeuristicExtractor{}
	}
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Error: fmt.Sprintf("extract: %v", r)}
		}
	}()
	doc := ex.Extract(page.HTML, page.URL)
	return Response{
		Success:   true,
		Content:   doc.Text,
		URL:       page.URL,
		Title:     doc.Title,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// ContentOf returns the content carried by resp, or "" when the page side
// failed or returned nothing. Callers treat "" as insufficient content.
func ContentOf(resp *Response) string {
	if resp == nil || !resp.Success {
		return ""
	}
	return resp.Content
}
