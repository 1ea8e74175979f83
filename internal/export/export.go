// Package export turns an analysis report into the artifacts users take away:
// a dated JSON file, clipboard text, a PDF summary and a plain-text view.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hyperifyio/chalamandra/internal/ai"
	"github.com/hyperifyio/chalamandra/internal/analysis"
	"github.com/hyperifyio/chalamandra/internal/textutil"
)

// CardChars is the number of characters shown per insight card.
const CardChars = 200

// NoInsights is shown when every layer failed.
const NoInsights = "No insights generated. Try analyzing a page with more content."

// ErrClipboardUnsupported is returned when the platform has no clipboard tool.
var ErrClipboardUnsupported = errors.New("clipboard not available on this system")

// clipboardWrite is swapped in tests.
var clipboardWrite = clipboard.WriteAll

// FileName returns chalamandra-analysis-<YYYY-MM-DD>.json for the UTC date of t.
func FileName(t time.Time) string {
	return "chalamandra-analysis-" + t.UTC().Format("2006-01-02") + ".json"
}

// Marshal returns the report as two-space indented JSON.
func Marshal(r analysis.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteJSON writes the report into dir under FileName(now) and returns the
// written path. An existing file for the same day is replaced.
func WriteJSON(dir string, r analysis.Report, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	b, err := Marshal(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Copy puts the indented JSON report on the system clipboard.
func Copy(r analysis.Report) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	b, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := clipboardWrite(string(b)); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// Card is the display form of one fulfilled layer.
type Card struct {
	Layer   ai.Layer
	Content string
}

// Cards returns one card per fulfilled layer in report order. Structured
// output is shown as indented JSON; content is cut to CardChars.
func Cards(r analysis.Report) []Card {
	var cards []Card
	for _, layer := range ai.Layers {
		res := r.Layers.Get(layer)
		if !res.OK() {
			continue
		}
		content := res.Output.Text
		if res.Output.Structured != nil {
			if b, err := json.MarshalIndent(res.Output.Structured, "", "  "); err == nil {
				content = string(b)
			}
		}
		cards = append(cards, Card{Layer: layer, Content: cardText(content)})
	}
	return cards
}

func cardText(s string) string {
	return textutil.Ellipsize(s, CardChars)
}

// Percent rounds the resonance to a whole percentage.
func Percent(resonance float64) int {
	return int(math.Round(resonance * 100))
}

// Render writes the plain-text view of a report.
func Render(w io.Writer, r analysis.Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Resonance: %d%% (%s)\n", Percent(r.Resonance), analysis.ResonanceLabel(r.Resonance))
	if r.URL != "" {
		fmt.Fprintf(&sb, "Source: %s\n", r.URL)
	}
	cards := Cards(r)
	if len(cards) == 0 {
		sb.WriteString("\n")
		sb.WriteString(NoInsights)
		sb.WriteString("\n")
	}
	for _, c := range cards {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", strings.ToUpper(string(c.Layer)), c.Content)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
