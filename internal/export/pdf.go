package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/chalamandra/internal/analysis"
)

// WritePDF renders a one-page summary of the report to path.
func WritePDF(path string, r analysis.Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	// core fonts are cp1252; translate so accented text survives
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Chalamandra analysis", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Chalamandra analysis", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if r.Title != "" {
		pdf.CellFormat(0, 6, tr(r.Title), "", 1, "L", false, 0, "")
	}
	if r.URL != "" {
		pdf.WriteLinkString(6, r.URL, r.URL)
		pdf.Ln(6)
	}
	pdf.CellFormat(0, 6, r.Timestamp, "", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, fmt.Sprintf("Resonance %d%% - %s", Percent(r.Resonance), analysis.ResonanceLabel(r.Resonance)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	cards := Cards(r)
	if len(cards) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5, NoInsights, "", "L", false)
	}
	for _, c := range cards {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, strings.ToUpper(string(c.Layer)), "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(c.Content), "", "L", false)
		pdf.Ln(3)
	}

	if r.ContentPreview != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 4, tr(r.ContentPreview), "", "L", false)
	}
	return pdf.OutputFileAndClose(path)
}
