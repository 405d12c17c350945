package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const pdfTableWidth = 277.0

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of the rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates a PDF document with an optional title, subtitle and table body.
func (e *PDFExporter) Render(data Dataset, title, subtitle string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	}
	if subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	widths := columnWidths(data)
	swatch := len(data.RowColors) == len(data.Rows) && len(data.Rows) > 0

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(235, 235, 235)
		if swatch {
			pdf.CellFormat(4, 7, "", "1", 0, "C", true, 0, "")
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})
	header()

	for idx, row := range data.Rows {
		if swatch {
			r, g, b := hexToRGB(data.RowColors[idx])
			pdf.SetFillColor(r, g, b)
			pdf.CellFormat(4, 6, "", "1", 0, "C", true, 0, "")
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 6, tr(truncateCell(row[h], widths[i])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	total := pdfTableWidth
	if len(data.RowColors) == len(data.Rows) && len(data.Rows) > 0 {
		total -= 4
	}
	out := make([]float64, len(data.Headers))
	if len(data.Widths) != len(data.Headers) {
		for i := range out {
			out[i] = total / float64(len(out))
		}
		return out
	}
	var sum float64
	for _, w := range data.Widths {
		sum += w
	}
	for i, w := range data.Widths {
		out[i] = total * w / sum
	}
	return out
}

// truncateCell keeps long titles inside their column at 8pt Arial (~1.6mm per glyph).
func truncateCell(v string, width float64) string {
	max := int(width / 1.6)
	r := []rune(v)
	if max < 4 || len(r) <= max {
		return v
	}
	return string(r[:max-3]) + "..."
}

func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
