package reporting

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

type rgb struct{ r, g, b int }

var (
	headerFill = rgb{128, 128, 128} // grey
	headerText = rgb{245, 245, 245} // whitesmoke
	bandFill   = rgb{245, 245, 220} // beige
	plainFill  = rgb{255, 255, 255}
	gridColor  = rgb{0, 0, 0}
)

const (
	pdfFont     = "Helvetica"
	pdfFontSize = 9
	rowHeight   = 7
	cellPadding = 4
)

// RenderPDF lays t out as one table on US Letter pages: a bold header row on
// grey with light text, alternating beige and white data rows, full grid
// lines and centred cells. The header repeats on every page.
func RenderPDF(t Table) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := t.Header()
	widths := columnWidths(pdf, t, tr)
	total := 0.0
	for _, w := range widths {
		total += w
	}
	pageW, pageH := pdf.GetPageSize()
	_, top, _, bottom := pdf.GetMargins()
	left := (pageW - total) / 2

	setColor := func(set func(r, g, b int), c rgb) { set(c.r, c.g, c.b) }
	setColor(pdf.SetDrawColor, gridColor)

	drawHeader := func() {
		pdf.SetX(left)
		pdf.SetFont(pdfFont, "B", pdfFontSize)
		setColor(pdf.SetFillColor, headerFill)
		setColor(pdf.SetTextColor, headerText)
		for i, h := range header {
			pdf.CellFormat(widths[i], rowHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(pdfFont, "", pdfFontSize)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetY(top)
	drawHeader()
	for i := range t.Rows {
		if pdf.GetY()+rowHeight > pageH-bottom {
			pdf.AddPage()
			pdf.SetY(top)
			drawHeader()
		}
		if i%2 == 0 {
			setColor(pdf.SetFillColor, bandFill)
		} else {
			setColor(pdf.SetFillColor, plainFill)
		}
		pdf.SetX(left)
		for j, v := range t.Row(i) {
			pdf.CellFormat(widths[j], rowHeight, tr(FormatCell(v)), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths sizes each column to its widest cell, scaled down to fit the
// printable width when needed. tr converts UTF-8 to the core font encoding.
func columnWidths(pdf *fpdf.Fpdf, t Table, tr func(string) string) []float64 {
	header := t.Header()
	widths := make([]float64, len(header))

	pdf.SetFont(pdfFont, "B", pdfFontSize)
	for i, h := range header {
		widths[i] = pdf.GetStringWidth(tr(h)) + cellPadding
	}
	pdf.SetFont(pdfFont, "", pdfFontSize)
	for r := range t.Rows {
		for j, v := range t.Row(r) {
			if w := pdf.GetStringWidth(tr(FormatCell(v))) + cellPadding; w > widths[j] {
				widths[j] = w
			}
		}
	}

	pageW, _ := pdf.GetPageSize()
	l, _, r, _ := pdf.GetMargins()
	avail := pageW - l - r
	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > avail {
		scale := avail / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}
