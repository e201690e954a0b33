package reporting

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// Column is one PDF table column. Width is in millimetres.
type Column struct {
	Header string
	Width  float64
	Align  string
}

// Table is a titled tabular report.
type Table struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     [][]string
	Footer   string
}

const rowHeight = 7

// WritePDF renders t as a landscape A4 document. The column header is
// repeated on every page.
func WritePDF(w io.Writer, t Table) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(41, 98, 155)
		pdf.SetTextColor(255, 255, 255)
		for _, col := range t.Columns {
			pdf.CellFormat(col.Width, rowHeight, tr(col.Header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(41, 98, 155)
	pdf.CellFormat(0, 10, tr(t.Title), "", 1, "L", false, 0, "")
	if t.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 7, tr(t.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, row := range t.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom-5 {
			pdf.AddPage()
			header()
		}
		fill := i%2 == 1
		pdf.SetFillColor(240, 244, 248)
		for j, col := range t.Columns {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			align := col.Align
			if align == "" {
				align = "L"
			}
			pdf.CellFormat(col.Width, rowHeight, tr(truncate(pdf, cell, col.Width-2)), "1", 0, align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, rowHeight, "No records in this period.", "1", 1, "C", false, 0, "")
	}

	if t.Footer != "" {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, tr(t.Footer), "", 1, "R", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	return pdf.Output(w)
}

// truncate shortens s with an ellipsis until it fits width.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
