package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed above a document's table.
type Field struct {
	Label string
	Value string
}

// Document describes a printable page such as a payment receipt.
type Document struct {
	Title  string
	Fields []Field
	Table  Dataset
	Footer string
}

// PDFExporter renders documents and datasets into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Exporter.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Exporter.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render implements Exporter with a table-only document.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	return e.RenderDocument(Document{Table: data})
}

// RenderDocument prints the title, the field block, the table and the footer in that order.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	if len(doc.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	if len(doc.Fields) > 0 {
		for _, field := range doc.Fields {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(45, 6, field.Label, "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.CellFormat(0, 6, field.Value, "", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(doc.Table.Headers))
	for _, header := range doc.Table.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i := range doc.Table.Rows {
		for _, value := range doc.Table.Record(i) {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if doc.Footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, doc.Footer, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
