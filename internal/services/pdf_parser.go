package services

import (
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"candidate-screener/internal/errs"
)

// PDFParser extracts plain text from uploaded PDF documents. A PDF that
// cannot be opened or yields no text is a fatal error: retrying the same
// file will never help.
type PDFParser interface {
	ExtractText(filePath string) (string, error)
}

type pdfParser struct{}

func NewPDFParser() PDFParser {
	return &pdfParser{}
}

func (p *pdfParser) ExtractText(filePath string) (string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return "", errs.Wrap(errs.KindFatal, "document file is not accessible", err)
	}

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", errs.Wrap(errs.KindFatal, "failed to open PDF", err)
	}
	defer f.Close()

	var b strings.Builder
	totalPages := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages, the rest of the document may still
			// carry enough text to evaluate.
			continue
		}

		b.WriteString(text)
		b.WriteString("\n\n")
	}

	text := normalizeText(b.String())
	if text == "" {
		return "", errs.New(errs.KindFatal, "no text content found in PDF")
	}

	return text, nil
}

// normalizeText trims each line and drops blank ones, collapsing the
// inflated whitespace PDF extraction tends to produce.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
