package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

func extractPDF(data []byte) (text string, err error) {
	// The pdf package panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var out bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		out.WriteString(content)
		out.WriteString("\n\n")
	}

	if out.Len() == 0 {
		// Fall back to the whole-document reader for PDFs without a page tree.
		plain, err := r.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("pdf plaintext: %w", err)
		}
		if _, err := io.Copy(&out, plain); err != nil {
			return "", fmt.Errorf("pdf read: %w", err)
		}
	}

	return normalizeText(out.String()), nil
}
