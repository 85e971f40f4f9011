// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for binary formats no extractor understands.
var ErrUnsupported = errors.New("unsupported file type")

// Extract detects the format of data and returns its text. The filename is a
// hint; magic bytes take precedence over the extension.
func Extract(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file %q", filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case isPDF(data):
		return extractPDF(data)
	case isZip(data):
		return extractDOCX(data)
	case ext == ".pdf":
		return "", fmt.Errorf("file %q claims pdf but has no %%PDF header", filename)
	case ext == ".docx":
		return "", fmt.Errorf("file %q claims docx but is not a zip container", filename)
	case ext == ".html" || ext == ".htm" || looksLikeHTML(data):
		return extractHTML(string(data)), nil
	case ext == ".md" || ext == ".markdown":
		return extractMarkdown(data), nil
	case isProbablyText(data):
		return normalizeText(string(data)), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupported, filename)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	if strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") {
		return true
	}
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

// isProbablyText accepts valid UTF-8 without NUL bytes where nearly every byte is printable.
func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	// Trim a possibly truncated trailing rune before validating.
	for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
		sample = sample[:len(sample)-1]
	}
	if len(sample) == 0 || !utf8.Valid(sample) {
		return false
	}

	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || c >= 0x20 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.95
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockTagRe    = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|section|article|header|footer)[^>]*>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func extractHTML(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	return normalizeText(htmlEntities.Replace(s))
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// normalizeText collapses runs of spaces and blank lines but keeps paragraph
// breaks, which the chunker uses as its first split boundary.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
