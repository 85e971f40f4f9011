package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	docx := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
<w:p><w:r><w:t>Revenue grew.</w:t></w:r></w:p>
</w:body>
</w:document>`

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
		wantErr  bool
	}{
		{
			name:     "plain text normalized",
			filename: "notes.txt",
			data:     []byte("Line  one\r\nline\ttwo\n\n\n\nNext paragraph  "),
			want:     "Line one\nline two\n\nNext paragraph",
		},
		{
			name:     "markdown markup removed",
			filename: "readme.md",
			data:     []byte("# Title\n\nSome **bold** and *italic* text.\n\n- item one\n- item two\n"),
			want:     "Title\n\nSome bold and italic text.\n\nitem one\n\nitem two",
		},
		{
			name:     "markdown code block kept",
			filename: "code.md",
			data:     []byte("Intro\n\n```go\nfmt.Println(\"hi\")\n```\n"),
			want:     "Intro\n\nfmt.Println(\"hi\")",
		},
		{
			name:     "html tags stripped",
			filename: "page.html",
			data:     []byte("<html><head><style>p{}</style></head><body><h1>Head</h1><p>Body &amp; soul</p></body></html>"),
			want:     "Head\n\nBody & soul",
		},
		{
			name:     "docx paragraphs",
			filename: "report.docx",
			data:     buildDOCX(t, docx),
			want:     "Quarterly report\n\nRevenue grew.",
		},
		{
			name:     "empty data",
			filename: "empty.txt",
			data:     nil,
			wantErr:  true,
		},
		{
			name:     "binary data",
			filename: "blob.bin",
			data:     []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00},
			wantErr:  true,
		},
		{
			name:     "pdf extension without header",
			filename: "fake.pdf",
			data:     []byte("this is not a pdf"),
			wantErr:  true,
		},
		{
			name:     "corrupt pdf",
			filename: "broken.pdf",
			data:     []byte("%PDF-1.4\nnot really a pdf body"),
			wantErr:  true,
		},
		{
			name:     "zip without word part",
			filename: "archive.zip",
			data: func() []byte {
				var buf bytes.Buffer
				zw := zip.NewWriter(&buf)
				w, _ := zw.Create("other.txt")
				_, _ = w.Write([]byte("x"))
				_ = zw.Close()
				return buf.Bytes()
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.filename, tt.data)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Extract() expected error, got text %q", got)
				}
				return
			}

			if err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_UnsupportedIsSentinel(t *testing.T) {
	_, err := Extract("blob.bin", []byte{0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Extract() error = %v, want ErrUnsupported", err)
	}
}

func TestExtract_ShortTextStillReturned(t *testing.T) {
	// Length policy belongs to the document cache, not the extractor.
	got, err := Extract("short.txt", []byte("ten chars!"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if strings.TrimSpace(got) != "ten chars!" {
		t.Errorf("Extract() = %q", got)
	}
}
