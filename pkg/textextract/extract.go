// Package textextract pulls speakable text out of uploaded documents.
package textextract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Document is the text recovered from one file. Markup is set for SSML
// sources, whose tags must reach the synthesizer unchanged.
type Document struct {
	Content string
	Pages   int
	Markup  bool
	Type    string
}

// Extract reads data according to the extension of name.
func Extract(data []byte, name string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt", ".md", "":
		return extractPlain(data, "txt", false)
	case ".ssml", ".xml":
		return extractPlain(data, "ssml", true)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".ssml", ".xml"}
}

func extractPDF(data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &Document{
		Content: strings.TrimSpace(buf.String()),
		Pages:   numPages,
		Type:    "pdf",
	}, nil
}

func extractDOCX(data []byte) (*Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		return &Document{Content: stripXMLTags(string(content)), Pages: 1, Type: "docx"}, nil
	}
	return nil, fmt.Errorf("open DOCX: word/document.xml not found")
}

func extractPlain(data []byte, typ string, markup bool) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read %s: not valid UTF-8", typ)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return &Document{
		Content: string(bytes.TrimSpace(data)),
		Pages:   1,
		Markup:  markup,
		Type:    typ,
	}, nil
}

func stripXMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}
