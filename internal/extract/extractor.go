// Package extract provides text extraction from uploaded document formats.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor turns document files into plain text ready for chunking.
type Extractor struct{}

// New returns a new Extractor.
func New() *Extractor {
	return &Extractor{}
}

// FileType normalizes a filename's extension to the content type stored on
// the document. Unsupported extensions return an error naming the extension.
func FileType(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "txt":
		return "txt", nil
	case "md", "markdown":
		return "md", nil
	case "rst":
		return "rst", nil
	case "pdf":
		return "pdf", nil
	case "docx":
		return "docx", nil
	case "odt":
		return "odt", nil
	case "xlsx":
		return "xlsx", nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

// SupportedExtensions lists the extensions Extract accepts, without dots.
func SupportedExtensions() []string {
	return []string{"txt", "md", "markdown", "rst", "pdf", "docx", "odt", "xlsx"}
}

// Extract reads the file at path and returns its text content plus the
// normalized content type.
func (e *Extractor) Extract(path string) (string, string, error) {
	fileType, err := FileType(path)
	if err != nil {
		return "", "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read file: %w", err)
	}
	text, err := e.ExtractBytes(content, fileType)
	if err != nil {
		return "", "", err
	}
	return text, fileType, nil
}

// ExtractBytes extracts text from content for a normalized file type as
// returned by FileType.
func (e *Extractor) ExtractBytes(content []byte, fileType string) (string, error) {
	switch fileType {
	case "pdf":
		return extractPDF(content)
	case "docx":
		return extractDOCX(content)
	case "odt":
		return extractODT(content)
	case "xlsx":
		return extractXLSX(content)
	default:
		// txt, md, rst: returned as-is with UTF-8 repair.
		return extractPlain(content), nil
	}
}

func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}

// readZipFile returns the contents of one named file inside the archive.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
