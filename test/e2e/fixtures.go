package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// FixtureExtensions lists the upload formats FixtureBytes can render. PDF
// is exercised by the extractor's own tests; generating a parseable PDF
// here is not worth the bytes.
var FixtureExtensions = []string{".txt", ".md", ".rst", ".docx", ".odt", ".xlsx"}

// FixtureBytes renders content as a file of the type named by the
// filename's extension. Plain text formats get the raw bytes; docx, odt
// and xlsx get a minimal archive the extractor can read.
func FixtureBytes(filename, content string) ([]byte, error) {
	switch ext := filepath.Ext(filename); ext {
	case ".txt", ".md", ".rst":
		return []byte(content), nil
	case ".docx":
		return fixtureDocx(content), nil
	case ".odt":
		return fixtureOdt(content), nil
	case ".xlsx":
		return fixtureXlsx(content)
	default:
		return nil, fmt.Errorf("no fixture builder for %s", ext)
	}
}

func fixtureDocx(text string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func fixtureOdt(text string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("content.xml")
	_, _ = fw.Write([]byte(`<office:document xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:text><text:p>` + text + `</text:p></office:text></office:body></office:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func fixtureXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
