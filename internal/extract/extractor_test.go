package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestFileType(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"notes.txt", "txt"},
		{"README.md", "md"},
		{"guide.MARKDOWN", "md"},
		{"doc.rst", "rst"},
		{"report.PDF", "pdf"},
		{"memo.docx", "docx"},
		{"letter.odt", "odt"},
		{"data.xlsx", "xlsx"},
	}
	for _, tc := range cases {
		got, err := FileType(tc.path)
		if err != nil {
			t.Errorf("FileType(%q): %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("FileType(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}

	if _, err := FileType("malware.exe"); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := FileType("noextension"); err == nil {
		t.Error("expected error for missing extension")
	}
}

func TestExtractBytes_plain(t *testing.T) {
	e := New()
	got, err := e.ExtractBytes([]byte("Hello world\nLine 2"), "txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := New()
	got, err := e.ExtractBytes([]byte("hello\x80world"), "rst")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "hello�world" {
		t.Errorf("got %q", got)
	}
}

// minimalDocx returns .docx zip bytes whose word/document.xml holds the
// given body XML.
func minimalDocx(bodyXML string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + bodyXML + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_docx(t *testing.T) {
	e := New()
	content := minimalDocx(`<w:p><w:r><w:t>Searchable docx content</w:t></w:r></w:p>`)
	got, err := e.ExtractBytes(content, "docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Searchable docx content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxParagraphsAndRuns(t *testing.T) {
	e := New()
	// Two runs in one paragraph (one space-preserved), then a second paragraph.
	body := `<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
		`<w:p w:rsidR="00AB12"><w:r><w:t>Second paragraph</w:t></w:r></w:p>`
	got, err := e.ExtractBytes(minimalDocx(body), "docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Hello world\nSecond paragraph" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	e := New()
	if _, err := e.ExtractBytes([]byte("not a zip"), "docx"); err == nil {
		t.Error("expected error for invalid docx")
	}
}

func TestExtractBytes_docxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("word/other.xml")
	_ = w.Close()

	e := New()
	if _, err := e.ExtractBytes(buf.Bytes(), "docx"); err == nil {
		t.Error("expected error when document.xml missing")
	}
}

// minimalOdt returns .odt zip bytes whose content.xml holds the given
// body XML.
func minimalOdt(bodyXML string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("content.xml")
	_, _ = fw.Write([]byte(`<office:document xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:text>` + bodyXML + `</office:text></office:body></office:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_odt(t *testing.T) {
	e := New()
	body := `<text:h>Title</text:h><text:p>First <text:span text:style-name="T1">styled</text:span> para</text:p><text:p>Second</text:p>`
	got, err := e.ExtractBytes(minimalOdt(body), "odt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nFirst styled para\nSecond" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_odtMissingContent(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()

	e := New()
	if _, err := e.ExtractBytes(buf.Bytes(), "odt"); err == nil {
		t.Error("expected error when content.xml missing")
	}
}

func TestExtractBytes_xlsx(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := New()
	got, err := e.ExtractBytes(buf.Bytes(), "xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}

	e := New()
	text, fileType, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "File content" || fileType != "txt" {
		t.Errorf("got %q/%q", text, fileType)
	}
}

func TestExtract_xlsxFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := New()
	text, fileType, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Searchable text" || fileType != "xlsx" {
		t.Errorf("got %q/%q", text, fileType)
	}
}

func TestExtract_unsupportedFile(t *testing.T) {
	e := New()
	if _, _, err := e.Extract("/tmp/whatever.exe"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtract_nonexistentFile(t *testing.T) {
	e := New()
	if _, _, err := e.Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}
