package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// odtContentPath is the main content inside an .odt archive (OpenDocument).
const odtContentPath = "content.xml"

// extractODT extracts text from .odt bytes. ODT is a zip containing
// content.xml with <text:p> paragraphs; character data anywhere inside a
// paragraph (including nested <text:span> runs) is collected, one line per
// paragraph.
func extractODT(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open odt: not a zip: %w", err)
	}
	contentXML, err := readZipFile(zr, odtContentPath)
	if err != nil {
		return "", fmt.Errorf("failed to extract odt: %w", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(contentXML))
	var b strings.Builder
	paraDepth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", odtContentPath, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if paraDepth > 0 {
				paraDepth++
			} else if t.Name.Local == "p" || t.Name.Local == "h" {
				paraDepth = 1
			}
		case xml.EndElement:
			if paraDepth > 0 {
				paraDepth--
				if paraDepth == 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
			}
		case xml.CharData:
			if paraDepth > 0 {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
