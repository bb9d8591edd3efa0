package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// writeDocx builds a minimal OOXML word processing document: headers become
// styled headings, bullet lines become list paragraphs, everything else is a
// plain paragraph.
func writeDocx(title, text string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
		"word/document.xml":   documentXML(title, text),
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func documentXML(title, text string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if title != "" {
		writeParagraph(&b, title, "40", true)
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "═"):
			b.WriteString(`<w:p/>`)
		case strings.HasPrefix(trimmed, "### "):
			writeParagraph(&b, strings.TrimPrefix(trimmed, "### "), "26", true)
		case strings.HasPrefix(trimmed, "## "):
			writeParagraph(&b, strings.TrimPrefix(trimmed, "## "), "30", true)
		case strings.HasPrefix(trimmed, "# "):
			writeParagraph(&b, strings.TrimPrefix(trimmed, "# "), "34", true)
		case strings.HasPrefix(trimmed, "• "):
			writeParagraph(&b, "• "+strings.TrimPrefix(trimmed, "• "), "", false)
		case strings.HasPrefix(trimmed, "- "):
			writeParagraph(&b, "• "+strings.TrimPrefix(trimmed, "- "), "", false)
		default:
			writeParagraph(&b, trimmed, "", false)
		}
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeParagraph(b *strings.Builder, text, size string, bold bool) {
	b.WriteString(`<w:p><w:r>`)
	if size != "" || bold {
		b.WriteString(`<w:rPr>`)
		if bold {
			b.WriteString(`<w:b/>`)
		}
		if size != "" {
			fmt.Fprintf(b, `<w:sz w:val="%s"/>`, size)
		}
		b.WriteString(`</w:rPr>`)
	}
	fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, escapeXML(text))
	b.WriteString(`</w:r></w:p>`)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(text string) string {
	return xmlEscaper.Replace(text)
}
