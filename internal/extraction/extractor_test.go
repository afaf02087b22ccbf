package extraction

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddq-agent/backend/internal/storage/models"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for entry, content := range entries {
		ew, err := w.Create(entry)
		require.NoError(t, err)
		_, err = ew.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return path
}

func TestExtractText(t *testing.T) {
	e := NewExtractor()
	path := writeTemp(t, "notes.txt", []byte("  revenue grew 40%\n"))

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "revenue grew 40%", pages[0].Text)
}

func TestExtractEmptyText(t *testing.T) {
	e := NewExtractor()
	path := writeTemp(t, "empty.txt", []byte("   \n \n"))

	pages, err := e.Extract(path)

	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtractHTML(t *testing.T) {
	e := NewExtractor()
	html := `<html><head><style>body{color:red}</style></head>
<body><script>alert(1)</script><h1>Annual Report</h1><p>Revenue grew 40%.</p></body></html>`
	path := writeTemp(t, "report.html", []byte(html))

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Annual Report")
	assert.Contains(t, pages[0].Text, "Revenue grew 40%.")
	assert.NotContains(t, pages[0].Text, "alert(1)")
	assert.NotContains(t, pages[0].Text, "color:red")
}

func TestExtractDocx(t *testing.T) {
	e := NewExtractor()
	documentXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Revenue grew 40% in 2023.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Growth came from </w:t></w:r><w:r><w:t>subscriptions.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeZip(t, "report.docx", map[string]string{
		"word/document.xml": documentXML,
	})

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Revenue grew 40% in 2023.")
	assert.Contains(t, pages[0].Text, "Growth came from subscriptions.")
}

func TestExtractPptx(t *testing.T) {
	e := NewExtractor()
	slide := func(text string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
	}
	path := writeZip(t, "deck.pptx", map[string]string{
		"ppt/slides/slide2.xml": slide("Second slide"),
		"ppt/slides/slide1.xml": slide("First slide"),
	})

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "First slide", pages[0].Text)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, "Second slide", pages[1].Text)
}

func TestExtractXlsx(t *testing.T) {
	e := NewExtractor()
	sharedStringsXML := `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>Revenue</t></si>
  <si><t>40%</t></si>
</sst>`
	path := writeZip(t, "figures.xlsx", map[string]string{
		"xl/sharedStrings.xml": sharedStringsXML,
	})

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Revenue")
	assert.Contains(t, pages[0].Text, "40%")
}

func TestExtractPDFTextLayer(t *testing.T) {
	e := NewExtractor()
	pdf := "%PDF-1.4\n" +
		"1 0 obj\n<< /Length 52 >>\nstream\n" +
		"BT /F1 12 Tf (Revenue grew 40% in 2023) Tj ET\n" +
		"endstream\nendobj\n" +
		"%%EOF\n"
	path := writeTemp(t, "report.pdf", []byte(pdf))

	pages, err := e.Extract(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Revenue grew 40% in 2023", pages[0].Text)
}

func TestExtractPDFWithoutTextLayer(t *testing.T) {
	e := NewExtractor()
	path := writeTemp(t, "scan.pdf", []byte("%PDF-1.4\n%%EOF\n"))

	pages, err := e.Extract(path)

	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtractInvalidPDF(t *testing.T) {
	e := NewExtractor()
	path := writeTemp(t, "fake.pdf", []byte("not a pdf"))

	_, err := e.Extract(path)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor()
	path := writeTemp(t, "binary.exe", []byte{0x4d, 0x5a})

	_, err := e.Extract(path)

	assert.ErrorIs(t, err, models.ErrValidation)
}
