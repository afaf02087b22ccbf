package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/pkg/logger"
)

// Page is the extracted text of one page. Formats without a page
// concept produce a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedTypes lists the file extensions Extract accepts.
func SupportedTypes() []string {
	return []string{"txt", "md", "html", "htm", "docx", "pptx", "xlsx", "pdf"}
}

// Extract reads the file and returns its text content per page. An
// unsupported extension is a validation error; a supported file that
// yields no text returns zero pages.
func (e *Extractor) Extract(path string) ([]Page, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var pages []Page
	switch ext {
	case "txt", "md":
		pages = singlePage(string(data))
	case "html", "htm":
		pages, err = extractHTML(data)
	case "docx":
		pages, err = extractDocx(data)
	case "pptx":
		pages, err = extractPptx(data)
	case "xlsx":
		pages, err = extractXlsx(data)
	case "pdf":
		pages, err = extractPDF(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrValidation, ext)
	}

	if err != nil {
		return nil, err
	}

	logger.Debug("Text extracted",
		zap.String("path", path),
		zap.String("file_type", ext),
		zap.Int("pages", len(pages)),
	)

	return pages, nil
}

func singlePage(text string) []Page {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []Page{{Number: 1, Text: text}}
}

var whitespaceRe = regexp.MustCompile(`[ \t]+`)

func extractHTML(data []byte) ([]Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
	})

	text := sb.String()
	if text == "" {
		text = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}

	return singlePage(strings.Join(lines, "\n")), nil
}

func openZip(data []byte) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid office document", models.ErrValidation)
	}
	return reader, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open archive entry: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type wordDocument struct {
	Body struct {
		Paragraphs []wordParagraph `xml:"p"`
	} `xml:"body"`
}

type wordParagraph struct {
	Runs []wordRun `xml:"r"`
}

type wordRun struct {
	Text []wordText `xml:"t"`
}

type wordText struct {
	Content string `xml:",chardata"`
}

func extractDocx(data []byte) ([]Page, error) {
	reader, err := openZip(data)
	if err != nil {
		return nil, err
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, err
		}

		var doc wordDocument
		if err := xml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse document xml: %w", err)
		}

		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, t := range run.Text {
					sb.WriteString(t.Content)
				}
			}
		}

		return singlePage(sb.String()), nil
	}

	return nil, nil
}

type slideXML struct {
	Texts []string `xml:"cSld>spTree>sp>txBody>p>r>t"`
}

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractPptx(data []byte) ([]Page, error) {
	reader, err := openZip(data)
	if err != nil {
		return nil, err
	}

	type slide struct {
		number int
		text   string
	}
	var slides []slide

	for _, file := range reader.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, err
		}

		var s slideXML
		if err := xml.Unmarshal(content, &s); err != nil {
			continue
		}

		number := 0
		fmt.Sscanf(m[1], "%d", &number)
		slides = append(slides, slide{number: number, text: strings.Join(s.Texts, "\n")})
	}

	sort.Slice(slides, func(a, b int) bool { return slides[a].number < slides[b].number })

	var pages []Page
	for _, s := range slides {
		text := strings.TrimSpace(s.text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: s.number, Text: text})
	}
	return pages, nil
}

type sharedStrings struct {
	Items []struct {
		Text string `xml:"t"`
	} `xml:"si"`
}

func extractXlsx(data []byte) ([]Page, error) {
	reader, err := openZip(data)
	if err != nil {
		return nil, err
	}

	for _, file := range reader.File {
		if file.Name != "xl/sharedStrings.xml" {
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, err
		}

		var ss sharedStrings
		if err := xml.Unmarshal(content, &ss); err != nil {
			return nil, fmt.Errorf("failed to parse shared strings: %w", err)
		}

		var lines []string
		for _, item := range ss.Items {
			text := strings.TrimSpace(item.Text)
			if text != "" {
				lines = append(lines, text)
			}
		}
		return singlePage(strings.Join(lines, "\n")), nil
	}

	return nil, nil
}
