package extraction

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/ddq-agent/backend/internal/storage/models"
)

// extractPDF scans the text layer of a PDF: each content stream with
// text-showing operators becomes one page, in stream order. Scanned
// PDFs without a text layer yield zero pages.
func extractPDF(data []byte) ([]Page, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: not a valid pdf", models.ErrValidation)
	}

	var pages []Page
	pageNumber := 0

	for _, stream := range contentStreams(data) {
		text := streamText(stream)
		if text == "" {
			continue
		}
		pageNumber++
		pages = append(pages, Page{Number: pageNumber, Text: text})
	}

	return pages, nil
}

// contentStreams returns every stream body, inflated when the data is
// zlib-compressed.
func contentStreams(data []byte) [][]byte {
	var streams [][]byte

	rest := data
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		body := rest[start+len("stream"):]
		body = bytes.TrimPrefix(body, []byte("\r"))
		body = bytes.TrimPrefix(body, []byte("\n"))

		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}

		stream := body[:end]
		if inflated, err := inflate(stream); err == nil {
			stream = inflated
		}
		streams = append(streams, stream)

		rest = body[end+len("endstream"):]
	}

	return streams
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// streamText pulls the strings shown by Tj, ', " and TJ operators out
// of the BT/ET text objects in one content stream.
func streamText(stream []byte) string {
	var sb strings.Builder

	rest := stream
	for {
		bt := bytes.Index(rest, []byte("BT"))
		if bt < 0 {
			break
		}
		block := rest[bt+2:]
		et := bytes.Index(block, []byte("ET"))
		if et < 0 {
			break
		}

		text := textObject(block[:et])
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text)
		}

		rest = block[et+2:]
	}

	return strings.TrimSpace(sb.String())
}

// textObject collects every string literal inside one BT/ET block.
// Literals inside a text object are operands of text-showing
// operators, so joining them approximates reading order.
func textObject(block []byte) string {
	var parts []string

	for i := 0; i < len(block); i++ {
		if block[i] != '(' {
			continue
		}
		literal, next := parseLiteral(block, i)
		if strings.TrimSpace(literal) != "" {
			parts = append(parts, literal)
		}
		i = next - 1
	}

	return strings.Join(parts, " ")
}

// parseLiteral decodes the parenthesized string starting at start and
// returns the decoded text with the index just past the closing paren.
func parseLiteral(block []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0

	i := start
	for ; i < len(block); i++ {
		c := block[i]
		switch c {
		case '\\':
			if i+1 >= len(block) {
				break
			}
			i++
			switch block[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '(', ')', '\\':
				sb.WriteByte(block[i])
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := 0
				for d := 0; d < 3 && i < len(block) && block[i] >= '0' && block[i] <= '7'; d++ {
					val = val*8 + int(block[i]-'0')
					i++
				}
				i--
				sb.WriteByte(byte(val))
			}
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String(), i
}
