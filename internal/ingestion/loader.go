package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrNoContent is returned when a document yields no extractable text.
var ErrNoContent = errors.New("ingestion: document contains no text")

var (
	htmlDropBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|head)\b.*?</(script|style|noscript|head)>`)
	htmlBreakTags  = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/tr)\s*/?>`)
	htmlTags       = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// ExtractText converts raw document bytes of the given format to plain
// text. PDF pages are read with ledongthuc/pdf; HTML is reduced to its
// visible text; markdown and text are returned as-is.
func ExtractText(content []byte, format string) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(content)
	case FormatHTML:
		text = extractHTML(string(content))
	default:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("ingestion: %s document is not valid UTF-8", format)
		}
		text = string(content)
	}
	if err != nil {
		return "", err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// extractPDF returns the plain text of every page.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("ingestion: open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingestion: read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("ingestion: read pdf buffer: %w", err)
	}
	return buf.String(), nil
}

// extractHTML drops non-visible blocks and tags, keeping line breaks at
// block boundaries.
func extractHTML(s string) string {
	s = htmlDropBlocks.ReplaceAllString(s, "")
	s = htmlBreakTags.ReplaceAllString(s, "\n")
	s = htmlTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Join(lines, "\n")
}
