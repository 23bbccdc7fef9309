package ingestion

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Document formats recognised by the loader.
const (
	FormatPDF      = "pdf"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
)

// InferredMetadata holds the format, title and source label inferred from a
// document's name and content type. Caller-supplied metadata takes
// precedence over inferred values; this is the best-effort fallback.
type InferredMetadata struct {
	// Format is one of pdf, markdown, html, text.
	Format string
	// Title is the file name without directory or extension.
	Title string
	// Source is the label shown next to retrieved chunks: the file name, or
	// host/path for URLs.
	Source string
}

// extensionFormats maps lower-case file extensions to formats.
var extensionFormats = map[string]string{
	".pdf":      FormatPDF,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdx":      FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".txt":      FormatText,
	".text":     FormatText,
	".csv":      FormatText,
	".json":     FormatText,
}

// mimeFormats maps media types to formats.
var mimeFormats = map[string]string{
	"application/pdf":       FormatPDF,
	"text/markdown":         FormatMarkdown,
	"text/x-markdown":       FormatMarkdown,
	"text/html":             FormatHTML,
	"application/xhtml+xml": FormatHTML,
	"text/plain":            FormatText,
}

// InferMetadata inspects name (a file name or URL) and contentType and
// returns best-effort metadata. The extension wins over the content type,
// since upload clients often send application/octet-stream. Unknown inputs
// default to the text format.
//
// Supported name forms:
//
//	report.pdf
//	docs/guide.md
//	https://example.com/handbook/onboarding.html
func InferMetadata(name, contentType string) InferredMetadata {
	m := InferredMetadata{Format: FormatText}

	p := name
	if u, err := url.Parse(name); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
		m.Source = strings.ToLower(u.Hostname()) + strings.TrimRight(u.Path, "/")
	}

	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := strings.ToLower(path.Ext(base))
	m.Title = strings.TrimSuffix(base, path.Ext(base))
	if m.Source == "" {
		m.Source = base
	}

	if f, ok := extensionFormats[ext]; ok {
		m.Format = f
		return m
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := mimeFormats[strings.ToLower(mt)]; ok {
			m.Format = f
		}
	}
	return m
}
