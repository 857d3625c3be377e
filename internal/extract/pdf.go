package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// XMP metadata probes, in priority order after the document Info title.
var (
	xmpPDFTitle = regexp.MustCompile(`(?s)<pdf:Title[^>]*>(?:.*?<rdf:li[^>]*>)?([^<]+)`)
	xmpDCTitle  = regexp.MustCompile(`(?s)<dc:title[^>]*>.*?<rdf:li[^>]*>([^<]+)`)
)

// PDF extracts capped body text and a best-effort title from a PDF payload.
// Truncation at the size cap keeps the partial text; only a payload that
// yields no text at all is an error. The pdf library panics on some malformed
// inputs, so the whole extraction is recovered into an error.
func PDF(data []byte, logger *zap.Logger) (content Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			content = Content{}
			err = fmt.Errorf("pdf extract panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("open pdf: %w", err)
	}

	content.Labels = []string{}
	content.Title = probeTitle(reader, data)

	text, err := reader.GetPlainText()
	if err != nil {
		return Content{}, fmt.Errorf("pdf text: %w", err)
	}
	content.Body, err = readBody(text, logger)
	if err != nil {
		return Content{}, err
	}
	return content, nil
}

// readBody drains the extracted text, collapses whitespace runs, and
// truncates the result at MaxFieldChars. The cut comes after the collapse,
// so a document whose collapsed text exceeds the cap yields a body of
// exactly MaxFieldChars.
func readBody(text io.Reader, logger *zap.Logger) (string, error) {
	raw, err := io.ReadAll(text)
	if err != nil && len(raw) == 0 {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if err != nil {
		logger.Warn("pdf text incomplete after read error",
			zap.Int("chars", len(raw)),
			zap.Error(err),
		)
	}
	body := collapse(string(raw))
	if len(body) > MaxFieldChars {
		logger.Warn("pdf text exceeds size ceiling; truncating", zap.Int("chars", len(body)))
		body = body[:MaxFieldChars]
	}
	return body, nil
}

// probeTitle checks the document Info title, then the XMP pdf:Title and
// dc:title entries, and returns the first non-blank value.
func probeTitle(reader *pdf.Reader, data []byte) string {
	candidates := []string{
		infoTitle(reader),
		xmpTitle(xmpPDFTitle, data),
		xmpTitle(xmpDCTitle, data),
	}
	for _, title := range candidates {
		if title != "" {
			return title
		}
	}
	return ""
}

func infoTitle(reader *pdf.Reader) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	value := reader.Trailer().Key("Info").Key("Title")
	if value.Kind() != pdf.String {
		return ""
	}
	return strings.TrimSpace(value.Text())
}

func xmpTitle(probe *regexp.Regexp, data []byte) string {
	match := probe.FindSubmatch(data)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(string(match[1]))
}
