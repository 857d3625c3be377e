// Package extract turns fetched HTML and PDF payloads into normalized page
// content.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// MaxFieldChars caps thumbnail, label, and PDF body sizes. Oversized meta
// values are dropped; oversized PDF text is truncated.
const MaxFieldChars = 100000

// Meta tag names tenants use to supply a thumbnail and labels.
const (
	thumbnailMetaName = "pagefinder-thumbnail"
	labelsMetaName    = "pagefinder-labels"

	labelDelimiter = ","
)

// Content is a normalized extraction result. Parse failures for individual
// fields yield empty values, never an error for the whole page.
type Content struct {
	Title     string
	Body      string
	Thumbnail string
	Labels    []string
}

// HTML extracts title, body text, thumbnail, and labels from an HTML
// document. If selector matches a fragment within <body>, its visible text is
// used; otherwise (or when the match is empty) the whole body's text is used.
func HTML(markup, selector string, logger *zap.Logger) Content {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		logger.Warn("html parse failed", zap.Error(err))
		return Content{Labels: []string{}}
	}
	doc.Find("script, style, noscript").Remove()

	return Content{
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Body:      bodyText(doc, selector),
		Thumbnail: metaValue(doc, thumbnailMetaName, logger),
		Labels:    splitLabels(metaValue(doc, labelsMetaName, logger)),
	}
}

func bodyText(doc *goquery.Document, selector string) string {
	body := doc.Find("body")
	if selector != "" {
		if fragment := body.Find(selector); fragment.Length() > 0 {
			if text := collapse(fragment.Text()); text != "" {
				return text
			}
		}
	}
	return collapse(body.Text())
}

func metaValue(doc *goquery.Document, name string, logger *zap.Logger) string {
	value, _ := doc.Find("meta[name='" + name + "']").First().Attr("content")
	value = strings.TrimSpace(value)
	if len(value) > MaxFieldChars {
		logger.Warn("meta value exceeds size ceiling; dropping",
			zap.String("meta", name),
			zap.Int("size", len(value)),
		)
		return ""
	}
	return value
}

func splitLabels(raw string) []string {
	labels := []string{}
	for _, label := range strings.Split(raw, labelDelimiter) {
		label = strings.TrimSpace(label)
		if label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

// collapse normalizes runs of whitespace to single spaces.
func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
