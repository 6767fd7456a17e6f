// Package extract pulls hyperlink and image references out of HTML markup.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

const selector = "a[href], img[src]"

// Extractor finds anchor targets and image sources in document order.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract never fails: markup the parser cannot match yields no candidates.
func (e *Extractor) Extract(body []byte) []linkcheck.LinkCandidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Debug("document parse failed", zap.Error(err))
		return nil
	}

	var out []linkcheck.LinkCandidate
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "a":
			href, _ := s.Attr("href")
			out = append(out, linkcheck.LinkCandidate{
				RawTarget:  href,
				AnchorText: collapse(s.Text()),
				Kind:       linkcheck.KindHyperlink,
			})
		case "img":
			src, _ := s.Attr("src")
			out = append(out, linkcheck.LinkCandidate{
				RawTarget:  src,
				AnchorText: collapse(s.AttrOr("alt", "")),
				Kind:       linkcheck.KindImage,
			})
		}
	})
	e.logger.Debug("links extracted", zap.Int("candidates", len(out)))
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
