// Package contentproc ships one reference ContentProcessor: link discovery
// only. Rich extraction (PDF/OCR/table parsing, quality scoring) is
// explicitly out of scope for this repo and belongs
// behind interfaces.ContentProcessor in a separate, pluggable
// implementation; this one exists so the executor is exercisable
// end to end.
package contentproc

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

// LinkDiscoverer parses HTML with goquery and surfaces same-document
// hyperlinks as DiscoveredURLs, grounded on the pack's goquery-based link
// extractor (ramkansal-gofang/internal/extractor/links.go). It never scores
// content (ProcessOutcome.Scored stays false) and never fails the crawl on
// malformed HTML: a parse error yields ProcessOutcome{Failed: true} with
// no discovered links, which the executor logs and moves past.
type LinkDiscoverer struct{}

// NewLinkDiscoverer builds the reference ContentProcessor.
func NewLinkDiscoverer() *LinkDiscoverer { return &LinkDiscoverer{} }

func (p *LinkDiscoverer) Process(ctx context.Context, pageURL string, body []byte, header map[string][]string) interfaces.ProcessOutcome {
	if len(body) == 0 {
		return interfaces.ProcessOutcome{Skipped: true, SkipReason: "empty_body"}
	}

	contentType := ""
	if ct, ok := header["Content-Type"]; ok && len(ct) > 0 {
		contentType = ct[0]
	}
	if contentType != "" && !strings.Contains(contentType, "html") {
		return interfaces.ProcessOutcome{Skipped: true, SkipReason: "non_html_content_type"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return interfaces.ProcessOutcome{Failed: true, Err: err}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return interfaces.ProcessOutcome{Failed: true, Err: err}
	}

	seen := make(map[string]struct{})
	var discovered []interfaces.DiscoveredURL

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		trimmed := strings.TrimSpace(href)
		if strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "javascript:") ||
			strings.HasPrefix(trimmed, "mailto:") ||
			strings.HasPrefix(trimmed, "tel:") {
			return
		}

		ref, err := url.Parse(trimmed)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		absolute := resolved.String()

		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}

		discovered = append(discovered, interfaces.DiscoveredURL{URL: absolute})
	})

	return interfaces.ProcessOutcome{Discovered: discovered}
}
