package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedwatch/feedwatch/internal/core"
)

// fromHTML extracts display text and inline images from an HTML post body.
// Line breaks and paragraphs become newlines; runs of blank lines collapse.
func fromHTML(body string) (string, []core.Media) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body), nil
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var media []core.Media
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		media = append(media, core.Media{Type: "photo", URL: src})
	})

	return collapseBlankLines(doc.Text()), media
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
