package steps

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```\\s*$")

// stripFence removes a single markdown code fence wrapped around a response
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// extractHTML returns the HTML document inside a model response, dropping any
// fence or preamble before the first tag.
func extractHTML(text string) string {
	text = stripFence(text)
	lower := strings.ToLower(text)
	for _, marker := range []string{"<!doctype", "<html", "<"} {
		if i := strings.Index(lower, marker); i >= 0 {
			text = text[i:]
			break
		}
	}
	if i := strings.LastIndex(strings.ToLower(text), "</html>"); i >= 0 {
		text = text[:i+len("</html>")]
	}
	return strings.TrimSpace(text)
}

func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

var regionElements = []string{"header", "nav", "main", "section", "footer"}

// regionKinds returns which landmark elements the document uses
func regionKinds(doc *goquery.Document) []string {
	var found []string
	for _, el := range regionElements {
		if doc.Find(el).Length() > 0 {
			found = append(found, el)
		}
	}
	return found
}

const interactiveSelector = "form, button, input, select, textarea, a[href], [onclick]"

// interactiveCount counts elements a user can act on
func interactiveCount(doc *goquery.Document) int {
	return doc.Find(interactiveSelector).Length()
}

// externalResources lists script, stylesheet and image sources loaded from
// another origin
func externalResources(doc *goquery.Document) []string {
	var urls []string
	doc.Find("script[src], link[href], img[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			src, _ = s.Attr("href")
		}
		src = strings.TrimSpace(src)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "//") {
			urls = append(urls, src)
		}
	})
	return urls
}

// headings returns the second-level markdown headings of doc, in order
func headings(doc string) []string {
	var out []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "## ") {
			out = append(out, strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		}
	}
	return out
}

// section returns the body under the named second-level heading
func section(doc, name string) string {
	var sb strings.Builder
	in := false
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			if in {
				break
			}
			in = strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")), name)
			continue
		}
		if in {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
