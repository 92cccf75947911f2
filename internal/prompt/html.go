package prompt

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`(\r?\n){2,}`)

// StripHTML removes markup from portal descriptions. Script, style and iframe
// elements are dropped with their content, and runs of line breaks collapse to
// a single newline.
func StripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, iframe").Remove()
			text = doc.Text()
		}
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n"))
}
