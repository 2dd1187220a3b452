package extraction

import (
	"regexp"
	"strings"
)

var (
	paragraphClose = regexp.MustCompile(`(?i)</p\s*>`)
	lineBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag         = regexp.MustCompile(`<[^>]*>`)
	blankRun       = regexp.MustCompile(`\n{3,}`)
)

// Normalize flattens an HTML email body into plain text for matching.
// Closing paragraph tags become a blank line, <br> becomes a newline, every
// other tag is deleted, &nbsp; becomes a space and newline runs are capped at two.
func Normalize(bodyHTML string) string {
	if bodyHTML == "" {
		return ""
	}

	text := paragraphClose.ReplaceAllString(bodyHTML, "\n\n")
	text = lineBreak.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
