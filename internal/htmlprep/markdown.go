package htmlprep

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ToMarkdown converts body HTML to markdown, falling back to a plain
// tag-strip when the converter fails or produces nothing usable,
// the same fallback chain transform.Service.HTMLToMarkdown uses.
func ToMarkdown(bodyHTML string) string {
	if bodyHTML == "" {
		return ""
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(bodyHTML)
	if err != nil || strings.TrimSpace(converted) == "" {
		return stripTags(bodyHTML)
	}
	return converted
}

func stripTags(htmlStr string) string {
	stripped := tagRe.ReplaceAllString(htmlStr, "")
	cleaned := spaceRe.ReplaceAllString(stripped, " ")
	cleaned = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(cleaned)
	return strings.TrimSpace(cleaned)
}
