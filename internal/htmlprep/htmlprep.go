// Package htmlprep strips presentation-only markup and extracts a title
// and recipe body from a note's raw HTML export, using the same goquery
// selector style as internal/services/crawler.
package htmlprep

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/awehrman/peas/internal/models"
)

// stripSelectors are removed wholesale before title/body extraction:
// scripts, inline styles, and the note-taking app's own chrome.
var stripSelectors = []string{
	"script", "style", "noscript",
	".toolbar", ".edit-button", ".comment-block", ".comments-section",
}

// Clean strips script/style/UI-chrome elements from raw and returns the
// remaining document HTML, unparsed otherwise. Used by clean_html, which
// only normalizes markup; parse_html does the structural extraction.
func Clean(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	for _, selector := range stripSelectors {
		doc.Find(selector).Remove()
	}
	html, err := doc.Selection.Html()
	if err != nil {
		return "", err
	}
	return html, nil
}

// Prepared is the structural result of preparing a raw HTML export.
type Prepared struct {
	Title string
	Body  string // cleaned inner HTML of the recipe body, still HTML
}

// Prepare parses raw, strips non-content elements, and returns the
// extracted title and cleaned body markup.
func Prepare(raw string) (*Prepared, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	for _, selector := range stripSelectors {
		doc.Find(selector).Remove()
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	body := doc.Find("body")
	var bodyHTML string
	if body.Length() > 0 {
		bodyHTML, _ = body.Html()
	} else {
		bodyHTML, _ = doc.Selection.Html()
	}

	return &Prepared{Title: title, Body: strings.TrimSpace(bodyHTML)}, nil
}

// ExtractLines reads the note body's first unordered list as ingredient
// lines and first ordered list as instruction lines — the export format's
// only structural markers for the two line kinds.
func ExtractLines(bodyHTML string) ([]models.IngredientLine, []models.InstructionLine) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return nil, nil
	}

	var ingredients []models.IngredientLine
	doc.Find("ul").First().Find("li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		ingredients = append(ingredients, models.IngredientLine{
			Reference: text,
			LineIndex: len(ingredients),
		})
	})

	var instructions []models.InstructionLine
	doc.Find("ol").First().Find("li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		instructions = append(instructions, models.InstructionLine{
			Reference: text,
			LineIndex: len(instructions),
		})
	})

	return ingredients, instructions
}

// FirstImageSrc returns the src of the first <img> in raw, or "" if none.
func FirstImageSrc(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}
