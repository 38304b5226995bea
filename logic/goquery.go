package logic

import (
	"strings"

	"ImageToText/models"

	"github.com/PuerkitoBio/goquery"
)

const OutputTypeHTML = "html"

// PlainText returns the extracted text of a result. For the html output type
// the markup is stripped and whitespace collapsed; other types are returned as is.
func PlainText(result *models.ExtractionResult, outputType string) string {
	if result == nil {
		return ""
	}
	if !strings.EqualFold(outputType, OutputTypeHTML) {
		return result.Text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Text))
	if err != nil {
		return result.Text
	}
	doc.Find("script, style").Remove()

	var lines []string
	doc.Find("body").Contents().Each(func(i int, s *goquery.Selection) {
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})

	return strings.Join(lines, "\n")
}
