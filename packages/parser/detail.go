package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"gradcafe/packages/domain"

	"github.com/PuerkitoBio/goquery"
)

const minCommentLength = 5

var (
	numericRegex      = regexp.MustCompile(`\d+(\.\d+)?`)
	notificationRegex = regexp.MustCompile(`(?i)Notification\s+on[:\s]+(\d{1,2}/\d{1,2}/\d{4})`)
	originRegex       = regexp.MustCompile(`(?i)^Degree['’]?s\s+Country\s+of\s+Origin$`)
)

// ParseDetail enriches rec from its detail page. Apart from test scores and
// the undergraduate GPA, only fields that are still nil are filled.
func (p *Parser) ParseDetail(html string, rec *domain.ApplicantRecord) {
	var doc *goquery.Document
	guard("detail document", rec, func() {
		d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			slog.Warn("Failed to parse detail page", "result_id", rec.ID(), "error", err)
			return
		}
		doc = d
	})
	if doc == nil {
		return
	}

	guard("notes", rec, func() {
		rec.Merge(parseNotes(doc), domain.FillUnset)
	})
	guard("test scores", rec, func() {
		rec.Merge(parseScores(doc), domain.FillUnset)
	})
	if rec.StatusDate == nil {
		guard("notification date", rec, func() {
			rec.Merge(parseNotification(doc), domain.FillUnset)
		})
	}
	if rec.Citizenship == nil {
		guard("country of origin", rec, func() {
			rec.Merge(parseOrigin(doc), domain.FillUnset)
		})
	}
}

func parseNotes(doc *goquery.Document) domain.Patch {
	dd := definitionFor(doc, func(term string) bool { return term == "Notes" })
	if dd == nil {
		return domain.Patch{}
	}
	notes := strings.TrimSpace(dd.Text())
	if utf8.RuneCountInString(notes) <= minCommentLength {
		return domain.Patch{}
	}
	return domain.Patch{Comments: &notes}
}

func parseScores(doc *goquery.Document) domain.Patch {
	var patch domain.Patch
	doc.Find(`li[class*="tw-flex"]`).Each(func(_ int, item *goquery.Selection) {
		label := item.Find(`span[class*="tw-font-medium"]`).First()
		value := item.Find(`span[class*="tw-text-gray-400"]`).First()
		if label.Length() == 0 || value.Length() == 0 {
			return
		}

		score, ok := parseNumeric(value.Text())
		if !ok {
			return
		}

		labelText := strings.TrimSpace(label.Text())
		switch {
		case strings.Contains(labelText, "GRE General"):
			patch.GREQuant = domain.Score(score)
		case strings.Contains(labelText, "GRE Verbal"):
			patch.GREVerbal = domain.Score(score)
		case strings.Contains(labelText, "Analytical Writing"):
			patch.GREAW = domain.Score(score)
		case strings.Contains(labelText, "Undergrad GPA"):
			patch.GPA = domain.Score(score)
		}
	})
	return patch
}

// parseNumeric returns the first number in text when it is positive.
func parseNumeric(text string) (float64, bool) {
	m := numericRegex.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseNotification(doc *goquery.Document) domain.Patch {
	m := notificationRegex.FindStringSubmatch(doc.Text())
	if m == nil {
		return domain.Patch{}
	}
	return domain.Patch{StatusDate: domain.Str(m[1])}
}

func parseOrigin(doc *goquery.Document) domain.Patch {
	dd := definitionFor(doc, func(term string) bool { return originRegex.MatchString(term) })
	if dd == nil {
		return domain.Patch{}
	}
	return domain.Patch{Citizenship: domain.Str(dd.Text())}
}

// definitionFor returns the first <dd> sibling following the first <dt>
// whose trimmed text satisfies match.
func definitionFor(doc *goquery.Document, match func(term string) bool) *goquery.Selection {
	var dd *goquery.Selection
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !match(strings.TrimSpace(dt.Text())) {
			return true
		}
		if next := dt.NextAllFiltered("dd").First(); next.Length() > 0 {
			dd = next
		}
		return false
	})
	return dd
}
