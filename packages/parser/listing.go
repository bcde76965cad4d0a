// Package parser extracts applicant records from listing and detail pages.
// Every stage is guarded on its own: a failure is logged with the result id
// and the record keeps whatever was extracted before it.
package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"gradcafe/packages/domain"

	"github.com/PuerkitoBio/goquery"
)

var (
	resultLinkRegex = regexp.MustCompile(`^/result/(\d+)$`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Parser struct {
	base *url.URL
}

func New(baseURL string) (*Parser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	return &Parser{base: base}, nil
}

// ParseListing returns one partially filled record per result row on a
// listing page, in page order.
func (p *Parser) ParseListing(html string) []domain.DetailLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("Failed to parse listing page", "error", err)
		return nil
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		slog.Info("No table found on listing page")
		return nil
	}

	rows := table.Find("tr")
	var results []domain.DetailLink
	rows.Each(func(i int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() != 5 {
			return
		}

		href, ok := resultHref(cells.Last())
		if !ok {
			return
		}
		link, err := p.base.Parse(href)
		if err != nil {
			slog.Warn("Unresolvable result link", "href", href, "error", err)
			return
		}

		id := resultLinkRegex.FindStringSubmatch(href)[1]
		rec := &domain.ApplicantRecord{
			ResultID: domain.Str(id),
			URL:      domain.Str(link.String()),
		}

		guard("basic fields", rec, func() {
			rec.Merge(parseMainRow(cells), domain.Overwrite)
		})

		if i+1 < rows.Length() {
			next := rows.Eq(i + 1)
			if isBadgeRow(next) {
				guard("badges", rec, func() {
					applyBadges(next, rec)
				})
			}
		}

		results = append(results, domain.DetailLink{Record: rec, DetailURL: link.String()})
	})

	return results
}

func resultHref(cell *goquery.Selection) (string, bool) {
	var href string
	cell.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h := strings.TrimSpace(a.AttrOr("href", ""))
		if resultLinkRegex.MatchString(h) {
			href = h
			return false
		}
		return true
	})
	return href, href != ""
}

func parseMainRow(cells *goquery.Selection) domain.Patch {
	var patch domain.Patch

	university := cleanText(cells.Eq(0).Find("div.tw-font-medium").First())
	patch.University = domain.Str(university)

	spans := cells.Eq(1).Find("div.tw-text-gray-900").First().Find("span")
	if spans.Length() >= 1 {
		program := cleanText(spans.Eq(0))
		if program != "" && university != "" {
			// qualified with the institution so analysis queries can match on it
			program = program + ", " + university
		}
		patch.Program = domain.Str(program)
	}
	if spans.Length() >= 2 {
		patch.DegreeType = domain.Str(cleanText(spans.Eq(1)))
	}

	patch.DateAdded = domain.Str(cleanText(cells.Eq(2)))
	return patch
}

func isBadgeRow(row *goquery.Selection) bool {
	first := row.ChildrenFiltered("td").First()
	return first.Length() > 0 && first.AttrOr("colspan", "") == "3"
}

func applyBadges(row *goquery.Selection, rec *domain.ApplicantRecord) {
	row.ChildrenFiltered("td").First().Find("div.tw-inline-flex").Each(func(_ int, s *goquery.Selection) {
		b := badge{
			text:    cleanText(s),
			classes: strings.Fields(s.AttrOr("class", "")),
		}
		out := classifyBadge(b)
		if out.kind == badgeIgnored || out.patch.Empty() {
			return
		}
		slog.Debug("Classified badge", "result_id", rec.ID(), "kind", out.kind.String(), "text", b.text)
		rec.Merge(out.patch, domain.Overwrite)
	})
}

func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s.Text(), " "))
}

func guard(stage string, rec *domain.ApplicantRecord, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Parse stage failed", "stage", stage, "result_id", rec.ID(), "error", r)
		}
	}()
	fn()
}
