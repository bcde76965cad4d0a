package parser

import (
	"regexp"
	"slices"
	"strconv"

	"gradcafe/packages/domain"
)

// statusBadgeClass marks the composite status badge, which is only visible on
// narrow screens and carries every badge fact in one string.
const statusBadgeClass = "md:tw-hidden"

var (
	termRegex          = regexp.MustCompile(`(Fall|Spring|Summer|Winter)\s+(\d{4})`)
	gpaRegex           = regexp.MustCompile(`GPA\s+(\d+\.?\d*)`)
	americanRegex      = regexp.MustCompile(`\bAmerican\b`)
	internationalRegex = regexp.MustCompile(`\bInternational\b`)

	// the date fragment of "<Status> on <date>" ends at the first of these
	dateStopRegex = regexp.MustCompile(`(?i)Fall|Spring|Summer|Winter|American|International|GPA|\s\d{4}\b`)

	statusPatterns = []struct {
		re     *regexp.Regexp
		status domain.Status
	}{
		{re: regexp.MustCompile(`(?i)Accepted\s+on\s+`), status: domain.Accepted},
		{re: regexp.MustCompile(`(?i)Rejected\s+on\s+`), status: domain.Rejected},
		{re: regexp.MustCompile(`(?i)Interview\s+on\s+`), status: domain.Interview},
		{re: regexp.MustCompile(`(?i)Wait\s*listed\s+on\s+`), status: domain.WaitListed},
	}
)

type badgeKind int

const (
	badgeIgnored badgeKind = iota
	badgeStatus
	badgeTerm
	badgeCitizenship
	badgeGPA
)

func (k badgeKind) String() string {
	switch k {
	case badgeStatus:
		return "status"
	case badgeTerm:
		return "term"
	case badgeCitizenship:
		return "citizenship"
	case badgeGPA:
		return "gpa"
	default:
		return "ignored"
	}
}

type badge struct {
	text    string
	classes []string
}

type badgeOutcome struct {
	kind  badgeKind
	patch domain.Patch
}

type badgeClassifier func(b badge) (badgeOutcome, bool)

// badgeClassifiers run in order; the first that claims a badge wins.
var badgeClassifiers = []badgeClassifier{
	classifyStatusBadge,
	classifyTermBadge,
	classifyCitizenshipBadge,
	classifyGPABadge,
}

func classifyBadge(b badge) badgeOutcome {
	for _, classify := range badgeClassifiers {
		if out, ok := classify(b); ok {
			return out
		}
	}
	return badgeOutcome{kind: badgeIgnored}
}

func classifyStatusBadge(b badge) (badgeOutcome, bool) {
	if !slices.Contains(b.classes, statusBadgeClass) {
		return badgeOutcome{}, false
	}
	return badgeOutcome{kind: badgeStatus, patch: ParseStatusBadge(b.text)}, true
}

func classifyTermBadge(b badge) (badgeOutcome, bool) {
	var p domain.Patch
	if !applyTerm(b.text, &p) {
		return badgeOutcome{}, false
	}
	return badgeOutcome{kind: badgeTerm, patch: p}, true
}

func classifyCitizenshipBadge(b badge) (badgeOutcome, bool) {
	if b.text != domain.American && b.text != domain.International {
		return badgeOutcome{}, false
	}
	return badgeOutcome{kind: badgeCitizenship, patch: domain.Patch{Citizenship: domain.Str(b.text)}}, true
}

func classifyGPABadge(b badge) (badgeOutcome, bool) {
	var p domain.Patch
	if !applyGPA(b.text, &p) {
		return badgeOutcome{}, false
	}
	return badgeOutcome{kind: badgeGPA, patch: p}, true
}

// ParseStatusBadge decomposes the composite status badge, e.g.
// "Accepted on 01/02/2024 Fall 2026 American GPA 3.7". Every fact present is
// extracted; absent facts stay nil.
func ParseStatusBadge(text string) domain.Patch {
	var p domain.Patch

	for _, sp := range statusPatterns {
		loc := sp.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := text[loc[1]:]
		if rest == "" {
			continue
		}
		end := len(rest)
		if stop := dateStopRegex.FindStringIndex(rest); stop != nil {
			end = stop[0]
		}
		p.Status = domain.StatusPtr(sp.status)
		// nil when the next fact starts right after "on"
		p.StatusDate = domain.Str(rest[:end])
		break
	}

	applyTerm(text, &p)

	if americanRegex.MatchString(text) {
		p.Citizenship = domain.Str(domain.American)
	} else if internationalRegex.MatchString(text) {
		p.Citizenship = domain.Str(domain.International)
	}

	applyGPA(text, &p)
	return p
}

func applyTerm(text string, p *domain.Patch) bool {
	m := termRegex.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	p.Term = domain.Str(m[1] + " " + m[2])
	p.Year = domain.Str(m[2])
	return true
}

func applyGPA(text string, p *domain.Patch) bool {
	m := gpaRegex.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return false
	}
	p.GPA = domain.Str(m[1])
	return true
}
