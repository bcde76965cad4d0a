// Package domain
package domain

import (
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	Accepted   Status = "Accepted"
	Rejected   Status = "Rejected"
	Interview  Status = "Interview"
	WaitListed Status = "Wait listed"
)

const (
	American      = "American"
	International = "International"
)

// ApplicantRecord is one scraped admission result. Nil means the field was
// never observed; an empty string is never stored.
type ApplicantRecord struct {
	ResultID    *string `json:"result_id"`
	University  *string `json:"university"`
	Program     *string `json:"program"`
	DegreeType  *string `json:"degree"`
	DateAdded   *string `json:"date_added"`
	URL         *string `json:"url"`
	Status      *Status `json:"status"`
	StatusDate  *string `json:"decision_date"`
	Term        *string `json:"term"`
	Year        *string `json:"year"`
	Citizenship *string `json:"us_or_international"`
	GPA         *string `json:"gpa"`
	GREQuant    *string `json:"gre"`
	GREVerbal   *string `json:"gre_v"`
	GREAW       *string `json:"gre_aw"`
	Comments    *string `json:"comments"`
}

// ID is the result id for logging, or "unknown".
func (r *ApplicantRecord) ID() string {
	if r == nil || r.ResultID == nil {
		return "unknown"
	}
	return *r.ResultID
}

// Patch collects field values observed by one parsing stage. Nothing touches
// the target record until it is merged.
type Patch struct {
	University  *string
	Program     *string
	DegreeType  *string
	DateAdded   *string
	Status      *Status
	StatusDate  *string
	Term        *string
	Year        *string
	Citizenship *string
	GPA         *string
	GREQuant    *string
	GREVerbal   *string
	GREAW       *string
	Comments    *string
}

func (p *Patch) Empty() bool {
	return *p == Patch{}
}

// MergeMode controls whether a patch may replace values already on a record.
type MergeMode int

const (
	// Overwrite lets later observations replace earlier ones. Used for the
	// listing page, where badge facts refine each other in document order.
	Overwrite MergeMode = iota
	// FillUnset only fills fields that are still nil.
	FillUnset
)

// Merge applies p to r. Test scores are always taken from the patch when
// present, since the detail page is their only source; GPA from a detail
// page is authoritative and also replaces a badge value.
func (r *ApplicantRecord) Merge(p Patch, mode MergeMode) {
	set := func(dst **string, v *string) {
		if v == nil {
			return
		}
		if mode == FillUnset && *dst != nil {
			return
		}
		*dst = v
	}
	force := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}

	set(&r.University, p.University)
	set(&r.Program, p.Program)
	set(&r.DegreeType, p.DegreeType)
	set(&r.DateAdded, p.DateAdded)
	set(&r.StatusDate, p.StatusDate)
	set(&r.Term, p.Term)
	set(&r.Year, p.Year)
	set(&r.Citizenship, p.Citizenship)
	set(&r.Comments, p.Comments)
	if p.Status != nil && (mode == Overwrite || r.Status == nil) {
		r.Status = p.Status
	}

	force(&r.GPA, p.GPA)
	force(&r.GREQuant, p.GREQuant)
	force(&r.GREVerbal, p.GREVerbal)
	force(&r.GREAW, p.GREAW)
}

// Str returns a pointer to the trimmed string, or nil when it is empty.
func Str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Score formats a positive number the way scores are stored ("320.0",
// "3.75"). Non-positive values are absent.
func Score(v float64) *string {
	if v <= 0 {
		return nil
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return &s
}

func StatusPtr(s Status) *Status {
	return &s
}

// DetailLink pairs a listing record with the detail page it links to.
type DetailLink struct {
	Record    *ApplicantRecord
	DetailURL string
}

// CleanedRecord is one line of the cleaning collaborator's JSONL output.
// Numeric fields arrive as either JSON numbers or strings.
type CleanedRecord struct {
	Program                *string `json:"program"`
	Comments               *string `json:"comments"`
	DateAdded              *string `json:"date_added"`
	URL                    *string `json:"url"`
	Status                 *string `json:"status"`
	Term                   *string `json:"term"`
	Citizenship            *string `json:"us_or_international"`
	GPA                    Numeric `json:"gpa"`
	GRE                    Numeric `json:"gre"`
	GREV                   Numeric `json:"gre_v"`
	GREAW                  Numeric `json:"gre_aw"`
	Degree                 *string `json:"degree"`
	LLMGeneratedProgram    *string `json:"llm_generated_program"`
	LLMGeneratedUniversity *string `json:"llm_generated_university"`
}

// Numeric accepts a JSON number, a numeric string or null.
type Numeric struct {
	Value *float64
}

func (n *Numeric) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	n.Value = nil
	if raw == "null" || raw == "" {
		return nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		n.Value = &f
	}
	return nil
}

// BadRow is a cleaned record the relational store refused.
type BadRow struct {
	URL   string `json:"url"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type LoadReport struct {
	Read     int      `json:"read"`
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	BadRows  []BadRow `json:"bad_rows,omitempty"`
}

// PullReport summarises one pull.
type PullReport struct {
	Pages    int
	Records  int
	CleanErr error
	Load     *LoadReport
	LoadErr  error
	Duration time.Duration
}
