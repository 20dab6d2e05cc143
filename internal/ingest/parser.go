// Package ingest turns pasted or uploaded visitor lists into booking records
// and checks a batch for duplicate (idNumber, visitDate) pairs.
package ingest

import (
	"strings"
	"time"

	"github.com/wolfman30/museumbook/internal/booking"
)

// Defaults are the values a ShorthandRow inherits.
type Defaults struct {
	VisitDate string
	TimeSlot  string
}

// LineResult is the outcome for one non-blank input line: either a parsed
// record or a skip reason.
type LineResult struct {
	Line       int // 1-based, counting blank lines
	Raw        string
	Row        Row
	Record     *booking.Record
	SkipReason string

	// Invalid marks a line that had a row shape but failed record
	// validation. Record is kept for display and is never booked.
	Invalid bool
}

// OK reports whether the line produced a bookable record.
func (l LineResult) OK() bool {
	return l.Record != nil && !l.Invalid
}

// Report is the full per-line result of one parse.
type Report struct {
	Lines []LineResult
}

// Records returns the parsed records in input order.
func (r *Report) Records() []booking.Record {
	out := make([]booking.Record, 0, len(r.Lines))
	for _, l := range r.Lines {
		if l.OK() {
			out = append(out, *l.Record)
		}
	}
	return out
}

// Skipped returns every line that will not be booked: lines matching neither
// row shape and invalid records.
func (r *Report) Skipped() []LineResult {
	var out []LineResult
	for _, l := range r.Lines {
		if !l.OK() {
			out = append(out, l)
		}
	}
	return out
}

func (r *Report) SkippedCount() int {
	return len(r.Skipped())
}

// InvalidCount counts the skipped lines that failed validation.
func (r *Report) InvalidCount() int {
	n := 0
	for _, l := range r.Lines {
		if l.Invalid {
			n++
		}
	}
	return n
}

// Parser converts raw text into booking records.
type Parser struct {
	now         func() time.Time
	leadDays    int
	defaultSlot string
}

// NewParser returns a parser with a five day lead time and the standard
// afternoon slot.
func NewParser() *Parser {
	return &Parser{
		now:         time.Now,
		leadDays:    5,
		defaultSlot: booking.DefaultTimeSlot,
	}
}

func (p *Parser) WithClock(now func() time.Time) *Parser {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Parser) WithLeadDays(days int) *Parser {
	if days >= 0 {
		p.leadDays = days
	}
	return p
}

func (p *Parser) WithDefaultSlot(slot string) *Parser {
	if strings.TrimSpace(slot) != "" {
		p.defaultSlot = slot
	}
	return p
}

// Defaults returns the values shorthand rows receive right now.
func (p *Parser) Defaults() Defaults {
	return Defaults{
		VisitDate: booking.VisitDateIn(p.now(), p.leadDays),
		TimeSlot:  p.defaultSlot,
	}
}

// Parse classifies every non-blank line of text. It never fails: lines that
// fit no row shape, and records that fail validation, come back as skipped
// results.
func (p *Parser) Parse(text string) *Report {
	defaults := p.Defaults()
	report := &Report{}
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result := LineResult{Line: i + 1, Raw: strings.TrimRight(line, "\r")}
		fields := CleanFields(line)
		if isHeader(fields) {
			result.SkipReason = "header row"
			report.Lines = append(report.Lines, result)
			continue
		}
		row, err := Classify(fields)
		if err != nil {
			result.SkipReason = err.Error()
		} else {
			rec := row.toRecord(defaults)
			result.Row = row
			result.Record = &rec
			if err := rec.Validate(); err != nil {
				result.Invalid = true
				result.SkipReason = strings.TrimPrefix(err.Error(), booking.ErrInvalidRecord.Error()+": ")
			}
		}
		report.Lines = append(report.Lines, result)
	}
	return report
}

// isHeader matches only the full template's column row, so a two-field line
// such as "visitorName,idNumber" is still a shorthand record.
func isHeader(fields []string) bool {
	if len(fields) != len(templateColumns) {
		return false
	}
	for i, col := range templateColumns {
		if !strings.EqualFold(fields[i], col) {
			return false
		}
	}
	return true
}
