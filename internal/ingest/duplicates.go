package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/museumbook/internal/booking"
)

// ErrDuplicateEntries is wrapped by DuplicateError.
var ErrDuplicateEntries = errors.New("ingest: duplicate entries")

// DuplicateGroup is a key seen more than once, with the indices of every
// record carrying it.
type DuplicateGroup struct {
	Key     booking.Key
	Indices []int
}

// DuplicateReport is the result of one scan. Flags[i] is true for every
// record that shares its key with another record, including the first.
type DuplicateReport struct {
	Groups []DuplicateGroup
	Flags  []bool

	records []booking.Record
}

// DetectDuplicates scans records once, grouping them by (idNumber, visitDate).
// Groups are ordered by the first occurrence of their key.
func DetectDuplicates(records []booking.Record) *DuplicateReport {
	report := &DuplicateReport{
		Flags:   make([]bool, len(records)),
		records: records,
	}

	indices := make(map[booking.Key][]int, len(records))
	var order []booking.Key
	for i, rec := range records {
		key := rec.Key()
		if _, seen := indices[key]; !seen {
			order = append(order, key)
		}
		indices[key] = append(indices[key], i)
	}

	for _, key := range order {
		idx := indices[key]
		if len(idx) < 2 {
			continue
		}
		report.Groups = append(report.Groups, DuplicateGroup{Key: key, Indices: idx})
		for _, i := range idx {
			report.Flags[i] = true
		}
	}
	return report
}

// HasDuplicates reports whether any key repeats.
func (d *DuplicateReport) HasDuplicates() bool {
	return len(d.Groups) > 0
}

// Offenders lists every flagged record as "name (id)" in scan order.
func (d *DuplicateReport) Offenders() []string {
	var out []string
	for i, flagged := range d.Flags {
		if flagged {
			out = append(out, d.records[i].Label())
		}
	}
	return out
}

// Err returns a *DuplicateError when the batch must be blocked, nil otherwise.
func (d *DuplicateReport) Err() error {
	if !d.HasDuplicates() {
		return nil
	}
	return &DuplicateError{Report: d}
}

// DuplicateError blocks a whole batch from submission.
type DuplicateError struct {
	Report *DuplicateReport
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate entries found: %s; remove duplicates before booking",
		strings.Join(e.Report.Offenders(), ", "))
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateEntries
}
