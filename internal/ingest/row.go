package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/museumbook/internal/booking"
)

const (
	shorthandColumns = 2
	fullMinColumns   = 6
)

// Row is a classified input line. It is either a ShorthandRow or a FullRow.
type Row interface {
	// Shape names the row variant ("shorthand" or "full").
	Shape() string
	toRecord(d Defaults) booking.Record
}

// ShorthandRow is the two-column "name,idNumber" form. Every other field
// takes its default.
type ShorthandRow struct {
	Name     string
	IDNumber string
}

func (ShorthandRow) Shape() string { return "shorthand" }

func (r ShorthandRow) toRecord(d Defaults) booking.Record {
	rec := booking.Record{
		VisitorName:      r.Name,
		IDNumber:         r.IDNumber,
		IDType:           booking.IDCard,
		Museum:           booking.MainMuseum,
		VisitDate:        d.VisitDate,
		TimeSlot:         d.TimeSlot,
		NumberOfVisitors: 1,
	}
	rec.VisitorDetails = []booking.VisitorDetail{rec.PrimaryVisitor(nil)}
	return rec
}

// FullRow is the positional form:
// name,idNumber,idType,museum,visitDate,timeSlot[,numberOfVisitors[,age]].
type FullRow struct {
	Name             string
	IDNumber         string
	IDType           string
	Museum           string
	VisitDate        string
	TimeSlot         string
	NumberOfVisitors string
	Age              string
}

func (FullRow) Shape() string { return "full" }

func (r FullRow) toRecord(_ Defaults) booking.Record {
	idType := booking.IDType(r.IDType)
	if idType == "" {
		idType = booking.IDCard
	}
	museum := booking.Museum(r.Museum)
	if museum == "" {
		museum = booking.MainMuseum
	}
	visitors, err := strconv.Atoi(r.NumberOfVisitors)
	if err != nil || visitors < 1 {
		visitors = 1
	}
	var age *int
	if n, err := strconv.Atoi(r.Age); err == nil {
		age = &n
	}

	rec := booking.Record{
		VisitorName:      r.Name,
		IDNumber:         r.IDNumber,
		IDType:           idType,
		Museum:           museum,
		VisitDate:        r.VisitDate,
		TimeSlot:         r.TimeSlot,
		NumberOfVisitors: visitors,
	}
	rec.VisitorDetails = []booking.VisitorDetail{rec.PrimaryVisitor(age)}
	return rec
}

// Classify selects the row variant by column count. Fields must already be
// cleaned with CleanFields.
func Classify(fields []string) (Row, error) {
	switch n := len(fields); {
	case n == shorthandColumns:
		return ShorthandRow{Name: fields[0], IDNumber: fields[1]}, nil
	case n >= fullMinColumns:
		return FullRow{
			Name:             fields[0],
			IDNumber:         fields[1],
			IDType:           fields[2],
			Museum:           fields[3],
			VisitDate:        fields[4],
			TimeSlot:         fields[5],
			NumberOfVisitors: field(fields, 6),
			Age:              field(fields, 7),
		}, nil
	default:
		return nil, fmt.Errorf("expected %d or at least %d fields, got %d", shorthandColumns, fullMinColumns, n)
	}
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// CleanFields splits a line on commas, trims each field, strips C0 and C1
// control characters and drops fields left empty.
func CleanFields(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(stripControl(strings.TrimSpace(part)))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}
