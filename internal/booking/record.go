// Package booking defines the museum booking records exchanged with the
// booking API, their enums, display labels and form validation.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO 8601 calendar date format used for visit dates.
const DateLayout = "2006-01-02"

// DefaultTimeSlot is used when a booking row omits its slot.
const DefaultTimeSlot = "16:30-18:00"

// IDType identifies the kind of identity document a visitor presents.
type IDType string

const (
	IDCard          IDType = "id_card"
	Passport        IDType = "passport"
	HKMacauPassport IDType = "hk_macau_passport"
	TaiwanPermit    IDType = "taiwan_permit"
	ForeignID       IDType = "foreign_id"
)

var idTypeLabels = map[IDType]string{
	IDCard:          "Chinese ID Card",
	Passport:        "Passport",
	HKMacauPassport: "Hong Kong/Macau Passport",
	TaiwanPermit:    "Taiwan Travel Permit",
	ForeignID:       "Foreign ID Card",
}

// IDTypes lists the document types in display order.
func IDTypes() []IDType {
	return []IDType{IDCard, Passport, HKMacauPassport, TaiwanPermit, ForeignID}
}

// Valid reports whether t is a known document type.
func (t IDType) Valid() bool {
	_, ok := idTypeLabels[t]
	return ok
}

// Label returns the human readable name, or the raw value when unknown.
func (t IDType) Label() string {
	if label, ok := idTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// Museum identifies one of the bookable venues.
type Museum string

const (
	MainMuseum   Museum = "main"
	QinHanMuseum Museum = "qin_han"
)

type museumInfo struct {
	label   string
	address string
}

var museums = map[Museum]museumInfo{
	MainMuseum:   {label: "Shaanxi History Museum (Main)", address: "Xiaozhai East Road, Yanta District"},
	QinHanMuseum: {label: "Qin & Han Dynasties Museum", address: "East Section of Lanchi 3rd Road, Qin & Han New City"},
}

// Museums lists the venues in display order.
func Museums() []Museum {
	return []Museum{MainMuseum, QinHanMuseum}
}

func (m Museum) Valid() bool {
	_, ok := museums[m]
	return ok
}

func (m Museum) Label() string {
	if info, ok := museums[m]; ok {
		return info.label
	}
	return string(m)
}

func (m Museum) Address() string {
	return museums[m].address
}

// AppointmentStatus is the server-side state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// VisitorDetail describes one member of a booking party.
type VisitorDetail struct {
	Name     string `json:"name"`
	IDNumber string `json:"idNumber"`
	IDType   IDType `json:"idType"`
	Age      *int   `json:"age,omitempty"`
}

// Record is one intended appointment, in the shape the booking API accepts.
type Record struct {
	VisitorName      string          `json:"visitorName"`
	VisitorEmail     string          `json:"visitorEmail,omitempty"`
	VisitorPhone     string          `json:"visitorPhone,omitempty"`
	IDNumber         string          `json:"idNumber"`
	IDType           IDType          `json:"idType"`
	Museum           Museum          `json:"museum"`
	VisitDate        string          `json:"visitDate"`
	TimeSlot         string          `json:"timeSlot"`
	NumberOfVisitors int             `json:"numberOfVisitors"`
	VisitorDetails   []VisitorDetail `json:"visitorDetails"`
}

// Key is the batch uniqueness key of a record.
type Key struct {
	IDNumber  string
	VisitDate string
}

func (k Key) String() string {
	return k.IDNumber + "-" + k.VisitDate
}

// Key returns the (idNumber, visitDate) pair that must be unique per batch.
func (r Record) Key() Key {
	return Key{IDNumber: r.IDNumber, VisitDate: r.VisitDate}
}

// Label renders the record as "name (id)" for offender lists and logs.
func (r Record) Label() string {
	return fmt.Sprintf("%s (%s)", r.VisitorName, r.IDNumber)
}

// PrimaryVisitor returns a visitor detail mirroring the booking holder.
func (r Record) PrimaryVisitor(age *int) VisitorDetail {
	return VisitorDetail{
		Name:     r.VisitorName,
		IDNumber: r.IDNumber,
		IDType:   r.IDType,
		Age:      age,
	}
}

// VisitDateIn returns the date that is leadDays after now, formatted as a visit date.
func VisitDateIn(now time.Time, leadDays int) string {
	return now.AddDate(0, 0, leadDays).Format(DateLayout)
}

// ErrInvalidRecord is wrapped by every validation failure.
var ErrInvalidRecord = errors.New("booking: invalid record")

// Validate performs form-level checks. It does not check capacity or slot
// availability; the booking API owns those rules.
func (r Record) Validate() error {
	var problems []string
	if strings.TrimSpace(r.VisitorName) == "" {
		problems = append(problems, "visitor name required")
	}
	if strings.TrimSpace(r.IDNumber) == "" {
		problems = append(problems, "id number required")
	}
	if !r.IDType.Valid() {
		problems = append(problems, fmt.Sprintf("unknown id type %q (want %s)", r.IDType, joinValues(IDTypes())))
	}
	if !r.Museum.Valid() {
		problems = append(problems, fmt.Sprintf("unknown museum %q (want %s)", r.Museum, joinValues(Museums())))
	}
	if _, err := time.Parse(DateLayout, r.VisitDate); err != nil {
		problems = append(problems, fmt.Sprintf("visit date %q is not YYYY-MM-DD", r.VisitDate))
	}
	if strings.TrimSpace(r.TimeSlot) == "" {
		problems = append(problems, "time slot required")
	}
	if r.NumberOfVisitors < 1 {
		problems = append(problems, "number of visitors must be at least 1")
	}
	if len(r.VisitorDetails) == 0 {
		problems = append(problems, "at least one visitor detail required")
	}
	for i, d := range r.VisitorDetails {
		if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.IDNumber) == "" {
			problems = append(problems, fmt.Sprintf("visitor %d needs a name and id number", i+1))
		}
		if d.Age != nil && *d.Age < 0 {
			problems = append(problems, fmt.Sprintf("visitor %d has a negative age", i+1))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return nil
}

func joinValues[T ~string](values []T) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return strings.Join(out, ", ")
}
