package bulk

import (
	"time"

	"github.com/wolfman30/museumbook/internal/booking"
)

const (
	// Unknown fills identifiers the API did not return.
	Unknown = "unknown"
	// FallbackError is reported when a failure carries no usable message.
	FallbackError = "Booking failed"
)

// Outcome is the result of submitting one record.
type Outcome struct {
	Index            int            `json:"index"`
	Record           booking.Record `json:"record"`
	Success          bool           `json:"success"`
	AppointmentID    string         `json:"appointmentId,omitempty"`
	MuseumBookingID  string         `json:"museumBookingId,omitempty"`
	ConfirmationCode string         `json:"confirmationCode,omitempty"`
	Error            string         `json:"error,omitempty"`
	Attempts         int            `json:"attempts"`
	Duration         time.Duration  `json:"-"`
	Err              error          `json:"-"`
}

// Result holds one outcome per submitted record, in input order.
type Result struct {
	BatchID   string    `json:"batchId"`
	Outcomes  []Outcome `json:"outcomes"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Successes returns the successful outcomes in input order.
func (r *Result) Successes() []Outcome {
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Failures returns the failed outcomes in input order.
func (r *Result) Failures() []Outcome {
	out := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Summary labels the batch for metrics and logs.
func (r *Result) Summary() string {
	switch ok := r.Succeeded(); {
	case r.Cancelled:
		return "cancelled"
	case ok == len(r.Outcomes):
		return "complete"
	case ok == 0:
		return "failed"
	default:
		return "partial"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
