package ingest

import (
	"fmt"
	"io"
)

// TemplateKind selects one of the downloadable CSV templates.
type TemplateKind string

const (
	FullTemplate   TemplateKind = "full"
	SimpleTemplate TemplateKind = "simple"
)

// templateColumns is the column row of the full template. Parse skips a line
// only when it matches this row exactly.
var templateColumns = []string{
	"visitorName", "idNumber", "idType", "museum",
	"visitDate", "timeSlot", "numberOfVisitors", "age",
}

const fullTemplate = `visitorName,idNumber,idType,museum,visitDate,timeSlot,numberOfVisitors,age
John Doe,123456789012345678,id_card,main,2025-10-09,16:30-18:00,1,25
Jane Smith,987654321098765432,id_card,qin_han,2025-10-09,14:30-16:30,1,30
`

const simpleTemplate = `张丹,510105197908271783
王远游,512221197303150994
伍鸿睿,510703200606130015
`

// Filename is the suggested download name.
func (k TemplateKind) Filename() string {
	if k == SimpleTemplate {
		return "simple_booking_template.csv"
	}
	return "booking_template.csv"
}

// WriteTemplate writes the sample CSV for kind.
func WriteTemplate(w io.Writer, kind TemplateKind) error {
	var body string
	switch kind {
	case FullTemplate, "":
		body = fullTemplate
	case SimpleTemplate:
		body = simpleTemplate
	default:
		return fmt.Errorf("ingest: unknown template %q", kind)
	}
	_, err := io.WriteString(w, body)
	return err
}
